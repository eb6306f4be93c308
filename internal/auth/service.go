// Package auth keeps the credential verifiers of every known identity and
// authenticates requests against them.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/depot-pkg/depot/internal/shared"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("auth: already initialized")
	// ErrUnknownIdentity is returned when authenticating an identity without a verifier.
	ErrUnknownIdentity = errors.New("auth: unknown identity")
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("auth: password is empty")
)

// Store maps identities to bcrypt verifiers.
type Store struct {
	mu        sync.RWMutex
	ready     bool
	cost      int
	anonymous string
	admin     string
	verifiers map[string][]byte
}

// NewStore constructs an empty store. A cost outside bcrypt's range falls back to DefaultCost.
func NewStore(anonymous string, cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Store{
		cost:      cost,
		anonymous: anonymous,
		verifiers: make(map[string][]byte),
	}
}

// Initialize installs the anonymous identity, the administrator and then the
// persisted identities. Persisted entries never replace the built-ins.
func (s *Store) Initialize(admin string, adminVerifier []byte, persisted map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return ErrAlreadyInitialized
	}
	if admin == "" || len(adminVerifier) == 0 {
		return errors.New("auth: administrator credentials are required")
	}
	s.addLocked(s.anonymous, nil)
	s.addLocked(admin, adminVerifier)
	s.admin = admin
	for name, verifier := range persisted {
		if name == "" || len(verifier) == 0 {
			continue
		}
		s.addLocked(name, verifier)
	}
	s.ready = true
	return nil
}

// Authenticate compares password with the stored verifier of identity.
// The anonymous identity only accepts an empty password.
func (s *Store) Authenticate(identity, password string) (bool, error) {
	s.mu.RLock()
	if !s.ready {
		s.mu.RUnlock()
		return false, fmt.Errorf("auth: authenticate: %w", shared.ErrNotReady)
	}
	verifier, ok := s.verifiers[identity]
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownIdentity, identity)
	}
	if len(verifier) == 0 {
		return password == "", nil
	}
	err := bcrypt.CompareHashAndPassword(verifier, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("auth: compare %q: %w", identity, err)
	}
}

// AddIdentity stores a verifier unless the identity already has one.
// It reports whether the identity was created.
func (s *Store) AddIdentity(name string, verifier []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false, fmt.Errorf("auth: add identity: %w", shared.ErrNotReady)
	}
	if name == "" || len(verifier) == 0 {
		return false, errors.New("auth: identity and verifier are required")
	}
	return s.addLocked(name, verifier), nil
}

func (s *Store) addLocked(name string, verifier []byte) bool {
	if _, ok := s.verifiers[name]; ok {
		return false
	}
	s.verifiers[name] = append([]byte(nil), verifier...)
	return true
}

// Has reports whether identity is known.
func (s *Store) Has(identity string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.verifiers[identity]
	return ok
}

// Anonymous returns the identity used for requests without credentials.
func (s *Store) Anonymous() string {
	return s.anonymous
}

// Hash derives a verifier with the store's work factor.
func (s *Store) Hash(password []byte) ([]byte, error) {
	return HashPassword(password, s.cost)
}

// HashPassword derives a bcrypt verifier from password.
func HashPassword(password []byte, cost int) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	return hash, nil
}

// Wipe zeroes a plaintext buffer once it is no longer needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
