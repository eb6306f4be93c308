package rbac

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/depot-pkg/depot/internal/shared"
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("rbac: already initialized")
	// ErrOrganizationMismatch is returned when a team is re-added under a different organization.
	ErrOrganizationMismatch = errors.New("rbac: team belongs to another organization")
)

// Service owns the permission graph: users, teams, organizations and their
// overrides. All methods are safe for concurrent use.
type Service struct {
	mu         sync.RWMutex
	ready      bool
	anonymous  string
	superusers map[string]struct{}
	users      map[string]*User
	teams      map[string]*Team
	orgs       map[string]*Organization
}

// NewService constructs an empty graph. Unknown requesters resolve as anonymous.
func NewService(anonymous string) *Service {
	return &Service{
		anonymous:  anonymous,
		superusers: make(map[string]struct{}),
		users:      make(map[string]*User),
		teams:      make(map[string]*Team),
		orgs:       make(map[string]*Organization),
	}
}

// Initialize restores a snapshot, creates the built-in identities and marks
// the graph ready for queries. It may only run once.
func (s *Service) Initialize(snap Snapshot, superusers ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return ErrAlreadyInitialized
	}
	if err := s.restoreLocked(snap); err != nil {
		return err
	}
	s.addUserLocked(s.anonymous)
	for _, name := range superusers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.addUserLocked(name)
		s.superusers[name] = struct{}{}
	}
	s.ready = true
	return nil
}

// Ready reports whether Initialize has completed.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Anonymous returns the identity used for unauthenticated requests.
func (s *Service) Anonymous() string {
	return s.anonymous
}

// IsSuperUser reports whether name is a built-in administrator.
func (s *Service) IsSuperUser(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.superusers[name]
	return ok
}

// AddUser creates a user unless one already exists. It reports whether a user was created.
func (s *Service) AddUser(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(name)
}

func (s *Service) addUserLocked(name string) bool {
	if _, ok := s.users[name]; ok {
		return false
	}
	s.users[name] = newUser(name)
	return true
}

// AddOrganization creates an organization unless one already exists.
func (s *Service) AddOrganization(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addOrganizationLocked(name)
}

func (s *Service) addOrganizationLocked(name string) bool {
	if _, ok := s.orgs[name]; ok {
		return false
	}
	s.orgs[name] = newOrganization(name)
	return true
}

// AddTeam creates a team owned by org. Re-adding a team under the same
// organization is a no-op; the organization of a team never changes.
func (s *Service) AddTeam(name, org string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTeamLocked(name, org)
}

func (s *Service) addTeamLocked(name, org string) (bool, error) {
	owner, ok := s.orgs[org]
	if !ok {
		return false, fmt.Errorf("rbac: organization %q: %w", org, shared.ErrNotFound)
	}
	if existing, ok := s.teams[name]; ok {
		if existing.Organization != org {
			return false, fmt.Errorf("%w: team %q is in %q", ErrOrganizationMismatch, name, existing.Organization)
		}
		return false, nil
	}
	s.teams[name] = newTeam(name, org)
	owner.teams[name] = struct{}{}
	return true, nil
}

// AddMember links a user and a team on both sides.
func (s *Service) AddMember(team, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMemberLocked(team, user)
}

func (s *Service) addMemberLocked(team, user string) error {
	t, ok := s.teams[team]
	if !ok {
		return fmt.Errorf("rbac: team %q: %w", team, shared.ErrNotFound)
	}
	u, ok := s.users[user]
	if !ok {
		return fmt.Errorf("rbac: user %q: %w", user, shared.ErrNotFound)
	}
	t.members[user] = struct{}{}
	u.teams[team] = struct{}{}
	return nil
}

// IsMember reports whether user and team both record the membership.
func (s *Service) IsMember(user, team string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[user]
	if !ok {
		return false
	}
	t, ok := s.teams[team]
	if !ok {
		return false
	}
	_, inUser := u.teams[team]
	_, inTeam := t.members[user]
	return inUser && inTeam
}

// Exists reports whether an entity of the given kind is tracked.
func (s *Service) Exists(kind Kind, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.overridesLocked(kind, name)
	return err == nil
}

// SetGroupOverride assigns level on every artifact of group for one entity.
func (s *Service) SetGroupOverride(kind Kind, name, group string, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.overridesLocked(kind, name)
	if err != nil {
		return err
	}
	o.SetGroup(group, level)
	return nil
}

// SetArtifactOverride assigns level on a single artifact for one entity.
func (s *Service) SetArtifactOverride(kind Kind, name, group, artifact string, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.overridesLocked(kind, name)
	if err != nil {
		return err
	}
	o.SetArtifact(group, artifact, level)
	return nil
}

func (s *Service) overridesLocked(kind Kind, name string) (*Overrides, error) {
	switch kind {
	case KindUser:
		if u, ok := s.users[name]; ok {
			return &u.Overrides, nil
		}
	case KindTeam:
		if t, ok := s.teams[name]; ok {
			return &t.Overrides, nil
		}
	case KindOrganization:
		if o, ok := s.orgs[name]; ok {
			return &o.Overrides, nil
		}
	default:
		return nil, fmt.Errorf("rbac: unknown entity kind %q", kind)
	}
	return nil, fmt.Errorf("rbac: %s %q: %w", kind, name, shared.ErrNotFound)
}

// PermissionFor resolves the effective level of requester on (group, artifact).
// Requesters that are not tracked resolve as the anonymous identity.
func (s *Service) PermissionFor(requester, group, artifact string) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return None, fmt.Errorf("rbac: permission query: %w", shared.ErrNotReady)
	}
	if _, ok := s.superusers[requester]; ok {
		return Administrate, nil
	}
	u, ok := s.users[requester]
	if !ok {
		u, ok = s.users[s.anonymous]
		if !ok {
			return None, nil
		}
	}
	return s.resolveUser(u, group, artifact), nil
}

// TeamPermission resolves starting at the team tier.
func (s *Service) TeamPermission(team, group, artifact string) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return None, fmt.Errorf("rbac: permission query: %w", shared.ErrNotReady)
	}
	t, ok := s.teams[team]
	if !ok {
		return None, fmt.Errorf("rbac: team %q: %w", team, shared.ErrNotFound)
	}
	return s.resolveTeam(t, group, artifact), nil
}

// OrganizationPermission resolves at the organization tier.
func (s *Service) OrganizationPermission(org, group, artifact string) (Level, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return None, fmt.Errorf("rbac: permission query: %w", shared.ErrNotReady)
	}
	o, ok := s.orgs[org]
	if !ok {
		return None, fmt.Errorf("rbac: organization %q: %w", org, shared.ErrNotFound)
	}
	return resolveOrganization(o, group, artifact), nil
}

// Resolve dispatches to the resolution entry point of the given tier.
func (s *Service) Resolve(kind Kind, name, group, artifact string) (Level, error) {
	switch kind {
	case KindUser:
		if !s.Exists(KindUser, name) {
			return None, fmt.Errorf("rbac: user %q: %w", name, shared.ErrNotFound)
		}
		return s.PermissionFor(name, group, artifact)
	case KindTeam:
		return s.TeamPermission(name, group, artifact)
	case KindOrganization:
		return s.OrganizationPermission(name, group, artifact)
	}
	return None, fmt.Errorf("rbac: unknown entity kind %q", kind)
}

// resolveUser: own overrides first, then the widest level any team grants.
func (s *Service) resolveUser(u *User, group, artifact string) Level {
	if level, ok := u.Overrides.resolve(group, artifact); ok {
		return level
	}
	best := None
	for name := range u.teams {
		t, ok := s.teams[name]
		if !ok {
			continue
		}
		if _, member := t.members[u.Name]; !member {
			continue
		}
		best = Max(best, s.resolveTeam(t, group, artifact))
	}
	return best
}

func (s *Service) resolveTeam(t *Team, group, artifact string) Level {
	if level, ok := t.Overrides.resolve(group, artifact); ok {
		return level
	}
	org, ok := s.orgs[t.Organization]
	if !ok {
		return None
	}
	return resolveOrganization(org, group, artifact)
}

func resolveOrganization(o *Organization, group, artifact string) Level {
	if level, ok := o.Overrides.resolve(group, artifact); ok {
		return level
	}
	return None
}
