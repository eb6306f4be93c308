package cli

import (
	"bytes"
	"os"

	"github.com/depot-pkg/depot/internal/auth"
)

// HashPasswordFile replaces the plaintext password stored at path with its
// bcrypt verifier. A single trailing newline is not part of the password.
// The plaintext buffer is zeroed before returning.
func HashPasswordFile(path string, cost int) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	plain, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer auth.Wipe(plain)

	password := bytes.TrimSuffix(bytes.TrimSuffix(plain, []byte("\n")), []byte("\r"))
	verifier, err := auth.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, verifier, info.Mode().Perm()); err != nil {
		return nil, err
	}
	return verifier, nil
}
