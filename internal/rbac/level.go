package rbac

import (
	"fmt"
	"strings"
)

// Level is a point on the totally ordered access scale. Higher values grant
// strictly more than lower ones.
type Level uint8

const (
	// None means no decision was made at this tier; resolution continues.
	None Level = iota
	// Blocked is an explicit, terminal denial.
	Blocked
	// Browse allows listing but not retrieval.
	Browse
	// Read allows retrieving files.
	Read
	// Write allows uploading files.
	Write
	// Manage allows deleting files.
	Manage
	// Administrate allows granting permissions to others.
	Administrate
)

var levelNames = [...]string{
	None:         "NONE",
	Blocked:      "BLOCKED",
	Browse:       "BROWSE",
	Read:         "READ",
	Write:        "WRITE",
	Manage:       "MANAGE",
	Administrate: "ADMINISTRATE",
}

// Levels returns every level from lowest to highest.
func Levels() []Level {
	return []Level{None, Blocked, Browse, Read, Write, Manage, Administrate}
}

// String returns the canonical upper-case name.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// ParseLevel resolves a level name, ignoring case and surrounding space.
func ParseLevel(name string) (Level, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return None, fmt.Errorf("rbac: unknown permission level %q", name)
}

// MarshalText encodes the level by name so snapshots stay readable and the
// ordering is reconstructed from the name on load.
func (l Level) MarshalText() ([]byte, error) {
	if int(l) >= len(levelNames) {
		return nil, fmt.Errorf("rbac: invalid permission level %d", uint8(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AtLeast reports whether l grants everything min grants.
func (l Level) AtLeast(min Level) bool {
	return l >= min
}

// CanRead reports whether retrieval is allowed.
func (l Level) CanRead() bool { return l >= Read }

// CanWrite reports whether uploads are allowed.
func (l Level) CanWrite() bool { return l >= Write }

// Max returns the more permissive of two levels.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// Min returns the less permissive of two levels.
func Min(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}
