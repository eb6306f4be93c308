package rbac

import "fmt"

// Kind names one of the three entity tiers that can carry overrides.
type Kind string

const (
	KindUser         Kind = "user"
	KindTeam         Kind = "team"
	KindOrganization Kind = "org"
)

// ParseKind validates an entity kind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindUser, KindTeam, KindOrganization:
		return Kind(raw), nil
	}
	return "", fmt.Errorf("rbac: unknown entity kind %q", raw)
}

// ArtifactKey identifies one artifact inside a group.
type ArtifactKey struct {
	Group    string
	Artifact string
}

// Overrides holds the explicit permission assignments of one entity.
// Artifact-level entries always win over group-level entries.
type Overrides struct {
	groups    map[string]Level
	artifacts map[ArtifactKey]Level
}

func newOverrides() Overrides {
	return Overrides{
		groups:    make(map[string]Level),
		artifacts: make(map[ArtifactKey]Level),
	}
}

// SetGroup assigns a level to every artifact in a group, replacing any previous entry.
func (o *Overrides) SetGroup(group string, level Level) {
	o.groups[group] = level
}

// SetArtifact assigns a level to one artifact, replacing any previous entry.
func (o *Overrides) SetArtifact(group, artifact string, level Level) {
	o.artifacts[ArtifactKey{Group: group, Artifact: artifact}] = level
}

// Group looks up a group-level override.
func (o Overrides) Group(group string) (Level, bool) {
	level, ok := o.groups[group]
	return level, ok
}

// Artifact looks up an artifact-level override.
func (o Overrides) Artifact(group, artifact string) (Level, bool) {
	level, ok := o.artifacts[ArtifactKey{Group: group, Artifact: artifact}]
	return level, ok
}

// resolve applies the artifact-then-group precedence of a single entity.
func (o Overrides) resolve(group, artifact string) (Level, bool) {
	if level, ok := o.Artifact(group, artifact); ok {
		return level, true
	}
	return o.Group(group)
}

// User is an individual identity.
type User struct {
	Name      string
	teams     map[string]struct{}
	Overrides Overrides
}

// Team groups users under exactly one organization.
type Team struct {
	Name         string
	Organization string
	members      map[string]struct{}
	Overrides    Overrides
}

// Organization groups teams.
type Organization struct {
	Name      string
	teams     map[string]struct{}
	Overrides Overrides
}

func newUser(name string) *User {
	return &User{Name: name, teams: make(map[string]struct{}), Overrides: newOverrides()}
}

func newTeam(name, org string) *Team {
	return &Team{Name: name, Organization: org, members: make(map[string]struct{}), Overrides: newOverrides()}
}

func newOrganization(name string) *Organization {
	return &Organization{Name: name, teams: make(map[string]struct{}), Overrides: newOverrides()}
}
