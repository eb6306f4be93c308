package rbac

import (
	"fmt"
	"sort"
)

// Snapshot is the persisted shape of the permission graph.
type Snapshot struct {
	Users         []UserRecord         `json:"users"`
	Teams         []TeamRecord         `json:"teams"`
	Organizations []OrganizationRecord `json:"organizations"`
}

// OverrideRecord is one persisted override. An empty Artifact marks a group override.
type OverrideRecord struct {
	Group    string `json:"group"`
	Artifact string `json:"artifact,omitempty"`
	Level    Level  `json:"level"`
}

// UserRecord persists a user. Team memberships are stored on the team side.
type UserRecord struct {
	Name      string           `json:"name"`
	Overrides []OverrideRecord `json:"overrides,omitempty"`
}

// TeamRecord persists a team and its members.
type TeamRecord struct {
	Name         string           `json:"name"`
	Organization string           `json:"organization"`
	Members      []string         `json:"members,omitempty"`
	Overrides    []OverrideRecord `json:"overrides,omitempty"`
}

// OrganizationRecord persists an organization.
type OrganizationRecord struct {
	Name      string           `json:"name"`
	Overrides []OverrideRecord `json:"overrides,omitempty"`
}

// Snapshot captures the graph in a deterministic order.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	for _, name := range sortedKeys(s.orgs) {
		o := s.orgs[name]
		snap.Organizations = append(snap.Organizations, OrganizationRecord{
			Name:      o.Name,
			Overrides: overrideRecords(o.Overrides),
		})
	}
	for _, name := range sortedKeys(s.teams) {
		t := s.teams[name]
		snap.Teams = append(snap.Teams, TeamRecord{
			Name:         t.Name,
			Organization: t.Organization,
			Members:      sortedKeys(t.members),
			Overrides:    overrideRecords(t.Overrides),
		})
	}
	for _, name := range sortedKeys(s.users) {
		u := s.users[name]
		snap.Users = append(snap.Users, UserRecord{
			Name:      u.Name,
			Overrides: overrideRecords(u.Overrides),
		})
	}
	return snap
}

// restoreLocked rebuilds entities from snap. Organizations come first so that
// teams can attach, then users so that memberships can link.
func (s *Service) restoreLocked(snap Snapshot) error {
	for _, rec := range snap.Organizations {
		s.addOrganizationLocked(rec.Name)
		applyOverrides(&s.orgs[rec.Name].Overrides, rec.Overrides)
	}
	for _, rec := range snap.Users {
		s.addUserLocked(rec.Name)
		applyOverrides(&s.users[rec.Name].Overrides, rec.Overrides)
	}
	for _, rec := range snap.Teams {
		if _, err := s.addTeamLocked(rec.Name, rec.Organization); err != nil {
			return fmt.Errorf("rbac: restore team %q: %w", rec.Name, err)
		}
		applyOverrides(&s.teams[rec.Name].Overrides, rec.Overrides)
		for _, member := range rec.Members {
			s.addUserLocked(member)
			if err := s.addMemberLocked(rec.Name, member); err != nil {
				return fmt.Errorf("rbac: restore membership %q: %w", rec.Name, err)
			}
		}
	}
	return nil
}

func applyOverrides(o *Overrides, records []OverrideRecord) {
	for _, rec := range records {
		if rec.Artifact != "" {
			o.SetArtifact(rec.Group, rec.Artifact, rec.Level)
			continue
		}
		o.SetGroup(rec.Group, rec.Level)
	}
}

func overrideRecords(o Overrides) []OverrideRecord {
	records := make([]OverrideRecord, 0, len(o.groups)+len(o.artifacts))
	for group, level := range o.groups {
		records = append(records, OverrideRecord{Group: group, Level: level})
	}
	for key, level := range o.artifacts {
		records = append(records, OverrideRecord{Group: key.Group, Artifact: key.Artifact, Level: level})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Group != records[j].Group {
			return records[i].Group < records[j].Group
		}
		return records[i].Artifact < records[j].Artifact
	})
	if len(records) == 0 {
		return nil
	}
	return records
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
