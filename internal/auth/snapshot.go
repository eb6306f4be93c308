package auth

import "sort"

// Snapshot is the persisted shape of the credential store. Built-in
// identities come from configuration and are not part of it.
type Snapshot struct {
	Identities []IdentityRecord `json:"identities"`
}

// IdentityRecord persists one identity and its bcrypt verifier.
type IdentityRecord struct {
	Name     string `json:"name"`
	Verifier string `json:"verifier"`
}

// Verifiers indexes the snapshot for Initialize.
func (snap Snapshot) Verifiers() map[string][]byte {
	out := make(map[string][]byte, len(snap.Identities))
	for _, rec := range snap.Identities {
		out[rec.Name] = []byte(rec.Verifier)
	}
	return out
}

// Snapshot captures every non built-in identity sorted by name.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Identities: []IdentityRecord{}}
	for name, verifier := range s.verifiers {
		if name == s.anonymous || name == s.admin {
			continue
		}
		snap.Identities = append(snap.Identities, IdentityRecord{Name: name, Verifier: string(verifier)})
	}
	sort.Slice(snap.Identities, func(i, j int) bool {
		return snap.Identities[i].Name < snap.Identities[j].Name
	})
	return snap
}
