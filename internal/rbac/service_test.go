package rbac

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/depot-pkg/depot/internal/shared"
)

func newReadyService(t *testing.T) *Service {
	t.Helper()
	svc := NewService("anonymous")
	require.NoError(t, svc.Initialize(Snapshot{}, "admin"))
	return svc
}

func addUserInTeams(t *testing.T, svc *Service, user string, teams map[string]string) {
	t.Helper()
	svc.AddUser(user)
	for team, org := range teams {
		svc.AddOrganization(org)
		_, err := svc.AddTeam(team, org)
		require.NoError(t, err)
		require.NoError(t, svc.AddMember(team, user))
	}
}

func TestPermissionForBeforeInitialize(t *testing.T) {
	svc := NewService("anonymous")
	_, err := svc.PermissionFor("anyone", "g", "a")
	require.ErrorIs(t, err, shared.ErrNotReady)

	_, err = svc.TeamPermission("t", "g", "a")
	require.ErrorIs(t, err, shared.ErrNotReady)
}

func TestInitializeOnlyOnce(t *testing.T) {
	svc := newReadyService(t)
	require.ErrorIs(t, svc.Initialize(Snapshot{}), ErrAlreadyInitialized)
}

func TestArtifactOverrideBeatsGroupOverride(t *testing.T) {
	for _, a := range Levels() {
		for _, b := range Levels() {
			t.Run(fmt.Sprintf("%s over %s", a, b), func(t *testing.T) {
				svc := newReadyService(t)
				addUserInTeams(t, svc, "u", map[string]string{"t": "o"})

				for _, kind := range []Kind{KindUser, KindTeam, KindOrganization} {
					name := map[Kind]string{KindUser: "u", KindTeam: "t", KindOrganization: "o"}[kind]
					require.NoError(t, svc.SetGroupOverride(kind, name, "g", b))
					require.NoError(t, svc.SetArtifactOverride(kind, name, "g", "a", a))
					level, err := svc.Resolve(kind, name, "g", "a")
					require.NoError(t, err)
					require.Equal(t, a, level)
				}
			})
		}
	}
}

func TestUserResolvesToMaxAcrossTeams(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "u", map[string]string{"t1": "o1", "t2": "o2", "t3": "o3"})
	require.NoError(t, svc.SetGroupOverride(KindTeam, "t1", "g", Blocked))
	require.NoError(t, svc.SetGroupOverride(KindTeam, "t2", "g", Administrate))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "o3", "g", Read))

	want := None
	for _, team := range []string{"t1", "t2", "t3"} {
		level, err := svc.TeamPermission(team, "g", "a")
		require.NoError(t, err)
		want = Max(want, level)
	}

	got, err := svc.PermissionFor("u", "g", "a")
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, Administrate, got)
}

func TestUserWithoutTeamsResolvesNone(t *testing.T) {
	svc := newReadyService(t)
	svc.AddUser("loner")

	level, err := svc.PermissionFor("loner", "g", "a")
	require.NoError(t, err)
	require.Equal(t, None, level)
}

func TestTeamFallsBackToOrganization(t *testing.T) {
	svc := newReadyService(t)
	svc.AddOrganization("org")
	_, err := svc.AddTeam("team", "org")
	require.NoError(t, err)
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "org", "g", Write))

	level, err := svc.TeamPermission("team", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Write, level)

	require.NoError(t, svc.SetArtifactOverride(KindTeam, "team", "g", "other", Browse))
	level, err = svc.TeamPermission("team", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Write, level, "override on another artifact must not shadow the organization")

	require.NoError(t, svc.SetGroupOverride(KindTeam, "team", "g", Read))
	level, err = svc.TeamPermission("team", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Read, level)
}

func TestArtifactOverridePriorityAcrossOrganizations(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "user", map[string]string{"th": "high", "tm": "mid", "tl": "low"})
	require.NoError(t, svc.SetArtifactOverride(KindOrganization, "high", "g", "a", Manage))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "mid", "g", Read))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "low", "g", Blocked))

	level, err := svc.PermissionFor("user", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Manage, level)
}

func TestGroupFallback(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "user", map[string]string{"team": "org"})
	require.NoError(t, svc.SetArtifactOverride(KindOrganization, "org", "g1", "a1", Read))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "org", "g2", Write))

	level, err := svc.PermissionFor("user", "g1", "a1")
	require.NoError(t, err)
	require.Equal(t, Read, level)

	level, err = svc.PermissionFor("user", "g2", "anything")
	require.NoError(t, err)
	require.Equal(t, Write, level)

	level, err = svc.PermissionFor("user", "g1", "a2")
	require.NoError(t, err)
	require.Equal(t, None, level)
}

func TestTeamOverridesBeatOrganization(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "user", map[string]string{"team": "org"})
	require.NoError(t, svc.SetGroupOverride(KindTeam, "team", "g1", Read))
	require.NoError(t, svc.SetArtifactOverride(KindTeam, "team", "g2", "a2", Browse))
	require.NoError(t, svc.SetArtifactOverride(KindOrganization, "org", "g1", "a1", Administrate))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "org", "g2", Write))

	level, err := svc.PermissionFor("user", "g1", "a1")
	require.NoError(t, err)
	require.Equal(t, Read, level)

	level, err = svc.PermissionFor("user", "g2", "a2")
	require.NoError(t, err)
	require.Equal(t, Browse, level)
}

func TestIndividualOverrideBeatsTeams(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "user", map[string]string{"team": "org"})
	require.NoError(t, svc.SetGroupOverride(KindTeam, "team", "g", Write))
	require.NoError(t, svc.SetArtifactOverride(KindUser, "user", "g", "secret", Blocked))

	level, err := svc.PermissionFor("user", "g", "secret")
	require.NoError(t, err)
	require.Equal(t, Blocked, level)

	level, err = svc.PermissionFor("user", "g", "public")
	require.NoError(t, err)
	require.Equal(t, Write, level)
}

func TestOverrideReplaceOnWrite(t *testing.T) {
	svc := newReadyService(t)
	svc.AddUser("u")
	require.NoError(t, svc.SetGroupOverride(KindUser, "u", "g", Write))
	require.NoError(t, svc.SetGroupOverride(KindUser, "u", "g", Browse))

	level, err := svc.PermissionFor("u", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Browse, level)
	require.Len(t, svc.Snapshot().Users[len(svc.Snapshot().Users)-1].Overrides, 1)
}

func TestAddingEntitiesIsIdempotent(t *testing.T) {
	svc := newReadyService(t)
	require.True(t, svc.AddUser("u"))
	require.True(t, svc.AddOrganization("o"))
	created, err := svc.AddTeam("t", "o")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, svc.SetGroupOverride(KindUser, "u", "g", Read))
	before := svc.Snapshot()

	require.False(t, svc.AddUser("u"))
	require.False(t, svc.AddOrganization("o"))
	created, err = svc.AddTeam("t", "o")
	require.NoError(t, err)
	require.False(t, created)

	require.Equal(t, before, svc.Snapshot())
}

func TestAddTeamRequiresOrganization(t *testing.T) {
	svc := newReadyService(t)
	_, err := svc.AddTeam("t", "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	svc.AddOrganization("a")
	svc.AddOrganization("b")
	_, err = svc.AddTeam("t", "a")
	require.NoError(t, err)
	_, err = svc.AddTeam("t", "b")
	require.ErrorIs(t, err, ErrOrganizationMismatch)
}

func TestMembershipIsBidirectional(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "u", map[string]string{"t": "o"})
	require.True(t, svc.IsMember("u", "t"))
	require.False(t, svc.IsMember("u", "missing"))
	require.False(t, svc.IsMember("nobody", "t"))
	require.ErrorIs(t, svc.AddMember("t", "nobody"), shared.ErrNotFound)
}

func TestUnknownEntityOverride(t *testing.T) {
	svc := newReadyService(t)
	err := svc.SetGroupOverride(KindTeam, "ghost", "g", Read)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnknownRequesterResolvesAsAnonymous(t *testing.T) {
	svc := newReadyService(t)
	require.NoError(t, svc.SetGroupOverride(KindUser, "anonymous", "public", Read))

	level, err := svc.PermissionFor("stranger", "public", "lib")
	require.NoError(t, err)
	require.Equal(t, Read, level)
}

func TestSuperUserAdministratesEverything(t *testing.T) {
	svc := newReadyService(t)
	require.NoError(t, svc.SetGroupOverride(KindUser, "admin", "g", Blocked))

	level, err := svc.PermissionFor("admin", "g", "a")
	require.NoError(t, err)
	require.Equal(t, Administrate, level)
	require.True(t, svc.IsSuperUser("admin"))
	require.False(t, svc.IsSuperUser("anonymous"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "alice", map[string]string{"core": "acme", "docs": "acme"})
	addUserInTeams(t, svc, "bob", map[string]string{"ops": "infra"})
	svc.AddUser("carol")
	require.NoError(t, svc.SetArtifactOverride(KindOrganization, "acme", "com/acme", "secret", Blocked))
	require.NoError(t, svc.SetGroupOverride(KindOrganization, "acme", "com/acme", Read))
	require.NoError(t, svc.SetGroupOverride(KindTeam, "core", "com/acme", Write))
	require.NoError(t, svc.SetArtifactOverride(KindTeam, "ops", "org/infra", "deploy", Manage))
	require.NoError(t, svc.SetGroupOverride(KindUser, "carol", "com/acme", Browse))
	require.NoError(t, svc.SetArtifactOverride(KindUser, "bob", "com/acme", "secret", Read))

	data, err := json.Marshal(svc.Snapshot())
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := NewService("anonymous")
	require.NoError(t, restored.Initialize(decoded, "admin"))

	queries := []struct{ who, group, artifact string }{
		{"alice", "com/acme", "secret"},
		{"alice", "com/acme", "lib"},
		{"bob", "com/acme", "secret"},
		{"bob", "org/infra", "deploy"},
		{"bob", "org/infra", "other"},
		{"carol", "com/acme", "lib"},
		{"admin", "x", "y"},
		{"anonymous", "com/acme", "lib"},
	}
	for _, q := range queries {
		want, err := svc.PermissionFor(q.who, q.group, q.artifact)
		require.NoError(t, err)
		got, err := restored.PermissionFor(q.who, q.group, q.artifact)
		require.NoError(t, err)
		require.Equal(t, want, got, "%s on %s/%s", q.who, q.group, q.artifact)
	}
	require.True(t, restored.IsMember("alice", "docs"))
	require.Equal(t, svc.Snapshot(), restored.Snapshot())
}

func TestConcurrentOverridesAndResolution(t *testing.T) {
	svc := newReadyService(t)
	addUserInTeams(t, svc, "u", map[string]string{"t": "o"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = svc.SetGroupOverride(KindTeam, "t", fmt.Sprintf("g%d", i), Read)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = svc.PermissionFor("u", fmt.Sprintf("g%d", i), "a")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		level, err := svc.PermissionFor("u", fmt.Sprintf("g%d", i), "a")
		require.NoError(t, err)
		require.Equal(t, Read, level)
	}
}
