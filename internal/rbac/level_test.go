package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelOrdering(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		require.Less(t, levels[i-1], levels[i])
		require.True(t, levels[i].AtLeast(levels[i-1]))
		require.False(t, levels[i-1].AtLeast(levels[i]))
	}
	require.Equal(t, Administrate, Max(Read, Administrate))
	require.Equal(t, Blocked, Min(Blocked, Write))
}

func TestLevelCapabilities(t *testing.T) {
	require.False(t, Browse.CanRead())
	require.True(t, Read.CanRead())
	require.False(t, Read.CanWrite())
	require.True(t, Write.CanWrite())
	require.True(t, Administrate.CanWrite())
	require.False(t, Blocked.CanRead())
}

func TestParseLevel(t *testing.T) {
	for _, level := range Levels() {
		parsed, err := ParseLevel(level.String())
		require.NoError(t, err)
		require.Equal(t, level, parsed)
	}

	parsed, err := ParseLevel("  manage ")
	require.NoError(t, err)
	require.Equal(t, Manage, parsed)

	_, err = ParseLevel("OWNER")
	require.Error(t, err)
}

func TestLevelJSONUsesNames(t *testing.T) {
	data, err := json.Marshal(OverrideRecord{Group: "com/acme", Level: Write})
	require.NoError(t, err)
	require.JSONEq(t, `{"group":"com/acme","level":"WRITE"}`, string(data))

	var rec OverrideRecord
	require.NoError(t, json.Unmarshal([]byte(`{"group":"g","artifact":"a","level":"browse"}`), &rec))
	require.Equal(t, Browse, rec.Level)

	require.Error(t, json.Unmarshal([]byte(`{"group":"g","level":"SUPER"}`), &rec))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("org")
	require.NoError(t, err)
	require.Equal(t, KindOrganization, kind)

	_, err = ParseKind("group")
	require.Error(t, err)
}
