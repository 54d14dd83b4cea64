package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		original string
		server   string
		want     bool
	}{
		{"no marker", "", "v5", false},
		{"no marker, no document", "", "", false},
		{"same version", "v1", "v1", false},
		{"server moved on", "v1", "v2", true},
		{"server deleted", "v1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.original, tt.server))
		})
	}
}

func TestConflictingFields(t *testing.T) {
	server := map[string]any{"title": "A", "count": 1, "only_server": true, "tags": []any{"x"}}
	client := map[string]any{"title": "B", "count": 1, "only_client": true, "tags": []any{"y"}}

	assert.Equal(t, []string{"tags", "title"}, ConflictingFields(server, client))
	assert.Empty(t, ConflictingFields(server, server))
	assert.Empty(t, ConflictingFields(nil, client))
}

func TestAutoMerge(t *testing.T) {
	server := map[string]any{"a": 1, "b": 2}
	client := map[string]any{"b": 3, "c": 4}

	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, AutoMerge(server, client))
	// inputs untouched
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, server)
}

func TestMergeFields(t *testing.T) {
	server := map[string]any{"title": "server", "body": "s-body", "gone": 1}
	client := map[string]any{"title": "client", "body": "c-body", "new": 2}

	merged, err := MergeFields(server, client,
		map[string]Choice{"title": FromServer, "body": Edited, "gone": FromClient},
		map[string]any{"body": "hand edited"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"title": "server", "body": "hand edited", "new": 2}, merged)

	_, err = MergeFields(server, client, map[string]Choice{"body": Edited}, nil)
	assert.ErrorIs(t, err, ErrMissingEdit)
}

func TestPlan(t *testing.T) {
	server := map[string]any{"a": 1, "b": 2}
	client := map[string]any{"b": 3}

	d, err := Plan(ServerWins, server, client, nil)
	require.NoError(t, err)
	assert.False(t, d.Write)
	assert.Equal(t, server, d.Data)

	d, err = Plan(ClientWins, server, client, nil)
	require.NoError(t, err)
	assert.True(t, d.Write)
	assert.True(t, d.Force)
	assert.Equal(t, client, d.Data)

	d, err = Plan(Merge, server, client, nil)
	require.NoError(t, err)
	assert.True(t, d.Write)
	assert.False(t, d.Force)
	assert.Equal(t, map[string]any{"a": 1, "b": 3}, d.Data)

	final := map[string]any{"z": 9}
	d, err = Plan(Merge, server, client, final)
	require.NoError(t, err)
	assert.Equal(t, final, d.Data)

	_, err = Plan(UserChoice, server, client, nil)
	assert.ErrorIs(t, err, ErrPendingStrategy)

	_, err = Plan("LAST_WRITE_WINS", server, client, nil)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestStrategy(t *testing.T) {
	assert.True(t, Merge.Automatic())
	assert.False(t, UserChoice.Automatic())
	assert.True(t, UserChoice.Valid())
	assert.False(t, Strategy("nope").Valid())
	assert.False(t, Strategy("").Automatic())
}
