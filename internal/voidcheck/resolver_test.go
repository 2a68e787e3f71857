package voidcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	alice := Identity{UserID: "1", Handle: "alice", DisplayName: "ally", Nickname: "al"}
	foxAlias := Identity{UserID: "2", Handle: "carol", DisplayName: "carol", Alias: "fox"}
	foxNick := Identity{UserID: "3", Handle: "dave", DisplayName: "dave", Nickname: "fox"}
	snap := snapshotOf(alice, foxAlias, foxNick)

	cases := []struct {
		name  string
		query Query
		want  string
	}{
		{name: "id and matching handle", query: Query{UserID: "1", Name: "Alice"}, want: "1"},
		{name: "id with other name", query: Query{UserID: "1", Name: "bob"}},
		{name: "id with display name is not enough", query: Query{UserID: "1", Name: "ally"}},
		{name: "unknown id with name", query: Query{UserID: "42", Name: "alice"}},
		{name: "id only", query: Query{UserID: " 2 "}, want: "2"},
		{name: "unknown id", query: Query{UserID: "42"}},
		{name: "handle", query: Query{Name: "ALICE"}, want: "1"},
		{name: "display name", query: Query{Name: "ally"}, want: "1"},
		{name: "nickname", query: Query{Name: " al "}, want: "1"},
		{name: "alias", query: Query{Name: "fox"}, want: "2"},
		{name: "substring is not a match", query: Query{Name: "ali"}},
		{name: "empty", query: Query{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolve(snap, tc.query)
			if tc.want == "" {
				assert.False(t, ok)
				assert.Equal(t, Identity{}, got)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tc.want, got.UserID)
		})
	}
}

func TestResolveTieBreakIsDiscoveryOrder(t *testing.T) {
	foxAlias := Identity{UserID: "a", Handle: "carol", DisplayName: "carol", Alias: "fox"}
	foxNick := Identity{UserID: "b", Handle: "dave", DisplayName: "dave", Nickname: "fox"}

	for range 50 {
		got, ok := Resolve(snapshotOf(foxAlias, foxNick), Query{Name: "fox"})
		assert.True(t, ok)
		assert.Equal(t, "a", got.UserID)
	}

	got, ok := Resolve(snapshotOf(foxNick, foxAlias), Query{Name: "fox"})
	assert.True(t, ok)
	assert.Equal(t, "b", got.UserID)
}

func TestResolveNilSnapshot(t *testing.T) {
	_, ok := Resolve(nil, Query{UserID: "1"})
	assert.False(t, ok)
	_, ok = Resolve(nil, Query{Name: "x"})
	assert.False(t, ok)
}
