package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbaliyan/keymanager"
)

func TestSharesLookups(t *testing.T) {
	ctx := context.Background()
	toBob := keymanager.ShareRecord{Owner: "alice", Source: "/alice/files/a.txt", Target: "/bob/files/a.txt", SharedWith: "bob"}
	toCarol := keymanager.ShareRecord{Owner: "alice", Source: "/alice/files/a.txt", Target: "/carol/files/a.txt", SharedWith: "carol"}
	other := keymanager.ShareRecord{Owner: "dave", Source: "/dave/files/a.txt", Target: "/bob/files/a.txt", SharedWith: "erin"}
	s := NewShares(toBob, other)
	s.Add(toCarol)

	got, err := s.SharesByTarget(ctx, "/bob/files/a.txt", "bob")
	require.NoError(t, err)
	assert.Equal(t, []keymanager.ShareRecord{toBob}, got, "target match needs the recipient too")

	got, err = s.SharesBySource(ctx, "/alice/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []keymanager.ShareRecord{toBob, toCarol}, got, "insertion order")

	got, err = s.SharesBySource(ctx, "/nobody/files/x")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Equal(t, 1, s.Remove(toBob))
	assert.Equal(t, 0, s.Remove(toBob))
	got, err = s.SharesBySource(ctx, "/alice/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []keymanager.ShareRecord{toCarol}, got)
}

func TestNewSharesCopiesInput(t *testing.T) {
	records := []keymanager.ShareRecord{{Owner: "alice", Source: "/alice/files/a", Target: "/bob/files/a", SharedWith: "bob"}}
	s := NewShares(records...)
	records[0].SharedWith = "mallory"

	got, err := s.SharesByTarget(context.Background(), "/bob/files/a", "bob")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
