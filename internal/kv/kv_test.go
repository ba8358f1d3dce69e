package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/ring"
	"distributed-kvstore/internal/rpc"
	"distributed-kvstore/internal/store"
)

type testNode struct {
	ring *ring.Node
	kv   *KV
}

func spinUpNode(t *testing.T, space idspace.Space, numeric uint64, replicationCount int) *testNode {
	t.Helper()

	srv, err := rpc.NewServer("127.0.0.1:0")
	require.NoError(t, err)

	st, err := store.New(t.TempDir(), "secret")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	self := ring.NodeRecord{Addr: srv.Addr(), Numeric: numeric}
	client := rpc.NewClient()
	rn := ring.New(self, space, st, client)
	k := New(rn, st, client, replicationCount)

	rn.RegisterHandlers(srv)
	k.RegisterHandlers(srv)

	shutdown := make(chan struct{})
	go srv.Serve(shutdown)
	t.Cleanup(func() {
		close(shutdown)
		srv.Close()
	})

	return &testNode{ring: rn, kv: k}
}

func TestPutKeyAndFindKeyRoundTripOnSingleton(t *testing.T) {
	space := idspace.New(4)
	n := spinUpNode(t, space, 0, 0)
	require.NoError(t, n.ring.Join(context.Background(), ""))

	written, err := n.kv.PutKey(context.Background(), "04", []byte("payload"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"04"}, written)

	v, found := n.kv.FindKey(context.Background(), "04", 4, false)
	require.True(t, found)
	assert.Equal(t, []byte("payload"), v)
}

func TestFindJobIsAliasOfFindKey(t *testing.T) {
	space := idspace.New(4)
	n := spinUpNode(t, space, 0, 0)
	require.NoError(t, n.ring.Join(context.Background(), ""))

	_, err := n.kv.PutKey(context.Background(), "0a", []byte("job-result"), time.Hour)
	require.NoError(t, err)

	v, found := n.kv.FindJob(context.Background(), "0a", 4, false)
	require.True(t, found)
	assert.Equal(t, []byte("job-result"), v)
}

func TestPutKeyReplicatesToSuccessorPosition(t *testing.T) {
	space := idspace.New(4) // ring size 16
	a := spinUpNode(t, space, 0, 1)
	b := spinUpNode(t, space, 8, 1)
	ctx := context.Background()

	require.NoError(t, a.ring.Join(ctx, ""))
	require.NoError(t, b.ring.Join(ctx, a.ring.Self().Addr))
	for i := 0; i < 3; i++ {
		a.ring.Stabilize(ctx)
		b.ring.Stabilize(ctx)
	}

	// Key 4 and its replica position 5 both fall in (0, 8] and so are both
	// owned by b; both writes land on the same store but PutKey must still
	// report success since at-least-one write succeeded.
	written, err := a.kv.PutKey(ctx, "04", []byte("v"), time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, written)

	v, ok := b.ring.Store().Get("04")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestFindKeyRoutesAcrossNodesToOwner(t *testing.T) {
	space := idspace.New(4)
	a := spinUpNode(t, space, 0, 0)
	b := spinUpNode(t, space, 8, 0)
	ctx := context.Background()

	require.NoError(t, a.ring.Join(ctx, ""))
	require.NoError(t, b.ring.Join(ctx, a.ring.Self().Addr))
	for i := 0; i < 3; i++ {
		a.ring.Stabilize(ctx)
		b.ring.Stabilize(ctx)
	}

	// Store directly on b's local store, bypassing PutKey, then ask a to
	// find it: a must route the lookup to b over RPC.
	require.True(t, b.ring.Store().Put("04", []byte("remote-value"), time.Hour))

	v, found := a.kv.FindKey(ctx, "04", 4, false)
	require.True(t, found)
	assert.Equal(t, []byte("remote-value"), v)
}

func TestJoinMigratesOnlyKeysOwnedByTheJoiner(t *testing.T) {
	space := idspace.New(4) // ring size 16
	a := spinUpNode(t, space, 0, 0)
	ctx := context.Background()
	require.NoError(t, a.ring.Join(ctx, ""))

	// a owns the whole ring as a singleton; seed keys on both sides of
	// where b (numeric 8) will join.
	require.True(t, a.ring.Store().Put("04", []byte("belongs-to-b"), time.Hour))
	require.True(t, a.ring.Store().Put("0c", []byte("belongs-to-a"), time.Hour))

	b := spinUpNode(t, space, 8, 0)
	require.NoError(t, b.ring.Join(ctx, a.ring.Self().Addr))

	// Join's eager migration hands b every key in (a.predecessor, b.id] —
	// since a had no predecessor yet, that's (a.id, b.id] = (0, 8].
	v, ok := b.ring.Store().Get("04")
	require.True(t, ok, "key 0x04 should have migrated to the joining node")
	assert.Equal(t, []byte("belongs-to-b"), v)

	_, stillOnA := a.ring.Store().Get("04")
	assert.False(t, stillOnA, "migrated key must be removed from its old owner")

	v, ok = a.ring.Store().Get("0c")
	require.True(t, ok, "key 0x0c is outside (0, 8] and must stay on a")
	assert.Equal(t, []byte("belongs-to-a"), v)
}

func TestFindKeyMissingReturnsNotFound(t *testing.T) {
	space := idspace.New(4)
	n := spinUpNode(t, space, 0, 0)
	require.NoError(t, n.ring.Join(context.Background(), ""))

	_, found := n.kv.FindKey(context.Background(), "0f", 4, false)
	assert.False(t, found)
}
