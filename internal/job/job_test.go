package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
	"distributed-kvstore/internal/rpc"
	"distributed-kvstore/internal/store"
)

func newSingletonNode(t *testing.T) (*ring.Node, *kv.KV) {
	t.Helper()
	space := idspace.New(8)

	srv, err := rpc.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	st, err := store.New(t.TempDir(), "secret")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := rpc.NewClient()
	self := ring.NodeRecord{Addr: srv.Addr(), Numeric: 1}
	rn := ring.New(self, space, st, client)
	k := kv.New(rn, st, client, 0)
	rn.RegisterHandlers(srv)
	k.RegisterHandlers(srv)

	shutdown := make(chan struct{})
	go srv.Serve(shutdown)
	t.Cleanup(func() {
		close(shutdown)
		srv.Close()
	})

	require.NoError(t, rn.Join(context.Background(), ""))
	return rn, k
}

func TestContentHashStableAcrossLifecycleTransitions(t *testing.T) {
	space := idspace.New(8)
	j, err := New(space, "1", "echo", json.RawMessage(`["hi"]`), "", "", "")
	require.NoError(t, err)

	original := j.ContentHash
	j.Status = StatusRunning
	j.Result = json.RawMessage(`"partial"`)
	assert.Equal(t, original, j.ContentHash, "hash must not change once status/result are set")
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	space := idspace.New(8)
	j, err := New(space, "1", "echo", json.RawMessage(`["hi"]`), "src", "dst", "obj")
	require.NoError(t, err)
	j.Status = StatusCompleted
	j.Result = json.RawMessage(`"hi"`)

	data, err := j.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, j.JobID, back.JobID)
	assert.Equal(t, j.ContentHash, back.ContentHash)
	assert.Equal(t, j.Status, back.Status)
	assert.JSONEq(t, string(j.Result), string(back.Result))
}

func TestWorkerCompletesEchoJob(t *testing.T) {
	node, k := newSingletonNode(t)
	space := idspace.New(8)

	j, err := New(space, "1", "echo", json.RawMessage(`"hello"`), "", "", "")
	require.NoError(t, err)

	serialized, err := j.Serialize()
	require.NoError(t, err)
	require.True(t, node.Store().Put(j.ContentHash, serialized, time.Hour))

	w := NewWorker(node, k, NewRegistry())
	w.drainOnce(context.Background())

	stored, ok := node.Store().Get(j.ContentHash)
	require.True(t, ok)
	done, err := Deserialize(stored)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.JSONEq(t, `"hello"`, string(done.Result))
}

func TestWorkerRecoversPanickingHandlerAsFailed(t *testing.T) {
	node, k := newSingletonNode(t)
	space := idspace.New(8)

	j, err := New(space, "1", "boom", json.RawMessage(`null`), "", "", "")
	require.NoError(t, err)
	serialized, err := j.Serialize()
	require.NoError(t, err)
	require.True(t, node.Store().Put(j.ContentHash, serialized, time.Hour))

	registry := NewRegistry()
	registry["boom"] = func(ctx context.Context, job *Job, n *ring.Node) (json.RawMessage, error) {
		panic("kaboom")
	}

	w := NewWorker(node, k, registry)
	w.drainOnce(context.Background())

	stored, ok := node.Store().Get(j.ContentHash)
	require.True(t, ok)
	done, err := Deserialize(stored)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
}

func TestWorkerSkipsAlreadyCompletedJobs(t *testing.T) {
	node, k := newSingletonNode(t)
	space := idspace.New(8)

	j, err := New(space, "1", "echo", json.RawMessage(`"x"`), "", "", "")
	require.NoError(t, err)
	j.Status = StatusCompleted
	j.Result = json.RawMessage(`"already done"`)
	serialized, err := j.Serialize()
	require.NoError(t, err)
	require.True(t, node.Store().Put(j.ContentHash, serialized, time.Hour))

	w := NewWorker(node, k, NewRegistry())
	w.drainOnce(context.Background())

	stored, ok := node.Store().Get(j.ContentHash)
	require.True(t, ok)
	done, err := Deserialize(stored)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.JSONEq(t, `"already done"`, string(done.Result))
}
