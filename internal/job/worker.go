package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/ring"
)

// Tw is T_w, the worker's drain interval.
const Tw = 1 * time.Second

// rePersistTTL is the ttl used when the worker writes a job's lifecycle
// transitions back to the ring; it refreshes whatever ttl the job was
// originally submitted with would have decayed to, rather than tracking
// the original value through every transition.
const rePersistTTL = 1 * time.Hour

// Worker is the single-consumer drain loop every node runs: it claims
// whatever jobs the local store currently holds, advances each through its
// lifecycle, and writes the result back under the same content hash.
type Worker struct {
	node     *ring.Node
	kv       *kv.KV
	registry Registry
}

// NewWorker builds a Worker bound to node's local routing/store state,
// dispatching pending jobs through registry.
func NewWorker(node *ring.Node, k *kv.KV, registry Registry) *Worker {
	return &Worker{node: node, kv: k, registry: registry}
}

// Run drains and advances jobs every Tw until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(Tw)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	for _, kvPair := range w.node.Store().DrainJobs() {
		w.advance(ctx, kvPair.Key, kvPair.Value)
	}
}

func (w *Worker) advance(ctx context.Context, key string, serialized []byte) {
	j, err := Deserialize(serialized)
	if err != nil {
		log.Printf("job: dropping unparsable entry %s: %v", key, err)
		return
	}

	if j.Status == StatusCompleted {
		w.rePersist(ctx, key, j)
		return
	}
	if j.Status != StatusPending {
		// running/failed jobs drained back to us (e.g. after a crash)
		// are treated as abandoned pending work and retried.
		j.Status = StatusPending
	}

	j.Status = StatusRunning
	w.rePersist(ctx, key, j)

	result, err := w.execute(ctx, j)
	if err != nil {
		j.Status = StatusFailed
		j.Result = []byte(fmt.Sprintf("%q", err.Error()))
	} else {
		j.Status = StatusCompleted
		j.Result = result
	}
	w.rePersist(ctx, key, j)
}

// execute dispatches to the registered handler, recovering a panic into a
// job_execution_failure rather than letting it crash the worker goroutine.
func (w *Worker) execute(ctx context.Context, j *Job) (result []byte, err error) {
	handler, ok := w.registry[j.Task]
	if !ok {
		return nil, fmt.Errorf("no handler registered for task %q", j.Task)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q panicked: %v", j.Task, r)
		}
	}()
	return handler(ctx, j, w.node)
}

func (w *Worker) rePersist(ctx context.Context, key string, j *Job) {
	data, err := j.Serialize()
	if err != nil {
		log.Printf("job: failed to serialize %s for re-persist: %v", key, err)
		return
	}
	if _, err := w.kv.PutKey(ctx, key, data, rePersistTTL); err != nil {
		log.Printf("job: failed to re-persist %s: %v", key, err)
	}
}
