// Package job implements the job lifecycle state machine and the task
// registry that replaces the source system's name-keyed dynamic dispatch.
//
// A Job is identified by the content hash of its submission payload,
// computed once before Status/Result exist so it stays stable across every
// lifecycle transition. The registry maps a task name to a Handler value
// instead of importing task-specific modules directly, so job
// serialization code never needs to know what any given task actually
// does.
package job

import (
	"context"
	"encoding/json"

	"distributed-kvstore/internal/idspace"
	"distributed-kvstore/internal/ring"
)

// Status is one of the job lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is a unit of work addressed by the hash of its submission payload.
// JobID is informational (monotonic per submitting node, not globally
// unique) — routing and storage identity is always ContentHash.
type Job struct {
	JobID        string          `json:"job_id"`
	Task         string          `json:"task"`
	Args         json.RawMessage `json:"args"`
	SourceBucket string          `json:"source_bucket,omitempty"`
	DestBucket   string          `json:"dest_bucket,omitempty"`
	ObjectName   string          `json:"objectname,omitempty"`
	ContentHash  string          `json:"hash"`
	Status       Status          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// New builds a pending Job and computes its content hash over the
// submission fields only, before Status/Result exist.
func New(space idspace.Space, jobID, task string, args json.RawMessage, sourceBucket, destBucket, objectName string) (*Job, error) {
	j := &Job{
		JobID:        jobID,
		Task:         task,
		Args:         args,
		SourceBucket: sourceBucket,
		DestBucket:   destBucket,
		ObjectName:   objectName,
		Status:       StatusPending,
	}

	canonical, err := j.submissionForm()
	if err != nil {
		return nil, err
	}
	hash, _ := space.ID(canonical)
	j.ContentHash = hash
	return j, nil
}

// submissionForm is the canonical key-sorted encoding of the fields that
// make up a job's identity — everything but ContentHash/Status/Result.
// encoding/json sorts map keys alphabetically, which is what gives this
// its stability across processes and Go versions.
func (j *Job) submissionForm() ([]byte, error) {
	return json.Marshal(map[string]any{
		"job_id":        j.JobID,
		"task":          j.Task,
		"args":          j.Args,
		"source_bucket": j.SourceBucket,
		"dest_bucket":   j.DestBucket,
		"objectname":    j.ObjectName,
	})
}

// Serialize produces the canonical key-sorted encoding stored in the KV
// layer, covering every field including the lifecycle ones.
func (j *Job) Serialize() ([]byte, error) {
	return json.Marshal(map[string]any{
		"job_id":        j.JobID,
		"task":          j.Task,
		"args":          j.Args,
		"source_bucket": j.SourceBucket,
		"dest_bucket":   j.DestBucket,
		"objectname":    j.ObjectName,
		"hash":          j.ContentHash,
		"status":        j.Status,
		"result":        j.Result,
	})
}

// Deserialize parses bytes previously produced by Serialize.
func Deserialize(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// Handler executes one task. It receives the deserialized job and the
// local ring node (so a handler can reach the node's address or route
// further lookups) and returns the job's result payload. A non-nil error
// is turned into Status = failed with a stringified reason; Handler must
// never itself crash the worker — panics are recovered by the worker loop.
type Handler func(ctx context.Context, j *Job, node *ring.Node) (json.RawMessage, error)

// Registry maps a task name to the Handler that executes it. Job
// serialization code never imports task-specific modules — only the
// worker consults the registry, and only at dispatch time.
type Registry map[string]Handler

// NewRegistry returns a Registry pre-populated with the "echo" handler
// used by the end-to-end smoke scenario. Additional task handlers —
// e.g. a "pipeline" handler driving internal/objectstore — are registered
// by the caller (typically cmd/server) on top of this base set; job
// serialization itself stays agnostic to what any task name means.
func NewRegistry() Registry {
	return Registry{
		"echo": echoHandler,
	}
}

func echoHandler(_ context.Context, j *Job, _ *ring.Node) (json.RawMessage, error) {
	return j.Args, nil
}
