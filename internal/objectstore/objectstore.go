// Package objectstore describes the object-storage capability task
// handlers consume — the bucket/object-backed blob store the source
// system reaches through a MinIO client. No MinIO SDK appears anywhere in
// the dependency pack this repository was grounded on, so rather than
// fabricate a dependency this package stays interface-only: Store is the
// capability surface a task handler needs, and Local is a filesystem-backed
// implementation usable in tests and single-node deployments without
// pulling in an external object-storage service.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the capability set a task handler needs from object storage:
// fetch an object's bytes and write one back. Bucket/object naming follows
// the source system's source_bucket/dest_bucket/objectname fields.
type Store interface {
	Get(ctx context.Context, bucket, object string) ([]byte, error)
	Put(ctx context.Context, bucket, object string, data []byte) error
}

// Local is a Store backed by a root directory on the local filesystem,
// one subdirectory per bucket. It exists so task handlers and tests can
// exercise the Store contract without an external MinIO deployment.
type Local struct {
	root string
}

// NewLocal returns a Local store rooted at dir, creating it if necessary.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("objectstore: create root %s: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) path(bucket, object string) string {
	return filepath.Join(l.root, filepath.Clean("/"+bucket), filepath.Clean("/"+object))
}

// Get reads object from bucket.
func (l *Local) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	f, err := os.Open(l.path(bucket, object))
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s/%s: %w", bucket, object, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Put writes data as object in bucket, creating the bucket directory if
// it does not already exist.
func (l *Local) Put(ctx context.Context, bucket, object string, data []byte) error {
	path := l.path(bucket, object)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("objectstore: put %s/%s: %w", bucket, object, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("objectstore: put %s/%s: %w", bucket, object, err)
	}
	return nil
}
