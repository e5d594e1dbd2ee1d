package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultWriteTimeout = 30 * time.Second
	csvContentType      = "text/csv; charset=utf-8"
)

var (
	errArchiveClientRequired = errors.New("storage: client is required")
	errArchiveBucketRequired = errors.New("storage: bucket name is required")
	errArchiveEmptyPayload   = errors.New("storage: payload is empty")
)

// ImportArchive keeps the raw uploaded CSV payloads in a GCS bucket so a
// rejected or disputed import can be replayed later.
type ImportArchive struct {
	bucket       *storage.BucketHandle
	writeTimeout time.Duration
	now          func() time.Time
}

// ArchiveOption customises the archive behaviour.
type ArchiveOption func(*ImportArchive)

// WithWriteTimeout overrides the per-object write timeout.
func WithWriteTimeout(timeout time.Duration) ArchiveOption {
	return func(a *ImportArchive) {
		if timeout > 0 {
			a.writeTimeout = timeout
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ArchiveOption {
	return func(a *ImportArchive) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewImportArchive constructs an archive bound to one bucket.
func NewImportArchive(client *storage.Client, bucket string, opts ...ArchiveOption) (*ImportArchive, error) {
	if client == nil {
		return nil, errArchiveClientRequired
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errArchiveBucketRequired
	}
	archive := &ImportArchive{
		bucket:       client.Bucket(bucket),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archive)
		}
	}
	return archive, nil
}

// Store writes the raw payload under a date-partitioned object key and
// returns that key.
func (a *ImportArchive) Store(ctx context.Context, importID string, payload []byte) (string, error) {
	if a == nil || a.bucket == nil {
		return "", errArchiveClientRequired
	}
	if len(payload) == 0 {
		return "", errArchiveEmptyPayload
	}
	key, err := ObjectKey(importID, a.now().UTC())
	if err != nil {
		return "", err
	}

	writeCtx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	writer := a.bucket.Object(key).NewWriter(writeCtx)
	writer.ContentType = csvContentType
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage: write archive object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage: close archive object %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey composes the object path for an import payload.
func ObjectKey(importID string, at time.Time) (string, error) {
	importID = strings.TrimSpace(importID)
	if importID == "" {
		return "", errors.New("storage: import id is required")
	}
	if strings.ContainsAny(importID, "/\\") || strings.Contains(importID, "..") {
		return "", fmt.Errorf("storage: import id %q contains invalid path characters", importID)
	}
	return fmt.Sprintf("imports/%04d/%02d/%s.csv", at.Year(), int(at.Month()), importID), nil
}
