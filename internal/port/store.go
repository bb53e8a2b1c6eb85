package port

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minhtran-dev/gridstore/internal/domain"
)

var (
	// ErrFileNotFound is the soft not-found result: the selector matched
	// no metadata record. Callers check it with errors.Is before use.
	ErrFileNotFound = errors.New("file not found")
)

// InvalidFileError reports an integrity failure: the checksum the backend
// recomputed over the stored chunks disagrees with the checksum the file
// declared. The written data is left in place for inspection.
type InvalidFileError struct {
	FileID   string
	Expected string
	Actual   string
}

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("invalid file %s: expected md5 %s, server computed %s", e.FileID, e.Expected, e.Actual)
}

// FileStore is the chunked large-object store contract.
type FileStore interface {
	// FindOne looks up one file by an arbitrary metadata selector and
	// reassembles it from its chunks in ordinal order. Absence is
	// reported as ErrFileNotFound.
	FindOne(ctx context.Context, selector Document) (*domain.File, error)

	// InsertOne persists metadata first, then the chunk batch. In
	// acknowledged mode it additionally validates the stored content
	// server-side and fails with *InvalidFileError on mismatch.
	InsertOne(ctx context.Context, file *domain.File) error

	// RemoveOne deletes the file's metadata record and all of its
	// chunks. Idempotent per sub-step.
	RemoveOne(ctx context.Context, file *domain.File) error

	// Validate runs the server-side checksum comparison on demand.
	Validate(ctx context.Context, file *domain.File) error

	// Reconcile removes metadata records older than gracePeriod that
	// have no chunks, returning how many were removed. Maintenance
	// operation; never touches complete files.
	Reconcile(ctx context.Context, gracePeriod time.Duration) (int, error)

	// Prefix returns the namespace the two collections are derived from.
	Prefix() string
}
