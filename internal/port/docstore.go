package port

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateKey is returned by a backend when an insert violates a
	// unique index. The store layer propagates it unmodified.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Field names shared between documents, selectors, and index definitions.
// The unique index on the chunks collection is declared over the same
// names the chunk documents carry; if they drift, uniqueness silently
// stops applying.
const (
	FieldID         = "_id"
	FieldFilename   = "filename"
	FieldLength     = "length"
	FieldChunkSize  = "chunkSize"
	FieldUploadDate = "uploadDate"
	FieldMD5        = "md5"
	FieldUserMeta   = "metadata"

	FieldFilesID = "files_id"
	FieldN       = "n"
	FieldData    = "data"
)

// Command keys for Database.RunCommand.
const (
	CmdFileMD5 = "filemd5"
	CmdRoot    = "root"
)

// Document is one record in a backend collection.
type Document map[string]any

//go:generate mockgen -destination=../service/mocks/docstore_mock.go -package=mocks -source=docstore.go

// Collection is the narrow slice of a document-store collection the file
// store needs: equality-selector queries, batch inserts, deletes, and
// idempotent index creation. Everything else (query planning, transport,
// durability) belongs to the backend.
type Collection interface {
	// FindOne returns the first document matching the selector, or
	// (nil, nil) when nothing matches.
	FindOne(ctx context.Context, selector Document) (Document, error)

	// Find returns all documents matching the selector. When sortField is
	// non-empty the result is sorted ascending by that field.
	Find(ctx context.Context, selector Document, sortField string) ([]Document, error)

	// InsertOne writes a single document. Violating a unique index fails
	// with an error wrapping ErrDuplicateKey.
	InsertOne(ctx context.Context, doc Document) error

	// InsertMany writes a batch of documents in order. The batch is not
	// atomic: a duplicate-key failure leaves earlier documents in place.
	InsertMany(ctx context.Context, docs []Document) error

	// DeleteOne removes at most one document matching the selector.
	// A missing target is a no-op.
	DeleteOne(ctx context.Context, selector Document) error

	// DeleteMany removes every document matching the selector.
	DeleteMany(ctx context.Context, selector Document) error

	// EnsureIndex creates an index over the given fields. Safe to invoke
	// repeatedly with the same specification.
	EnsureIndex(ctx context.Context, fields []string, unique bool) error
}

// Database is the backend handle: named collections, server-side commands,
// and the active write-acknowledgement mode.
type Database interface {
	Collection(name string) Collection

	// RunCommand executes a server-side command. The file store uses it
	// for the filemd5-equivalent checksum recomputation:
	// {"filemd5": <fileID>, "root": <prefix>} => {"md5": <hex digest>}.
	RunCommand(ctx context.Context, cmd Document) (Document, error)

	// Acknowledged reports whether writes are confirmed durable before
	// returning. It governs the default integrity-validation mode.
	Acknowledged() bool
}
