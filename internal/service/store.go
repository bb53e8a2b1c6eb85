package service

import (
	"context"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/minhtran-dev/gridstore/internal/config"
	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

// DefaultPrefix namespaces the two collections when the configuration
// does not set one.
const DefaultPrefix = "fs"

// Store is the chunked file store facade. It composes the metadata
// sub-store, the chunk sub-store, the integrity validator, and the
// reconciliation sweep over one backing document database.
//
// Inserting a file issues two independent writes (metadata, then the
// chunk batch) with no cross-collection transaction; a crash between
// them leaves an orphaned metadata record that Reconcile can clean up.
type Store struct {
	cfg          *config.Config
	db           port.Database
	prefix       string
	acknowledged bool

	files  port.Collection
	chunks port.Collection

	metadataUseCase  *metadataStore
	chunkUseCase     *chunkStore
	integrityUseCase *integrityService
	reconcileUseCase *reconcileService
}

// Ensure Store implements port.FileStore.
var _ port.FileStore = (*Store)(nil)

// New builds the store, resolves the write-acknowledgement mode once
// from configuration (falling back to the backend's own mode), and
// ensures the unique indexes: _id on the files collection and
// (files_id, n) on the chunks collection. Index creation is idempotent;
// the indexes must exist before any insert or uniqueness silently fails
// to apply.
func New(cfg *config.Config, db port.Database) (*Store, error) {
	prefix := cfg.Store.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	s := &Store{
		cfg:          cfg,
		db:           db,
		prefix:       prefix,
		acknowledged: resolveAcknowledged(cfg.Store.WriteConcern, db),
		files:        db.Collection(prefix + ".files"),
		chunks:       db.Collection(prefix + ".chunks"),
	}

	s.metadataUseCase = newMetadataStore(s)
	s.chunkUseCase = newChunkStore(s)
	s.integrityUseCase = newIntegrityService(s)
	s.reconcileUseCase = newReconcileService(s)

	if err := s.metadataUseCase.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure metadata index: %w", err)
	}
	if err := s.chunkUseCase.ensureIndex(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure chunk index: %w", err)
	}
	return s, nil
}

// resolveAcknowledged turns the configured write-concern string into the
// static validation mode flag. An empty value inherits the backend's own
// acknowledgement mode.
func resolveAcknowledged(writeConcern string, db port.Database) bool {
	switch writeConcern {
	case "acknowledged":
		return true
	case "unacknowledged":
		return false
	case "":
		return db.Acknowledged()
	default:
		logger.Warnw("Unknown write concern, inheriting backend mode", "value", writeConcern)
		return db.Acknowledged()
	}
}

// FindOne looks up one file by metadata selector and reassembles it from
// its chunks sorted ascending by ordinal index. Absence surfaces as
// port.ErrFileNotFound. Completeness is not re-validated here; callers
// needing strict verification compare length or run Validate.
func (s *Store) FindOne(ctx context.Context, selector port.Document) (*domain.File, error) {
	meta, err := s.metadataUseCase.findOne(ctx, selector)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, port.ErrFileNotFound
	}

	chunks, err := s.chunkUseCase.findByFile(ctx, meta.ID)
	if err != nil {
		return nil, err
	}

	return &domain.File{Metadata: *meta, Chunks: chunks}, nil
}

// InsertOne persists the metadata record, then the chunk batch. In
// acknowledged mode it finishes with a server-side checksum comparison
// and fails with *port.InvalidFileError on mismatch; the written data is
// left in place either way. In unacknowledged mode it returns right
// after the batch insert. No rollback and no retry: cleanup after a
// failure is the caller's call.
func (s *Store) InsertOne(ctx context.Context, file *domain.File) error {
	if err := s.metadataUseCase.insert(ctx, file.Metadata); err != nil {
		return err
	}
	if err := s.chunkUseCase.insertMany(ctx, file.Chunks); err != nil {
		return err
	}

	if s.acknowledged {
		if err := s.integrityUseCase.validate(ctx, file); err != nil {
			logger.Errorw("Integrity validation failed after insert", "file_id", file.Metadata.ID, "error", err.Error())
			return err
		}
	}

	logger.Infow("File inserted", "file_id", file.Metadata.ID, "chunks", len(file.Chunks), "size_bytes", file.Metadata.Length)
	return nil
}

// RemoveOne deletes the file's metadata record and every chunk carrying
// its ID. Idempotent per sub-step: absent records are no-ops.
func (s *Store) RemoveOne(ctx context.Context, file *domain.File) error {
	if err := s.metadataUseCase.remove(ctx, file.Metadata.ID); err != nil {
		return err
	}
	return s.chunkUseCase.removeByFile(ctx, file.Metadata.ID)
}

// Validate runs the server-side checksum comparison on demand.
func (s *Store) Validate(ctx context.Context, file *domain.File) error {
	return s.integrityUseCase.validate(ctx, file)
}

// Reconcile removes metadata records older than gracePeriod that have no
// chunks. Maintenance sweep for the insert consistency window.
func (s *Store) Reconcile(ctx context.Context, gracePeriod time.Duration) (int, error) {
	return s.reconcileUseCase.reconcile(ctx, gracePeriod)
}

// Prefix returns the namespace the collection names derive from.
func (s *Store) Prefix() string {
	return s.prefix
}
