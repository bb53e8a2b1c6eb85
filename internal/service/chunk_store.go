package service

import (
	"context"
	"fmt"

	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

// chunkStore is the thin sub-store over "<prefix>.chunks".
type chunkStore struct {
	core *Store
}

func newChunkStore(core *Store) *chunkStore {
	return &chunkStore{core: core}
}

// ensureIndex declares the unique compound index over the same field
// names chunk documents carry. Idempotent.
func (s *chunkStore) ensureIndex(ctx context.Context) error {
	return s.core.chunks.EnsureIndex(ctx, []string{port.FieldFilesID, port.FieldN}, true)
}

// insertMany writes the file's chunks as one ordered batch. A duplicate
// (files_id, n) pair fails with the backend's duplicate-key error,
// propagated unmodified.
func (s *chunkStore) insertMany(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]port.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, port.Document{
			port.FieldFilesID: c.FileID,
			port.FieldN:       c.N,
			port.FieldData:    c.Data,
		})
	}
	return s.core.chunks.InsertMany(ctx, docs)
}

// findByFile returns the file's chunks sorted ascending by ordinal index.
func (s *chunkStore) findByFile(ctx context.Context, fileID string) ([]domain.Chunk, error) {
	docs, err := s.core.chunks.Find(ctx, port.Document{port.FieldFilesID: fileID}, port.FieldN)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		n, ok := port.AsInt64(doc[port.FieldN])
		if !ok {
			return nil, fmt.Errorf("chunk without ordinal index for file %s", fileID)
		}
		data, ok := port.AsBytes(doc[port.FieldData])
		if !ok {
			return nil, fmt.Errorf("chunk %d without payload for file %s", n, fileID)
		}
		chunks = append(chunks, domain.Chunk{FileID: fileID, N: int(n), Data: data})
	}
	return chunks, nil
}

// removeByFile deletes every chunk carrying the file's ID. Zero matches
// is a no-op.
func (s *chunkStore) removeByFile(ctx context.Context, fileID string) error {
	return s.core.chunks.DeleteMany(ctx, port.Document{port.FieldFilesID: fileID})
}
