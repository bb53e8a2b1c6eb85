package service

import (
	"context"

	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

// metadataStore is the thin sub-store over "<prefix>.files".
type metadataStore struct {
	core *Store
}

func newMetadataStore(core *Store) *metadataStore {
	return &metadataStore{core: core}
}

// ensureIndex declares the unique index over the identifier field. The
// backends here are plain document stores with no inherent primary key,
// so uniqueness has to be declared like any other index. Idempotent.
func (s *metadataStore) ensureIndex(ctx context.Context) error {
	return s.core.files.EnsureIndex(ctx, []string{port.FieldID}, true)
}

func (s *metadataStore) insert(ctx context.Context, meta domain.FileMetadata) error {
	return s.core.files.InsertOne(ctx, metadataToDoc(meta))
}

// findOne returns (nil, nil) when the selector matches nothing; the
// facade maps that to port.ErrFileNotFound.
func (s *metadataStore) findOne(ctx context.Context, selector port.Document) (*domain.FileMetadata, error) {
	doc, err := s.core.files.FindOne(ctx, selector)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	meta := docToMetadata(doc)
	return &meta, nil
}

func (s *metadataStore) findAll(ctx context.Context) ([]domain.FileMetadata, error) {
	docs, err := s.core.files.Find(ctx, port.Document{}, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.FileMetadata, 0, len(docs))
	for _, doc := range docs {
		out = append(out, docToMetadata(doc))
	}
	return out, nil
}

func (s *metadataStore) remove(ctx context.Context, fileID string) error {
	return s.core.files.DeleteOne(ctx, port.Document{port.FieldID: fileID})
}

func metadataToDoc(meta domain.FileMetadata) port.Document {
	doc := port.Document{
		port.FieldID:         meta.ID,
		port.FieldFilename:   meta.Filename,
		port.FieldLength:     meta.Length,
		port.FieldChunkSize:  meta.ChunkSize,
		port.FieldUploadDate: meta.UploadDate,
		port.FieldMD5:        meta.MD5,
	}
	if len(meta.Metadata) > 0 {
		doc[port.FieldUserMeta] = meta.Metadata
	}
	return doc
}

func docToMetadata(doc port.Document) domain.FileMetadata {
	meta := domain.FileMetadata{}
	meta.ID, _ = port.AsString(doc[port.FieldID])
	meta.Filename, _ = port.AsString(doc[port.FieldFilename])
	meta.Length, _ = port.AsInt64(doc[port.FieldLength])
	meta.ChunkSize, _ = port.AsInt64(doc[port.FieldChunkSize])
	meta.UploadDate, _ = port.AsTime(doc[port.FieldUploadDate])
	meta.MD5, _ = port.AsString(doc[port.FieldMD5])
	if user, ok := doc[port.FieldUserMeta].(map[string]any); ok {
		meta.Metadata = user
	}
	return meta
}
