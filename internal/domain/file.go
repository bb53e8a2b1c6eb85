package domain

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// DefaultChunkSize is the fixed chunk boundary used when the caller
	// does not configure one (255KB, leaving headroom under typical
	// document size limits).
	DefaultChunkSize = 255 * 1024

	// MaxChunkSize caps a single chunk payload.
	MaxChunkSize = 16 * 1024 * 1024
)

var (
	ErrEmptyFileID      = errors.New("file id must not be empty")
	ErrInvalidChunkSize = errors.New("chunk size out of range")
)

// FileMetadata describes a stored file, separate from its byte payload.
// Immutable once written: there is no partial-update operation.
type FileMetadata struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Length     int64          `json:"length"`
	ChunkSize  int64          `json:"chunk_size"`
	UploadDate time.Time      `json:"upload_date"`
	MD5        string         `json:"md5"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Chunk is one ordinal-indexed fragment of a file's payload. The pair
// (FileID, N) is unique across the chunk collection.
type Chunk struct {
	FileID string
	N      int
	Data   []byte
}

// File is the unit callers manipulate: metadata plus the ordered chunk
// sequence covering indices 0..len(Chunks)-1 with no gaps.
type File struct {
	Metadata FileMetadata
	Chunks   []Chunk
}

// NewFile splits data on fixed chunk boundaries and derives the declared
// content checksum from the chunk payloads.
func NewFile(id, filename string, data []byte, chunkSize int64, userMeta map[string]any) (*File, error) {
	if id == "" {
		return nil, ErrEmptyFileID
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		return nil, ErrInvalidChunkSize
	}

	f := &File{
		Metadata: FileMetadata{
			ID:         id,
			Filename:   filename,
			Length:     int64(len(data)),
			ChunkSize:  chunkSize,
			UploadDate: time.Now().UTC(),
			Metadata:   userMeta,
		},
	}

	for n, off := 0, int64(0); off < int64(len(data)); n, off = n+1, off+chunkSize {
		end := off + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		payload := make([]byte, end-off)
		copy(payload, data[off:end])
		f.Chunks = append(f.Chunks, Chunk{FileID: id, N: n, Data: payload})
	}

	f.Metadata.MD5 = f.ContentMD5()
	return f, nil
}

// ContentMD5 recomputes the content checksum from the chunk payloads in
// ordinal order. Compared against the server-computed digest during
// integrity validation.
func (f *File) ContentMD5() string {
	h := md5.New()
	for _, c := range f.Chunks {
		h.Write(c.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Payload concatenates the chunk payloads in ordinal order.
func (f *File) Payload() []byte {
	buf := make([]byte, 0, f.Metadata.Length)
	for _, c := range f.Chunks {
		buf = append(buf, c.Data...)
	}
	return buf
}
