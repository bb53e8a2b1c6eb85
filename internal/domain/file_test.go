package domain

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"testing"
)

func TestNewFileSplitsOnChunkBoundaries(t *testing.T) {
	f, err := NewFile("f1", "letters.txt", []byte("abcdefghi"), 3, nil)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	if len(f.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(f.Chunks))
	}
	for i, want := range []string{"abc", "def", "ghi"} {
		c := f.Chunks[i]
		if c.N != i {
			t.Errorf("chunk %d has ordinal %d", i, c.N)
		}
		if c.FileID != "f1" {
			t.Errorf("chunk %d has file id %q", i, c.FileID)
		}
		if string(c.Data) != want {
			t.Errorf("chunk %d payload = %q, want %q", i, c.Data, want)
		}
	}

	if f.Metadata.Length != 9 {
		t.Errorf("length = %d, want 9", f.Metadata.Length)
	}
	wantMD5 := md5.Sum([]byte("abcdefghi"))
	if f.Metadata.MD5 != hex.EncodeToString(wantMD5[:]) {
		t.Errorf("declared md5 = %s, want digest of full payload", f.Metadata.MD5)
	}
}

func TestNewFileUnevenTail(t *testing.T) {
	f, err := NewFile("f1", "tail.bin", []byte("abcdefg"), 3, nil)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if len(f.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(f.Chunks))
	}
	if string(f.Chunks[2].Data) != "g" {
		t.Errorf("tail chunk = %q, want %q", f.Chunks[2].Data, "g")
	}
	if !bytes.Equal(f.Payload(), []byte("abcdefg")) {
		t.Errorf("payload round trip = %q", f.Payload())
	}
}

func TestNewFileEmptyPayload(t *testing.T) {
	f, err := NewFile("f1", "empty.bin", nil, 0, nil)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	if len(f.Chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(f.Chunks))
	}
	if f.Metadata.Length != 0 {
		t.Errorf("length = %d, want 0", f.Metadata.Length)
	}
	if f.Metadata.ChunkSize != DefaultChunkSize {
		t.Errorf("chunk size = %d, want default %d", f.Metadata.ChunkSize, DefaultChunkSize)
	}
}

func TestNewFileRejectsBadArguments(t *testing.T) {
	if _, err := NewFile("", "x", []byte("a"), 3, nil); err != ErrEmptyFileID {
		t.Errorf("empty id: got %v", err)
	}
	if _, err := NewFile("f1", "x", []byte("a"), MaxChunkSize+1, nil); err != ErrInvalidChunkSize {
		t.Errorf("oversized chunk boundary: got %v", err)
	}
}

func TestContentMD5TracksChunkBytes(t *testing.T) {
	f, _ := NewFile("f1", "x", []byte("abcdef"), 3, nil)
	if f.ContentMD5() != f.Metadata.MD5 {
		t.Fatalf("fresh file checksum mismatch")
	}

	f.Chunks[1].Data = []byte("DEF")
	if f.ContentMD5() == f.Metadata.MD5 {
		t.Fatalf("mutated chunks must change the recomputed checksum")
	}
}
