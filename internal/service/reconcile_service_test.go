package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

func insertMetadataOnly(t *testing.T, store *Store, id string, length int64, age time.Duration) {
	t.Helper()
	meta := domain.FileMetadata{
		ID:         id,
		Filename:   id + ".bin",
		Length:     length,
		ChunkSize:  3,
		UploadDate: time.Now().UTC().Add(-age),
		MD5:        "00000000000000000000000000000000",
	}
	if err := store.files.InsertOne(context.Background(), metadataToDoc(meta)); err != nil {
		t.Fatalf("metadata insert failed: %v", err)
	}
}

func TestReconcileRemovesAgedOrphans(t *testing.T) {
	store, _ := newTestStore(t, nil, nil)
	ctx := context.Background()

	// Complete file: stays.
	complete := mustFile(t, "complete", "letters.txt", "abcdefghi", 3)
	complete.Metadata.UploadDate = time.Now().UTC().Add(-time.Hour)
	if err := store.InsertOne(ctx, complete); err != nil {
		t.Fatalf("InsertOne failed: %v", err)
	}

	// Aged orphan: metadata claims bytes but no chunks ever landed.
	insertMetadataOnly(t, store, "orphan-old", 9, time.Hour)
	// Fresh orphan: inside the grace period, could be a write in flight.
	insertMetadataOnly(t, store, "orphan-new", 9, 0)
	// Aged zero-length file: legitimately chunkless, stays.
	insertMetadataOnly(t, store, "empty-old", 0, time.Hour)

	removed, err := store.Reconcile(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, err := store.FindOne(ctx, port.Document{port.FieldID: "orphan-old"}); !errors.Is(err, port.ErrFileNotFound) {
		t.Errorf("aged orphan should be gone, got %v", err)
	}
	for _, id := range []string{"complete", "orphan-new", "empty-old"} {
		if _, err := store.FindOne(ctx, port.Document{port.FieldID: id}); err != nil {
			t.Errorf("%s should survive the sweep, got %v", id, err)
		}
	}
}

func TestReconcileCancelledContextReportsError(t *testing.T) {
	store, _ := newTestStore(t, nil, nil)
	insertMetadataOnly(t, store, "orphan-old", 9, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A sweep cut short by cancellation must say so, never return a
	// partial count with a nil error.
	removed, err := store.Reconcile(ctx, 10*time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}

	// The orphan is still there for the next sweep.
	if _, err := store.FindOne(context.Background(), port.Document{port.FieldID: "orphan-old"}); err != nil {
		t.Fatalf("orphan should survive the aborted sweep, got %v", err)
	}
}

func TestReconcileOnEmptyStore(t *testing.T) {
	store, _ := newTestStore(t, nil, nil)
	removed, err := store.Reconcile(context.Background(), time.Minute)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}
