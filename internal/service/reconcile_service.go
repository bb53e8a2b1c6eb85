package service

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/pkg/resilience"
)

// reconcileService sweeps the consistency window left by the two-phase
// insert: a crash between the metadata write and the chunk batch leaves
// a metadata record with no chunks. The sweep removes such orphans once
// they are older than the grace period, so in-flight inserts are never
// mistaken for orphans.
type reconcileService struct {
	core *Store
}

func newReconcileService(core *Store) *reconcileService {
	return &reconcileService{core: core}
}

func (s *reconcileService) reconcile(ctx context.Context, gracePeriod time.Duration) (int, error) {
	metas, err := s.core.metadataUseCase.findAll(ctx)
	if err != nil {
		return 0, err
	}

	workers := s.core.cfg.Store.ReconcileWorkers
	if workers <= 0 {
		workers = 4
	}
	pool := resilience.NewWorkerPool(workers, workers*2)

	cutoff := time.Now().Add(-gracePeriod)
	var mu sync.Mutex
	removed := 0
	var sweepErr error

	for _, meta := range metas {
		if meta.UploadDate.After(cutoff) {
			continue
		}

		m := meta
		err := pool.Submit(ctx, func() {
			orphan, checkErr := s.isOrphan(ctx, m)
			if checkErr != nil {
				mu.Lock()
				if sweepErr == nil {
					sweepErr = checkErr
				}
				mu.Unlock()
				return
			}
			if !orphan {
				return
			}

			if removeErr := s.core.metadataUseCase.remove(ctx, m.ID); removeErr != nil {
				logger.Warnw("Orphan metadata removal failed", "file_id", m.ID, "error", removeErr.Error())
				mu.Lock()
				if sweepErr == nil {
					sweepErr = removeErr
				}
				mu.Unlock()
				return
			}

			logger.Infow("Removed orphaned file metadata", "file_id", m.ID, "filename", m.Filename)
			mu.Lock()
			removed++
			mu.Unlock()
		})
		if err != nil {
			// Submit fails on context cancellation; the sweep is partial.
			mu.Lock()
			if sweepErr == nil {
				sweepErr = err
			}
			mu.Unlock()
			break
		}
	}

	pool.Close()
	pool.Wait()

	return removed, sweepErr
}

func (s *reconcileService) isOrphan(ctx context.Context, meta domain.FileMetadata) (bool, error) {
	// Zero-length files legitimately have no chunks.
	if meta.Length == 0 {
		return false, nil
	}
	chunks, err := s.core.chunkUseCase.findByFile(ctx, meta.ID)
	if err != nil {
		return false, err
	}
	return len(chunks) == 0, nil
}
