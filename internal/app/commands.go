package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"refuge_map/internal/domain"
)

type IngestionService struct {
	src     domain.SnapshotSource
	repo    domain.RefugeRepository
	workers int64
}

type IngestReport struct {
	Version  string
	Refuges  int
	Upserted int
	Failed   int
	Pruned   int
	Misses   int
}

func NewIngestionService(src domain.SnapshotSource, r domain.RefugeRepository, workers int) *IngestionService {
	if workers <= 0 {
		workers = 1
	}
	return &IngestionService{src: src, repo: r, workers: int64(workers)}
}

// Ingest loads both datasets, persists every merged refuge, deletes refuges
// that left the datasets and records the join misses. A load or prune failure
// aborts the run; per-refuge write errors are counted and the run goes on.
func (s *IngestionService) Ingest(ctx context.Context) (IngestReport, error) {
	ds, err := s.src.Snapshot(ctx)
	if err != nil {
		return IngestReport{}, fmt.Errorf("load datasets: %w", err)
	}
	rep := IngestReport{Version: ds.Version, Refuges: len(ds.Refuges)}

	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup
	var ok, failed int64

	for _, r := range ds.Refuges {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return rep, err
		}
		wg.Add(1)
		go func(r domain.Refuge) {
			defer wg.Done()
			defer sem.Release(1)

			if err := s.repo.UpsertRefuge(ctx, r); err != nil {
				atomic.AddInt64(&failed, 1)
				log.Warn().Str("key", r.Key).Err(err).Msg("upsert refuge failed")
				return
			}
			atomic.AddInt64(&ok, 1)
		}(r)
	}
	wg.Wait()
	rep.Upserted, rep.Failed = int(ok), int(failed)

	if len(ds.Refuges) == 0 {
		log.Warn().Msg("datasets produced no refuges; keeping stored ones")
	} else {
		keep := make([]string, 0, len(ds.Refuges))
		for _, r := range ds.Refuges {
			keep = append(keep, r.Key)
		}
		n, err := s.repo.PruneRefuges(ctx, keep)
		if err != nil {
			return rep, err
		}
		rep.Pruned = int(n)
	}

	for _, m := range ds.Misses {
		if err := s.repo.LogMiss(ctx, m); err != nil {
			log.Warn().Str("name", m.Name).Str("reason", m.Reason).Err(err).Msg("log join miss failed")
			continue
		}
		rep.Misses++
	}
	return rep, nil
}
