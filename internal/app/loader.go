package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"refuge_map/internal/domain"
)

// Loader fetches both datasets concurrently and joins them.
type Loader struct {
	client domain.DatasetClient
	now    func() time.Time
}

func NewLoader(c domain.DatasetClient) *Loader {
	return &Loader{client: c, now: time.Now}
}

func (l *Loader) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	var metaRaw, availRaw []map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if metaRaw, err = l.client.FetchMeta(gctx); err != nil {
			return fmt.Errorf("fetch metadata: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if availRaw, err = l.client.FetchAvailability(gctx); err != nil {
			return fmt.Errorf("fetch availability: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := Join(MapMeta(metaRaw), MapAvailability(availRaw))
	log.Info().
		Int("refuges", len(res.Refuges)).
		Int("matched", res.Stats.Matched).
		Int("availability_only", res.Stats.AvailabilityOnly).
		Int("meta_only", res.Stats.MetaOnly).
		Int("skipped_meta", res.Stats.SkippedMeta).
		Msg("datasets joined")

	return BuildDataset(res.Refuges, res.Stats, res.Misses, l.now()), nil
}

// RepoSource serves the dataset persisted by the ingestor.
type RepoSource struct {
	repo domain.RefugeRepository
	now  func() time.Time
}

func NewRepoSource(r domain.RefugeRepository) *RepoSource {
	return &RepoSource{repo: r, now: time.Now}
}

func (s *RepoSource) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	refuges, err := s.repo.ListRefuges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list refuges: %w", err)
	}
	return BuildDataset(refuges, statsOf(refuges), nil, s.now()), nil
}

// statsOf approximates join stats for refuges read back from storage: only
// availability records are persisted, so a location means metadata was paired.
func statsOf(refuges []domain.Refuge) domain.JoinStats {
	var st domain.JoinStats
	for _, r := range refuges {
		if r.Located() {
			st.Matched++
		} else {
			st.AvailabilityOnly++
		}
	}
	return st
}

// BuildDataset versions the refuges by content hash.
func BuildDataset(refuges []domain.Refuge, st domain.JoinStats, misses []domain.JoinMiss, at time.Time) *domain.Dataset {
	return domain.NewDataset(datasetVersion(refuges), at, refuges, st, misses)
}

func datasetVersion(refuges []domain.Refuge) string {
	b, err := json.Marshal(refuges)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal refuges for version")
		return fmt.Sprintf("n%d", len(refuges))
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:8])
}
