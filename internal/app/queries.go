package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"refuge_map/internal/domain"
)

// ViewService holds the current snapshot and answers table/map queries from it.
type ViewService struct {
	src      domain.SnapshotSource
	cache    domain.Cache
	cacheTTL time.Duration
	loc      *time.Location
	now      func() time.Time
	cur      atomic.Pointer[domain.Dataset]

	// OnLoad is called after each refresh attempt (ds is nil on failure).
	OnLoad func(ds *domain.Dataset, err error)
}

func NewViewService(src domain.SnapshotSource, c domain.Cache, ttl time.Duration, loc *time.Location) *ViewService {
	if loc == nil {
		loc = time.UTC
	}
	return &ViewService{src: src, cache: c, cacheTTL: ttl, loc: loc, now: time.Now}
}

// Refresh loads a new snapshot. On failure the previous one stays in place.
func (s *ViewService) Refresh(ctx context.Context) error {
	ds, err := s.src.Snapshot(ctx)
	if s.OnLoad != nil {
		s.OnLoad(ds, err)
	}
	if err != nil {
		return err
	}
	if prev := s.cur.Swap(ds); prev == nil || prev.Version != ds.Version {
		log.Info().Str("version", ds.Version).Int("refuges", len(ds.Refuges)).Msg("dataset loaded")
	}
	return nil
}

// Run refreshes every interval until ctx is done.
func (s *ViewService) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("dataset refresh failed; keeping previous snapshot")
			}
		}
	}
}

func (s *ViewService) Dataset() (*domain.Dataset, error) {
	ds := s.cur.Load()
	if ds == nil {
		return nil, domain.ErrNotLoaded
	}
	return ds, nil
}

// Today is the default date of the picker.
func (s *ViewService) Today() string { return Today(s.now(), s.loc) }

func (s *ViewService) resolveDate(d string) (string, error) {
	if d == "" {
		return s.Today(), nil
	}
	return ParseDate(d)
}

// View computes rows and markers for one query from a single snapshot, so the
// table and the map always show the same date and data.
func (s *ViewService) View(ctx context.Context, q domain.ViewQuery) (domain.View, error) {
	ds, err := s.Dataset()
	if err != nil {
		return domain.View{}, err
	}
	if q.Date, err = s.resolveDate(q.Date); err != nil {
		return domain.View{}, err
	}
	if q.Bounds != nil && !q.Bounds.Valid() {
		return domain.View{}, domain.ErrInvalidBounds
	}

	key := viewCacheKey(ds.Version, q)
	var v domain.View
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, key, &v)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("view cache read failed; recomputing")
			v = domain.View{}
		} else if ok {
			return v, nil
		}
	}

	rows, err := TableRows(ds, q)
	if err != nil {
		return domain.View{}, err
	}
	v = domain.View{
		Date:    q.Date,
		Version: ds.Version,
		Rows:    rows,
		Markers: Markers(ds, q.Date),
	}
	if q.Focus != "" {
		if r, ok := ds.Lookup(q.Focus); ok {
			info := BuildInfo(r, q.Date)
			v.Info = &info
		}
	}

	// optional size guard
	if s.cache != nil {
		if b, _ := json.Marshal(v); len(b) < 1_000_000 {
			_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
		}
	}
	return v, nil
}

// Info is the side panel of one refuge for date.
func (s *ViewService) Info(ctx context.Context, key, date string) (domain.Info, error) {
	ds, err := s.Dataset()
	if err != nil {
		return domain.Info{}, err
	}
	if date, err = s.resolveDate(date); err != nil {
		return domain.Info{}, err
	}
	r, ok := ds.Lookup(key)
	if !ok {
		return domain.Info{}, fmt.Errorf("refuge %q: %w", key, domain.ErrNotFound)
	}
	return BuildInfo(r, date), nil
}

func viewCacheKey(version string, q domain.ViewQuery) string {
	b, _ := json.Marshal(q)
	sum := sha1.Sum(b)
	return fmt.Sprintf("view:%s:%s:%s", version, q.Date, hex.EncodeToString(sum[:8]))
}
