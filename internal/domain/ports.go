package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNotLoaded     = errors.New("dataset not loaded")
	ErrInvalidBounds = errors.New("invalid bounds")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidQuery  = errors.New("invalid query")
)

type RefugeRepository interface {
	// Write paths
	UpsertRefuge(ctx context.Context, r Refuge) error
	LogMiss(ctx context.Context, m JoinMiss) error
	// PruneRefuges deletes every refuge whose key is not in keep.
	PruneRefuges(ctx context.Context, keep []string) (int64, error)

	// Read paths
	ListRefuges(ctx context.Context) ([]Refuge, error)
}

// DatasetClient fetches the two raw datasets. Records are normalized to a list
// whatever the wire shape (array, or object keyed by structure id).
type DatasetClient interface {
	FetchMeta(ctx context.Context) ([]map[string]any, error)
	FetchAvailability(ctx context.Context) ([]map[string]any, error)
}

// SnapshotSource produces the merged dataset the API serves.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*Dataset, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
