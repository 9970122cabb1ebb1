package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"refuge_map/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertRefuge writes the refuge row and replaces its availability in one transaction.
func (r *Repo) UpsertRefuge(ctx context.Context, ref domain.Refuge) (err error) {
	urls := ref.URLs
	if urls == nil {
		urls = []string{}
	}
	urlsJSON, _ := json.Marshal(urls)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, upsertRefugeSQL,
		ref.Key,
		ref.Name,
		valStr(ref.Structure),
		valF64(ref.Lat),
		valF64(ref.Lng),
		valInt(ref.AltitudeM),
		valInt(ref.Places),
		valStr(ref.Gardien),
		valStr(ref.Description),
		string(urlsJSON),
	); err != nil {
		return fmt.Errorf("upsert refuge %s: %w", ref.Key, err)
	}
	if _, err = tx.ExecContext(ctx, deleteAvailabilitySQL, ref.Key); err != nil {
		return fmt.Errorf("clear availability %s: %w", ref.Key, err)
	}

	if len(ref.Availability) > 0 {
		days := make([]string, 0, len(ref.Availability))
		for d := range ref.Availability {
			// the column is a DATE; other keys cannot be stored
			if _, perr := time.Parse("2006-01-02", d); perr == nil {
				days = append(days, d)
			}
		}
		sort.Strings(days)

		values := make([]string, 0, len(days))
		args := make([]any, 0, len(days)*3)
		for _, d := range days {
			values = append(values, "(?,?,?)")
			args = append(args, ref.Key, d, valInt(ref.Availability[d]))
		}
		if len(values) > 0 {
			sqlStr := insertAvailabilityPrefix + strings.Join(values, ",")
			if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
				return fmt.Errorf("insert availability %s: %w", ref.Key, err)
			}
		}
	}
	return tx.Commit()
}

func (r *Repo) LogMiss(ctx context.Context, m domain.JoinMiss) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, m.Key, m.Name, m.Reason)
	return err
}

// PruneRefuges removes refuges that vanished from the datasets. An empty keep
// list is refused rather than emptying the table.
func (r *Repo) PruneRefuges(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, fmt.Errorf("prune refuges: empty key set")
	}
	args := make([]any, len(keep))
	for i, k := range keep {
		args[i] = k
	}
	q := pruneRefugesPrefix + "(" + strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",") + ")"
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("prune refuges: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repo) ListRefuges(ctx context.Context) ([]domain.Refuge, error) {
	rows, err := r.db.QueryContext(ctx, listRefugesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Refuge
	idx := map[string]int{}
	for rows.Next() {
		var ref domain.Refuge
		var (
			structure, gardien, desc sql.NullString
			lat, lng                 sql.NullFloat64
			alt, places              sql.NullInt64
			urlsJSON                 []byte
		)
		if err := rows.Scan(&ref.Key, &ref.Name, &structure, &lat, &lng, &alt, &places, &gardien, &desc, &urlsJSON); err != nil {
			return nil, err
		}
		ref.Structure = structure.String
		ref.Gardien = gardien.String
		ref.Description = desc.String
		if lat.Valid {
			f := lat.Float64
			ref.Lat = &f
		}
		if lng.Valid {
			f := lng.Float64
			ref.Lng = &f
		}
		if alt.Valid {
			n := int(alt.Int64)
			ref.AltitudeM = &n
		}
		if places.Valid {
			n := int(places.Int64)
			ref.Places = &n
		}
		ref.URLs = []string{}
		_ = json.Unmarshal(urlsJSON, &ref.URLs)
		ref.Availability = domain.Availability{}

		idx[ref.Key] = len(out)
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := r.db.QueryContext(ctx, listAvailabilitySQL)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var key, day string
		var beds sql.NullInt64
		if err := arows.Scan(&key, &day, &beds); err != nil {
			return nil, err
		}
		i, ok := idx[key]
		if !ok {
			continue
		}
		if beds.Valid {
			n := int(beds.Int64)
			out[i].Availability[day] = &n
		} else {
			out[i].Availability[day] = nil
		}
	}
	if err := arows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
