package app

import (
	"fmt"
	"sort"
	"strings"

	"refuge_map/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

var sortColumns = map[string]struct{}{
	"name": {}, "altitude_m": {}, "places": {}, "available_places": {},
}

// TableRows returns the page of rows inside the viewport for q.Date.
// Refuges without coordinates never appear.
func TableRows(ds *domain.Dataset, q domain.ViewQuery) (domain.RowsPage, error) {
	col, desc, err := parseSort(q.Sort)
	if err != nil {
		return domain.RowsPage{}, err
	}
	size := q.Size
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 0 || size > MaxPageSize {
		return domain.RowsPage{}, fmt.Errorf("%w: size must be between 1 and %d", domain.ErrInvalidQuery, MaxPageSize)
	}
	page := q.Page
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return domain.RowsPage{}, fmt.Errorf("%w: page must be positive", domain.ErrInvalidQuery)
	}
	needle := NormalizeName(q.Q)

	rows := make([]domain.Row, 0, len(ds.Refuges))
	for _, r := range ds.Refuges {
		if !r.Located() {
			continue
		}
		if q.Bounds != nil && !q.Bounds.ContainsRefuge(r) {
			continue
		}
		if q.Focus != "" && r.Key != q.Focus {
			continue
		}
		if needle != "" && !strings.Contains(NormalizeName(r.Name), needle) {
			continue
		}
		v := r.AvailableOn(q.Date)
		rows = append(rows, domain.Row{
			Key:             r.Key,
			Name:            r.Name,
			Structure:       r.Structure,
			Lat:             *r.Lat,
			Lng:             *r.Lng,
			AltitudeM:       r.AltitudeM,
			Places:          r.Places,
			AvailablePlaces: v,
			Available:       FormatAvailability(v),
		})
	}
	if col != "" {
		sortRows(rows, col, desc)
	}

	out := domain.RowsPage{Total: len(rows), Page: page, Size: size, Items: []domain.Row{}}
	start := (page - 1) * size
	if start < len(rows) {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out.Items = rows[start:end]
	}
	return out, nil
}

func parseSort(s string) (col string, desc bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, nil
	}
	if strings.HasPrefix(s, "-") {
		desc = true
		s = s[1:]
	}
	if _, ok := sortColumns[s]; !ok {
		return "", false, fmt.Errorf("%w: unknown sort column %q", domain.ErrInvalidQuery, s)
	}
	return s, desc, nil
}

// sortRows keeps nil values last in both directions; ties fall back to name.
func sortRows(rows []domain.Row, col string, desc bool) {
	intOf := func(r domain.Row) *int {
		switch col {
		case "altitude_m":
			return r.AltitudeM
		case "places":
			return r.Places
		default:
			return r.AvailablePlaces
		}
	}
	byName := func(a, b domain.Row) bool {
		return NormalizeName(a.Name) < NormalizeName(b.Name)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if col == "name" {
			if desc {
				return byName(b, a)
			}
			return byName(a, b)
		}
		x, y := intOf(a), intOf(b)
		switch {
		case x == nil && y == nil:
			return byName(a, b)
		case x == nil:
			return false
		case y == nil:
			return true
		case *x == *y:
			return byName(a, b)
		case desc:
			return *x > *y
		default:
			return *x < *y
		}
	})
}
