package app

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"refuge_map/internal/domain"
)

/********** alias registries (single source of truth) **********/

var metaAliases = map[string][]string{
	"name":        {"name", "nom", "title"},
	"structure":   {"structure", "backend.structure", "structure_id"},
	"gardien":     {"gardien", "gardienne", "keeper", "warden"},
	"description": {"description", "desc", "summary"},
	"lat":         {"lat", "latitude", "location.lat"},
	"lng":         {"lng", "lon", "longitude", "location.lng", "location.lon"},
	"altitude":    {"altitude_m", "altitude", "alt"},
	"places":      {"places", "capacity", "backend.places"},
	"urls":        {"urls", "links", "url"},
}

var availabilityAliases = map[string][]string{
	"name":         {"name", "nom", "refuge"},
	"structure":    {"structure", "structure_id"},
	"altitude":     {"altitude_m", "altitude"},
	"places":       {"places", "capacity"},
	"availability": {"availability", "availabilities", "globalAvailability"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstNonEmptyAlias: first non-empty string for a named alias set.
func firstNonEmptyAlias(m map[string]any, aliases map[string][]string, key string) string {
	for _, p := range aliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "45,9").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		if f, ok := toFloat(lookupAny(m, k)); ok {
			return &f
		}
	}
	return nil
}

// getIntFlexible: like getFloatFlexible, truncated to int. Out-of-range
// numbers count as missing.
func getIntFlexible(m map[string]any, paths ...string) *int {
	if f := getFloatFlexible(m, paths...); f != nil {
		if x, ok := toInt(*f); ok {
			return &x
		}
	}
	return nil
}

// toInt truncates f, refusing values outside the int32 range.
func toInt(f float64) (int, bool) {
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// firstSliceStrings: accept []any with either strings or {url/href}, or a single string.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		switch raw := lookupAny(m, k).(type) {
		case string:
			if s := strings.TrimSpace(raw); s != "" {
				return []string{s}
			}
		case []any:
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if s := strings.TrimSpace(t); s != "" {
						out = append(out, s)
					}
				case map[string]any:
					if u, ok := t["url"].(string); ok && u != "" {
						out = append(out, u)
						continue
					}
					if u, ok := t["href"].(string); ok && u != "" {
						out = append(out, u)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

/********** metadata mapper **********/

// MapMeta converts raw metadata records. Records without a name are kept here;
// the join decides what to do with them.
func MapMeta(in []map[string]any) []domain.RefugeMeta {
	out := make([]domain.RefugeMeta, 0, len(in))
	for _, m := range in {
		out = append(out, domain.RefugeMeta{
			Name:        firstNonEmptyAlias(m, metaAliases, "name"),
			Structure:   firstNonEmptyAlias(m, metaAliases, "structure"),
			Lat:         getFloatFlexible(m, metaAliases["lat"]...),
			Lng:         getFloatFlexible(m, metaAliases["lng"]...),
			AltitudeM:   positive(getIntFlexible(m, metaAliases["altitude"]...)),
			Places:      positive(getIntFlexible(m, metaAliases["places"]...)),
			Gardien:     firstNonEmptyAlias(m, metaAliases, "gardien"),
			Description: firstNonEmptyAlias(m, metaAliases, "description"),
			URLs:        firstSliceStrings(m, metaAliases["urls"]...),
		})
	}
	return out
}

// positive drops zero values; the datasets use 0 for "not filled in".
func positive(p *int) *int {
	if p == nil || *p <= 0 {
		return nil
	}
	return p
}

/********** availability mapper **********/

func MapAvailability(in []map[string]any) []domain.RefugeAvailability {
	out := make([]domain.RefugeAvailability, 0, len(in))
	for _, m := range in {
		ra := domain.RefugeAvailability{
			Name:         firstNonEmptyAlias(m, availabilityAliases, "name"),
			Structure:    firstNonEmptyAlias(m, availabilityAliases, "structure"),
			AltitudeM:    positive(getIntFlexible(m, availabilityAliases["altitude"]...)),
			Places:       positive(getIntFlexible(m, availabilityAliases["places"]...)),
			Availability: domain.Availability{},
		}
		if e := lookupStr(m, "error"); e != "" {
			log.Warn().Str("refuge", ra.Name).Str("error", e).Msg("availability record carries a scrape error")
		}
		for _, p := range availabilityAliases["availability"] {
			if raw, ok := lookupAny(m, p).(map[string]any); ok {
				ra.Availability = mapDates(ra.Name, raw)
				break
			}
		}
		out = append(out, ra)
	}
	return out
}

// mapDates keeps every date key; values that are not numbers become unknown.
func mapDates(name string, raw map[string]any) domain.Availability {
	out := make(domain.Availability, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		date := strings.TrimSpace(k)
		if date == "" {
			continue
		}
		v := raw[k]
		if v == nil {
			out[date] = nil
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			log.Debug().Str("refuge", name).Str("date", date).Interface("value", v).Msg("unparsable bed count")
			out[date] = nil
			continue
		}
		n, ok := toInt(f)
		if !ok {
			log.Debug().Str("refuge", name).Str("date", date).Float64("value", f).Msg("bed count out of range")
			out[date] = nil
			continue
		}
		out[date] = &n
	}
	return out
}
