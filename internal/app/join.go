package app

import (
	"fmt"

	"refuge_map/internal/domain"
)

type JoinResult struct {
	Refuges []domain.Refuge
	Stats   domain.JoinStats
	Misses  []domain.JoinMiss
}

// Join merges availability records with metadata. Every availability record
// yields one refuge, matched or not. Metadata records left unpaired produce no
// refuge; each one is counted and reported as a miss.
// A shared structure id wins over the name key. On duplicate keys the last
// metadata record wins and the earlier ones are reported as duplicate_name.
func Join(meta []domain.RefugeMeta, avail []domain.RefugeAvailability) JoinResult {
	var res JoinResult

	byName := make(map[string]int, len(meta))
	byStructure := make(map[string]int, len(meta))
	for i, m := range meta {
		k := NormalizeName(m.Name)
		if k == "" {
			res.Stats.SkippedMeta++
			res.Misses = append(res.Misses, domain.JoinMiss{Name: m.Name, Reason: "empty_name"})
			continue
		}
		byName[k] = i
		if m.Structure != "" {
			byStructure[m.Structure] = i
		}
	}

	used := make([]bool, len(meta))
	seen := make(map[string]int, len(avail)+len(meta))
	res.Refuges = make([]domain.Refuge, 0, len(avail)+len(meta))

	for i, a := range avail {
		key := NormalizeName(a.Name)
		idx, ok := -1, false
		if a.Structure != "" {
			idx, ok = byStructure[a.Structure]
		}
		if !ok && key != "" {
			idx, ok = byName[key]
		}

		if key == "" {
			key = NormalizeName(a.Structure)
		}
		if key == "" {
			key = fmt.Sprintf("refuge%d", i+1)
		}

		r := domain.Refuge{
			Name:         a.Name,
			Structure:    a.Structure,
			AltitudeM:    a.AltitudeM,
			Places:       a.Places,
			URLs:         []string{},
			Availability: a.Availability,
		}
		if r.Availability == nil {
			r.Availability = domain.Availability{}
		}
		if ok {
			used[idx] = true
			mergeMeta(&r, meta[idx])
			res.Stats.Matched++
		} else {
			res.Stats.AvailabilityOnly++
			res.Misses = append(res.Misses, domain.JoinMiss{Key: key, Name: a.Name, Reason: "availability_only"})
		}
		r.Key = uniqueKey(seen, key)
		res.Refuges = append(res.Refuges, r)
	}

	for i, m := range meta {
		k := NormalizeName(m.Name)
		if used[i] || k == "" {
			continue
		}
		reason := "meta_only"
		if byName[k] != i {
			reason = "duplicate_name"
		}
		res.Stats.MetaOnly++
		res.Misses = append(res.Misses, domain.JoinMiss{Key: k, Name: m.Name, Reason: reason})
	}
	return res
}

// mergeMeta copies metadata over r; metadata wins for altitude and places when set.
func mergeMeta(r *domain.Refuge, m domain.RefugeMeta) {
	if r.Name == "" {
		r.Name = m.Name
	}
	if r.Structure == "" {
		r.Structure = m.Structure
	}
	r.Lat = nonZero(m.Lat)
	r.Lng = nonZero(m.Lng)
	r.Gardien = m.Gardien
	r.Description = m.Description
	if len(m.URLs) > 0 {
		r.URLs = m.URLs
	}
	if m.AltitudeM != nil {
		r.AltitudeM = m.AltitudeM
	}
	if m.Places != nil {
		r.Places = m.Places
	}
}

// nonZero treats a 0 coordinate as missing, as the datasets do.
func nonZero(p *float64) *float64 {
	if p == nil || *p == 0 {
		return nil
	}
	v := *p
	return &v
}

func uniqueKey(seen map[string]int, key string) string {
	n := seen[key]
	seen[key] = n + 1
	if n == 0 {
		return key
	}
	for {
		n++
		k := fmt.Sprintf("%s%d", key, n)
		if _, taken := seen[k]; !taken {
			seen[k] = 1
			return k
		}
	}
}
