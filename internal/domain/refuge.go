package domain

import "math"

// RefugeMeta is one record of the metadata dataset.
type RefugeMeta struct {
	Name        string
	Structure   string // backend booking id, e.g. BK_STRUCTURE:85
	Lat, Lng    *float64
	AltitudeM   *int
	Places      *int
	Gardien     string
	Description string
	URLs        []string
}

// Availability maps a YYYY-MM-DD date to a bed count. A nil count means unknown.
type Availability map[string]*int

type RefugeAvailability struct {
	Name         string
	Structure    string
	AltitudeM    *int
	Places       *int
	Availability Availability
}

// Refuge is the merged view of a metadata and an availability record.
type Refuge struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Structure    string       `json:"structure,omitempty"`
	Lat          *float64     `json:"lat"`
	Lng          *float64     `json:"lng"`
	AltitudeM    *int         `json:"altitude_m"`
	Places       *int         `json:"places"`
	Gardien      string       `json:"gardien"`
	Description  string       `json:"description"`
	URLs         []string     `json:"urls"`
	Availability Availability `json:"availability"`
}

// Located reports whether the refuge has both coordinates.
func (r Refuge) Located() bool { return r.Lat != nil && r.Lng != nil }

// AvailableOn returns the bed count for date, nil when unknown.
func (r Refuge) AvailableOn(date string) *int {
	if r.Availability == nil {
		return nil
	}
	return r.Availability[date]
}

// Bounds is a lat/lng rectangle. Edges are inclusive. West > East describes
// a box crossing the antimeridian.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Normalize maps bounds reported by a zoomed-out or panned map onto the globe:
// latitudes are clamped, longitudes wrapped into [-180, 180], and a span of
// 360 degrees or more covers every longitude.
func (b Bounds) Normalize() Bounds {
	b.South = math.Max(-90, math.Min(90, b.South))
	b.North = math.Max(-90, math.Min(90, b.North))
	if b.East-b.West >= 360 {
		b.West, b.East = -180, 180
		return b
	}
	b.West, b.East = wrapLng(b.West), wrapLng(b.East)
	return b
}

func wrapLng(x float64) float64 {
	if x >= -180 && x <= 180 {
		return x
	}
	x = math.Mod(x+180, 360)
	if x < 0 {
		x += 360
	}
	return x - 180
}

func (b Bounds) Valid() bool {
	for _, v := range []float64{b.South, b.West, b.North, b.East} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.South <= b.North &&
		b.South >= -90 && b.North <= 90 &&
		b.West >= -180 && b.West <= 180 && b.East >= -180 && b.East <= 180
}

func (b Bounds) Contains(lat, lng float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	if b.West <= b.East {
		return lng >= b.West && lng <= b.East
	}
	return lng >= b.West || lng <= b.East
}

// ContainsRefuge is false for refuges without coordinates.
func (b Bounds) ContainsRefuge(r Refuge) bool {
	return r.Located() && b.Contains(*r.Lat, *r.Lng)
}
