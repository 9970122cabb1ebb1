package domain

import "time"

// JoinStats counts how records were paired by the join.
type JoinStats struct {
	Matched          int `json:"matched"`
	AvailabilityOnly int `json:"availability_only"`
	MetaOnly         int `json:"meta_only"`
	SkippedMeta      int `json:"skipped_meta"`
}

// JoinMiss describes one record the join could not pair.
type JoinMiss struct {
	Key    string
	Name   string
	Reason string // availability_only | meta_only | duplicate_name | empty_name
}

// Dataset is an immutable snapshot of the merged refuges.
type Dataset struct {
	Version  string
	LoadedAt time.Time
	Refuges  []Refuge
	Stats    JoinStats
	Misses   []JoinMiss
	byKey    map[string]int
}

func NewDataset(version string, loadedAt time.Time, refuges []Refuge, stats JoinStats, misses []JoinMiss) *Dataset {
	idx := make(map[string]int, len(refuges))
	for i, r := range refuges {
		if _, dup := idx[r.Key]; !dup {
			idx[r.Key] = i
		}
	}
	return &Dataset{Version: version, LoadedAt: loadedAt, Refuges: refuges, Stats: stats, Misses: misses, byKey: idx}
}

func (d *Dataset) Lookup(key string) (Refuge, bool) {
	i, ok := d.byKey[key]
	if !ok {
		return Refuge{}, false
	}
	return d.Refuges[i], true
}

// ViewQuery is the state the page sends on every pan or date change.
type ViewQuery struct {
	Date   string
	Bounds *Bounds // nil means the whole dataset
	Focus  string  // refuge key selected by a row or marker click
	Q      string  // name header filter
	Sort   string  // column, "-" prefix for descending
	Page   int
	Size   int
}

// Cell is a formatted table cell.
type Cell struct {
	Text  string `json:"text"`
	Class string `json:"class"` // available | unavailable | unknown
}

type Row struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	Structure       string  `json:"structure,omitempty"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	AltitudeM       *int    `json:"altitude_m"`
	Places          *int    `json:"places"`
	AvailablePlaces *int    `json:"available_places"`
	Available       Cell    `json:"available"`
}

type RowsPage struct {
	Items []Row `json:"items"`
	Total int   `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// MarkerState drives the marker icon.
type MarkerState string

const (
	MarkerAvailable   MarkerState = "available"
	MarkerUnavailable MarkerState = "unavailable"
)

type Marker struct {
	Key   string      `json:"key"`
	Lat   float64     `json:"lat"`
	Lng   float64     `json:"lng"`
	State MarkerState `json:"state"`
	Popup string      `json:"popup"` // HTML, already escaped
}

// Info is the content of the side panel for one refuge.
type Info struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Date        string   `json:"date"`
	Altitude    string   `json:"altitude"`
	Capacity    string   `json:"capacity"`
	Gardien     string   `json:"gardien"`
	Available   string   `json:"available"`
	Description string   `json:"description,omitempty"`
	URLs        []string `json:"urls"`
}

// View is what the table and the map render for one query.
type View struct {
	Date    string   `json:"date"`
	Version string   `json:"version"`
	Rows    RowsPage `json:"rows"`
	Markers []Marker `json:"markers"`
	Info    *Info    `json:"info,omitempty"`
}
