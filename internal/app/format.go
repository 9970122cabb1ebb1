package app

import (
	"html/template"
	"strconv"
	"time"

	"refuge_map/internal/domain"
)

const DateLayout = "2006-01-02"

// Today returns the current date in loc as YYYY-MM-DD.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", domain.ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}

// FormatAvailability renders the Available column.
func FormatAvailability(v *int) domain.Cell {
	switch {
	case v == nil:
		return domain.Cell{Text: "?", Class: "unknown"}
	case *v > 0:
		return domain.Cell{Text: strconv.Itoa(*v), Class: "available"}
	default:
		return domain.Cell{Text: "0", Class: "unavailable"}
	}
}

func orUnknown(p *int) string {
	if p == nil {
		return "?"
	}
	return strconv.Itoa(*p)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// MarkerStateFor: only a positive count is available; unknown counts as unavailable.
func MarkerStateFor(v *int) domain.MarkerState {
	if v != nil && *v > 0 {
		return domain.MarkerAvailable
	}
	return domain.MarkerUnavailable
}

// PopupHTML is the marker popup body. All inputs are escaped.
func PopupHTML(name, date string, v *int) string {
	return "<strong>" + template.HTMLEscapeString(name) + "</strong><br>Available on " +
		template.HTMLEscapeString(date) + ": " + template.HTMLEscapeString(orUnknown(v))
}

// BuildInfo fills the side panel with "?" placeholders for missing fields.
func BuildInfo(r domain.Refuge, date string) domain.Info {
	urls := r.URLs
	if urls == nil {
		urls = []string{}
	}
	return domain.Info{
		Key:         r.Key,
		Name:        r.Name,
		Date:        date,
		Altitude:    orUnknown(r.AltitudeM),
		Capacity:    orUnknown(r.Places),
		Gardien:     orDefault(r.Gardien, "Non renseigné"),
		Available:   orUnknown(r.AvailableOn(date)),
		Description: r.Description,
		URLs:        urls,
	}
}
