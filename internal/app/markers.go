package app

import "refuge_map/internal/domain"

// Markers returns one marker per located refuge, whatever the viewport,
// with icon state and popup for date.
func Markers(ds *domain.Dataset, date string) []domain.Marker {
	out := make([]domain.Marker, 0, len(ds.Refuges))
	for _, r := range ds.Refuges {
		if !r.Located() {
			continue
		}
		v := r.AvailableOn(date)
		out = append(out, domain.Marker{
			Key:   r.Key,
			Lat:   *r.Lat,
			Lng:   *r.Lng,
			State: MarkerStateFor(v),
			Popup: PopupHTML(r.Name, date, v),
		})
	}
	return out
}
