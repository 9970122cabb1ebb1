package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	server "refuge_map/internal/adapters/http_server"
	"refuge_map/internal/app"
	"refuge_map/internal/domain"
)

func pint(i int) *int           { return &i }
func pfloat(f float64) *float64 { return &f }

type staticSource struct{ ds *domain.Dataset }

func (s staticSource) Snapshot(ctx context.Context) (*domain.Dataset, error) { return s.ds, nil }

func testDataset() *domain.Dataset {
	refuges := []domain.Refuge{
		{Key: "refugeduglacier", Name: "Refuge du Glacier", Lat: pfloat(45.9), Lng: pfloat(6.9),
			AltitudeM: pint(2450), Places: pint(40), Gardien: "Marie", URLs: []string{"https://example.org/glacier"},
			Availability: domain.Availability{"2025-08-13": pint(5)}},
		{Key: "refugedulac", Name: "Refuge du Lac", Lat: pfloat(45.1), Lng: pfloat(6.1),
			Availability: domain.Availability{"2025-08-13": pint(0)}},
		{Key: "bad", Name: "<b>Bad</b>", Lat: pfloat(44.0), Lng: pfloat(5.0),
			URLs: []string{"javascript:alert(1)"}, Availability: domain.Availability{}},
	}
	return app.BuildDataset(refuges, domain.JoinStats{Matched: 3}, nil, time.Now())
}

func newTestServer(t *testing.T, loaded bool) *httptest.Server {
	t.Helper()
	v := app.NewViewService(staticSource{ds: testDataset()}, nil, time.Minute, nil)
	if loaded {
		if err := v.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	srv := server.New()
	srv.MountHandlers(&server.Handlers{V: v})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, b
}

func TestView_OK_AndETag(t *testing.T) {
	ts := newTestServer(t, true)

	res, body := get(t, ts.URL+"/v1/view?date=2025-08-13&bbox=6.5,45.5,7,46&focus=refugeduglacier", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, body)
	}
	var v domain.View
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Date != "2025-08-13" || v.Rows.Total != 1 || v.Rows.Items[0].Key != "refugeduglacier" {
		t.Fatalf("unexpected rows: %+v", v.Rows)
	}
	if len(v.Markers) != 3 {
		t.Fatalf("markers cover every located refuge, got %d", len(v.Markers))
	}
	if v.Info == nil || v.Info.Gardien != "Marie" || v.Info.Available != "5" {
		t.Fatalf("unexpected info: %+v", v.Info)
	}

	etag := res.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	res2, _ := get(t, ts.URL+"/v1/view?date=2025-08-13&bbox=6.5,45.5,7,46&focus=refugeduglacier", map[string]string{"If-None-Match": etag})
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res2.StatusCode)
	}
}

func TestView_BadRequests(t *testing.T) {
	ts := newTestServer(t, true)
	for _, q := range []string{
		"bbox=1,2,3",
		"bbox=a,b,c,d",
		"bbox=6,46,7,45",
		"bbox=NaN,45,7,46",
		"bbox=6,45,Inf,46",
		"date=13/08/2025",
		"sort=gardien",
		"size=0",
		"size=1000",
	} {
		res, body := get(t, ts.URL+"/v1/view?"+q, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", q, res.StatusCode, body)
		}
		if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: content-type %q", q, ct)
		}
	}
}

func TestView_WorldZoomBBox(t *testing.T) {
	ts := newTestServer(t, true)
	for _, tc := range []struct {
		bbox  string
		total int
	}{
		// Leaflet at zoom 0 reports longitudes well past the antimeridian
		{"-253.12500,-79.00000,253.12500,85.00000", 3},
		// panned one world east: 366..367 is 6..7
		{"366,45,367,46", 2},
		// crossing the antimeridian from the Pacific side
		{"170,-50,200,-30", 0},
		{"170,44,366,46", 2},
	} {
		res, body := get(t, ts.URL+"/v1/view?date=2025-08-13&bbox="+tc.bbox, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d: %s", tc.bbox, res.StatusCode, body)
		}
		var v domain.View
		if err := json.Unmarshal(body, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v.Rows.Total != tc.total {
			t.Fatalf("%s: rows=%d want %d", tc.bbox, v.Rows.Total, tc.total)
		}
	}
}

func TestNotLoaded_Returns503(t *testing.T) {
	ts := newTestServer(t, false)
	for _, p := range []string{"/v1/view", "/v1/refuges", "/v1/refuges/refugeduglacier"} {
		res, _ := get(t, ts.URL+p, nil)
		if res.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", p, res.StatusCode)
		}
	}
	// the page itself is served regardless
	res, _ := get(t, ts.URL+"/", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("index: %d", res.StatusCode)
	}
}

func TestRefuges_ListAndGet(t *testing.T) {
	ts := newTestServer(t, true)

	res, body := get(t, ts.URL+"/v1/refuges", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var list struct {
		Version string           `json:"version"`
		Stats   domain.JoinStats `json:"stats"`
		Items   []domain.Refuge  `json:"items"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Version == "" || len(list.Items) != 3 || list.Stats.Matched != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}

	res, body = get(t, ts.URL+"/v1/refuges/refugedulac?date=2025-08-13", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var info domain.Info
	_ = json.Unmarshal(body, &info)
	if info.Altitude != "?" || info.Capacity != "?" || info.Gardien != "Non renseigné" || info.Available != "0" {
		t.Fatalf("unexpected placeholders: %+v", info)
	}

	res, _ = get(t, ts.URL+"/v1/refuges/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
}

func TestPanel_EscapesContent(t *testing.T) {
	ts := newTestServer(t, true)
	res, body := get(t, ts.URL+"/v1/refuges/bad/panel?date=2025-08-13", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	html := string(body)
	if strings.Contains(html, "<b>Bad</b>") || !strings.Contains(html, "&lt;b&gt;Bad&lt;/b&gt;") {
		t.Fatalf("name not escaped: %s", html)
	}
	if strings.Contains(html, "javascript:") {
		t.Fatalf("unsafe url rendered: %s", html)
	}
	if !strings.Contains(html, `rel="noopener noreferrer"`) {
		t.Fatalf("missing link attributes: %s", html)
	}
}

func TestIndex_And_Healthz(t *testing.T) {
	ts := newTestServer(t, true)
	res, body := get(t, ts.URL+"/", nil)
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("index: %d %s", res.StatusCode, res.Header.Get("Content-Type"))
	}
	for _, want := range []string{`id="map"`, `id="refuge-table"`, `id="info-panel"`, `/v1/view`,
		// markers of refuges that left the snapshot are dropped
		`map.removeLayer(markers[k])`, `delete markers[k]`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("index missing %s", want)
		}
	}

	res, body = get(t, ts.URL+"/healthz", nil)
	if res.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: %d %q", res.StatusCode, body)
	}
}
