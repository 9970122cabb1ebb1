package datasets_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"refuge_map/internal/adapters/datasets"
)

func TestClient_FetchMeta_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(503)
		default:
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`[{"name":"Refuge A","lat":45.1,"lng":6.2}]`))
		}
	}))
	defer ts.Close()

	cl, err := datasets.New(ts.URL+"/refuges.json", ts.URL+"/refuge_availabilities.json", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.FetchMeta(ctx)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0]["name"] != "Refuge A" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_FetchAvailability_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := datasets.New(ts.URL+"/a.json", ts.URL+"/b.json", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = cl.FetchAvailability(ctx)
	if !errors.Is(err, datasets.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_LocalFiles(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "refuges.json")
	avail := filepath.Join(dir, "refuge_availabilities.json")
	if err := os.WriteFile(meta, []byte(`[{"name":"Refuge A"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(avail, []byte(`{"BK_STRUCTURE:2":{"name":"Refuge B"},"BK_STRUCTURE:1":{"name":"Refuge A","structure":"own"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cl, err := datasets.New("file://"+meta, avail, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	m, err := cl.FetchMeta(context.Background())
	if err != nil || len(m) != 1 {
		t.Fatalf("meta: %v %v", m, err)
	}
	a, err := cl.FetchAvailability(context.Background())
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if len(a) != 2 || a[0]["structure"] != "own" || a[1]["structure"] != "BK_STRUCTURE:2" {
		t.Fatalf("keyed records not normalized: %+v", a)
	}

	missing, _ := datasets.New(filepath.Join(dir, "nope.json"), avail, 0)
	if _, err := missing.FetchMeta(context.Background()); !errors.Is(err, datasets.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecodeRecords_BadShape(t *testing.T) {
	for _, in := range []string{`42`, `"x"`, `{`} {
		if _, err := datasets.DecodeRecords([]byte(in)); !errors.Is(err, datasets.ErrBadFormat) {
			t.Errorf("DecodeRecords(%s): expected ErrBadFormat, got %v", in, err)
		}
	}
}

func TestNew_RequiresBothLocations(t *testing.T) {
	if _, err := datasets.New("", "b.json", 1); err == nil {
		t.Fatalf("expected error")
	}
}
