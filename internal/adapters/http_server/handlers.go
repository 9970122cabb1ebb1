// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"refuge_map/internal/app"
	"refuge_map/internal/domain"
)

type Handlers struct{ V *app.ViewService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/", h.index)
	s.mux.Get("/v1/view", h.view)
	s.mux.Get("/v1/refuges", h.listRefuges)
	s.mux.Get("/v1/refuges/{key}", h.getRefuge)
	s.mux.Get("/v1/refuges/{key}/panel", h.panel)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain sentinels to problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrNotLoaded):
		writeProblem(w, http.StatusServiceUnavailable, "Dataset Unavailable", "refuge data has not been loaded yet")
	case errors.Is(err, domain.ErrInvalidDate):
		writeProblem(w, http.StatusBadRequest, "Invalid date", "date must be YYYY-MM-DD")
	case errors.Is(err, domain.ErrInvalidBounds):
		writeProblem(w, http.StatusBadRequest, "Invalid bbox", "bbox must be west,south,east,north in degrees")
	case errors.Is(err, domain.ErrInvalidQuery):
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write JSON body")
	}
}

// parseBBox reads "west,south,east,north" as sent by Leaflet's toBBoxString.
func parseBBox(s string) (*domain.Bounds, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, domain.ErrInvalidBounds
	}
	var f [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.ErrInvalidBounds
		}
		f[i] = v
	}
	// world-zoom and wrapped views report longitudes past ±180
	b := domain.Bounds{West: f[0], South: f[1], East: f[2], North: f[3]}.Normalize()
	if !b.Valid() {
		return nil, domain.ErrInvalidBounds
	}
	return &b, nil
}

func parseIntParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidQuery, name)
	}
	return n, nil
}

func parseViewQuery(r *http.Request) (domain.ViewQuery, error) {
	qs := r.URL.Query()
	b, err := parseBBox(qs.Get("bbox"))
	if err != nil {
		return domain.ViewQuery{}, err
	}
	page, err := parseIntParam(r, "page")
	if err != nil {
		return domain.ViewQuery{}, err
	}
	size, err := parseIntParam(r, "size")
	if err != nil {
		return domain.ViewQuery{}, err
	}
	return domain.ViewQuery{
		Date:   qs.Get("date"),
		Bounds: b,
		Focus:  qs.Get("focus"),
		Q:      qs.Get("q"),
		Sort:   qs.Get("sort"),
		Page:   page,
		Size:   size,
	}, nil
}

func (h *Handlers) view(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.V.View(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

type refugesResponse struct {
	Version string           `json:"version"`
	Stats   domain.JoinStats `json:"stats"`
	Items   []domain.Refuge  `json:"items"`
}

func (h *Handlers) listRefuges(w http.ResponseWriter, r *http.Request) {
	ds, err := h.V.Dataset()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, refugesResponse{Version: ds.Version, Stats: ds.Stats, Items: ds.Refuges})
}

func (h *Handlers) getRefuge(w http.ResponseWriter, r *http.Request) {
	info, err := h.V.Info(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, info)
}

func (h *Handlers) panel(w http.ResponseWriter, r *http.Request) {
	info, err := h.V.Info(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := panelTmpl.Execute(w, info); err != nil {
		log.Error().Err(err).Msg("render panel failed")
	}
}

func (h *Handlers) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, indexData{Today: h.V.Today()}); err != nil {
		log.Error().Err(err).Msg("render index failed")
	}
}
