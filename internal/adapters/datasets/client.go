// internal/adapters/datasets/client.go
package datasets

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"refuge_map/internal/adapters/observability"
)

// Client reads the metadata and availability datasets from http(s) URLs or
// local paths (plain or file://).
type Client struct {
	metaURL  string
	availURL string
	hc       *http.Client
	rl       *rate.Limiter
}

func New(metaURL, availURL string, rps int) (*Client, error) {
	if metaURL == "" || availURL == "" {
		return nil, fmt.Errorf("both dataset locations are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		metaURL:  metaURL,
		availURL: availURL,
		hc:       &http.Client{Timeout: 20 * time.Second},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) FetchMeta(ctx context.Context) ([]map[string]any, error) {
	return c.fetch(ctx, "metadata", c.metaURL)
}

func (c *Client) FetchAvailability(ctx context.Context) ([]map[string]any, error) {
	return c.fetch(ctx, "availability", c.availURL)
}

// ---- Internals ----

var (
	ErrNotFound  = errors.New("datasets: not found")
	ErrBadFormat = errors.New("datasets: unexpected JSON shape")
)

func (c *Client) fetch(ctx context.Context, endpoint, loc string) ([]map[string]any, error) {
	var (
		body []byte
		err  error
	)
	if isHTTP(loc) {
		body, err = c.get(ctx, endpoint, loc)
	} else {
		body, err = readFile(loc)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	recs, err := DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return recs, nil
}

func isHTTP(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

func readFile(loc string) ([]byte, error) {
	b, err := os.ReadFile(strings.TrimPrefix(loc, "file://"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// DecodeRecords accepts a JSON array of objects, or an object keyed by
// structure id whose values are records. In the keyed form the key is copied
// into "structure" when the record has none; records come out in key order.
func DecodeRecords(b []byte) ([]map[string]any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]map[string]any, 0, len(t))
		for _, k := range keys {
			m, ok := t[k].(map[string]any)
			if !ok {
				continue
			}
			if s, _ := m["structure"].(string); s == "" {
				m["structure"] = k
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, ErrBadFormat
	}
}

// get performs a GET with client-side rate limiting and retries.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, endpoint, url string) ([]byte, error) {
	// client-side rate limiting
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "refuge-map/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("datasets", endpoint, 0, time.Since(start))
			// network error or context canceled
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr
		}

		switch resp.StatusCode {
		case http.StatusOK:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			observability.ObserveExternal("datasets", endpoint, resp.StatusCode, time.Since(start))
			return b, err

		case http.StatusNotFound:
			resp.Body.Close()
			observability.ObserveExternal("datasets", endpoint, resp.StatusCode, time.Since(start))
			return nil, ErrNotFound

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			observability.ObserveExternal("datasets", endpoint, resp.StatusCode, time.Since(start))
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, lastErr

		default:
			// read a small error body for diagnostics
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			observability.ObserveExternal("datasets", endpoint, resp.StatusCode, time.Since(start))
			return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return nil, lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff: 200ms doubling per attempt, up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
