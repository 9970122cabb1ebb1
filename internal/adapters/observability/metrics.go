package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "refuges", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refuges", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "refuges", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "refuges", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "refuges", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	DatasetRefuges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "refuges", Name: "dataset_refuges", Help: "Dataset records by join outcome."},
		[]string{"outcome"}, // matched|availability_only|meta_only|skipped_meta
	)
	DatasetLoadedAt = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "refuges", Name: "dataset_loaded_timestamp_seconds", Help: "Unix time of the last successful load."},
	)
	DatasetLoadErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "refuges", Name: "dataset_load_errors_total", Help: "Failed dataset loads."},
	)
)

// Serve starts a standalone metrics listener on addr; an empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		DatasetRefuges, DatasetLoadedAt, DatasetLoadErrors)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

// ObserveDatasetLoad records the join outcome counts of a successful load.
func ObserveDatasetLoad(matched, availabilityOnly, metaOnly, skipped int, at time.Time) {
	DatasetRefuges.WithLabelValues("matched").Set(float64(matched))
	DatasetRefuges.WithLabelValues("availability_only").Set(float64(availabilityOnly))
	DatasetRefuges.WithLabelValues("meta_only").Set(float64(metaOnly))
	DatasetRefuges.WithLabelValues("skipped_meta").Set(float64(skipped))
	DatasetLoadedAt.Set(float64(at.Unix()))
}

func ObserveDatasetError() { DatasetLoadErrors.Inc() }
