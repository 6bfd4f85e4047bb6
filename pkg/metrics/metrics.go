// Package metrics holds the instrumentation points of the service: request
// durations on the query API, store query durations, and osu! API call
// durations on the fetcher side.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "score_rank_api_request_duration_histogram",
		Help: "Histogram of HTTP request durations in seconds",
	}, []string{"method", "route", "status_code", "origin", "mode"})

	storeQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "score_rank_api_db_query_duration_histogram",
		Help: "Histogram of store query durations in seconds",
	}, []string{"query"})

	sourceRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "score_rankings_fetcher_osu_api_request_duration_histogram",
		Help: "Histogram of osu api request durations in seconds",
	}, []string{"mode", "status_code"})
)

// ObserveRequest records the duration of one handled API request.
func ObserveRequest(d time.Duration, method, route, statusCode, origin, mode string) {
	requestDuration.WithLabelValues(method, route, statusCode, origin, mode).Observe(d.Seconds())
}

// ObserveStoreQuery records the duration of one leaderboard or tracker store call.
func ObserveStoreQuery(d time.Duration, query string) {
	storeQueryDuration.WithLabelValues(query).Observe(d.Seconds())
}

// ObserveSourceRequest records the duration of one call to the external
// ranking source.
func ObserveSourceRequest(d time.Duration, mode, statusCode string) {
	sourceRequestDuration.WithLabelValues(mode, statusCode).Observe(d.Seconds())
}

// Server returns an HTTP server exposing /metrics on addr. The caller owns
// its lifecycle.
func Server(addr string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: m}
}
