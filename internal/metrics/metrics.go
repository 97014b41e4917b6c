// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Settlement ─────────────────────────────────────────────────────────────

// SettlementTotal counts finished money operations by operation and outcome.
var SettlementTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashback",
	Subsystem: "settlement",
	Name:      "operations_total",
	Help:      "Total settlement operations by operation and outcome.",
}, []string{"operation", "outcome"})

var SettlementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "cashback",
	Subsystem: "settlement",
	Name:      "duration_seconds",
	Help:      "Settlement operation latency including retries.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

var SettlementRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashback",
	Subsystem: "settlement",
	Name:      "retries_total",
	Help:      "Transactions retried after a concurrency conflict.",
}, []string{"operation"})

var IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashback",
	Subsystem: "idempotency",
	Name:      "replays_total",
	Help:      "Requests answered from a stored idempotent result.",
}, []string{"operation"})

var CashbackCredited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "cashback",
	Subsystem: "wallet",
	Name:      "cashback_credited_total",
	Help:      "Loyalty coins credited as cashback.",
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "cashback",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route and status code.",
}, []string{"method", "route", "code"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "cashback",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ObserveSettlement records one finished operation.
func ObserveSettlement(operation, outcome string, started time.Time) {
	SettlementTotal.WithLabelValues(operation, outcome).Inc()
	SettlementDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Middleware records HTTP metrics labelled by the chi route pattern.
func Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		h.ServeHTTP(ww, r)

		// шаблон маршрута известен только после обработки
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
