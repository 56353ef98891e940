// Package metrics provides Prometheus metrics for the identity service.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bitespeed"

var (
	// IdentifyTotal counts reconciliations by outcome (created, linked, merged, unchanged, error kinds)
	IdentifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "identify_total",
			Help:      "Total number of identify requests by outcome",
		},
		[]string{"outcome"},
	)

	// IdentifyDuration tracks end to end reconciliation time including retries
	IdentifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "identify_duration_seconds",
			Help:      "Duration of identify requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	ConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "conflicts_total",
			Help:      "Concurrent write conflicts detected, by operation",
		},
		[]string{"operation"},
	)

	DemotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "demotions_total",
			Help:      "Primary contacts demoted to secondary during merges",
		},
	)

	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "deletions_total",
			Help:      "Soft deleted contacts, by link precedence",
		},
		[]string{"link_precedence"},
	)

	// FanoutFailuresTotal counts post-commit publish failures per sink (kafka, graph)
	FanoutFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "failures_total",
			Help:      "Post-commit event or projection failures by sink",
		},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

func RecordIdentify(outcome string, duration time.Duration) {
	IdentifyTotal.WithLabelValues(outcome).Inc()
	IdentifyDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordConflict(operation string) {
	ConflictsTotal.WithLabelValues(operation).Inc()
}

func RecordDemotions(n int) {
	DemotionsTotal.Add(float64(n))
}

func RecordDeletion(precedence string) {
	DeletionsTotal.WithLabelValues(precedence).Inc()
}

func RecordFanoutFailure(sink string) {
	FanoutFailuresTotal.WithLabelValues(sink).Inc()
}

// Middleware records request counts and latency per route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Response().Status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
