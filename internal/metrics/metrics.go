package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cardledger"

var (
	// RepositoryCalls counts storage calls by repository, method and status.
	RepositoryCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_calls_total",
			Help:      "Total number of repository method calls",
		},
		[]string{"repository", "method", "status"},
	)

	// RepositoryDuration observes storage call latency.
	RepositoryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_duration_seconds",
			Help:      "Duration of repository method calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"repository", "method"},
	)

	// Transfers counts transfer attempts by outcome.
	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TransferDuration observes the latency of the whole transfer unit.
	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of transfer units in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// CardTransitions counts lifecycle events by event and result.
	CardTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_transitions_total",
			Help:      "Card lifecycle events by event and result",
		},
		[]string{"event", "result"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveRepository records one repository call. Use it in a defer with the
// call's named error.
func ObserveRepository(repository, method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RepositoryCalls.WithLabelValues(repository, method, status).Inc()
	RepositoryDuration.WithLabelValues(repository, method).Observe(time.Since(start).Seconds())
}

// HTTP records request counts and latency per matched route.
func HTTP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := c.Route().Path
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
