// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escape_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 15},
		},
		[]string{"method", "path"},
	)

	// Persona model calls
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_llm_requests_total",
			Help: "Total persona model calls by outcome",
		},
		[]string{"provider", "outcome"}, // ok, error, timeout, unavailable
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escape_llm_request_duration_seconds",
			Help:    "Time the caller waited for a persona reply",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"provider"},
	)

	// Game metrics
	ChatTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_chat_turns_total",
			Help: "Total chat exchanges per room",
		},
		[]string{"room"},
	)

	RoomUnlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_room_unlocks_total",
			Help: "Total times a room became reachable",
		},
		[]string{"room"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_submissions_total",
			Help: "Total final submissions by result",
		},
		[]string{"result"}, // escaped, rejected
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escape_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	ActiveSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escape_active_sockets",
			Help: "Open chat websocket connections",
		},
	)
)

// Outcome labels for LLMRequests.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
)
