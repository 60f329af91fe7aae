/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint, and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litecast",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "litecast",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency distribution.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "litecast",
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests.",
	})

	// SessionsActive gauges currently live broadcast sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "litecast",
		Subsystem: "stream",
		Name:      "sessions_active",
		Help:      "Currently live broadcast sessions.",
	})

	// SessionsStartedTotal counts session starts by mode.
	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litecast",
		Subsystem: "stream",
		Name:      "sessions_started_total",
		Help:      "Broadcast sessions started.",
	}, []string{"mode"})

	// SessionsEndedTotal counts session ends by reason.
	SessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litecast",
		Subsystem: "stream",
		Name:      "sessions_ended_total",
		Help:      "Broadcast sessions ended, by reason.",
	}, []string{"reason"})

	// EncodedSecondsTotal counts encoded airtime reported to quota accounting.
	EncodedSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "litecast",
		Subsystem: "stream",
		Name:      "encoded_seconds_total",
		Help:      "Total encoded airtime across all sessions.",
	})

	// QuotaExhaustionsTotal counts daily quota exhaustion events.
	QuotaExhaustionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "litecast",
		Subsystem: "quota",
		Name:      "exhaustions_total",
		Help:      "Accounts that hit their daily broadcast allowance.",
	})
)
