// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chat
// service: turn counters by phase and status, token usage, retrieval
// cascade outcomes, and turn latency.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "medassist"

const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for chat turn processing.
//
// # Fields
//
//   - TurnsTotal: Counter of processed turns by phase and status
//   - TokensTotal: Counter of upstream tokens consumed by phase
//   - RetrievalStrategyTotal: Counter of retrieval cascade outcomes
//   - TurnDurationSeconds: Histogram of end-to-end turn latency
//   - ActiveTurns: Gauge of turns currently in flight
type ChatMetrics struct {
	// TurnsTotal counts turns by phase and status.
	// Labels: phase (collection, qa), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// TokensTotal counts upstream tokens consumed per phase.
	// Labels: phase (collection, qa)
	TokensTotal *prometheus.CounterVec

	// RetrievalStrategyTotal counts which cascade stage produced the
	// final retrieval result.
	// Labels: strategy (planned, relaxed, global)
	RetrievalStrategyTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: phase (collection, qa)
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveTurns tracks turns currently being processed.
	ActiveTurns prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics initializes and registers the default metrics instance.
// Call once at application startup.
func InitMetrics() *ChatMetrics {
	if DefaultMetrics != nil {
		return DefaultMetrics
	}
	DefaultMetrics = NewChatMetrics(nil)
	return DefaultMetrics
}

// NewChatMetrics creates a ChatMetrics instance registered with the
// given registerer. A nil registerer uses the default Prometheus
// registry. Tests pass their own registry to avoid duplicate
// registration panics.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &ChatMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total chat turns processed, by phase and status.",
			},
			[]string{"phase", "status"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "tokens_total",
				Help:      "Total upstream tokens consumed, by phase.",
			},
			[]string{"phase"},
		),
		RetrievalStrategyTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "retrieval_strategy_total",
				Help:      "Retrieval cascade outcomes, by final strategy.",
			},
			[]string{"strategy"},
		),
		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end chat turn latency in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"phase"},
		),
		ActiveTurns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_turns",
				Help:      "Chat turns currently being processed.",
			},
		),
	}
}

// RecordTurn records the outcome of one processed turn.
func (m *ChatMetrics) RecordTurn(phase, status string, durationSeconds float64, tokensUsed int) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(phase, status).Inc()
	m.TurnDurationSeconds.WithLabelValues(phase).Observe(durationSeconds)
	if tokensUsed > 0 {
		m.TokensTotal.WithLabelValues(phase).Add(float64(tokensUsed))
	}
}

// RecordRetrievalStrategy records which cascade stage served a QA turn.
func (m *ChatMetrics) RecordRetrievalStrategy(strategy string) {
	if m == nil || strategy == "" {
		return
	}
	m.RetrievalStrategyTotal.WithLabelValues(strategy).Inc()
}
