// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the companion
// service: auth flow outcomes, classifier phase distribution, and completion
// backend latency. Metrics are exposed on /metrics and all operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "companion"

// Auth flow outcome label values.
const (
	FlowStarted       = "started"
	FlowAlreadyAuthed = "already_authenticated"
	FlowSucceeded     = "success"
	FlowFailed        = "failure"
	FlowSuperseded    = "superseded"
)

// CompanionMetrics holds all Prometheus metrics for the service.
type CompanionMetrics struct {
	// AuthFlowsTotal counts device-code flow events by outcome.
	// Labels: outcome (started, already_authenticated, success, failure, superseded)
	AuthFlowsTotal *prometheus.CounterVec

	// ActiveAuthFlows tracks background flows currently blocked on the
	// identity provider.
	ActiveAuthFlows prometheus.Gauge

	// CodePollsTotal counts /auth/code polls by reported status.
	// Labels: status (waiting, present, authenticated, failed)
	CodePollsTotal *prometheus.CounterVec

	// ChatClassificationsTotal counts chat turns by resolved wizard phase.
	// Labels: phase
	ChatClassificationsTotal *prometheus.CounterVec

	// BrokerRequestDurationSeconds measures completion backend round trips.
	// Labels: status (success, error)
	BrokerRequestDurationSeconds *prometheus.HistogramVec

	// SessionsLive reports the current session store size.
	SessionsLive prometheus.Gauge
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
// Call sites treat nil as "metrics disabled".
var DefaultMetrics *CompanionMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; calling twice panics on duplicate registration.
func InitMetrics() *CompanionMetrics {
	DefaultMetrics = &CompanionMetrics{
		AuthFlowsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "auth_flows_total",
				Help:      "Device-code auth flow events by outcome",
			},
			[]string{"outcome"},
		),

		ActiveAuthFlows: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_auth_flows",
				Help:      "Background device-code flows currently in progress",
			},
		),

		CodePollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "code_polls_total",
				Help:      "Device code polls by reported status",
			},
			[]string{"status"},
		),

		ChatClassificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chat_classifications_total",
				Help:      "Chat turns by resolved wizard phase",
			},
			[]string{"phase"},
		),

		BrokerRequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "broker_request_duration_seconds",
				Help:      "Completion backend round-trip duration",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),

		SessionsLive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions_live",
				Help:      "Sessions currently held in the store",
			},
		),
	}

	return DefaultMetrics
}

// CountAuthFlow records one auth flow event. Safe to call before
// InitMetrics; it no-ops when metrics are disabled.
func CountAuthFlow(outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.AuthFlowsTotal.WithLabelValues(outcome).Inc()
	}
}

// TrackActiveFlow adjusts the active flow gauge by delta.
func TrackActiveFlow(delta float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.ActiveAuthFlows.Add(delta)
	}
}

// CountCodePoll records one /auth/code poll result.
func CountCodePoll(status string) {
	if DefaultMetrics != nil {
		DefaultMetrics.CodePollsTotal.WithLabelValues(status).Inc()
	}
}

// CountClassification records one resolved wizard phase.
func CountClassification(phase string) {
	if DefaultMetrics != nil {
		DefaultMetrics.ChatClassificationsTotal.WithLabelValues(phase).Inc()
	}
}

// ObserveBrokerRequest records one completion backend round trip.
func ObserveBrokerRequest(status string, seconds float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.BrokerRequestDurationSeconds.WithLabelValues(status).Observe(seconds)
	}
}

// SetSessionsLive publishes the current store size.
func SetSessionsLive(n int) {
	if DefaultMetrics != nil {
		DefaultMetrics.SessionsLive.Set(float64(n))
	}
}
