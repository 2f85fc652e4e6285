// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the UI service.
//
// Metrics cover the chat stream lifecycle (requests, active streams,
// fragments, terminations, durations, errors) and the document download
// endpoint. They are exposed on /metrics for Prometheus scraping.
//
// All operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "gptrag"
	chatSubsystem    = "chat"
)

// Metrics holds all Prometheus metrics for the UI service.
// Initialize once at startup via InitMetrics.
type Metrics struct {
	// RequestsTotal counts chat requests.
	// Labels: endpoint (sse, websocket), status (success, error, denied)
	RequestsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open chat streams.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// FragmentsTotal counts orchestrator fragments processed.
	FragmentsTotal prometheus.Counter

	// TerminationsTotal counts streams ended by the sentinel (as
	// opposed to source exhaustion or error).
	TerminationsTotal prometheus.Counter

	// StreamDurationSeconds measures full stream duration.
	// Labels: endpoint, status
	StreamDurationSeconds *prometheus.HistogramVec

	// ErrorsTotal counts stream failures by kind.
	// Labels: endpoint, kind (open, source, sink, close)
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts SSE keepalive comments sent.
	KeepAlivesTotal prometheus.Counter

	// DownloadsTotal counts document downloads.
	// Labels: status (success, not_found, error)
	DownloadsTotal *prometheus.CounterVec
}

// Default is the process-wide metrics instance, set by InitMetrics.
var Default *Metrics

// InitMetrics creates and registers all metrics. Call once at startup.
func InitMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "requests_total",
			Help:      "Chat requests by endpoint and outcome.",
		}, []string{"endpoint", "status"}),

		ActiveStreams: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_streams",
			Help:      "Currently open chat streams.",
		}, []string{"endpoint"}),

		FragmentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "fragments_total",
			Help:      "Orchestrator fragments processed.",
		}),

		TerminationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "terminations_total",
			Help:      "Streams ended by the end-of-turn sentinel.",
		}),

		StreamDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total chat stream duration.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint", "status"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "errors_total",
			Help:      "Stream failures by kind.",
		}, []string{"endpoint", "kind"}),

		KeepAlivesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "keepalives_total",
			Help:      "SSE keepalive comments sent.",
		}),

		DownloadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "downloads",
			Name:      "total",
			Help:      "Document downloads by outcome.",
		}, []string{"status"}),
	}

	Default = m
	return m
}
