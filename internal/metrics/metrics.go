// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package metrics provides Prometheus instrumentation for Veilwatch:
// poll cycle outcomes, detection state, callback dispatch faults, notifier
// deliveries, API traffic, and WebSocket connections.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Monitor engine metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilwatch_poll_cycles_total",
			Help: "Total number of monitor poll cycles by outcome",
		},
		[]string{"outcome"}, // "ok", "acquisition_failure"
	)

	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veilwatch_poll_cycle_duration_seconds",
			Help:    "Duration of monitor poll cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CallbackFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilwatch_callback_faults_total",
			Help: "Total number of recovered callback panics by callback slot",
		},
		[]string{"callback"}, // "on_detected", "on_removed", "on_change"
	)

	MonitorRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_monitor_running",
			Help: "Whether the monitor engine loop is running (1) or stopped (0)",
		},
	)

	// Detection state metrics
	DetectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_detection_active",
			Help: "Whether monitoring software is currently detected (1) or not (0)",
		},
	)

	DetectionSeverity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_detection_severity",
			Help: "Current detection severity tier (0=none, 1=low, 2=medium, 3=high)",
		},
	)

	MonitoringWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_monitoring_windows",
			Help: "Number of monitoring software windows currently visible",
		},
	)

	EvasionWindows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "veilwatch_evasion_windows",
			Help: "Number of windows exhibiting each evasion technique",
		},
		[]string{"technique"},
	)

	DetectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilwatch_detection_transitions_total",
			Help: "Total number of detection edge transitions by direction",
		},
		[]string{"direction"}, // "detected", "removed"
	)

	// Notifier metrics
	NotifierDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilwatch_notifier_deliveries_total",
			Help: "Total number of webhook notifier deliveries by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "breaker_open"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veilwatch_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "veilwatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket metrics
	WSConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilwatch_ws_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)
)

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the active request gauge.
func TrackActiveRequest(active bool) {
	if active {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// boolGauge converts a bool to the 0/1 gauge convention.
func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SetMonitorRunning updates the monitor lifecycle gauge.
func SetMonitorRunning(running bool) {
	MonitorRunning.Set(boolGauge(running))
}

// RecordDetectionState publishes the raw counters and severity rank of the
// latest successful poll cycle.
func RecordDetectionState(detected bool, windows, captureEvasion, elevatedLayer uint32, severityRank int) {
	DetectionState.Set(boolGauge(detected))
	DetectionSeverity.Set(float64(severityRank))
	MonitoringWindows.Set(float64(windows))
	EvasionWindows.WithLabelValues("screen_capture_evasion").Set(float64(captureEvasion))
	EvasionWindows.WithLabelValues("elevated_layer").Set(float64(elevatedLayer))
}
