// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/logging"
	"github.com/veilwatch/veilwatch/internal/monitor"
	"github.com/veilwatch/veilwatch/internal/signal"
	"github.com/veilwatch/veilwatch/internal/websocket"
)

// Handler bundles the dependencies behind the HTTP endpoints.
type Handler struct {
	detector *detect.Detector
	monitor  *monitor.Monitor
	hub      *websocket.Hub
	started  time.Time

	// callbacks are attached to every monitor start requested over the
	// API so WebSocket clients and the webhook notifier keep receiving
	// events regardless of who started the monitor.
	callbacks monitor.Callbacks
}

// NewHandler creates a Handler.
func NewHandler(detector *detect.Detector, mon *monitor.Monitor, hub *websocket.Hub, callbacks monitor.Callbacks) *Handler {
	return &Handler{
		detector:  detector,
		monitor:   mon,
		hub:       hub,
		started:   time.Now().UTC(),
		callbacks: callbacks,
	}
}

// DetectionState is the payload of GET /api/v1/detection.
type DetectionState struct {
	Detected    bool   `json:"detected"`
	WindowCount uint32 `json:"window_count"`
}

// Detection reports whether monitoring software is currently detected,
// from a fresh engine query.
func (h *Handler) Detection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	detected, windows, err := h.detector.Counters()
	if err != nil {
		logging.Err(err).Msg("detection query failed")
		rw.ServiceUnavailable("detection engine query failed")
		return
	}

	rw.Success(DetectionState{Detected: detected, WindowCount: windows})
}

// Snapshot returns a full point-in-time snapshot: raw counters,
// classification, report text, and capture timestamp.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap, err := h.detector.Acquire()
	if err != nil {
		logging.Err(err).Msg("snapshot acquisition failed")
		rw.ServiceUnavailable("detection engine query failed")
		return
	}

	rw.Success(snap)
}

// ReportPayload is the payload of GET /api/v1/detection/report.
type ReportPayload struct {
	Report string `json:"report"`
}

// Report returns the engine's human-readable detection report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	text, err := h.detector.Report()
	if err != nil {
		logging.Err(err).Msg("report query failed")
		rw.ServiceUnavailable("detection engine query failed")
		return
	}

	rw.Success(ReportPayload{Report: text})
}

// MonitorStartRequest is the optional body of POST /api/v1/monitor/start.
type MonitorStartRequest struct {
	// Interval overrides the configured poll interval, e.g. "5s".
	Interval string `json:"interval,omitempty"`
}

// MonitorStatus is the payload of monitor state endpoints.
type MonitorStatus struct {
	Running   bool   `json:"running"`
	UptimeSec int64  `json:"uptime_seconds"`
	Interval  string `json:"interval,omitempty"`
}

// MonitorStart starts the background monitor. Returns 409 if it is
// already running.
func (h *Handler) MonitorStart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	interval := time.Duration(0)
	if r.Body != nil && r.ContentLength != 0 {
		var req MonitorStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rw.BadRequest("invalid request body")
			return
		}
		if req.Interval != "" {
			d, err := time.ParseDuration(req.Interval)
			if err != nil || d <= 0 {
				rw.BadRequest("interval must be a positive duration")
				return
			}
			interval = d
		}
	}

	if err := h.monitor.Start(interval, h.callbacks); err != nil {
		if errors.Is(err, monitor.ErrAlreadyRunning) {
			rw.Conflict("monitor is already running")
			return
		}
		logging.Err(err).Msg("monitor start failed")
		rw.InternalError("failed to start monitor")
		return
	}

	rw.Success(MonitorStatus{Running: true, UptimeSec: int64(time.Since(h.started).Seconds())})
}

// MonitorStop stops the background monitor. Stopping a stopped monitor
// is a no-op.
func (h *Handler) MonitorStop(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	h.monitor.Stop()
	rw.Success(MonitorStatus{Running: false, UptimeSec: int64(time.Since(h.started).Seconds())})
}

// MonitorState reports whether the monitor loop is running.
func (h *Handler) MonitorState(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(MonitorStatus{
		Running:   h.monitor.Running(),
		UptimeSec: int64(time.Since(h.started).Seconds()),
	})
}

// MonitorLast returns the snapshot captured by the most recent successful
// poll cycle, or 404 when no cycle has completed yet.
func (h *Handler) MonitorLast(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap, ok := h.monitor.LastDetection()
	if !ok {
		rw.NotFound("no poll cycle has completed yet")
		return
	}
	rw.Success(snap)
}

// HealthLive is the liveness probe. It answers as long as the process is
// serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe. It fails while the detection engine
// cannot be queried.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if _, err := h.detector.Running(); err != nil {
		if errors.Is(err, signal.ErrEngineUnavailable) {
			rw.ServiceUnavailable("detection engine unavailable")
			return
		}
		rw.ServiceUnavailable("detection engine not ready")
		return
	}

	rw.Success(map[string]interface{}{
		"status":          "ready",
		"monitor_running": h.monitor.Running(),
		"ws_clients":      h.hub.ClientCount(),
	})
}

// WebSocket upgrades the connection and registers it with the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}
