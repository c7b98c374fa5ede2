// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package services

import (
	"context"
	"errors"
	"time"

	"github.com/veilwatch/veilwatch/internal/monitor"
)

// MonitorService runs the detection monitor under supervision. Starting the
// loop when the service comes up and stopping it when the context ends.
//
// If the monitor was already started through the API the start call reports
// ErrAlreadyRunning; the service then only tracks shutdown and leaves the
// running loop alone.
type MonitorService struct {
	monitor   *monitor.Monitor
	interval  time.Duration
	callbacks monitor.Callbacks
	ownsLoop  bool
}

// NewMonitorService creates a supervised wrapper around the monitor.
func NewMonitorService(mon *monitor.Monitor, interval time.Duration, callbacks monitor.Callbacks) *MonitorService {
	return &MonitorService{
		monitor:   mon,
		interval:  interval,
		callbacks: callbacks,
	}
}

// Serve implements suture.Service.
func (m *MonitorService) Serve(ctx context.Context) error {
	err := m.monitor.Start(m.interval, m.callbacks)
	switch {
	case err == nil:
		m.ownsLoop = true
	case errors.Is(err, monitor.ErrAlreadyRunning):
		m.ownsLoop = false
	default:
		return err
	}

	<-ctx.Done()
	if m.ownsLoop {
		m.monitor.Stop()
	}
	return ctx.Err()
}

// String identifies the service in supervisor log messages.
func (m *MonitorService) String() string {
	return "detection-monitor"
}
