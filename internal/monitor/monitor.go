// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/logging"
	"github.com/veilwatch/veilwatch/internal/metrics"
)

// ErrAlreadyRunning is returned by Start when the monitor is running.
// The engine state is unchanged: it keeps running with its original
// interval and callbacks.
var ErrAlreadyRunning = errors.New("monitor is already running")

const (
	// DefaultInterval is the poll interval used when Start receives a
	// non-positive one.
	DefaultInterval = 10 * time.Second

	// DefaultStopTimeout bounds how long Stop waits for the poll loop to
	// exit. The loop still self-terminates at its next checkpoint if the
	// bound expires; no resources are leaked.
	DefaultStopTimeout = 5 * time.Second
)

// Acquirer yields one fresh Snapshot per call.
// Satisfied by *detect.Detector.
type Acquirer interface {
	Acquire() (detect.Snapshot, error)
}

// Callbacks is the closed set of callback slots dispatched by the poll
// loop. Any slot may be nil (no-op). Callbacks are immutable for the
// lifetime of a Start..Stop session; re-registering requires a restart.
type Callbacks struct {
	// OnDetected fires when monitoring software appears: on the first
	// successful cycle if it is already present, and on every
	// absent-to-present transition after that.
	OnDetected func(detect.Snapshot)

	// OnRemoved fires on every present-to-absent transition. It carries no
	// snapshot; the triggering snapshot observed nothing.
	OnRemoved func()

	// OnChange fires on every successful cycle, transition or not.
	OnChange func(detect.Snapshot)
}

// Monitor runs the background poll loop: acquire a snapshot, classify edge
// transitions against the previous one, dispatch callbacks, retain the new
// snapshot. One dedicated goroutine per running monitor; cycles are
// strictly sequential.
type Monitor struct {
	source      Acquirer
	stopTimeout time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	last     detect.Snapshot
	hasLast  bool
	interval time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithStopTimeout overrides the bounded wait used by Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// New creates a stopped Monitor over the given snapshot source.
func New(source Acquirer, opts ...Option) *Monitor {
	m := &Monitor{
		source:      source,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start transitions the monitor from Stopped to Running and launches the
// poll loop with the given interval and callbacks. The interval is a lower
// bound between cycle starts. Calling Start on a running monitor returns
// ErrAlreadyRunning and changes nothing.
func (m *Monitor) Start(interval time.Duration, cb Callbacks) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	m.running = true
	m.interval = interval
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.loop(m.stopCh, m.doneCh, interval, cb)

	metrics.SetMonitorRunning(true)
	logging.Info().Dur("interval", interval).Msg("monitor started")
	return nil
}

// Stop signals the poll loop to terminate and blocks until it has exited,
// up to the configured bound. Stopping a stopped monitor is a no-op. A
// cycle in flight completes its current step and fires its callbacks; no
// further cycle begins.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(m.stopTimeout):
		logging.Warn().Dur("timeout", m.stopTimeout).Msg("monitor loop did not exit within stop timeout")
	}

	metrics.SetMonitorRunning(false)
	logging.Info().Msg("monitor stopped")
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastDetection returns the most recent retained snapshot without blocking
// on the poll loop. The second return is false until the first successful
// cycle completes.
func (m *Monitor) LastDetection() (detect.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.hasLast
}

// loop is the background execution context. It exits only via stopCh and
// signals exit by closing doneCh. Cancellation is checked before each
// cycle and again while sleeping, so a Stop during the sleep ends the loop
// without one more poll.
func (m *Monitor) loop(stopCh, doneCh chan struct{}, interval time.Duration, cb Callbacks) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		m.cycle(cb)

		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// cycle runs one poll: acquire, compare, dispatch, retain. An acquisition
// failure abandons the cycle: it is logged as a diagnostic, the retained
// snapshot is untouched, and no callback fires.
func (m *Monitor) cycle(cb Callbacks) {
	start := time.Now()

	snap, err := m.source.Acquire()
	if err != nil {
		metrics.PollCycles.WithLabelValues("acquisition_failure").Inc()
		logging.Warn().Err(err).Msg("poll cycle failed, keeping last snapshot")
		return
	}

	m.mu.Lock()
	prev, hadPrev := m.last, m.hasLast
	m.mu.Unlock()

	// Edge-trigger dispatch against the previous state, before the new
	// snapshot replaces it.
	switch {
	case !hadPrev && snap.Detected():
		m.fireDetected(cb, snap)
	case hadPrev && !prev.Detected() && snap.Detected():
		m.fireDetected(cb, snap)
	case hadPrev && prev.Detected() && !snap.Detected():
		m.fireRemoved(cb)
	}

	if cb.OnChange != nil {
		dispatch("on_change", func() { cb.OnChange(snap) })
	}

	m.mu.Lock()
	m.last = snap
	m.hasLast = true
	m.mu.Unlock()

	metrics.PollCycles.WithLabelValues("ok").Inc()
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	metrics.RecordDetectionState(
		snap.Signal.IsDetected,
		snap.Signal.WindowCount,
		snap.Signal.ScreenCaptureEvasionCount,
		snap.Signal.ElevatedLayerCount,
		snap.Assessment.Severity.Rank(),
	)
}

func (m *Monitor) fireDetected(cb Callbacks, snap detect.Snapshot) {
	metrics.DetectionTransitions.WithLabelValues("detected").Inc()
	logging.Info().
		Str("severity", string(snap.Assessment.Severity)).
		Uint32("windows", snap.Signal.WindowCount).
		Msg("monitoring software detected")
	if cb.OnDetected != nil {
		dispatch("on_detected", func() { cb.OnDetected(snap) })
	}
}

func (m *Monitor) fireRemoved(cb Callbacks) {
	metrics.DetectionTransitions.WithLabelValues("removed").Inc()
	logging.Info().Msg("monitoring software removed")
	if cb.OnRemoved != nil {
		dispatch("on_removed", cb.OnRemoved)
	}
}

// dispatch is the fault boundary around one callback invocation. A panic
// in a callback is recovered and logged; it never aborts the poll loop or
// the remaining callbacks of the cycle.
func dispatch(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CallbackFaults.WithLabelValues(name).Inc()
			logging.Error().Str("callback", name).Interface("panic", r).Msg("callback fault recovered")
		}
	}()
	fn()
}
