// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package detect

import (
	"fmt"
	"time"

	"github.com/veilwatch/veilwatch/internal/signal"
)

// NoReportAvailable is the report field sentinel used when the engine
// produced no report text. Consumers always see a non-empty string.
const NoReportAvailable = "no report available"

// Detector exposes the point-in-time query surface over a signal source.
// It is stateless; every method performs fresh queries against the engine.
type Detector struct {
	source signal.Source
}

// NewDetector creates a Detector over the given source.
func NewDetector(source signal.Source) *Detector {
	return &Detector{source: source}
}

// Running reports whether monitoring software is currently detected.
func (d *Detector) Running() (bool, error) {
	sig, err := d.source.QueryDetection()
	if err != nil {
		return false, fmt.Errorf("query detection: %w", err)
	}
	return sig.IsDetected, nil
}

// Counters returns the current detected flag and window count.
func (d *Detector) Counters() (bool, uint32, error) {
	sig, err := d.source.QueryDetection()
	if err != nil {
		return false, 0, fmt.Errorf("query detection: %w", err)
	}
	return sig.IsDetected, sig.WindowCount, nil
}

// WindowCount returns the number of monitoring windows currently visible
// to the engine, via the engine's dedicated counter query.
func (d *Detector) WindowCount() (uint32, error) {
	count, err := d.source.QueryWindowCount()
	if err != nil {
		return 0, fmt.Errorf("query window count: %w", err)
	}
	return count, nil
}

// Report returns the engine's current report text, releasing the engine's
// buffer before returning. An empty engine report yields the sentinel.
func (d *Detector) Report() (string, error) {
	report, err := d.source.QueryReport()
	if err != nil {
		return "", fmt.Errorf("query report: %w", err)
	}
	defer report.Release()

	if report.Text == "" {
		return NoReportAvailable, nil
	}
	return report.Text, nil
}

// Acquire captures one Snapshot: exactly one detection query and one report
// query, classification of the result, and a UTC capture timestamp. The
// engine's report buffer is released on every exit path. No retries are
// performed; a failure here is fatal to the caller's current poll cycle
// only.
func (d *Detector) Acquire() (Snapshot, error) {
	sig, err := d.source.QueryDetection()
	if err != nil {
		return Snapshot{}, fmt.Errorf("query detection: %w", err)
	}

	report, err := d.source.QueryReport()
	if err != nil {
		return Snapshot{}, fmt.Errorf("query report: %w", err)
	}
	defer report.Release()

	text := report.Text
	if text == "" {
		text = NoReportAvailable
	}

	return Snapshot{
		Signal:     sig,
		Assessment: Classify(sig),
		Report:     text,
		Timestamp:  time.Now().UTC(),
	}, nil
}
