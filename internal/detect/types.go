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

// Severity grades the intensity of a detection.
type Severity string

const (
	// SeverityNone means no monitoring software was detected.
	SeverityNone Severity = "none"

	// SeverityLow means monitoring windows are present but use no evasion.
	SeverityLow Severity = "low"

	// SeverityMedium means exactly one evasion technique is in use.
	SeverityMedium Severity = "medium"

	// SeverityHigh means both recognized evasion techniques are in use.
	SeverityHigh Severity = "high"
)

// Rank returns the severity as an ordinal (0-3) for metrics gauges.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// TechniqueName identifies a recognized evasion technique.
type TechniqueName string

// The recognized techniques. This enumeration is closed: a third signal
// requires extending the classifier here, not at call sites.
const (
	TechniqueScreenCaptureEvasion TechniqueName = "screen_capture_evasion"
	TechniqueElevatedLayer        TechniqueName = "elevated_layer"
)

// Technique describes one observed evasion technique and how many windows
// exhibit it.
type Technique struct {
	Name        TechniqueName `json:"name"`
	WindowCount uint32        `json:"window_count"`
}

// String renders the technique the way the engine's reports describe it.
func (t Technique) String() string {
	switch t.Name {
	case TechniqueScreenCaptureEvasion:
		return fmt.Sprintf("Screen capture evasion (%d windows)", t.WindowCount)
	case TechniqueElevatedLayer:
		return fmt.Sprintf("Elevated layer positioning (%d windows)", t.WindowCount)
	default:
		return fmt.Sprintf("%s (%d windows)", t.Name, t.WindowCount)
	}
}

// Assessment is the derived classification of one RawSignal: a severity tier
// plus the ordered list of observed techniques. Assessments are produced
// only by Classify.
type Assessment struct {
	Severity   Severity    `json:"severity"`
	Techniques []Technique `json:"techniques"`
}

// Snapshot is one immutable, timestamped capture: the raw counters, the
// derived assessment, and the engine's report text. Snapshots are superseded
// by the next poll's snapshot, never edited.
type Snapshot struct {
	Signal     signal.RawSignal `json:"signal"`
	Assessment Assessment       `json:"assessment"`
	Report     string           `json:"report"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Detected reports whether this snapshot observed monitoring software.
func (s Snapshot) Detected() bool {
	return s.Signal.IsDetected
}
