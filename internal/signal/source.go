// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package signal defines the contract with the platform-native detection
// engine that scans OS windows for overlay monitoring software.
//
// The engine itself is an external collaborator: it enumerates windows and
// inspects rendering-layer attributes (sharing state, layer elevation) at the
// operating-system level. This package only consumes its raw counters and
// report text. Two implementations are provided: NativeSource binds a loaded
// engine library via purego (darwin only), and StaticSource serves scripted
// results for tests and development.
package signal

import "errors"

// Sentinel errors for signal source failures.
var (
	// ErrEngineUnavailable indicates the native detection engine could not be
	// loaded or is not supported on this platform.
	ErrEngineUnavailable = errors.New("native detection engine unavailable")

	// ErrQueryFailed indicates a single query against the engine failed.
	// Acquisition failures are recovered per poll cycle by the monitor.
	ErrQueryFailed = errors.New("detection engine query failed")
)

// RawSignal is the fixed-shape record of raw counters produced by the
// detection engine for one scan. Counts are non-negative; the engine sets
// IsDetected iff WindowCount > 0. Consumers treat IsDetected as
// authoritative and do not re-validate the relationship.
type RawSignal struct {
	IsDetected                bool   `json:"is_detected"`
	WindowCount               uint32 `json:"window_count"`
	ScreenCaptureEvasionCount uint32 `json:"screen_capture_evasion_count"`
	ElevatedLayerCount        uint32 `json:"elevated_layer_count"`
	MaxLayerDetected          int32  `json:"max_layer_detected"`
}

// Report carries the engine's free-text report plus the release hook for the
// externally-owned buffer backing it. Release must be called exactly once by
// the consumer, on every path including error paths. Text remains valid
// after Release because it is copied into engine-owned memory at query time.
type Report struct {
	Text string

	release func()
}

// NewReport constructs a Report with the given text and release hook.
// The hook may be nil for sources that own no external buffer.
func NewReport(text string, release func()) *Report {
	return &Report{Text: text, release: release}
}

// Release frees the externally-owned buffer backing this report.
// Callers must invoke it exactly once.
func (r *Report) Release() {
	if r.release != nil {
		r.release()
	}
}

// Source is the raw signal source contract consumed by the detection core.
//
// All three queries are synchronous and side-effect free beyond the query
// itself. Implementations must be safe for concurrent use; the monitor
// engine serializes its own calls but point-in-time queries may race with an
// in-progress poll cycle.
type Source interface {
	// QueryDetection runs one scan and returns the raw counters.
	QueryDetection() (RawSignal, error)

	// QueryReport runs one scan and returns the engine's text report.
	// The returned Report's buffer must be released by the caller.
	QueryReport() (*Report, error)

	// QueryWindowCount returns the number of monitoring windows currently
	// visible to the engine, independent of the other two queries.
	QueryWindowCount() (uint32, error)
}
