// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package detect turns the engine's raw window counters into a classified
// assessment and owns point-in-time snapshot acquisition.
package detect

import "github.com/veilwatch/veilwatch/internal/signal"

// Classify maps a RawSignal to its Assessment. It is pure and total: every
// well-formed signal maps to exactly one assessment, with no error
// conditions, and it is safe to call concurrently without coordination.
//
// IsDetected is authoritative. When it is false the severity is none and the
// technique list is empty regardless of any nonzero sub-counts; the upstream
// invariant says those sub-counts are zero, but a violated invariant must
// not produce a misclassification. Otherwise the tier follows the number of
// evasion signals present: low with none, medium with exactly one, high with
// both. Technique ordering is fixed: screen capture evasion before elevated
// layer positioning, independent of their relative counts.
func Classify(sig signal.RawSignal) Assessment {
	if !sig.IsDetected {
		return Assessment{Severity: SeverityNone, Techniques: []Technique{}}
	}

	techniques := make([]Technique, 0, 2)
	if sig.ScreenCaptureEvasionCount > 0 {
		techniques = append(techniques, Technique{
			Name:        TechniqueScreenCaptureEvasion,
			WindowCount: sig.ScreenCaptureEvasionCount,
		})
	}
	if sig.ElevatedLayerCount > 0 {
		techniques = append(techniques, Technique{
			Name:        TechniqueElevatedLayer,
			WindowCount: sig.ElevatedLayerCount,
		})
	}

	var severity Severity
	switch len(techniques) {
	case 0:
		severity = SeverityLow
	case 1:
		severity = SeverityMedium
	default:
		severity = SeverityHigh
	}

	return Assessment{Severity: severity, Techniques: techniques}
}
