// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package signal

import (
	"fmt"
	"strings"
	"sync"
)

// StaticSource is a Source that serves a configurable RawSignal. It backs
// the development mode (engine.mode: static) and the package tests. When no
// report text is set explicitly, one is rendered from the current signal in
// the engine's report format.
type StaticSource struct {
	mu         sync.Mutex
	signal     RawSignal
	reportText string
	err        error

	// releaseCount tracks Release invocations on issued reports, letting
	// tests assert the exactly-once release contract.
	releaseCount int
}

// NewStaticSource creates a StaticSource serving the given signal.
func NewStaticSource(sig RawSignal) *StaticSource {
	return &StaticSource{signal: sig}
}

// Set replaces the signal served by subsequent queries.
func (s *StaticSource) Set(sig RawSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signal = sig
	s.err = nil
}

// SetReportText overrides the rendered report with fixed text.
// An empty string restores rendering from the current signal.
func (s *StaticSource) SetReportText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportText = text
}

// SetError makes all subsequent queries fail with err until Set is called.
func (s *StaticSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ReleaseCount returns how many times issued reports have been released.
func (s *StaticSource) ReleaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseCount
}

// QueryDetection implements Source.
func (s *StaticSource) QueryDetection() (RawSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return RawSignal{}, s.err
	}
	return s.signal, nil
}

// QueryReport implements Source.
func (s *StaticSource) QueryReport() (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	text := s.reportText
	if text == "" {
		text = RenderReport(s.signal)
	}

	return NewReport(text, func() {
		s.mu.Lock()
		s.releaseCount++
		s.mu.Unlock()
	}), nil
}

// QueryWindowCount implements Source.
func (s *StaticSource) QueryWindowCount() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.signal.WindowCount, nil
}

// RenderReport formats a RawSignal as a human-readable report in the shape
// the native engine emits: a summary block, then one line per evasion
// technique observed.
func RenderReport(sig RawSignal) string {
	var b strings.Builder

	if !sig.IsDetected {
		b.WriteString("NO OVERLAY MONITORING DETECTED\n")
		b.WriteString("==============================\n\n")
		b.WriteString("No overlay monitoring software found.\n")
		return b.String()
	}

	b.WriteString("OVERLAY MONITORING DETECTED\n")
	b.WriteString("===========================\n\n")
	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  - Total monitoring windows: %d\n", sig.WindowCount)
	fmt.Fprintf(&b, "  - Screen capture evasion: %d\n", sig.ScreenCaptureEvasionCount)
	fmt.Fprintf(&b, "  - Elevated layer usage: %d\n", sig.ElevatedLayerCount)
	if sig.MaxLayerDetected > 0 {
		fmt.Fprintf(&b, "  - Highest layer detected: %d\n", sig.MaxLayerDetected)
	}

	b.WriteString("\nEvasion techniques detected:\n")
	if sig.ScreenCaptureEvasionCount > 0 {
		fmt.Fprintf(&b, "  - %d window(s) configured to avoid screen capture\n", sig.ScreenCaptureEvasionCount)
	}
	if sig.ElevatedLayerCount > 0 {
		fmt.Fprintf(&b, "  - %d window(s) using elevated display layers\n", sig.ElevatedLayerCount)
	}

	return b.String()
}
