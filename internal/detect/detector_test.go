// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package detect

import (
	"errors"
	"sync"
	"testing"

	"github.com/veilwatch/veilwatch/internal/signal"
)

// mockSource implements signal.Source with call counting and per-query
// error injection.
type mockSource struct {
	mu sync.Mutex

	sig        signal.RawSignal
	reportText string

	detectionErr error
	reportErr    error

	detectionCalls int
	reportCalls    int
	releases       int
}

func (m *mockSource) QueryDetection() (signal.RawSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectionCalls++
	if m.detectionErr != nil {
		return signal.RawSignal{}, m.detectionErr
	}
	return m.sig, nil
}

func (m *mockSource) QueryReport() (*signal.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportCalls++
	if m.reportErr != nil {
		return nil, m.reportErr
	}
	return signal.NewReport(m.reportText, func() {
		m.mu.Lock()
		m.releases++
		m.mu.Unlock()
	}), nil
}

func (m *mockSource) QueryWindowCount() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detectionErr != nil {
		return 0, m.detectionErr
	}
	return m.sig.WindowCount, nil
}

func TestAcquireSuccess(t *testing.T) {
	src := &mockSource{
		sig: signal.RawSignal{
			IsDetected:                true,
			WindowCount:               2,
			ScreenCaptureEvasionCount: 2,
		},
		reportText: "report body",
	}
	d := NewDetector(src)

	snap, err := d.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if !snap.Detected() {
		t.Error("Detected() = false, want true")
	}
	if snap.Assessment.Severity != SeverityMedium {
		t.Errorf("Severity = %q, want %q", snap.Assessment.Severity, SeverityMedium)
	}
	if snap.Report != "report body" {
		t.Errorf("Report = %q, want %q", snap.Report, "report body")
	}
	if snap.Timestamp.IsZero() {
		t.Error("Timestamp is zero")
	}

	// Exactly one of each query, and exactly one buffer release.
	if src.detectionCalls != 1 || src.reportCalls != 1 {
		t.Errorf("query calls = %d/%d, want 1/1", src.detectionCalls, src.reportCalls)
	}
	if src.releases != 1 {
		t.Errorf("releases = %d, want 1", src.releases)
	}
}

func TestAcquireEmptyReportSentinel(t *testing.T) {
	src := &mockSource{sig: signal.RawSignal{}}
	d := NewDetector(src)

	snap, err := d.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if snap.Report != NoReportAvailable {
		t.Errorf("Report = %q, want sentinel %q", snap.Report, NoReportAvailable)
	}
	if src.releases != 1 {
		t.Errorf("releases = %d, want 1", src.releases)
	}
}

func TestAcquireDetectionFailure(t *testing.T) {
	boom := errors.New("engine gone")
	src := &mockSource{detectionErr: boom}
	d := NewDetector(src)

	if _, err := d.Acquire(); !errors.Is(err, boom) {
		t.Errorf("Acquire() error = %v, want %v", err, boom)
	}
	// Report query never ran, so no buffer was issued or released.
	if src.reportCalls != 0 || src.releases != 0 {
		t.Errorf("reportCalls/releases = %d/%d, want 0/0", src.reportCalls, src.releases)
	}
}

func TestAcquireReportFailure(t *testing.T) {
	boom := errors.New("report query failed")
	src := &mockSource{reportErr: boom}
	d := NewDetector(src)

	if _, err := d.Acquire(); !errors.Is(err, boom) {
		t.Errorf("Acquire() error = %v, want %v", err, boom)
	}
	if src.releases != 0 {
		t.Errorf("releases = %d, want 0 (no buffer issued)", src.releases)
	}
}

func TestRunningAndCounters(t *testing.T) {
	src := &mockSource{sig: signal.RawSignal{IsDetected: true, WindowCount: 7}}
	d := NewDetector(src)

	running, err := d.Running()
	if err != nil {
		t.Fatalf("Running() error = %v", err)
	}
	if !running {
		t.Error("Running() = false, want true")
	}

	detected, count, err := d.Counters()
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if !detected || count != 7 {
		t.Errorf("Counters() = %v/%d, want true/7", detected, count)
	}

	windows, err := d.WindowCount()
	if err != nil {
		t.Fatalf("WindowCount() error = %v", err)
	}
	if windows != 7 {
		t.Errorf("WindowCount() = %d, want 7", windows)
	}
}

func TestReportReleasesBuffer(t *testing.T) {
	src := &mockSource{reportText: "full text"}
	d := NewDetector(src)

	text, err := d.Report()
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if text != "full text" {
		t.Errorf("Report() = %q", text)
	}
	if src.releases != 1 {
		t.Errorf("releases = %d, want 1", src.releases)
	}

	// Empty engine text maps to the sentinel.
	src.reportText = ""
	text, err = d.Report()
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if text != NoReportAvailable {
		t.Errorf("Report() = %q, want sentinel", text)
	}
	if src.releases != 2 {
		t.Errorf("releases = %d, want 2", src.releases)
	}
}
