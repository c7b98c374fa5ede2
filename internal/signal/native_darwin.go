// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

//go:build darwin

package signal

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Engine ABI symbol names. The enumeration of exported entry points is
// fixed by the engine's C header; extending it requires a coordinated
// engine release.
const (
	symDetect      = "vw_detect"
	symReport      = "vw_report"
	symFreeReport  = "vw_free_report"
	symWindowCount = "vw_window_count"
)

// nativeResult mirrors the engine's C result struct field-for-field.
type nativeResult struct {
	IsDetected                bool
	WindowCount               uint32
	ScreenCaptureEvasionCount uint32
	ElevatedLayerCount        uint32
	MaxLayerDetected          int32
}

// NativeSource binds the detection engine dynamic library via purego.
// Queries call straight into the engine; the report buffer returned by
// vw_report is owned by the engine and paired with vw_free_report.
type NativeSource struct {
	detect      func() nativeResult
	report      func() uintptr
	freeReport  func(uintptr)
	windowCount func() uint32
}

// NewNativeSource loads the engine library at path and resolves the ABI.
// Library discovery is the caller's concern; path must point at an existing
// engine build. A missing or unresolveable library is a fatal precondition
// failure, not a per-cycle error.
func NewNativeSource(path string) (*NativeSource, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("%w: dlopen %s: %v", ErrEngineUnavailable, path, err)
	}

	s := &NativeSource{}
	purego.RegisterLibFunc(&s.detect, lib, symDetect)
	purego.RegisterLibFunc(&s.report, lib, symReport)
	purego.RegisterLibFunc(&s.freeReport, lib, symFreeReport)
	purego.RegisterLibFunc(&s.windowCount, lib, symWindowCount)

	return s, nil
}

// QueryDetection implements Source.
func (s *NativeSource) QueryDetection() (RawSignal, error) {
	res := s.detect()
	return RawSignal{
		IsDetected:                res.IsDetected,
		WindowCount:               res.WindowCount,
		ScreenCaptureEvasionCount: res.ScreenCaptureEvasionCount,
		ElevatedLayerCount:        res.ElevatedLayerCount,
		MaxLayerDetected:          res.MaxLayerDetected,
	}, nil
}

// QueryReport implements Source. The engine-owned C string is copied into Go
// memory immediately; Release frees the C buffer via vw_free_report.
func (s *NativeSource) QueryReport() (*Report, error) {
	ptr := s.report()
	if ptr == 0 {
		return NewReport("", nil), nil
	}

	text := goString(ptr)
	return NewReport(text, func() {
		s.freeReport(ptr)
	}), nil
}

// QueryWindowCount implements Source.
func (s *NativeSource) QueryWindowCount() (uint32, error) {
	return s.windowCount(), nil
}

// goString copies a NUL-terminated C string into a Go string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n uintptr
	for *(*byte)(unsafe.Pointer(p + n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
