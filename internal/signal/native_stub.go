// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

//go:build !darwin

package signal

import "fmt"

// NativeSource is unavailable off darwin; the engine inspects Core Graphics
// window attributes and has no implementation for other platforms.
type NativeSource struct{}

// NewNativeSource always fails on non-darwin platforms.
// Use a StaticSource (engine.mode: static) instead.
func NewNativeSource(path string) (*NativeSource, error) {
	return nil, fmt.Errorf("%w: native engine is darwin-only", ErrEngineUnavailable)
}

// QueryDetection implements Source.
func (s *NativeSource) QueryDetection() (RawSignal, error) {
	return RawSignal{}, ErrEngineUnavailable
}

// QueryReport implements Source.
func (s *NativeSource) QueryReport() (*Report, error) {
	return nil, ErrEngineUnavailable
}

// QueryWindowCount implements Source.
func (s *NativeSource) QueryWindowCount() (uint32, error) {
	return 0, ErrEngineUnavailable
}
