// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package monitor implements the derived-state engine: a background poll
// loop that repeatedly acquires detection snapshots, detects edge
// transitions between detected and not-detected states, and dispatches a
// closed set of callbacks exactly once per transition.
//
// Lifecycle is a two-state machine (Stopped, Running). Start launches one
// dedicated goroutine running strictly sequential poll cycles; Stop cancels
// cooperatively and joins with a bounded wait. The retained last snapshot
// and the running flag are mutex-guarded, so LastDetection is safe from any
// goroutine concurrently with an in-progress cycle.
//
// Failure policy: acquisition failures and callback panics are recovered
// inside the loop and surfaced only as log diagnostics; they never
// propagate to the caller and never terminate the loop.
package monitor
