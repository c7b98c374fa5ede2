// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veilwatch/veilwatch/internal/detect"
	"github.com/veilwatch/veilwatch/internal/signal"
)

var errAcquire = errors.New("engine unreachable")

// scriptedSource serves a fixed sequence of acquisition results. Once the
// script is exhausted every further call fails, so a test sees exactly the
// cycles it scripted.
type scriptedSource struct {
	mu     sync.Mutex
	script []scriptStep
	idx    int
}

type scriptStep struct {
	snap detect.Snapshot
	err  error
}

func detectedSnap() detect.Snapshot {
	sig := signal.RawSignal{IsDetected: true, WindowCount: 1}
	return detect.Snapshot{
		Signal:     sig,
		Assessment: detect.Classify(sig),
		Report:     "r",
		Timestamp:  time.Now().UTC(),
	}
}

func cleanSnap() detect.Snapshot {
	return detect.Snapshot{
		Signal:     signal.RawSignal{},
		Assessment: detect.Classify(signal.RawSignal{}),
		Report:     "r",
		Timestamp:  time.Now().UTC(),
	}
}

func newScripted(steps ...scriptStep) *scriptedSource {
	return &scriptedSource{script: steps}
}

func (s *scriptedSource) Acquire() (detect.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.script) {
		return detect.Snapshot{}, errAcquire
	}
	step := s.script[s.idx]
	s.idx++
	return step.snap, step.err
}

func (s *scriptedSource) acquires() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// recorder collects callback dispatches for assertions.
type recorder struct {
	mu        sync.Mutex
	detected  []detect.Snapshot
	removed   int
	changed   []detect.Snapshot
	panicOnce bool
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnDetected: func(s detect.Snapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.detected = append(r.detected, s)
		},
		OnRemoved: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.removed++
		},
		OnChange: func(s detect.Snapshot) {
			r.mu.Lock()
			r.changed = append(r.changed, s)
			doPanic := r.panicOnce
			r.panicOnce = false
			r.mu.Unlock()
			if doPanic {
				panic("callback exploded")
			}
		},
	}
}

func (r *recorder) counts() (detected, removed, changed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.detected), r.removed, len(r.changed)
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestFirstCycleDetectedFiresOnDetected(t *testing.T) {
	src := newScripted(scriptStep{snap: detectedSnap()})
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		d, _, c := rec.counts()
		return d == 1 && c == 1
	}, "first cycle dispatch")

	if _, removed, _ := rec.counts(); removed != 0 {
		t.Errorf("on_removed fired %d times, want 0", removed)
	}
}

func TestDetectedThenRemovedSequence(t *testing.T) {
	src := newScripted(
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: cleanSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		_, removed, changed := rec.counts()
		return removed == 1 && changed == 3
	}, "three scripted cycles")

	detected, removed, changed := rec.counts()
	if detected != 1 {
		t.Errorf("on_detected fired %d times, want 1", detected)
	}
	if removed != 1 {
		t.Errorf("on_removed fired %d times, want 1", removed)
	}
	if changed != 3 {
		t.Errorf("on_change fired %d times, want 3", changed)
	}
}

func TestNeverDetectedFiresNoEdges(t *testing.T) {
	src := newScripted(
		scriptStep{snap: cleanSnap()},
		scriptStep{snap: cleanSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		_, _, changed := rec.counts()
		return changed == 2
	}, "two clean cycles")

	detected, removed, _ := rec.counts()
	if detected != 0 || removed != 0 {
		t.Errorf("edges fired (detected=%d removed=%d), want none", detected, removed)
	}
}

func TestFlappingFiresEachEdge(t *testing.T) {
	src := newScripted(
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: cleanSnap()},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		detected, removed, changed := rec.counts()
		return detected == 2 && removed == 1 && changed == 3
	}, "flapping sequence")
}

func TestStartWhileRunningReturnsUsageError(t *testing.T) {
	src := newScripted(
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		_, _, changed := rec.counts()
		return changed >= 1
	}, "first cycle")

	other := &recorder{}
	if err := m.Start(time.Hour, other.callbacks()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if !m.Running() {
		t.Error("monitor stopped after rejected Start")
	}

	// Original callbacks keep receiving cycles; the rejected ones never do.
	waitFor(t, func() bool {
		_, _, changed := rec.counts()
		return changed >= 2
	}, "original callbacks still live")
	if _, _, changed := other.counts(); changed != 0 {
		t.Errorf("rejected callbacks received %d dispatches, want 0", changed)
	}
}

func TestStopDuringSleepEndsLoopPromptly(t *testing.T) {
	src := newScripted(scriptStep{snap: cleanSnap()})
	m := New(src)

	if err := m.Start(time.Hour, Callbacks{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, func() bool { return src.acquires() == 1 }, "first cycle")

	start := time.Now()
	m.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v, want prompt return from mid-sleep", elapsed)
	}
	if m.Running() {
		t.Error("Running() = true after Stop")
	}

	// No extra poll after stop.
	time.Sleep(20 * time.Millisecond)
	if got := src.acquires(); got != 1 {
		t.Errorf("acquires = %d after Stop, want 1", got)
	}
}

func TestStopWhileStoppedIsNoOp(t *testing.T) {
	m := New(newScripted())
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("Running() = true, want false")
	}
}

func TestAcquisitionFailureSkipsCycle(t *testing.T) {
	first := detectedSnap()
	src := newScripted(
		scriptStep{snap: first},
		scriptStep{err: errAcquire},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool { return src.acquires() >= 3 }, "three acquisition attempts")
	waitFor(t, func() bool {
		_, _, changed := rec.counts()
		return changed == 2
	}, "two successful cycles")

	// The failed cycle fired nothing and the edge state survived it:
	// detected -> failure -> detected is not a transition.
	detected, removed, changed := rec.counts()
	if detected != 1 || removed != 0 || changed != 2 {
		t.Errorf("dispatches = detected:%d removed:%d changed:%d, want 1/0/2",
			detected, removed, changed)
	}
}

func TestAcquisitionFailureKeepsLastSnapshot(t *testing.T) {
	first := detectedSnap()
	src := newScripted(
		scriptStep{snap: first},
		scriptStep{err: errAcquire},
	)
	m := New(src)

	if err := m.Start(time.Millisecond, Callbacks{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool { return src.acquires() >= 2 }, "failure cycle")

	snap, ok := m.LastDetection()
	if !ok {
		t.Fatal("LastDetection() ok = false, want retained snapshot")
	}
	if !snap.Timestamp.Equal(first.Timestamp) {
		t.Errorf("LastDetection() = %v, want snapshot from the successful cycle", snap.Timestamp)
	}
}

func TestFirstSuccessAfterFailuresIsFirstCycle(t *testing.T) {
	src := newScripted(
		scriptStep{err: errAcquire},
		scriptStep{err: errAcquire},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool {
		detected, _, _ := rec.counts()
		return detected == 1
	}, "first successful cycle fires on_detected")
}

func TestLastDetectionBeforeFirstCycle(t *testing.T) {
	m := New(newScripted())
	if _, ok := m.LastDetection(); ok {
		t.Error("LastDetection() ok = true before any cycle")
	}
}

func TestCallbackPanicDoesNotAbortLoop(t *testing.T) {
	src := newScripted(
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{panicOnce: true}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	// The first on_change panics; the loop must survive and run the second
	// scripted cycle.
	waitFor(t, func() bool {
		_, _, changed := rec.counts()
		return changed == 2
	}, "cycle after recovered panic")

	snap, ok := m.LastDetection()
	if !ok || !snap.Detected() {
		t.Error("last snapshot not retained after recovered panic")
	}
}

func TestRestartAfterStop(t *testing.T) {
	src := newScripted(
		scriptStep{snap: detectedSnap()},
		scriptStep{snap: detectedSnap()},
	)
	rec := &recorder{}
	m := New(src)

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return src.acquires() >= 1 }, "first session cycle")
	m.Stop()

	if err := m.Start(time.Millisecond, rec.callbacks()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	defer m.Stop()

	waitFor(t, func() bool { return src.acquires() >= 2 }, "second session cycle")
}
