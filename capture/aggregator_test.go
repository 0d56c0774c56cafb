package capture

import (
	"math"
	"testing"
)

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: got %v want %v", name, got, want)
	}
}

func TestFoldMotionDerivesNorms(t *testing.T) {
	c := NewCollections(DefaultLimits())
	c.Fold(MotionEvent{
		Timestamp:     1000,
		Accelerometer: Vec3{X: 3, Y: 4, Z: 0},
		Gyroscope:     Vec3{X: 0.1, Y: 0.2, Z: 0.2},
	})
	if len(c.Motion) != 1 || len(c.Motion[0].Samples) != 1 {
		t.Fatalf("expected 1 pattern with 1 sample, got %+v", c.Motion)
	}
	s := c.Motion[0].Samples[0]
	assertFloat(t, "motionMagnitude", s.MotionMagnitude, 5)
	assertFloat(t, "rotationRate", s.RotationRate, 0.3)
}

func TestFoldTouchVelocity(t *testing.T) {
	testCases := []struct {
		name         string
		durationMS   int64
		dx, dy       float64
		wantDistance float64
		wantVelocity float64
	}{
		{name: "normal swipe", durationMS: 100, dx: 30, dy: 40, wantDistance: 50, wantVelocity: 500},
		{name: "zero duration defines velocity as zero", durationMS: 0, dx: 30, dy: 40, wantDistance: 50, wantVelocity: 0},
		{name: "stationary tap", durationMS: 50, dx: 0, dy: 0, wantDistance: 0, wantVelocity: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCollections(DefaultLimits())
			c.Fold(TouchInput{
				StartX: 10, StartY: 20,
				EndX: 10 + tc.dx, EndY: 20 + tc.dy,
				Timestamp:  1000,
				DurationMS: tc.durationMS,
			})
			ev := c.Touch[0].Events[0]
			assertFloat(t, "distance", ev.Distance, tc.wantDistance)
			assertFloat(t, "velocity", ev.Velocity, tc.wantVelocity)
			if ev.GestureType != GestureTap {
				t.Fatalf("empty gesture should default to tap, got %q", ev.GestureType)
			}
		})
	}
}

func TestFoldKeystrokeFlightTime(t *testing.T) {
	c := NewCollections(DefaultLimits())
	c.Fold(KeystrokeInput{Character: "a", Timestamp: 1000, DwellTimeMS: 80, InputType: InputText})
	c.Fold(KeystrokeInput{Character: "b", Timestamp: 1200, DwellTimeMS: 60, InputType: InputText})
	c.Fold(KeystrokeInput{Character: "c", Timestamp: 1210, DwellTimeMS: 60, InputType: InputText})

	ks := c.Typing[0].Keystrokes
	if len(ks) != 3 {
		t.Fatalf("expected 3 keystrokes, got %d", len(ks))
	}
	// first keystroke always has a defined flight time of 0
	if ks[0].FlightTime != 0 {
		t.Fatalf("first keystroke flight time: got %d want 0", ks[0].FlightTime)
	}
	// 1200 - (1000 + 80)
	if ks[1].FlightTime != 120 {
		t.Fatalf("second keystroke flight time: got %d want 120", ks[1].FlightTime)
	}
	// 1210 - (1200 + 60) is negative, clamped
	if ks[2].FlightTime != 0 {
		t.Fatalf("overlapping keystroke flight time: got %d want 0", ks[2].FlightTime)
	}
}

func TestTypingPatternPerField(t *testing.T) {
	c := NewCollections(DefaultLimits())
	c.Fold(KeystrokeInput{Character: "0", Timestamp: 1000, InputType: InputMobile})
	c.Fold(KeystrokeInput{Character: "7", Timestamp: 1100, InputType: InputMobile})
	c.Fold(KeystrokeInput{Character: "9", Timestamp: 1500, InputType: InputAmount})

	if len(c.Typing) != 2 {
		t.Fatalf("expected 2 typing patterns, got %d", len(c.Typing))
	}
	if !c.Typing[0].closed {
		t.Fatalf("switching fields should close the previous pattern")
	}
	if c.Typing[0].InputType != InputMobile || c.Typing[1].InputType != InputAmount {
		t.Fatalf("patterns tagged with wrong input types: %+v", c.Typing)
	}
	// flight time never crosses a pattern boundary
	if c.Typing[1].Keystrokes[0].FlightTime != 0 {
		t.Fatalf("first keystroke of new pattern must have flight time 0")
	}
}

func TestMotionEvictionAtCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxMotionSamplesPerPattern = 3
	c := NewCollections(limits)
	for i := int64(0); i < 5; i++ {
		c.Fold(MotionEvent{Timestamp: 1000 + i})
	}
	samples := c.Motion[0].Samples
	if len(samples) != 3 {
		t.Fatalf("expected capped buffer of 3 samples, got %d", len(samples))
	}
	// the two oldest samples are gone
	if samples[0].Timestamp != 1002 || samples[2].Timestamp != 1004 {
		t.Fatalf("eviction should drop oldest samples first, got %v..%v", samples[0].Timestamp, samples[2].Timestamp)
	}
	if c.Evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", c.Evicted)
	}
}

func TestPatternCapIsPerKind(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPatternsPerKind = 2
	c := NewCollections(limits)

	// fill the typing collection to its cap with two closed patterns
	c.Fold(KeystrokeInput{Character: "a", Timestamp: 1000, InputType: InputText})
	c.Fold(KeystrokeInput{Character: "1", Timestamp: 2000, InputType: InputAmount})

	// opening a motion window must not evict a typing pattern
	c.Fold(MotionEvent{Timestamp: 3000})
	if len(c.Typing) != 2 {
		t.Fatalf("motion window opening evicted a typing pattern, %d left", len(c.Typing))
	}
	if c.Evicted != 0 {
		t.Fatalf("no collection exceeded its cap, but evicted=%d", c.Evicted)
	}

	// a third typing pattern pays the eviction in its own collection
	c.Fold(KeystrokeInput{Character: "b", Timestamp: 4000, InputType: InputMobile})
	if len(c.Typing) != 2 {
		t.Fatalf("typing cap not enforced, got %d patterns", len(c.Typing))
	}
	if c.Typing[0].InputType != InputAmount || c.Typing[1].InputType != InputMobile {
		t.Fatalf("eviction should drop the oldest typing pattern, got %v then %v",
			c.Typing[0].InputType, c.Typing[1].InputType)
	}
	if len(c.Motion) != 1 {
		t.Fatalf("motion collection touched by typing eviction, got %d patterns", len(c.Motion))
	}
	if c.Evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", c.Evicted)
	}
}

func TestCloseMotionWindow(t *testing.T) {
	c := NewCollections(DefaultLimits())
	for _, ts := range []int64{1000, 1100, 1200} {
		c.Fold(MotionEvent{Timestamp: ts})
	}
	c.CloseMotionWindow()
	p := c.Motion[0]
	if p.DurationMS != 200 {
		t.Fatalf("duration: got %d want 200", p.DurationMS)
	}
	assertFloat(t, "sampleRateHz", p.SampleRateHz, 10)

	// the next motion event opens a fresh window
	c.Fold(MotionEvent{Timestamp: 2000})
	if len(c.Motion) != 2 {
		t.Fatalf("expected a new pattern after closing the window, got %d", len(c.Motion))
	}
	// closing an already closed window is a no-op
	before := c.Motion[0]
	c.CloseMotionWindow()
	c.CloseMotionWindow()
	if c.Motion[0].DurationMS != before.DurationMS {
		t.Fatalf("re-closing changed a finalized pattern")
	}
}

func TestEventCount(t *testing.T) {
	c := NewCollections(DefaultLimits())
	if !c.Empty() {
		t.Fatalf("new collections should be empty")
	}
	c.Fold(MotionEvent{Timestamp: 1})
	c.Fold(MotionEvent{Timestamp: 2})
	c.Fold(TouchInput{Timestamp: 3, DurationMS: 10})
	c.Fold(KeystrokeInput{Character: "x", Timestamp: 4, InputType: InputText})

	counts := c.EventCount()
	if counts[KindMotionSample] != 2 || counts[KindTouchEvent] != 1 || counts[KindKeystroke] != 1 {
		t.Fatalf("wrong counts: %+v", counts)
	}
	if c.Empty() {
		t.Fatalf("collections with events should not be empty")
	}
}
