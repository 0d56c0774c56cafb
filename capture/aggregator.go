package capture

import (
	"math"

	"github.com/trustsignal/behaviorsync/internal"
)

// Limits bound the in-progress buffers. A session can span an unbounded duration
// so every collection is capped with oldest-entry eviction rather than allowed to
// grow without bound.
type Limits struct {
	MaxMotionSamplesPerPattern int
	MaxTouchEventsPerPattern   int
	MaxKeystrokesPerPattern    int
	MaxPatternsPerKind         int
}

// DefaultLimits caps a pattern at roughly 10 minutes of 50Hz motion capture.
func DefaultLimits() Limits {
	return Limits{
		MaxMotionSamplesPerPattern: 30000,
		MaxTouchEventsPerPattern:   5000,
		MaxKeystrokesPerPattern:    5000,
		MaxPatternsPerKind:         100,
	}
}

// Collections holds one session's in-progress pattern collections. It is a plain
// data container: Fold is the only mutator and performs no I/O, so the
// aggregation logic is independently testable.
type Collections struct {
	Motion []MotionPattern
	Touch  []TouchPattern
	Typing []TypingPattern

	Limits Limits

	// total evictions due to Limits, kept for analytics
	Evicted int
}

func NewCollections(limits Limits) *Collections {
	return &Collections{Limits: limits}
}

// Fold accumulates one raw event into the collections, computing every derived
// field (distance, velocity, motionMagnitude, rotationRate, flightTime) at this
// boundary so raw-value changes in the sensor provider never touch derivation
// logic.
//
// Events for a given stream must arrive in timestamp order: the fold does not
// re-sort. Out-of-order input is a precondition violation by the caller, not a
// runtime-detected error.
func (c *Collections) Fold(ev Event) {
	switch e := ev.(type) {
	case MotionEvent:
		c.foldMotion(e)
	case TouchInput:
		c.foldTouch(e)
	case KeystrokeInput:
		c.foldKeystroke(e)
	default:
		// the Event union is closed; hitting this arm is a programming error
		internal.Assert("event kind is known to the aggregator", false)
	}
}

func (c *Collections) foldMotion(e MotionEvent) {
	p := c.openMotionPattern()
	sample := MotionSample{
		Timestamp:       e.Timestamp,
		Gyroscope:       e.Gyroscope,
		Accelerometer:   e.Accelerometer,
		Magnetometer:    e.Magnetometer,
		RotationRate:    e.Gyroscope.Norm(),
		MotionMagnitude: e.Accelerometer.Norm(),
	}
	if max := c.Limits.MaxMotionSamplesPerPattern; max > 0 && len(p.Samples) >= max {
		copy(p.Samples, p.Samples[1:])
		p.Samples = p.Samples[:len(p.Samples)-1]
		c.Evicted++
	}
	p.Samples = append(p.Samples, sample)
}

func (c *Collections) foldTouch(e TouchInput) {
	gesture := e.Gesture
	if gesture == "" {
		gesture = GestureTap
	}
	dx := e.EndX - e.StartX
	dy := e.EndY - e.StartY
	distance := math.Sqrt(dx*dx + dy*dy)
	// zero-duration gestures are legal sensor output; velocity is defined as 0
	// for them rather than dividing by zero
	velocity := 0.0
	if e.DurationMS > 0 {
		velocity = distance / (float64(e.DurationMS) / 1000.0)
	}
	event := TouchEvent{
		StartX:      e.StartX,
		StartY:      e.StartY,
		EndX:        e.EndX,
		EndY:        e.EndY,
		Timestamp:   e.Timestamp,
		DurationMS:  e.DurationMS,
		Distance:    distance,
		Velocity:    velocity,
		GestureType: gesture,
	}
	p := c.openTouchPattern()
	if max := c.Limits.MaxTouchEventsPerPattern; max > 0 && len(p.Events) >= max {
		copy(p.Events, p.Events[1:])
		p.Events = p.Events[:len(p.Events)-1]
		c.Evicted++
	}
	p.Events = append(p.Events, event)
}

func (c *Collections) foldKeystroke(e KeystrokeInput) {
	p := c.openTypingPattern(e.InputType)
	ks := Keystroke{
		Character:   e.Character,
		Timestamp:   e.Timestamp,
		DwellTimeMS: e.DwellTimeMS,
		CoordinateX: e.X,
		CoordinateY: e.Y,
	}
	if n := len(p.Keystrokes); n > 0 {
		prev := p.Keystrokes[n-1]
		flight := e.Timestamp - (prev.Timestamp + prev.DwellTimeMS)
		if flight < 0 {
			flight = 0
		}
		ks.FlightTime = flight
	}
	// first keystroke in a pattern keeps the zero value: flightTime is always
	// defined, never garbage
	if max := c.Limits.MaxKeystrokesPerPattern; max > 0 && len(p.Keystrokes) >= max {
		copy(p.Keystrokes, p.Keystrokes[1:])
		p.Keystrokes = p.Keystrokes[:len(p.Keystrokes)-1]
		c.Evicted++
	}
	p.Keystrokes = append(p.Keystrokes, ks)
}

// openMotionPattern returns the current open motion pattern, starting a new one
// if the previous window was closed.
func (c *Collections) openMotionPattern() *MotionPattern {
	if n := len(c.Motion); n > 0 && !c.Motion[n-1].closed {
		return &c.Motion[n-1]
	}
	c.Motion = capKind(c.Motion, c.Limits.MaxPatternsPerKind, &c.Evicted)
	c.Motion = append(c.Motion, MotionPattern{})
	return &c.Motion[len(c.Motion)-1]
}

func (c *Collections) openTouchPattern() *TouchPattern {
	if len(c.Touch) == 0 {
		c.Touch = append(c.Touch, TouchPattern{})
	}
	return &c.Touch[len(c.Touch)-1]
}

// openTypingPattern returns the open pattern for this input type. A keystroke on
// a different logical field closes the previous pattern and starts a new one:
// one pattern per field interaction.
func (c *Collections) openTypingPattern(it InputType) *TypingPattern {
	if n := len(c.Typing); n > 0 {
		last := &c.Typing[n-1]
		if !last.closed && last.InputType == it {
			return last
		}
		last.closed = true
	}
	c.Typing = capKind(c.Typing, c.Limits.MaxPatternsPerKind, &c.Evicted)
	c.Typing = append(c.Typing, TypingPattern{InputType: it})
	return &c.Typing[len(c.Typing)-1]
}

// capKind drops the oldest pattern of one kind when appending would exceed the
// per-kind cap. Only the kind being appended to pays the eviction: a motion
// window opening must never cost a typing pattern.
func capKind[P any](patterns []P, max int, evicted *int) []P {
	if max <= 0 || len(patterns) < max {
		return patterns
	}
	copy(patterns, patterns[1:])
	*evicted++
	return patterns[:len(patterns)-1]
}

// CloseMotionWindow finalizes the open motion pattern, computing its duration and
// effective sample rate from the recorded timestamps. No-op if nothing is open.
func (c *Collections) CloseMotionWindow() {
	n := len(c.Motion)
	if n == 0 || c.Motion[n-1].closed {
		return
	}
	p := &c.Motion[n-1]
	p.closed = true
	if len(p.Samples) == 0 {
		return
	}
	first := p.Samples[0].Timestamp
	last := p.Samples[len(p.Samples)-1].Timestamp
	p.DurationMS = last - first
	if p.DurationMS > 0 && len(p.Samples) > 1 {
		p.SampleRateHz = float64(len(p.Samples)-1) / (float64(p.DurationMS) / 1000.0)
	}
}

// CloseTypingPattern finalizes the open typing pattern, e.g on field blur.
func (c *Collections) CloseTypingPattern() {
	if n := len(c.Typing); n > 0 {
		c.Typing[n-1].closed = true
	}
}

// EventCount returns the number of folded events per kind.
func (c *Collections) EventCount() map[EventKind]int {
	counts := map[EventKind]int{
		KindMotionSample: 0,
		KindTouchEvent:   0,
		KindKeystroke:    0,
	}
	for _, p := range c.Motion {
		counts[KindMotionSample] += len(p.Samples)
	}
	for _, p := range c.Touch {
		counts[KindTouchEvent] += len(p.Events)
	}
	for _, p := range c.Typing {
		counts[KindKeystroke] += len(p.Keystrokes)
	}
	return counts
}

// Empty reports whether nothing has been folded yet.
func (c *Collections) Empty() bool {
	return len(c.Motion) == 0 && len(c.Touch) == 0 && len(c.Typing) == 0
}
