package capture_test

import (
	"testing"

	"github.com/trustsignal/behaviorsync/capture"
	"github.com/trustsignal/behaviorsync/testutils"
)

// Feeds a session end to end through the exported surface: raw sensor events
// in, one finalized record with derived fields out.
func TestRecorderEndToEnd(t *testing.T) {
	r := capture.NewRecorder(capture.DefaultLimits())
	r.Activate("u_e2e", capture.ScenarioRegular)

	for i := int64(0); i < 3; i++ {
		r.RecordEvent(testutils.NewMotionEvent(1000 + i*20))
	}
	r.RecordEvent(testutils.NewTouchInput(1100, 100, 30, 40))
	r.RecordEvent(testutils.NewKeystroke(1200, 80, "a", capture.InputText))
	r.RecordEvent(testutils.NewKeystroke(1330, 70, "b", capture.InputText))

	a := r.Analytics()
	if a.EventCounts[capture.KindMotionSample] != 3 ||
		a.EventCounts[capture.KindTouchEvent] != 1 ||
		a.EventCounts[capture.KindKeystroke] != 2 {
		t.Fatalf("wrong event counts: %+v", a.EventCounts)
	}

	data := r.Snapshot()
	if data == nil {
		t.Fatalf("expected a record from a session with events")
	}
	if data.UserID != "u_e2e" || data.SessionID != r.SessionID() {
		t.Fatalf("record identity wrong: %+v", data)
	}
	// accel {3,4,0} -> magnitude 5; gyro {0.1,0.2,0.2} -> rotation 0.3
	s := data.MotionPatterns[0].Samples[0]
	if s.MotionMagnitude != 5 {
		t.Fatalf("motionMagnitude: got %v want 5", s.MotionMagnitude)
	}
	if got := s.RotationRate; got < 0.299 || got > 0.301 {
		t.Fatalf("rotationRate: got %v want 0.3", got)
	}
	// displacement (30,40) = 50px over 100ms -> 500 px/s
	e := data.TouchPatterns[0].Events[0]
	if e.Distance != 50 || e.Velocity != 500 {
		t.Fatalf("touch derivation wrong: distance=%v velocity=%v", e.Distance, e.Velocity)
	}
	// second key starts 1330, first ends 1200+80 -> flight 50
	ks := data.TypingPatterns[0].Keystrokes
	if ks[0].FlightTime != 0 || ks[1].FlightTime != 50 {
		t.Fatalf("flight times wrong: %v, %v", ks[0].FlightTime, ks[1].FlightTime)
	}

	// the snapshot cleared the buffers: a second one with no new events is nil
	r.FlushDone()
	if again := r.Snapshot(); again != nil {
		t.Fatalf("eventless snapshot should be nil, got %+v", again)
	}
}
