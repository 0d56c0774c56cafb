package testutils

import (
	"fmt"
	"sync"
	"testing"

	"github.com/tidwall/sjson"

	"github.com/trustsignal/behaviorsync/capture"
)

var (
	recordIDCounter = 0
	recordIDMu      sync.Mutex
)

func generateRecordID() string {
	recordIDMu.Lock()
	defer recordIDMu.Unlock()
	recordIDCounter++
	return fmt.Sprintf("record_%d", recordIDCounter)
}

// NewMotionEvent returns a raw motion reading with distinct axis values so
// derived magnitudes are non-trivial.
func NewMotionEvent(ts int64) capture.MotionEvent {
	return capture.MotionEvent{
		Timestamp:     ts,
		Gyroscope:     capture.Vec3{X: 0.1, Y: 0.2, Z: 0.2},
		Accelerometer: capture.Vec3{X: 3, Y: 4, Z: 0},
		Magnetometer:  capture.Vec3{X: 30, Y: 0, Z: 40},
	}
}

func NewTouchInput(ts, durationMS int64, dx, dy float64) capture.TouchInput {
	return capture.TouchInput{
		StartX:     100,
		StartY:     200,
		EndX:       100 + dx,
		EndY:       200 + dy,
		Timestamp:  ts,
		DurationMS: durationMS,
		Gesture:    capture.GestureTap,
	}
}

func NewKeystroke(ts, dwellMS int64, char string, inputType capture.InputType) capture.KeystrokeInput {
	return capture.KeystrokeInput{
		Character:   char,
		Timestamp:   ts,
		DwellTimeMS: dwellMS,
		X:           50,
		Y:           60,
		InputType:   inputType,
	}
}

// NewBehaviorData returns a minimal flushed record for storage and handler
// tests.
func NewBehaviorData(sessionID, userID string, scenario capture.Scenario, ts int64) *capture.BehaviorData {
	return &capture.BehaviorData{
		ID:        generateRecordID(),
		SessionID: sessionID,
		UserID:    userID,
		Scenario:  scenario,
		Timestamp: ts,
	}
}

// NewIngestBody builds a JSON ingest request body. Extra key/value pairs are
// spliced in with sjson paths, e.g. ("locationBehavior.latitude", 50.1).
func NewIngestBody(t *testing.T, sessionID, userID string, kvs ...interface{}) []byte {
	t.Helper()
	if len(kvs)%2 != 0 {
		t.Fatalf("NewIngestBody: odd number of key/values")
	}
	body := []byte(`{}`)
	var err error
	set := func(path string, v interface{}) {
		body, err = sjson.SetBytes(body, path, v)
		if err != nil {
			t.Fatalf("failed to set %s: %s", path, err)
		}
	}
	set("id", generateRecordID())
	set("sessionId", sessionID)
	set("userId", userID)
	set("scenario", string(capture.ScenarioRegular))
	set("timestamp", 1700000000000)
	for i := 0; i < len(kvs); i += 2 {
		set(kvs[i].(string), kvs[i+1])
	}
	return body
}
