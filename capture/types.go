package capture

import (
	"math"
	"os"

	"github.com/rs/zerolog"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger().Output(zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: "15:04:05",
})

// Scenario identifies why a capture session exists.
type Scenario string

const (
	ScenarioFirstRegistration Scenario = "first-time-registration"
	ScenarioReRegistration    Scenario = "re-registration"
	ScenarioRegular           Scenario = "regular-session"
)

// GestureType classifies a touch event. New gesture kinds may be added; consumers
// must treat unknown values as opaque rather than rejecting them.
type GestureType string

const (
	GestureTap GestureType = "tap"
)

// InputType classifies which logical input field a typing pattern was captured on.
type InputType string

const (
	InputMobile InputType = "mobile"
	InputAmount InputType = "amount"
	InputText   InputType = "text"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// MotionSample is one reading from the motion sensors. RotationRate and
// MotionMagnitude are derived from the gyroscope and accelerometer vectors by the
// aggregator, never supplied by the sensor boundary.
type MotionSample struct {
	Timestamp       int64   `json:"timestamp"`
	RotationRate    float64 `json:"rotationRate"`
	Gyroscope       Vec3    `json:"gyroscope"`
	Accelerometer   Vec3    `json:"accelerometer"`
	MotionMagnitude float64 `json:"motionMagnitude"`
	Magnetometer    Vec3    `json:"magnetometer"`
}

// MotionPattern is an ordered sequence of samples captured over one sampling
// window. Duration and SampleRateHz are filled in when the window is closed.
type MotionPattern struct {
	Samples      []MotionSample `json:"samples"`
	SampleRateHz float64        `json:"sampleRateHz"`
	DurationMS   int64          `json:"duration"`
	closed       bool
}

// TouchEvent is a single gesture. Distance and Velocity are derived.
type TouchEvent struct {
	StartX      float64     `json:"startX"`
	StartY      float64     `json:"startY"`
	EndX        float64     `json:"endX"`
	EndY        float64     `json:"endY"`
	Timestamp   int64       `json:"timestamp"`
	DurationMS  int64       `json:"duration"`
	Distance    float64     `json:"distance"`
	Velocity    float64     `json:"velocity"`
	GestureType GestureType `json:"gestureType"`
}

// TouchPattern is the set of touch events collected in one capture window.
// Event order within the pattern carries no meaning.
type TouchPattern struct {
	Events []TouchEvent `json:"events"`
}

// Keystroke is one key press. FlightTime is the gap since the previous
// keystroke's release; the first keystroke in a pattern always has FlightTime 0.
type Keystroke struct {
	Character   string  `json:"character"`
	Timestamp   int64   `json:"timestamp"`
	DwellTimeMS int64   `json:"dwellTime"`
	FlightTime  int64   `json:"flightTime"`
	CoordinateX float64 `json:"coordinate_x"`
	CoordinateY float64 `json:"coordinate_y"`
}

// TypingPattern is an ordered keystroke sequence for one logical input field
// interaction.
type TypingPattern struct {
	Keystrokes []Keystroke `json:"keystrokes"`
	InputType  InputType   `json:"inputType"`
	closed     bool
}

// DeviceBehavior is a point-in-time snapshot of device attributes, captured once
// per session. Unknown fields are explicit empty strings / zeroes, never omitted.
type DeviceBehavior struct {
	Timestamp     int64  `json:"timestamp"`
	Platform      string `json:"platform"`
	Model         string `json:"model"`
	OSName        string `json:"osName"`
	OSVersion     string `json:"osVersion"`
	Fingerprint   string `json:"fingerprint"`
	TotalMemoryMB uint64 `json:"totalMemoryMb"`
}

// LocationBehavior is a point-in-time snapshot of coarse location. When the
// location permission is denied the PermissionDenied sentinel is set and the
// coordinate fields are zero; a denied sensor never aborts the session.
type LocationBehavior struct {
	Timestamp        int64   `json:"timestamp"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	AccuracyM        float64 `json:"accuracy"`
	PermissionDenied bool    `json:"permissionDenied"`
}

// NetworkBehavior is a point-in-time snapshot of network attributes.
type NetworkBehavior struct {
	Timestamp      int64    `json:"timestamp"`
	ConnectionType string   `json:"connectionType"`
	SIMOperator    string   `json:"simOperator"`
	IPAddress      string   `json:"ipAddress"`
	Interfaces     []string `json:"interfaces"`
}

// BehaviorData is the flushed, persisted record. It is immutable once
// transmitted: corrections require a new record with a new ID, never an update.
type BehaviorData struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	Scenario  Scenario `json:"scenario"`
	Timestamp int64    `json:"timestamp"`
	// assigned by the server on persistence, zero on the wire from the client
	CreatedAt int64 `json:"createdAt,omitempty"`
	UpdatedAt int64 `json:"updatedAt,omitempty"`

	MotionPatterns []MotionPattern `json:"motionPattern"`
	TouchPatterns  []TouchPattern  `json:"touchPatterns"`
	TypingPatterns []TypingPattern `json:"typingPatterns"`

	LocationBehavior *LocationBehavior `json:"locationBehavior"`
	NetworkBehavior  *NetworkBehavior  `json:"networkBehavior"`
	DeviceBehavior   *DeviceBehavior   `json:"deviceBehavior"`
}

// EventKind discriminates raw events at the aggregation boundary.
type EventKind string

const (
	KindMotionSample EventKind = "motion-sample"
	KindTouchEvent   EventKind = "touch-event"
	KindKeystroke    EventKind = "keystroke"
)

// Event is the tagged union of raw sensor callbacks. The set of implementations
// is closed: the aggregator switches exhaustively over it.
type Event interface {
	Kind() EventKind
	At() int64
}

// MotionEvent is a raw motion reading from the sensor provider.
type MotionEvent struct {
	Timestamp     int64
	Gyroscope     Vec3
	Accelerometer Vec3
	Magnetometer  Vec3
}

func (MotionEvent) Kind() EventKind { return KindMotionSample }
func (e MotionEvent) At() int64     { return e.Timestamp }

// TouchInput is a raw touch gesture from the sensor provider.
type TouchInput struct {
	StartX, StartY float64
	EndX, EndY     float64
	Timestamp      int64
	DurationMS     int64
	Gesture        GestureType
}

func (TouchInput) Kind() EventKind { return KindTouchEvent }
func (e TouchInput) At() int64     { return e.Timestamp }

// KeystrokeInput is a raw key press from the sensor provider. InputType names the
// logical field being typed into; a change of field starts a new typing pattern.
type KeystrokeInput struct {
	Character   string
	Timestamp   int64
	DwellTimeMS int64
	X, Y        float64
	InputType   InputType
}

func (KeystrokeInput) Kind() EventKind { return KindKeystroke }
func (e KeystrokeInput) At() int64     { return e.Timestamp }
