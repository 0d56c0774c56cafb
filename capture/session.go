package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionState is the lifecycle state of a Recorder.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateActive
	StateFlushing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateFlushing:
		return "flushing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Analytics is a read-only view of the current buffer state.
type Analytics struct {
	SessionDuration time.Duration
	EventCounts     map[EventKind]int
	LastActivity    time.Time
}

// Recorder owns one active session: its identity and its accumulated pattern
// collections. It is a single-writer resource; all of its methods serialize on
// one mutex, and the snapshot-and-clear step in Snapshot executes entirely under
// that mutex so no event can be lost or double-counted across a flush boundary.
type Recorder struct {
	mu sync.Mutex

	state     SessionState
	sessionID string
	userID    string
	scenario  Scenario
	startedAt time.Time

	cols         *Collections
	lastActivity time.Time

	device   *DeviceBehavior
	location *LocationBehavior
	network  *NetworkBehavior
	// set once the point-in-time snapshots have been carried by a flushed
	// record, so an eventless flush cycle doesn't emit duplicate records
	snapshotsSent bool

	now    func() time.Time
	logger zerolog.Logger
}

// NewRecorder creates a recorder in the uninitialized state under a provisional
// session ID. Events recorded before Activate are buffered and re-tagged with
// the user identity when authentication completes; re-tagging never reorders
// the buffers.
func NewRecorder(limits Limits) *Recorder {
	sessionID := uuid.NewString()
	return &Recorder{
		state:     StateUninitialized,
		sessionID: sessionID,
		cols:      NewCollections(limits),
		now:       time.Now,
		logger:    logger.With().Str("session", sessionID).Logger(),
	}
}

// SessionID is stable for the recorder's lifetime.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Recorder) State() SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Activate assigns the user identity and scenario once authentication has
// completed, transitioning uninitialized -> active. Events buffered under the
// provisional session are retained in capture order.
func (r *Recorder) Activate(userID string, scenario Scenario) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		r.logger.Warn().Msg("Activate called on closed session, ignoring")
		return
	}
	r.userID = userID
	r.scenario = scenario
	if r.state == StateUninitialized {
		r.state = StateActive
		r.startedAt = r.now()
	}
	r.logger.Info().Str("user", userID).Str("scenario", string(scenario)).Msg("session activated")
}

// RecordEvent folds one raw event into the session buffers. It is
// fire-and-forget: it never blocks the caller beyond the buffer append, and a
// closed session silently drops events rather than erroring.
func (r *Recorder) RecordEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	if r.startedAt.IsZero() {
		// provisional session: first event starts the capture window
		r.startedAt = r.now()
	}
	r.cols.Fold(ev)
	r.lastActivity = r.now()
}

// CloseMotionWindow finalizes the in-progress motion sampling window.
func (r *Recorder) CloseMotionWindow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cols.CloseMotionWindow()
}

// CloseTypingPattern finalizes the in-progress typing pattern, e.g on field blur.
func (r *Recorder) CloseTypingPattern() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cols.CloseTypingPattern()
}

// SetDeviceBehavior records the once-per-session device snapshot.
func (r *Recorder) SetDeviceBehavior(d *DeviceBehavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.device = d
}

// SetLocationBehavior records the location snapshot. A permission-denied
// snapshot is stored as-is: sentinel data, never an error.
func (r *Recorder) SetLocationBehavior(l *LocationBehavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.location = l
}

// SetNetworkBehavior records the once-per-session network snapshot.
func (r *Recorder) SetNetworkBehavior(n *NetworkBehavior) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.network = n
}

// Snapshot atomically snapshots all pattern collections and clears the buffers.
// There is no suspension point between reading the buffers and clearing them:
// events recorded before the call appear in the returned record, events recorded
// after it appear only in the next one. Returns nil if the session is not active
// or there is nothing to flush.
//
// The session continues under the same session ID with fresh buffers.
func (r *Recorder) Snapshot() *BehaviorData {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateActive && r.state != StateFlushing {
		return nil
	}
	if r.cols.Empty() && (r.snapshotsSent || (r.device == nil && r.location == nil && r.network == nil)) {
		return nil
	}
	r.cols.CloseMotionWindow()
	r.cols.CloseTypingPattern()
	data := &BehaviorData{
		ID:               uuid.NewString(),
		SessionID:        r.sessionID,
		UserID:           r.userID,
		Scenario:         r.scenario,
		Timestamp:        r.now().UnixMilli(),
		MotionPatterns:   r.cols.Motion,
		TouchPatterns:    r.cols.Touch,
		TypingPatterns:   r.cols.Typing,
		DeviceBehavior:   r.device,
		LocationBehavior: r.location,
		NetworkBehavior:  r.network,
	}
	// clear in the same critical section as the read
	r.cols = NewCollections(r.cols.Limits)
	r.snapshotsSent = true
	r.state = StateFlushing
	return data
}

// FlushDone transitions flushing -> active after the snapshot has been handed to
// the sync queue. A reset that happened while the flush was in flight wins: the
// session stays closed.
func (r *Recorder) FlushDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateFlushing {
		r.state = StateActive
	}
}

// Reset discards all buffers and closes the session. It is idempotent: resetting
// an already-closed session is a no-op, not an error. A flush already in flight
// is not cancelled; captured data still reaches the remote endpoint, but no new
// events attach to this session.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.cols = NewCollections(r.cols.Limits)
	r.device = nil
	r.location = nil
	r.network = nil
	r.state = StateClosed
	r.logger.Info().Msg("session reset")
}

// Analytics always succeeds from current buffer state.
func (r *Recorder) Analytics() Analytics {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dur time.Duration
	if !r.startedAt.IsZero() {
		dur = r.now().Sub(r.startedAt)
	}
	return Analytics{
		SessionDuration: dur,
		EventCounts:     r.cols.EventCount(),
		LastActivity:    r.lastActivity,
	}
}
