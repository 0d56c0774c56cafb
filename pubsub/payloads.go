package pubsub

// The channel which has ingest-side payloads
const ChanIngest = "ingestch"

// The channel which has alert payloads
const ChanAlerts = "alertch"

// IngestListener is implemented by components which react to newly persisted
// behavior records, e.g the profile builder.
type IngestListener interface {
	OnBehaviorDataIngested(p *BehaviorDataIngested)
	OnProfileRebuilt(p *ProfileRebuilt)
}

type AlertListener interface {
	OnAlertRaised(p *AlertRaised)
}

type BehaviorDataIngested struct {
	RecordID  string
	SessionID string
	UserID    string
	// unix millis of the client-side capture timestamp
	Timestamp int64
}

func (b BehaviorDataIngested) Type() string { return "i" }

type ProfileRebuilt struct {
	UserID string
}

func (b ProfileRebuilt) Type() string { return "p" }

type AlertRaised struct {
	SessionID string
	UserID    string
	Reason    string
}

func (b AlertRaised) Type() string { return "al" }

// IngestSub is a subscriber to ingest payloads, dispatching each payload to the
// right function on the listener.
type IngestSub struct {
	listener Listener
	receiver IngestListener
}

func NewIngestSub(l Listener, recv IngestListener) *IngestSub {
	return &IngestSub{
		listener: l,
		receiver: recv,
	}
}

func (s *IngestSub) Teardown() {
	_ = s.listener.Close()
}

func (s *IngestSub) onMessage(p Payload) {
	switch pl := p.(type) {
	case *BehaviorDataIngested:
		s.receiver.OnBehaviorDataIngested(pl)
	case *ProfileRebuilt:
		s.receiver.OnProfileRebuilt(pl)
	}
}

// Listen blocks until Teardown is called.
func (s *IngestSub) Listen() error {
	return s.listener.Listen(ChanIngest, s.onMessage)
}
