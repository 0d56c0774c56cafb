package pubsub

import (
	"testing"
	"time"
)

type collector struct {
	ingested chan *BehaviorDataIngested
	rebuilt  chan *ProfileRebuilt
}

func (c *collector) OnBehaviorDataIngested(p *BehaviorDataIngested) { c.ingested <- p }
func (c *collector) OnProfileRebuilt(p *ProfileRebuilt)             { c.rebuilt <- p }

func TestPubSubRoundtrip(t *testing.T) {
	bus := NewPubSub(8)
	recv := &collector{
		ingested: make(chan *BehaviorDataIngested, 1),
		rebuilt:  make(chan *ProfileRebuilt, 1),
	}
	sub := NewIngestSub(bus, recv)
	go func() {
		if err := sub.Listen(); err != nil {
			t.Errorf("Listen: %s", err)
		}
	}()
	defer sub.Teardown()

	err := bus.Notify(ChanIngest, &BehaviorDataIngested{
		RecordID:  "r1",
		SessionID: "s1",
		UserID:    "u1",
		Timestamp: 1000,
	})
	if err != nil {
		t.Fatalf("Notify: %s", err)
	}
	select {
	case got := <-recv.ingested:
		if got.RecordID != "r1" || got.UserID != "u1" {
			t.Fatalf("wrong payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("ingest payload never delivered")
	}

	if err := bus.Notify(ChanIngest, &ProfileRebuilt{UserID: "u1"}); err != nil {
		t.Fatalf("Notify: %s", err)
	}
	select {
	case got := <-recv.rebuilt:
		if got.UserID != "u1" {
			t.Fatalf("wrong payload: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("rebuild payload never delivered")
	}
}

func TestPromNotifierPassthrough(t *testing.T) {
	bus := NewPubSub(8)
	wrapped := NewPromNotifier(bus, "test")
	defer wrapped.Close()

	got := make(chan Payload, 1)
	go bus.Listen(ChanAlerts, func(p Payload) { got <- p })

	if err := wrapped.Notify(ChanAlerts, &AlertRaised{SessionID: "s1", Reason: "r"}); err != nil {
		t.Fatalf("Notify: %s", err)
	}
	select {
	case p := <-got:
		alert, ok := p.(*AlertRaised)
		if !ok || alert.SessionID != "s1" {
			t.Fatalf("wrong payload: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("payload never delivered through wrapper")
	}
}
