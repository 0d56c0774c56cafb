package state

import "testing"

func TestAlertsTable(t *testing.T) {
	db, close := connectToDB(t)
	defer close()
	table := NewAlertsTable(db)

	sessionID := "sess-alert-1"
	id1, err := table.Insert(sessionID, "user-alert-1", "impossible travel", 1000)
	assertNoError(t, err)
	id2, err := table.Insert(sessionID, "user-alert-1", "velocity anomaly", 2000)
	assertNoError(t, err)
	if id2 <= id1 {
		t.Fatalf("alert IDs should be monotonic: %d then %d", id1, id2)
	}

	alerts, err := table.SelectBySessionID(sessionID)
	assertNoError(t, err)
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	if alerts[0].Reason != "impossible travel" || alerts[1].Reason != "velocity anomaly" {
		t.Fatalf("alerts out of order: %+v", alerts)
	}

	none, err := table.SelectBySessionID("sess-alert-none")
	assertNoError(t, err)
	if len(none) != 0 {
		t.Fatalf("expected no alerts, got %+v", none)
	}
}
