package state

import (
	"testing"

	"github.com/trustsignal/behaviorsync/capture"
	"github.com/trustsignal/behaviorsync/testutils"
)

func TestProfilesTableUpsert(t *testing.T) {
	db, close := connectToDB(t)
	defer close()
	table := NewProfilesTable(db)

	p := &BehaviourProfile{
		UserID:            "user-prof-1",
		DeviceFingerprint: "fp-old",
		SIMOperator:       "opA",
		LocationPatterns:  []LocationPattern{{Latitude: 52.37, Longitude: 4.89, Count: 3}},
	}
	assertNoError(t, table.Upsert(p, 1000))

	p.DeviceFingerprint = "fp-new"
	assertNoError(t, table.Upsert(p, 2000))

	got, err := table.Select("user-prof-1")
	assertNoError(t, err)
	if got == nil || got.DeviceFingerprint != "fp-new" {
		t.Fatalf("upsert should replace the profile: %+v", got)
	}
	if len(got.LocationPatterns) != 1 || got.LocationPatterns[0].Count != 3 {
		t.Fatalf("location patterns did not roundtrip: %+v", got.LocationPatterns)
	}

	missing, err := table.Select("user-prof-missing")
	assertNoError(t, err)
	if missing != nil {
		t.Fatalf("expected nil for unknown profile, got %+v", missing)
	}
}

func TestRebuildProfile(t *testing.T) {
	db, close := connectToDB(t)
	defer close()
	storage := NewStorageWithDB(db)
	userID := "user-prof-2"

	insert := func(ts int64, loc *capture.LocationBehavior, net *capture.NetworkBehavior, dev *capture.DeviceBehavior) {
		t.Helper()
		data := testutils.NewBehaviorData("sess-prof-2", userID, capture.ScenarioRegular, ts)
		data.LocationBehavior = loc
		data.NetworkBehavior = net
		data.DeviceBehavior = dev
		inserted, err := storage.BehaviorDataTable.Insert(data, ts)
		assertNoError(t, err)
		if !inserted {
			t.Fatalf("record not inserted")
		}
	}

	insert(1000,
		&capture.LocationBehavior{Latitude: 52.3702, Longitude: 4.8952},
		&capture.NetworkBehavior{SIMOperator: "opA"},
		&capture.DeviceBehavior{Fingerprint: "fp-1"})
	// same 2dp cell as the first fix
	insert(2000,
		&capture.LocationBehavior{Latitude: 52.3699, Longitude: 4.8951},
		nil, nil)
	// denied fixes never contribute a cell
	insert(3000,
		&capture.LocationBehavior{PermissionDenied: true},
		&capture.NetworkBehavior{SIMOperator: "opB"},
		nil)
	// different cell; later fingerprint wins
	insert(4000,
		&capture.LocationBehavior{Latitude: 48.8566, Longitude: 2.3522},
		&capture.NetworkBehavior{}, // empty operator must not clobber opB
		&capture.DeviceBehavior{Fingerprint: "fp-2"})

	p, err := storage.RebuildProfile(userID, 5000)
	assertNoError(t, err)
	if p.DeviceFingerprint != "fp-2" {
		t.Fatalf("latest fingerprint should win, got %q", p.DeviceFingerprint)
	}
	if p.SIMOperator != "opB" {
		t.Fatalf("latest non-empty SIM operator should win, got %q", p.SIMOperator)
	}
	if len(p.LocationPatterns) != 2 {
		t.Fatalf("expected 2 location cells, got %+v", p.LocationPatterns)
	}
	first := p.LocationPatterns[0]
	if first.Latitude != 52.37 || first.Longitude != 4.9 || first.Count != 2 {
		t.Fatalf("wrong first cell: %+v", first)
	}
	if p.LocationPatterns[1].Count != 1 {
		t.Fatalf("wrong second cell: %+v", p.LocationPatterns[1])
	}

	// rebuild persisted the profile
	stored, err := storage.ProfilesTable.Select(userID)
	assertNoError(t, err)
	if stored == nil || stored.DeviceFingerprint != "fp-2" {
		t.Fatalf("rebuilt profile not stored: %+v", stored)
	}
}
