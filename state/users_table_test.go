package state

import (
	"testing"

	"github.com/trustsignal/behaviorsync/query"
)

func TestUsersTable(t *testing.T) {
	db, close := connectToDB(t)
	defer close()
	table := NewUsersTable(db)

	userID := "user-ut-1"
	assertNoError(t, table.Upsert(userID, "Alice", 1000))
	got, err := table.Select(userID)
	assertNoError(t, err)
	if got == nil || got.CreatedAt != 1000 || got.LastSeen != 1000 {
		t.Fatalf("unexpected row after insert: %+v", got)
	}
	if got.Status != "active" {
		t.Fatalf("new users default to active, got %q", got.Status)
	}

	// re-upsert bumps last_seen but keeps created_at
	assertNoError(t, table.Upsert(userID, "Alice", 2000))
	got, err = table.Select(userID)
	assertNoError(t, err)
	if got.CreatedAt != 1000 || got.LastSeen != 2000 {
		t.Fatalf("upsert should only bump last_seen: %+v", got)
	}

	assertNoError(t, table.UpdateLastSeen(userID, 3000))
	got, err = table.Select(userID)
	assertNoError(t, err)
	if got.LastSeen != 3000 {
		t.Fatalf("last_seen not updated: %+v", got)
	}

	missing, err := table.Select("user-ut-missing")
	assertNoError(t, err)
	if missing != nil {
		t.Fatalf("expected nil for unknown user, got %+v", missing)
	}
}

func TestUsersTableSelectPage(t *testing.T) {
	db, close := connectToDB(t)
	defer close()
	table := NewUsersTable(db)

	for i, id := range []string{"user-utp-a", "user-utp-b", "user-utp-c"} {
		assertNoError(t, table.Upsert(id, "", int64(1000+i)))
	}

	rows, total, err := table.SelectPage(query.Params{
		Pagination: query.Pagination{Page: 1, PageSize: 2},
		Filters:    query.Filters{Search: "user-utp-"},
		Sort:       query.Sort{Field: "userId", Direction: query.DirectionAsc},
	})
	assertNoError(t, err)
	if total != 3 {
		t.Fatalf("total: got %d want 3", total)
	}
	if len(rows) != 2 || rows[0].UserID != "user-utp-a" {
		t.Fatalf("wrong page content: %+v", rows)
	}

	rows, _, err = table.SelectPage(query.Params{
		Pagination: query.Pagination{Page: 2, PageSize: 2},
		Filters:    query.Filters{Search: "user-utp-"},
		Sort:       query.Sort{Field: "userId", Direction: query.DirectionAsc},
	})
	assertNoError(t, err)
	if len(rows) != 1 || rows[0].UserID != "user-utp-c" {
		t.Fatalf("wrong final page: %+v", rows)
	}
}
