package query

import "testing"

func TestNewPageInfo(t *testing.T) {
	testCases := []struct {
		name       string
		page       int
		pageSize   int
		totalItems int
		wantPages  int
		wantNext   bool
		wantPrev   bool
	}{
		{name: "empty collection", page: 1, pageSize: 10, totalItems: 0, wantPages: 0, wantNext: false, wantPrev: false},
		{name: "single item", page: 1, pageSize: 10, totalItems: 1, wantPages: 1, wantNext: false, wantPrev: false},
		{name: "exactly one page", page: 1, pageSize: 10, totalItems: 10, wantPages: 1, wantNext: false, wantPrev: false},
		{name: "one item spills over", page: 1, pageSize: 10, totalItems: 11, wantPages: 2, wantNext: true, wantPrev: false},
		{name: "exactly two pages", page: 2, pageSize: 10, totalItems: 20, wantPages: 2, wantNext: false, wantPrev: true},
		{name: "23 items page 1", page: 1, pageSize: 10, totalItems: 23, wantPages: 3, wantNext: true, wantPrev: false},
		{name: "23 items page 2", page: 2, pageSize: 10, totalItems: 23, wantPages: 3, wantNext: true, wantPrev: true},
		{name: "23 items page 3", page: 3, pageSize: 10, totalItems: 23, wantPages: 3, wantNext: false, wantPrev: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NewPageInfo(tc.page, tc.pageSize, tc.totalItems)
			if got.TotalPages != tc.wantPages {
				t.Errorf("totalPages: got %d want %d", got.TotalPages, tc.wantPages)
			}
			if got.HasNextPage != tc.wantNext {
				t.Errorf("hasNextPage: got %v want %v", got.HasNextPage, tc.wantNext)
			}
			if got.HasPreviousPage != tc.wantPrev {
				t.Errorf("hasPreviousPage: got %v want %v", got.HasPreviousPage, tc.wantPrev)
			}
			if got.TotalItems != tc.totalItems || got.CurrentPage != tc.page {
				t.Errorf("metadata echo mismatch: %+v", got)
			}
		})
	}
}

func TestFiltersIsZero(t *testing.T) {
	if !(Filters{}).IsZero() {
		t.Fatalf("empty filters should be zero")
	}
	if (Filters{UserID: "u1"}).IsZero() {
		t.Fatalf("set filters should not be zero")
	}
}
