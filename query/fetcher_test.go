package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params Params
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("bad params: %s", err)
		}
		if params.Filters.UserID != "u1" || params.Pagination.Page != 2 {
			t.Errorf("params not carried: %+v", params)
		}
		resp := Response[row]{
			Data:       []row{{ID: "x"}},
			Pagination: NewPageInfo(2, 10, 11),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	f := &HTTPFetcher[row]{Client: srv.Client(), URL: srv.URL + "/api/sessions/query"}
	resp, err := f.Fetch(context.Background(), Params{
		Pagination: Pagination{Page: 2, PageSize: 10},
		Filters:    Filters{UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("Fetch: %s", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "x" {
		t.Fatalf("wrong data: %+v", resp.Data)
	}
	if !resp.Pagination.HasPreviousPage || resp.Pagination.HasNextPage {
		t.Fatalf("wrong pagination echo: %+v", resp.Pagination)
	}
}

func TestHTTPFetcherNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer srv.Close()

	f := &HTTPFetcher[row]{Client: srv.Client(), URL: srv.URL}
	if _, err := f.Fetch(context.Background(), Params{}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
