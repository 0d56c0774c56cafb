package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Fetcher retrieves one page of a remote collection. Timeouts are owned by the
// underlying http.Client; a timeout is treated identically to any other fetch
// failure by the cache.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, params Params) (*Response[T], error)
}

// HTTPFetcher posts query params to a collection endpoint, e.g
// /api/sessions/query, and decodes the {data, pagination} response.
type HTTPFetcher[T any] struct {
	Client      *http.Client
	URL         string
	AccessToken string
}

func (f *HTTPFetcher[T]) Fetch(ctx context.Context, params Params) (*Response[T], error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("Fetch: marshal params failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", f.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Fetch: NewRequest failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.AccessToken)
	}
	res, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Fetch: request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("Fetch: response returned %s", res.Status)
	}
	var resp Response[T]
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("Fetch: response body decode JSON failed: %w", err)
	}
	return &resp, nil
}
