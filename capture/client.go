package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

var ClientVersion = ""

// Uploader transmits one finalized snapshot to the remote persistence endpoint.
// The wire format is a single flat JSON object; success is any 2xx response.
type Uploader interface {
	Upload(ctx context.Context, data *BehaviorData) error
}

// AlertSender fires the out-of-band alert channel. Alerts are raised by
// collaborators inspecting finalized snapshots, not by the capture core itself.
type AlertSender interface {
	SendAlert(ctx context.Context, sessionID, userID, reason string) error
}

// HTTPClient talks to the behaviorsync persistence endpoint.
// One client can be shared among many sessions.
type HTTPClient struct {
	Client      *http.Client
	BaseURL     string
	AccessToken string
}

func (c *HTTPClient) Upload(ctx context.Context, data *BehaviorData) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("Upload: marshal failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/data/regular", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Upload: NewRequest failed: %w", err)
	}
	c.setHeaders(req)
	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("Upload: request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 == 2 {
		return nil
	}
	return fmt.Errorf("Upload: response returned %s: %s", res.Status, errorFromBody(res.Body))
}

func (c *HTTPClient) SendAlert(ctx context.Context, sessionID, userID, reason string) error {
	body, _ := json.Marshal(map[string]string{
		"sessionId": sessionID,
		"userId":    userID,
		"reason":    reason,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/api/alert", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("SendAlert: NewRequest failed: %w", err)
	}
	c.setHeaders(req)
	res, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("SendAlert: request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 == 2 {
		return nil
	}
	return fmt.Errorf("SendAlert: response returned %s: %s", res.Status, errorFromBody(res.Body))
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "behaviorsync-client-"+ClientVersion)
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
}

// errorFromBody plucks the error message out of a failure response body,
// tolerating bodies which aren't JSON at all.
func errorFromBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if msg := gjson.ParseBytes(b).Get("error"); msg.Exists() {
		return msg.Str
	}
	return string(b)
}
