package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

// client is a small JSON client for the rollcall API.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// do sends body as JSON and decodes a successful response into out. It
// returns the status code; codes outside want yield a *StatusError.
func (c *client) do(ctx context.Context, method, path string, body, out any, want ...int) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	ok := len(want) == 0 && resp.StatusCode < http.StatusMultipleChoices
	for _, code := range want {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return resp.StatusCode, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

type face struct {
	Descriptor []float64 `json:"descriptor"`
}

type frame struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
	Faces  []face `json:"faces"`
}

type enrollment struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Step      int    `json:"step"`
	State     string `json:"state"`
}

type identity struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

type faceResult struct {
	Outcome      string `json:"outcome"`
	IdentityID   int64  `json:"identity_id"`
	Marked       bool   `json:"marked"`
	Deduplicated bool   `json:"deduplicated"`
}

type report struct {
	Outcome string       `json:"outcome"`
	Faces   []faceResult `json:"faces"`
}

type ack struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type record struct {
	IdentityID int64   `json:"identity_id"`
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
}
