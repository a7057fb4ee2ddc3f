package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	maxErrorBody         = 512
)

// remoteResponse is the JSON contract of the embedding service.
type remoteResponse struct {
	Faces []struct {
		Descriptor []float64    `json:"descriptor"`
		Box        model.Region `json:"box"`
	} `json:"faces"`
}

// Remote posts the raw frame image to an embedding service and decodes the
// descriptors it returns.
type Remote struct {
	url    string
	client *http.Client
}

// RemoteOption applies a configuration option to Remote.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		if c != nil {
			r.client = c
		}
	}
}

// NewRemote creates an extractor calling url.
func NewRemote(url string, opts ...RemoteOption) *Remote {
	r := &Remote{
		url:    url,
		client: &http.Client{Timeout: defaultRemoteTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extract implements model.Extractor.
func (r *Remote) Extract(ctx context.Context, frame model.Frame) ([]model.Face, error) {
	if len(frame.Image) == 0 {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(frame.Image))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrRemote, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemote, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrRemote, err)
	}
	faces := make([]model.Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		faces = append(faces, model.Face{Descriptor: f.Descriptor, Region: f.Box})
	}
	return faces, nil
}
