package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/delegation-hub/delegation-hub/internal/application/scoring"
)

// Client calls an external suitability prediction service over HTTP.
// The caller bounds each request with a context deadline; any transport
// or decoding error surfaces to the scorer, which falls back to registry
// strengths.
type Client struct {
	url    string
	client *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			// Hard cap behind the per-call context deadline.
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Predict(ctx context.Context, req scoring.PredictionRequest) ([]scoring.PredictedScore, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction service returned %d", resp.StatusCode)
	}

	var scores []scoring.PredictedScore
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("decode prediction response: %w", err)
	}
	return scores, nil
}
