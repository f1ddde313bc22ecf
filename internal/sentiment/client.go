// Package sentiment scores text through an external model service and writes scores back in batches.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

const defaultTimeout = 5 * time.Second

// ClientConfig points the client at the scoring service.
type ClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// Client implements crawler.Scorer against a JSON scoring endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

type scoreRequest struct {
	Texts []string `json:"texts"`
}

type scoreResult struct {
	Positive *float64 `json:"positive"`
	Negative *float64 `json:"negative"`
}

type scoreResponse struct {
	Results []scoreResult `json:"results"`
}

// NewClient builds a Client. An empty endpoint yields a client that always reports ErrModelUnavailable.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		http:     &http.Client{Timeout: timeout},
	}
}

// Available reports whether a model endpoint is configured.
func (c *Client) Available() bool {
	return c != nil && c.endpoint != ""
}

// Score returns the positive-class probability for text.
func (c *Client) Score(ctx context.Context, text string) (float64, error) {
	if !c.Available() {
		return 0, crawler.ErrModelUnavailable
	}

	body, err := json.Marshal(scoreRequest{Texts: []string{text}})
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, &crawler.ModelError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &crawler.ModelError{Err: fmt.Errorf("http request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &crawler.ModelError{Err: fmt.Errorf("model service returned %d", resp.StatusCode)}
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, &crawler.ModelError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(decoded.Results) == 0 || decoded.Results[0].Positive == nil {
		return 0, &crawler.ModelError{Err: errors.New("response has no positive score")}
	}
	p := *decoded.Results[0].Positive
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, &crawler.ModelError{Err: fmt.Errorf("positive score %v is not finite", p)}
	}
	return p, nil
}
