// Package assistant forwards questions to the external retrieval assistant
// that searches archived project data.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned when no assistant URL is set.
var ErrNotConfigured = errors.New("assistant is not configured")

// ErrUnavailable wraps transport failures, timeouts and non-2xx responses.
var ErrUnavailable = errors.New("assistant is unavailable")

// Document is one ranked search hit.
type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Answer is the assistant's response to a query.
type Answer struct {
	Answer    string     `json:"answer,omitempty"`
	Documents []Document `json:"documents"`
}

type askRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Client calls the assistant's JSON endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient returns a client for url. An empty url yields a client whose
// Ask always returns ErrNotConfigured.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.url != ""
}

// Ask sends query to the assistant and returns at most limit documents.
func (c *Client) Ask(ctx context.Context, query string, limit int) (*Answer, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(askRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assistant request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			log.Warn().Err(err).Dur("timeout", c.timeout).Msg("Assistant request timed out")
		} else {
			log.Warn().Err(err).Msg("Assistant request failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		log.Warn().Int("status_code", resp.StatusCode).Msg("Assistant returned non-success status")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var answer Answer
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&answer); err != nil {
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}
	if answer.Documents == nil {
		answer.Documents = []Document{}
	}
	if len(answer.Documents) > limit {
		answer.Documents = answer.Documents[:limit]
	}

	log.Debug().
		Int("documents", len(answer.Documents)).
		Dur("duration", time.Since(start)).
		Msg("Assistant answered")
	return &answer, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
