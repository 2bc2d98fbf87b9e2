package cohort

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/gateway/httpclient"
)

// SearchClient calls the search execution service.
type SearchClient struct {
	baseURL  string
	client   *http.Client
	attempts int
	backoff  time.Duration
}

func NewSearchClient(baseURL string, timeout time.Duration, attempts int) *SearchClient {
	return &SearchClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   httpclient.New(timeout),
		attempts: attempts,
		backoff:  200 * time.Millisecond,
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *SearchClient) WithHTTPClient(client *http.Client) *SearchClient {
	c.client = client
	return c
}

// Search runs a full request and returns the matching subjects.
func (c *SearchClient) Search(ctx context.Context, req models.SearchRequest) (models.SearchResult, error) {
	var result models.SearchResult
	if err := c.post(ctx, "/search", req, &result); err != nil {
		return models.SearchResult{}, err
	}
	return result, nil
}

// CountGroup returns the participant count of a single group.
func (c *SearchClient) CountGroup(ctx context.Context, group models.SearchGroup) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.post(ctx, "/groups/count", group, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Match adapts Search to GroupMatcher so saved definitions can be evaluated
// against the search service one group at a time.
func (c *SearchClient) Match(ctx context.Context, group models.SearchGroup) (Set, error) {
	result, err := c.Search(ctx, models.SearchRequest{Includes: []models.SearchGroup{group}})
	if err != nil {
		return nil, err
	}
	s := make(Set, len(result.Subjects))
	for _, subject := range result.Subjects {
		s[subject.ParticipantID] = struct{}{}
	}
	return s, nil
}

func (c *SearchClient) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return httpclient.Retry(ctx, c.attempts, c.backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &httpclient.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	})
}
