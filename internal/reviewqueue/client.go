// Package reviewqueue is the client for the external publicity-review queue,
// where decisions whose public status needs human adjudication are parked.
package reviewqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"jurisync/internal/domain"
)

// Item is one queued decision, keyed by (SourceID, SourceDB).
type Item struct {
	SourceID              int64         `json:"sourceId"`
	SourceDB              domain.Source `json:"sourceDb"`
	DecisionDate          string        `json:"decisionDate"`
	JurisdictionName      string        `json:"jurisdictionName"`
	FieldCode             string        `json:"fieldCode"`
	PublicityClerkRequest string        `json:"publicityClerkRequest"`
}

// Key is the delete-by-key identifier.
func (i Item) Key() string {
	return domain.Key(i.SourceDB, i.SourceID)
}

// Client submits, polls, and resolves review-queue batches. All failures are
// wrapped as *domain.ServiceError; callers persist without the annotation
// and retry on a later run.
type Client interface {
	Submit(ctx context.Context, items []Item) error
	PollReleasable(ctx context.Context) ([]Item, error)
	PollNonPublic(ctx context.Context) ([]Item, error)
	Delete(ctx context.Context, key string) error
}

// HTTPClient talks to the queue over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client with a bounded per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func wrap(err error) error {
	return &domain.ServiceError{Service: "review-queue", Err: err}
}

func (c *HTTPClient) Submit(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	body, err := json.Marshal(items)
	if err != nil {
		return wrap(fmt.Errorf("marshal batch: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return wrap(fmt.Errorf("submit status %d", resp.StatusCode))
	}
	return nil
}

func (c *HTTPClient) poll(ctx context.Context, path string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, wrap(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, wrap(fmt.Errorf("poll %s status %d", path, resp.StatusCode))
	}
	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, wrap(fmt.Errorf("decode %s: %w", path, err))
	}
	return items, nil
}

// PollReleasable returns decisions adjudicated as publishable.
func (c *HTTPClient) PollReleasable(ctx context.Context) ([]Item, error) {
	return c.poll(ctx, "/batches/releasable")
}

// PollNonPublic returns decisions adjudicated as non-public.
func (c *HTTPClient) PollNonPublic(ctx context.Context) ([]Item, error) {
	return c.poll(ctx, "/batches/non-public")
}

// Delete removes a resolved item by its "source:id" key.
func (c *HTTPClient) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/batches/"+url.PathEscape(key), nil)
	if err != nil {
		return wrap(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return wrap(fmt.Errorf("delete status %d", resp.StatusCode))
	}
	return nil
}
