// Package zoning is the client for the external text-zoning service, which
// segments decision text into structural parts and extracts structured
// citation data from introductions.
package zoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jurisync/internal/domain"
)

//go:generate mockgen -source=client.go -destination=mock/mock_client.go -package=mock Client

// Citation is one prior-decision reference extracted from an introduction.
type Citation struct {
	// Number is the cited legal number (RG or pourvoi number).
	Number string `json:"number"`
	// Date is the cited decision date, ISO formatted.
	Date string `json:"date"`
	// Pourvoi marks citations carried by a pourvoi number; those
	// additionally resolve a legal-matter id through the case registry.
	Pourvoi bool `json:"pourvoi"`
}

// Client is the zoning service contract. Both calls are synchronous
// request/response with their own failure domain; failures are wrapped as
// *domain.ServiceError and are never fatal to a batch.
type Client interface {
	// Zone segments the given text into structural parts.
	Zone(ctx context.Context, id int64, source domain.Source, text string) (domain.ZoneMap, error)
	// Citations extracts prior-decision references from introduction text.
	Citations(ctx context.Context, id int64, source domain.Source, introduction string) ([]Citation, error)
}

// HTTPClient talks to the zoning service over HTTP.
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

type zoneRequest struct {
	ID     int64         `json:"id"`
	Source domain.Source `json:"source"`
	Text   string        `json:"text"`
}

// zoneResponse covers both the success and the error payload. A non-empty
// Detail means failure regardless of HTTP status.
type zoneResponse struct {
	Zones  map[string]any   `json:"zones"`
	Cites  []Citation       `json:"citations"`
	Detail *json.RawMessage `json:"detail"`
}

func (c *HTTPClient) post(ctx context.Context, path string, req zoneRequest) (zoneResponse, error) {
	fail := func(err error) (zoneResponse, error) {
		return zoneResponse{}, &domain.ServiceError{Service: "zoning", Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	var decoded zoneResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if decoded.Detail != nil {
		return fail(fmt.Errorf("service error payload: %s", string(*decoded.Detail)))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("status %d", resp.StatusCode))
	}
	return decoded, nil
}

func (c *HTTPClient) Zone(ctx context.Context, id int64, source domain.Source, text string) (domain.ZoneMap, error) {
	resp, err := c.post(ctx, "/zone", zoneRequest{ID: id, Source: source, Text: text})
	if err != nil {
		return nil, err
	}
	return domain.ZoneMap(resp.Zones), nil
}

func (c *HTTPClient) Citations(ctx context.Context, id int64, source domain.Source, introduction string) ([]Citation, error) {
	resp, err := c.post(ctx, "/citations", zoneRequest{ID: id, Source: source, Text: introduction})
	if err != nil {
		return nil, err
	}
	return resp.Cites, nil
}
