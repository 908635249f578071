// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cablewatch/cablemap/pkg/core"
)

const (
	cutsFetchPath  = "/fetch-cable-cuts"
	cutsCreatePath = "/cable-cuts"
	cutsDeletePath = "/delete-cable-cuts"

	maxErrorBody = 512
)

// Client handles communication with the cable data service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client. The http.Client carries no timeout: every call is
// bounded by its context, which the pollers cancel when a newer cycle starts.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Healthcheck checks if the data service is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, cutsFetchPath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchRoute loads the raw RPL records for a segment path such as "/sjc2-rpl-s1".
func (c *Client) FetchRoute(ctx context.Context, path string) ([]core.RouteRecord, error) {
	var records []core.RouteRecord
	if err := c.getJSON(ctx, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchCuts loads every fault across all cables and segments.
func (c *Client) FetchCuts(ctx context.Context) ([]core.CutRecord, error) {
	var cuts []core.CutRecord
	if err := c.getJSON(ctx, cutsFetchPath, &cuts); err != nil {
		return nil, err
	}
	return cuts, nil
}

// CreateCut persists a fault. A 409 response matches ErrConflict, 5xx matches ErrServer.
func (c *Client) CreateCut(ctx context.Context, cut core.CutRecord) error {
	body, err := json.Marshal(cut)
	if err != nil {
		return fmt.Errorf("failed to encode cut: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, cutsCreatePath, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// DeleteCuts clears every fault in the backend store.
func (c *Client) DeleteCuts(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, cutsDeletePath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return wrapTransport(ctx, "GET "+path, err)
		}
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// do issues the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport(ctx, method+" "+path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}
