package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/use-agent/reader/models"
)

// apiClient talks to the reader daemon.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// post sends payload to path and decodes the JSON reply into out. Error
// statuses still decode, since the daemon reports failures in the body.
func (c *apiClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return nil
}

func (c *apiClient) scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResponse, error) {
	var resp models.ScrapeResponse
	if err := c.post(ctx, "/api/v1/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) batch(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	var resp models.BatchResponse
	if err := c.post(ctx, "/api/v1/batch/scrape", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) crawl(ctx context.Context, req models.CrawlRequest) (*models.CrawlResponse, error) {
	var resp models.CrawlResponse
	if err := c.post(ctx, "/api/v1/crawl", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
