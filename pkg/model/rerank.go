package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anuj67851/genai-workflow-maker/internal/httpclient"
)

// RerankConfig configures the cross-encoder rerank client. The endpoint
// follows the common /rerank shape (Jina, Cohere, local TEI servers).
type RerankConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

func (c *RerankConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

func (c *RerankConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("rerank: base url is required")
	}
	return nil
}

// RerankClient implements RerankService over HTTP.
type RerankClient struct {
	config RerankConfig
	client *httpclient.Client
}

var _ RerankService = (*RerankClient)(nil)

func NewRerankClient(config RerankConfig) (*RerankClient, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RerankClient{
		config: config,
		client: httpclient.New(
			httpclient.WithTimeout(config.Timeout),
			httpclient.WithMaxRetries(config.MaxRetries),
		),
	}, nil
}

type rerankRequestPayload struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponsePayload struct {
	Results []RerankResult `json:"results"`
	Error   *apiError      `json:"error,omitempty"`
}

// Rerank scores each document against the query and returns the results the
// server produced, ordered by descending relevance.
func (c *RerankClient) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	payload := rerankRequestPayload{
		Model:     c.config.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank returned HTTP %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parsed rerankResponsePayload
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("rerank: %s", parsed.Error.Message)
	}

	// Fill in document texts so callers do not need to re-index.
	for i := range parsed.Results {
		idx := parsed.Results[i].Index
		if parsed.Results[i].Text == "" && idx >= 0 && idx < len(documents) {
			parsed.Results[i].Text = documents[idx]
		}
	}
	return parsed.Results, nil
}
