// Package openmemory is a typed HTTP client over the external OpenMemory
// vector/memory service. The Gateway depends on exactly two calls: store
// and search. Any non-2xx response is wrapped as *APIError; transport
// failures are wrapped as *ConnectionError.
package openmemory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Client is an Interface implementation backed by net/http.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New builds a Client authenticating with a static API key. timeout
// bounds every request this client makes.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewOAuth2 builds a Client authenticating via OAuth2 client-credentials
// instead of a static API key — for deployments that front OpenMemory
// behind an OAuth2 token endpoint. The returned http.Client automatically
// fetches and refreshes the access token.
func NewOAuth2(ctx context.Context, baseURL, clientID, clientSecret, tokenURL string, timeout time.Duration) *Client {
	oauthCfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	httpClient := oauthCfg.Client(ctx)
	httpClient.Timeout = timeout
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// StoreResult is OpenMemory's response to a store call.
type StoreResult struct {
	Success  bool           `json:"success"`
	MemoryID string         `json:"memory_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// SearchResult is OpenMemory's response to a search call.
type SearchResult struct {
	Success bool             `json:"success"`
	Results []SearchHit      `json:"results,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// SearchHit is one matched record.
type SearchHit struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
}

type storeRequest struct {
	Content  string         `json:"content"`
	Space    string         `json:"space"`
	UserID   string         `json:"user_id,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type searchRequest struct {
	Query   string         `json:"query"`
	UserID  string         `json:"user_id,omitempty"`
	Limit   int            `json:"limit"`
	Filters map[string]any `json:"filters,omitempty"`
}

// Store persists content in space, returning the downstream memory id.
func (c *Client) Store(ctx context.Context, content, space, userID string, tags []string, metadata map[string]any) (*StoreResult, error) {
	body, err := json.Marshal(storeRequest{Content: content, Space: space, UserID: userID, Tags: tags, Metadata: metadata})
	if err != nil {
		return nil, &GenericError{Err: err}
	}

	var result StoreResult
	if err := c.do(ctx, http.MethodPost, "/v1/memories", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search queries OpenMemory for up to limit matches across filters.Spaces.
func (c *Client) Search(ctx context.Context, query, userID string, limit int, filters map[string]any) (*SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, UserID: userID, Limit: limit, Filters: filters})
	if err != nil {
		return nil, &GenericError{Err: err}
	}

	var result SearchResult
	if err := c.do(ctx, http.MethodPost, "/v1/memories/search", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &GenericError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &GenericError{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
