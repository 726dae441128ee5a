// Package llm is the thin client contract to the chunk-analysis LLM
// provider (C5). It never performs inference itself; it only shapes
// HTTP requests/responses and classifies failures into orcherr kinds,
// the way the teacher's internal/pkg/oauth.GithubOAuth wraps a plain
// net/http.Client around a JSON REST API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/qs3c/repoanalyzer/internal/orcherr"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompleteRequest struct {
	Messages    []Message `json:"messages"`
	ModelID     string    `json:"model"`
	TokenBudget int       `json:"max_tokens"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type CompleteResponse struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Adapter is the contract the Analyze stage depends on. The production
// client below and any test double both satisfy it.
type Adapter interface {
	Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error)
}

// Client is an HTTP-backed Adapter with independent request and hard
// timeouts, matching spec §4.5's T_req / T_hard contract.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	reqTimeout  time.Duration
	hardTimeout time.Duration
}

func NewClient(baseURL, apiKey string, reqTimeout, hardTimeout time.Duration) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: hardTimeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		reqTimeout:  reqTimeout,
		hardTimeout: hardTimeout,
	}
}

func (c *Client) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.reqTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, orcherr.Input("failed to marshal llm request", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, orcherr.Fatal("failed to build llm request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, orcherr.Transient("llm request timed out", err)
		}
		return nil, orcherr.Transient("llm request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, orcherr.RateLimited("llm provider rate limit", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 500:
		return nil, orcherr.Transient("llm provider server error", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, orcherr.Input("llm provider rejected request", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return nil, orcherr.Fatal("llm provider request failed", fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var out CompleteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, orcherr.Transient("failed to decode llm response", err)
	}
	return &out, nil
}
