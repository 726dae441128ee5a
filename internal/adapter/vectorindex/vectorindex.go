// Package vectorindex is the thin client contract to the vector-index
// service (C5). Grounded on the Python original's WebVectorizeRepoNode:
// batched create/add-documents against a RAG service, with a
// local_<id> fallback name when the service is unreachable so the
// pipeline degrades instead of failing outright.
package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/repoanalyzer/internal/orcherr"
)

type Document struct {
	Title     string `json:"title"`
	File      string `json:"file"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

type Chunk struct {
	File      string `json:"file"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Adapter is the contract the Index and Analyze stages depend on.
type Adapter interface {
	CreateIndex(ctx context.Context, documents []Document, vectorField string) (string, error)
	AddDocuments(ctx context.Context, indexName string, documents []Document) error
	Query(ctx context.Context, indexName, text string, k int) ([]Chunk, error)
	DeleteIndex(ctx context.Context, indexName string) error
}

// Client talks to a RAG-style HTTP service. Documents are sent in
// caller-controlled batches; on any create-index failure it falls
// back to a random local_<uuid> name rather than failing the
// stage, matching the original's degraded-mode behavior.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

func (c *Client) CreateIndex(ctx context.Context, documents []Document, vectorField string) (string, error) {
	indexName, err := c.postDocuments(ctx, documentsRequest{Documents: documents, VectorField: vectorField})
	if err != nil {
		return LocalFallbackName(), nil
	}
	return indexName, nil
}

func (c *Client) AddDocuments(ctx context.Context, indexName string, documents []Document) error {
	_, err := c.postDocuments(ctx, documentsRequest{Documents: documents, VectorField: "content", Index: indexName})
	return err
}

func (c *Client) Query(ctx context.Context, indexName, text string, k int) ([]Chunk, error) {
	if IsLocalFallback(indexName) {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{"index": indexName, "query": text, "k": k})
	if err != nil {
		return nil, orcherr.Input("failed to marshal vector query", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, orcherr.Fatal("failed to build vector query request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, orcherr.Transient("vector query failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, orcherr.Transient("vector query returned error status", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		Chunks []Chunk `json:"chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, orcherr.Transient("failed to decode vector query response", err)
	}
	return out.Chunks, nil
}

// DeleteIndex is idempotent: deleting a missing or local-fallback
// index is a success, per spec §4.5.
func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	if IsLocalFallback(indexName) {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/index/"+indexName, nil)
	if err != nil {
		return orcherr.Fatal("failed to build delete-index request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return orcherr.Transient("delete-index request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return orcherr.Transient("delete-index returned error status", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

type documentsRequest struct {
	Documents   []Document `json:"documents"`
	VectorField string     `json:"vector_field"`
	Index       string     `json:"index,omitempty"`
}

func (c *Client) postDocuments(ctx context.Context, reqBody documentsRequest) (string, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", orcherr.Input("failed to marshal documents request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", bytes.NewReader(body))
	if err != nil {
		return "", orcherr.Fatal("failed to build documents request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", orcherr.Transient("documents request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", orcherr.Transient("documents request returned error status", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		Index string `json:"index"`
		Count int    `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", orcherr.Transient("failed to decode documents response", err)
	}
	return out.Index, nil
}

// LocalFallbackName produces a fresh local_<uuid> index name, used
// when the remote vector service cannot create an index.
func LocalFallbackName() string {
	return "local_" + uuid.NewString()
}

func IsLocalFallback(indexName string) bool {
	return len(indexName) >= 6 && indexName[:6] == "local_"
}
