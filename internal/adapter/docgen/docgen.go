// Package docgen is the thin client contract to the document-generation
// service (C5): a submit-then-poll adapter grounded on the Python
// original's execute_step_3_generate_document_structure, which uploads
// a local artifact before polling a remote task id for completion.
package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/qs3c/repoanalyzer/internal/orcherr"
)

type Options struct {
	RepoFullName string `json:"repo_full_name"`
	VectorIndex  string `json:"vector_index"`
}

type StatusResult struct {
	Progress     int    `json:"progress"`
	CurrentStage string `json:"current_stage"`
	Markdown     string `json:"markdown,omitempty"`
	Error        string `json:"error,omitempty"`
	Done         bool   `json:"done"`
}

// Adapter is the contract the Document stage depends on.
type Adapter interface {
	Submit(ctx context.Context, localPath string, opts Options) (string, error)
	Status(ctx context.Context, remoteTaskID string) (*StatusResult, error)
}

// Client uploads an optional local artifact then submits a remote
// document-generation job, returning a remote task id for polling.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// Submit uploads localPath (if non-empty) then asks the service to
// begin generating documentation, returning a correlation id used for
// both polling and log correlation.
func (c *Client) Submit(ctx context.Context, localPath string, opts Options) (string, error) {
	correlationID := uuid.NewString()

	if localPath != "" {
		if err := c.uploadArtifact(ctx, localPath, correlationID); err != nil {
			return "", err
		}
	}

	body, err := json.Marshal(struct {
		CorrelationID string `json:"correlation_id"`
		Options
	}{CorrelationID: correlationID, Options: opts})
	if err != nil {
		return "", orcherr.Input("failed to marshal docgen submit request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", orcherr.Fatal("failed to build docgen submit request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", orcherr.Transient("docgen submit request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", orcherr.RateLimited("docgen service rate limit", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return "", orcherr.Transient("docgen service error", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return "", orcherr.Fatal("docgen submit rejected", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		RemoteTaskID string `json:"remote_task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", orcherr.Transient("failed to decode docgen submit response", err)
	}
	return out.RemoteTaskID, nil
}

func (c *Client) uploadArtifact(ctx context.Context, localPath, correlationID string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return orcherr.Fatal("failed to read local document artifact", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/artifacts/"+correlationID, bytes.NewReader(data))
	if err != nil {
		return orcherr.Fatal("failed to build docgen upload request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return orcherr.Transient("docgen artifact upload failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return orcherr.Transient("docgen artifact upload server error", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return orcherr.Fatal("docgen artifact upload rejected", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// Status polls the remote job. A permanent failure reported by the
// service is surfaced as a Fatal orcherr so the driver can fail the
// task rather than retry forever.
func (c *Client) Status(ctx context.Context, remoteTaskID string) (*StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+remoteTaskID, nil)
	if err != nil {
		return nil, orcherr.Fatal("failed to build docgen status request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, orcherr.Transient("docgen status request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, orcherr.Transient("docgen status service error", fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, orcherr.Fatal("docgen status request rejected", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, orcherr.Transient("failed to decode docgen status response", err)
	}
	if out.Error != "" {
		return &out, orcherr.Fatal("document generation reported permanent failure: "+out.Error, nil)
	}
	return &out, nil
}
