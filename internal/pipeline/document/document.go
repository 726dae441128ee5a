// Package document implements Stage 3 of the pipeline driver: submit
// the repository path to the Document-Generation adapter, then poll
// its status at a fixed interval until completion, failure, or
// timeout, grounded on the Python original's
// execute_step_3_generate_document_structure two-phase shape.
package document

import (
	"context"
	"time"

	"github.com/qs3c/repoanalyzer/internal/adapter/docgen"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
)

// Outcome is the terminal result of driving the Document stage.
type Outcome struct {
	RemoteTaskID string
	Markdown     string
	LastProgress int
}

// Run submits localPath and polls until the adapter reports done,
// reports a permanent error, or pollInterval*attempts exceeds maxTotal.
// onProgress is invoked after every poll so the driver can push a
// progress update without this package depending on the store.
func Run(ctx context.Context, adapter docgen.Adapter, localPath string, opts docgen.Options, pollInterval, maxTotal time.Duration, onProgress func(remoteTaskID string, progress int)) (*Outcome, error) {
	remoteTaskID, err := adapter.Submit(ctx, localPath, opts)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(maxTotal)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := adapter.Status(ctx, remoteTaskID)
		switch {
		case err == nil:
			lastErr = nil
			if onProgress != nil {
				onProgress(remoteTaskID, status.Progress)
			}
			if status.Done {
				if status.Markdown == "" {
					return nil, orcherr.Fatal("document generation completed without markdown", nil)
				}
				return &Outcome{RemoteTaskID: remoteTaskID, Markdown: status.Markdown, LastProgress: status.Progress}, nil
			}
		case isRetryable(err):
			// A transient poll failure (5xx, network blip) is absorbed
			// by the poll budget; only the deadline makes it terminal.
			lastErr = err
		default:
			return nil, err
		}

		if time.Now().After(deadline) {
			if lastErr != nil {
				return nil, orcherr.Fatal("document generation exceeded poll budget", lastErr)
			}
			return nil, orcherr.Fatal("document generation exceeded poll budget", nil)
		}

		select {
		case <-ctx.Done():
			return nil, orcherr.Fatal("document generation cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

func isRetryable(err error) bool {
	oe, ok := orcherr.As(err)
	return ok && oe.Retryable()
}
