// Package pool implements the File Analysis Worker Pool (C4): a
// bounded set of concurrent workers draining a per-task queue of
// pending FileAnalyses, rate limited against the LLM adapter and
// retrying transient failures with exponential backoff and jitter.
//
// The concurrent fan-out/fan-in shape is grounded on
// dshills-gocontext-mcp's Indexer.indexBatch (errgroup + semaphore);
// the retry/backoff shape is grounded on the teacher's
// internal/worker/git.go CloneRepoWithRetry.
package pool

import (
	"context"
	"log"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qs3c/repoanalyzer/internal/adapter/llm"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
	"github.com/qs3c/repoanalyzer/internal/ratelimit"
)

// Config bounds the pool per spec §4.4: W concurrent workers and a
// retry budget per file with exponential backoff parameters. The RPM
// cap on the LLM adapter is held by the Limiter passed to New.
type Config struct {
	Workers     int
	RetryMax    int
	BaseBackoff time.Duration
	JitterFrac  float64
	ModelID     string
	TokenBudget int
	TopK        int
}

// Result is the outcome of analyzing one file, returned for the
// driver to apply to the Task Store.
type Result struct {
	File            *model.FileAnalysis
	AnalysisContent string
	Dependencies    []string
	Items           []*model.AnalysisItem
	Err             error
}

// Pool drains a slice of pending FileAnalyses concurrently, calling
// the LLM adapter for each with top-k vector-index context.
type Pool struct {
	cfg     Config
	llm     llm.Adapter
	vector  vectorindex.Adapter
	limiter *ratelimit.Limiter
}

func New(cfg Config, llmAdapter llm.Adapter, vectorAdapter vectorindex.Adapter, limiter *ratelimit.Limiter) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.JitterFrac <= 0 {
		cfg.JitterFrac = 0.5
	}
	return &Pool{cfg: cfg, llm: llmAdapter, vector: vectorAdapter, limiter: limiter}
}

// AnalyzeFunc processes one file and is invoked by pool workers.
// Extracted so the driver can supply chunk-extraction/context-building
// logic without the pool importing the scan package.
type AnalyzeFunc func(ctx context.Context, file *model.FileAnalysis, chunks []vectorindex.Chunk) (*Result, error)

// Run drains files concurrently up to cfg.Workers, honoring the rate
// limiter before every LLM-bound unit of work and retrying transient
// adapter errors up to cfg.RetryMax times. indexName is queried for
// context per file; an empty or local-fallback index yields no
// context rather than failing the file.
func (p *Pool) Run(ctx context.Context, files []*model.FileAnalysis, indexName string, analyze AnalyzeFunc) []*Result {
	results := make([]*Result, len(files))
	sem := make(chan struct{}, p.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			results[i] = p.runOne(gctx, f, indexName, analyze)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (p *Pool) runOne(ctx context.Context, f *model.FileAnalysis, indexName string, analyze AnalyzeFunc) *Result {
	// Cancellation check between files: a worker whose slot frees up
	// after the task was cancelled must not start another LLM call.
	if err := ctx.Err(); err != nil {
		return &Result{File: f, Err: orcherr.Transient("analysis cancelled", err)}
	}

	var chunks []vectorindex.Chunk
	if p.vector != nil && indexName != "" && !vectorindex.IsLocalFallback(indexName) {
		if c, err := p.vector.Query(ctx, indexName, f.CodeContent, p.cfg.TopK); err == nil {
			chunks = c
		}
	}

	maxRetries := p.cfg.RetryMax
	if maxRetries <= 0 {
		maxRetries = 2
	}

	var lastResult *Result
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffWithJitter(attempt, p.cfg.BaseBackoff, p.cfg.JitterFrac)
			log.Printf("analyze retry %d/%d after %v for %s", attempt, maxRetries, backoff, f.FilePath)
			select {
			case <-ctx.Done():
				return &Result{File: f, Err: orcherr.Transient("analysis cancelled", ctx.Err())}
			case <-time.After(backoff):
			}
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return &Result{File: f, Err: orcherr.Transient("rate limiter wait cancelled", err)}
			}
		}

		res, err := analyze(ctx, f, chunks)
		if err == nil {
			return res
		}
		lastResult = &Result{File: f, Err: err}

		oe, ok := orcherr.As(err)
		if !ok || !oe.Retryable() {
			return lastResult
		}
	}
	return lastResult
}

func backoffWithJitter(attempt int, base time.Duration, jitterFrac float64) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1)) * float64(base))
	jitter := time.Duration(rand.Int63n(int64(float64(d)*jitterFrac) + 1))
	return d + jitter
}
