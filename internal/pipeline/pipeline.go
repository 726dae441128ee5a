// Package pipeline implements the Pipeline Driver (C3): the per-task
// state machine advancing a running Task through Scan, Index, Analyze
// and Document, persisting durable progress after each unit of work
// so any step can resume after a crash.
//
// The tagged-stage dispatch below is grounded on
// maraichr-codegraph's Stage interface/Execute(ctx, *IndexRunContext)
// pattern, generalized from a registered-stage-list to a fixed
// four-stage switch per spec §4.3's strict stage order. The overall
// stage-progression and progress-publishing shape is grounded on the
// teacher's internal/worker/processor.go Process method.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qs3c/repoanalyzer/internal/adapter/docgen"
	"github.com/qs3c/repoanalyzer/internal/adapter/llm"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/artifact"
	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
	"github.com/qs3c/repoanalyzer/internal/pipeline/analyze"
	"github.com/qs3c/repoanalyzer/internal/pipeline/document"
	"github.com/qs3c/repoanalyzer/internal/pipeline/index"
	"github.com/qs3c/repoanalyzer/internal/pipeline/scan"
	"github.com/qs3c/repoanalyzer/internal/pool"
	"github.com/qs3c/repoanalyzer/internal/progress"
	"github.com/qs3c/repoanalyzer/internal/queue"
	"github.com/qs3c/repoanalyzer/internal/store"
)

// Config holds the stage-level knobs from spec §4.8 the driver needs
// directly (worker-pool and adapter configuration live in their own
// constructors).
type Config struct {
	IndexBatchSize         int
	DocPollInterval        time.Duration
	DocMaxTotal            time.Duration
	DocumentFailureIsFatal bool
	CancelPollInterval     time.Duration
	ModelID                string
	TokenBudget            int
	TopK                   int
}

// Driver runs tasks through the pipeline. One Driver (holding the
// long-lived adapters/store/pool) serves every RunTask call; it holds
// no task-specific state between calls.
type Driver struct {
	store     *store.Store
	aq        *queue.AdmissionQueue
	pool      *pool.Pool
	llm       llm.Adapter
	vector    vectorindex.Adapter
	doc       docgen.Adapter
	pub       *progress.Publisher
	artifacts *artifact.Store
	cfg       Config
	logger    *log.Logger
}

func New(st *store.Store, aq *queue.AdmissionQueue, workerPool *pool.Pool, llmAdapter llm.Adapter, vectorAdapter vectorindex.Adapter, docAdapter docgen.Adapter, pub *progress.Publisher, cfg Config) *Driver {
	if cfg.CancelPollInterval <= 0 {
		cfg.CancelPollInterval = 2 * time.Second
	}
	return &Driver{
		store:  st,
		aq:     aq,
		pool:   workerPool,
		llm:    llmAdapter,
		vector: vectorAdapter,
		doc:    docAdapter,
		pub:    pub,
		cfg:    cfg,
		logger: log.New(os.Stdout, "[driver] ", log.LstdFlags),
	}
}

// WithArtifactStore attaches an object-storage mirror for generated
// READMEs. The Task Store row stays authoritative; mirroring failures
// are logged, not fatal.
func (d *Driver) WithArtifactStore(s *artifact.Store) *Driver {
	d.artifacts = s
	return d
}

// RunTask drives taskID through every remaining stage until it
// reaches a terminal status or a cancellation/context error occurs.
// It is safe to call again for the same task after a crash: each
// stage re-derives its starting point from persisted state.
func (d *Driver) RunTask(ctx context.Context, taskID int64) error {
	for {
		// Shutdown leaves the task in running; a restarted worker
		// resumes it from the persisted current_step.
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := d.store.ReadTask(taskID)
		if err != nil {
			return err
		}
		if task.Status != model.TaskStatusRunning {
			return nil
		}

		stage := model.PipelineStage(task.CurrentStep)
		var stageErr error
		switch stage {
		case model.StageScan:
			stageErr = d.runScan(ctx, task)
		case model.StageIndex:
			stageErr = d.runIndex(ctx, task)
		case model.StageAnalyze:
			stageErr = d.runAnalyze(ctx, task)
		case model.StageDocument:
			stageErr = d.runDocument(ctx, task)
			if stageErr == nil {
				return d.complete(taskID)
			}
		default:
			stageErr = orcherr.Fatal(fmt.Sprintf("unknown pipeline stage %d", task.CurrentStep), nil)
		}

		if stageErr != nil {
			return d.fail(taskID, stage, stageErr)
		}

		if pubErr := d.pub.Push(ctx, taskID, 0); pubErr != nil {
			d.logger.Printf("task %d: progress push failed: %v", taskID, pubErr)
		}
	}
}

func (d *Driver) repositoryPath(task *model.Task) (string, error) {
	repo, err := d.store.ReadRepository(task.RepositoryID)
	if err != nil {
		return "", err
	}
	if repo.LocalPath == "" {
		return "", orcherr.Fatal("repository local path missing", nil)
	}
	if _, err := os.Stat(repo.LocalPath); err != nil {
		return "", orcherr.Fatal("repository path missing on disk", err)
	}
	return repo.LocalPath, nil
}

// runScan walks the repository and persists a pending FileAnalysis row
// per candidate file, reusing existing rows for (task, path) so a
// resumed scan is a no-op for files already recorded.
func (d *Driver) runScan(ctx context.Context, task *model.Task) error {
	repoPath, err := d.repositoryPath(task)
	if err != nil {
		return err
	}

	existing, err := d.store.ReadFilesByTask(task.ID)
	if err != nil {
		return err
	}
	seen := make(map[string]*model.FileAnalysis, len(existing))
	for _, f := range existing {
		seen[f.FilePath] = f
	}

	files, err := scan.Walk(repoPath)
	if err != nil {
		return orcherr.Fatal("failed to walk repository", err)
	}

	totalCodeLines := 0
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.RelPath)
		if row := seen[f.RelPath]; row != nil {
			totalCodeLines += row.CodeLines
			continue
		}

		content, readErr := os.ReadFile(filepath.Join(repoPath, f.RelPath))
		body := ""
		if readErr == nil {
			body = string(content)
		}
		codeLines := scan.CountCodeLines(body)
		totalCodeLines += codeLines
		deps := scan.ExtractDependencies(body, f.Language)

		fa := &model.FileAnalysis{
			TaskID:       task.ID,
			FilePath:     f.RelPath,
			Language:     f.Language,
			SizeBytes:    f.Size,
			CodeLines:    codeLines,
			Status:       model.FileAnalysisPending,
			CodeContent:  body,
			Dependencies: deps,
		}
		if err := d.store.AppendFileAnalysis(fa); err != nil {
			return err
		}
	}

	total := len(files)
	moduleCount := scan.ModuleCount(paths)
	nextStep := int(model.StageIndex)
	return d.store.UpdateTask(task.ID, store.TaskPatch{
		TotalFiles:  &total,
		CodeLines:   &totalCodeLines,
		ModuleCount: &moduleCount,
		CurrentStep: &nextStep,
	})
}

// runIndex builds the vector index for the task's files, skipping the
// build entirely if vector_index_name is already set (resumed task).
func (d *Driver) runIndex(ctx context.Context, task *model.Task) error {
	if task.VectorIndexName != "" {
		return d.advanceStep(task.ID, model.StageAnalyze)
	}

	repoPath, err := d.repositoryPath(task)
	if err != nil {
		return err
	}

	files, err := d.store.ReadFilesByTask(task.ID)
	if err != nil {
		return err
	}

	sources := make([]index.ChunkSource, 0, len(files))
	for _, f := range files {
		sources = append(sources, index.ChunkSource{Path: f.FilePath, Language: f.Language, Content: f.CodeContent})
	}
	documents := index.ToDocuments(sources)

	indexName, err := index.Build(ctx, d.vector, documents, d.cfg.IndexBatchSize)
	if err != nil {
		return err
	}
	_ = repoPath

	nextStep := int(model.StageAnalyze)
	return d.store.UpdateTask(task.ID, store.TaskPatch{
		VectorIndexName: &indexName,
		CurrentStep:     &nextStep,
	})
}

func (d *Driver) advanceStep(taskID int64, stage model.PipelineStage) error {
	next := int(stage)
	return d.store.UpdateTask(taskID, store.TaskPatch{CurrentStep: &next})
}

// runAnalyze fans pending FileAnalyses out to the Worker Pool and
// folds results back into the Task Store, updating aggregate counters
// after each completion as spec §4.3 Stage 2 requires.
func (d *Driver) runAnalyze(ctx context.Context, task *model.Task) error {
	pending, err := d.store.ReadPendingFilesByTask(task.ID)
	if err != nil {
		return err
	}

	total := task.AnalysisTotalFiles
	if total == 0 {
		total = len(pending)
		if err := d.store.UpdateTask(task.ID, store.TaskPatch{AnalysisTotalFiles: &total}); err != nil {
			return err
		}
	}

	if len(pending) == 0 {
		return d.advanceStep(task.ID, model.StageDocument)
	}

	// An admin cancel flips the task status in the store; the watcher
	// turns that into a context cancellation so in-flight workers
	// abort at their next check instead of draining the whole batch.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go d.watchCancellation(runCtx, task.ID, cancelRun)

	results := d.pool.Run(runCtx, pending, task.VectorIndexName, d.analyzeOne)
	cancelled := runCtx.Err() != nil

	success, failed := task.AnalysisSuccess, task.AnalysisFailed
	for _, res := range results {
		if res == nil {
			continue
		}
		// Files aborted by a cancel or shutdown stay pending; only
		// work that actually finished is persisted.
		if res.Err != nil && errors.Is(res.Err, context.Canceled) {
			continue
		}
		fa := res.File
		if res.Err != nil {
			fa.Status = model.FileAnalysisFailed
			fa.ErrorMessage = res.Err.Error()
			failed++
		} else {
			fa.Status = model.FileAnalysisSuccess
			fa.AnalysisContent = res.AnalysisContent
			fa.Dependencies = res.Dependencies
			success++
		}
		if err := d.store.AppendFileAnalysis(fa); err != nil {
			return err
		}
		if res.Err == nil && len(res.Items) > 0 {
			if err := d.store.AppendAnalysisItems(res.Items); err != nil {
				return err
			}
		}

		currentFile := fa.FilePath
		if err := d.store.UpdateTask(task.ID, store.TaskPatch{
			AnalysisSuccess: &success,
			AnalysisFailed:  &failed,
			CurrentFile:     &currentFile,
		}); err != nil {
			return err
		}
	}

	successfulFiles := success
	failedFiles := failed
	if err := d.store.UpdateTask(task.ID, store.TaskPatch{
		SuccessfulFiles: &successfulFiles,
		FailedFiles:     &failedFiles,
	}); err != nil {
		return err
	}

	if cancelled {
		return nil
	}

	remaining, err := d.store.ReadPendingFilesByTask(task.ID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	return d.advanceStep(task.ID, model.StageDocument)
}

// watchCancellation polls the task's persisted status while a pool
// batch runs and cancels the batch context as soon as the task leaves
// running (admin cancel or concurrent failure).
func (d *Driver) watchCancellation(ctx context.Context, taskID int64, cancel context.CancelFunc) {
	ticker := time.NewTicker(d.cfg.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		task, err := d.store.ReadTask(taskID)
		if err != nil {
			continue
		}
		if task.Status != model.TaskStatusRunning {
			d.logger.Printf("task %d: status is %s, cancelling in-flight analysis", taskID, task.Status)
			cancel()
			return
		}
	}
}

func (d *Driver) analyzeOne(ctx context.Context, file *model.FileAnalysis, chunks []vectorindex.Chunk) (*pool.Result, error) {
	req := analyze.BuildRequest(file, chunks, d.cfg.ModelID, d.cfg.TokenBudget)
	resp, err := d.llm.Complete(ctx, req)
	if isSoftTimeout(err) {
		// One retry with a reduced prompt: drop the retrieved context
		// so the provider sees a much smaller request.
		req = analyze.BuildRequest(file, nil, d.cfg.ModelID, d.cfg.TokenBudget)
		resp, err = d.llm.Complete(ctx, req)
	}
	if err != nil {
		return &pool.Result{File: file, Err: err}, err
	}

	content, items := analyze.ParseResponse(resp.Text, file.ID)
	deps := []string(file.Dependencies)
	return &pool.Result{File: file, AnalysisContent: content, Dependencies: deps, Items: items}, nil
}

func isSoftTimeout(err error) bool {
	if err == nil {
		return false
	}
	oe, ok := orcherr.As(err)
	return ok && oe.Kind == orcherr.KindTransient && strings.Contains(oe.Message, "timed out")
}

// runDocument submits and polls the Document-Generation adapter,
// persisting the resulting README on success.
func (d *Driver) runDocument(ctx context.Context, task *model.Task) error {
	repoPath, err := d.repositoryPath(task)
	if err != nil {
		return err
	}

	onProgress := func(remoteTaskID string, prog int) {
		_ = d.store.UpdateTask(task.ID, store.TaskPatch{DocumentJobID: &remoteTaskID})
		_ = d.pub.Push(ctx, task.ID, progress.DocProgress(prog))
	}

	outcome, err := document.Run(ctx, d.doc, repoPath, docgen.Options{VectorIndex: task.VectorIndexName}, d.cfg.DocPollInterval, d.cfg.DocMaxTotal, onProgress)
	if err != nil {
		return err
	}

	if err := d.store.UpsertReadme(task.ID, outcome.Markdown); err != nil {
		return err
	}
	if d.artifacts != nil {
		if _, err := d.artifacts.UploadReadme(task.ID, outcome.Markdown); err != nil {
			d.logger.Printf("task %d: readme mirror upload failed: %v", task.ID, err)
		}
	}
	return nil
}

func (d *Driver) complete(taskID int64) error {
	status := model.TaskStatusCompleted
	return d.store.UpdateTask(taskID, store.TaskPatch{Status: &status})
}

// fail marks the task failed unless the error occurred in the
// Document stage and document_failure_is_fatal is disabled, in which
// case stage-3 failures are logged but do not flip the task to failed
// (Open Question decision, DESIGN.md).
func (d *Driver) fail(taskID int64, stage model.PipelineStage, cause error) error {
	if stage == model.StageDocument && !d.cfg.DocumentFailureIsFatal {
		d.logger.Printf("task %d: document stage failed but document_failure_is_fatal=false, leaving task running: %v", taskID, cause)
		return cause
	}

	status := model.TaskStatusFailed
	msg := cause.Error()
	if err := d.store.UpdateTask(taskID, store.TaskPatch{Status: &status, ErrorMessage: &msg}); err != nil {
		return err
	}
	return cause
}
