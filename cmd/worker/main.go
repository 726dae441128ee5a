package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/adapter/docgen"
	"github.com/qs3c/repoanalyzer/internal/adapter/llm"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/artifact"
	"github.com/qs3c/repoanalyzer/internal/database"
	"github.com/qs3c/repoanalyzer/internal/health"
	"github.com/qs3c/repoanalyzer/internal/pipeline"
	"github.com/qs3c/repoanalyzer/internal/pkg/cron"
	"github.com/qs3c/repoanalyzer/internal/pkg/oss"
	"github.com/qs3c/repoanalyzer/internal/pkg/pubsub"
	"github.com/qs3c/repoanalyzer/internal/pool"
	"github.com/qs3c/repoanalyzer/internal/progress"
	"github.com/qs3c/repoanalyzer/internal/queue"
	"github.com/qs3c/repoanalyzer/internal/ratelimit"
	"github.com/qs3c/repoanalyzer/internal/store"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	taskStore := store.New(db)
	if err := taskStore.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate task store: %v", err)
	}

	admissionQueue := queue.New(taskStore, rdb, cfg.Concurrency.GlobalRunningTasks)
	publisher := progress.NewPublisher(taskStore, pubsub.NewPublisher(rdb))

	llmClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.Limits.RequestTimeout, cfg.Limits.HardTimeout)
	vectorClient := vectorindex.NewClient(cfg.VectorIndex.BaseURL, cfg.VectorIndex.Timeout)
	docClient := docgen.NewClient(cfg.DocGen.BaseURL, cfg.DocGen.Timeout)

	limiter := ratelimit.NewLimiter(cfg.Limits.RPM, cfg.Concurrency.WorkerCount)
	workerPool := pool.New(pool.Config{
		Workers:     cfg.Concurrency.WorkerCount,
		RetryMax:    cfg.Retry.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Retry.BaseMS) * time.Millisecond,
		JitterFrac:  cfg.Retry.JitterFrac,
		ModelID:     cfg.LLM.ModelID,
		TokenBudget: cfg.LLM.TokenBudget,
		TopK:        5,
	}, llmClient, vectorClient, limiter)

	driver := pipeline.New(taskStore, admissionQueue, workerPool, llmClient, vectorClient, docClient, publisher, pipeline.Config{
		IndexBatchSize:         cfg.Index.BatchSize,
		DocPollInterval:        cfg.Doc.PollInterval,
		DocMaxTotal:            cfg.Doc.MaxTotal,
		DocumentFailureIsFatal: cfg.Pipeline.DocumentFailureIsFatal,
		ModelID:                cfg.LLM.ModelID,
		TokenBudget:            cfg.LLM.TokenBudget,
		TopK:                   5,
	})

	if cfg.OSS.Endpoint != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Fatalf("Failed to create OSS client: %v", err)
		}
		driver.WithArtifactStore(artifact.NewStore(ossClient))
	}

	registry := health.NewRegistry(admissionQueue, 15*time.Second, 90*time.Second)

	maintenance := cron.NewService(taskStore, cfg.Paths.RepoRoot, time.Hour)
	maintenance.Start()
	defer maintenance.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Worker started, max concurrent tasks: %d, workers per task: %d", cfg.Concurrency.GlobalRunningTasks, cfg.Concurrency.WorkerCount)

	// Tasks left in status=running by a crashed process resume from
	// their persisted current_step before new admissions begin.
	resumeRunningTasks(ctx, taskStore, driver)

	done := make(chan struct{})
	for i := 0; i < cfg.Concurrency.WorkerCount; i++ {
		workerID := i
		go func() {
			runAdmissionLoop(ctx, workerID, admissionQueue, driver, registry)
			done <- struct{}{}
		}()
	}

	go heartbeatOrphanSweep(ctx, taskStore, registry)

	for i := 0; i < cfg.Concurrency.WorkerCount; i++ {
		<-done
	}
	log.Println("Worker shutdown complete")
}

func runAdmissionLoop(ctx context.Context, workerID int, aq *queue.AdmissionQueue, driver *pipeline.Driver, registry *health.Registry) {
	workerTag := workerIDTag(workerID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		registry.Heartbeat(workerTag, 0)

		taskID, ok, err := aq.Wait(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Worker %d: admission wait failed: %v", workerID, err)
			continue
		}
		if !ok {
			continue
		}

		registry.Heartbeat(workerTag, 1)
		log.Printf("Worker %d: running task %d", workerID, taskID)
		if err := driver.RunTask(ctx, taskID); err != nil {
			log.Printf("Worker %d: task %d ended with error: %v", workerID, taskID, err)
		}
		aq.Wake(ctx)
	}
}

func workerIDTag(id int) string {
	return fmt.Sprintf("worker-%d", id)
}

// resumeRunningTasks re-drives every task persisted as running. RunTask
// re-derives each stage's remaining work from the store, so resuming a
// task another live worker still owns is safe but wasteful; in a
// single-process deployment every running task at startup is orphaned.
func resumeRunningTasks(ctx context.Context, taskStore *store.Store, driver *pipeline.Driver) {
	running, err := taskStore.ListRunningTasks()
	if err != nil {
		log.Printf("resume: failed to list running tasks: %v", err)
		return
	}
	for _, task := range running {
		taskID := task.ID
		log.Printf("Resuming orphaned task %d at step %d", taskID, task.CurrentStep)
		go func() {
			if err := driver.RunTask(ctx, taskID); err != nil {
				log.Printf("Resumed task %d ended with error: %v", taskID, err)
			}
		}()
	}
}

// heartbeatOrphanSweep periodically scans for running tasks whose
// owning worker has gone stale and logs them as orphan-recovery
// candidates; RunTask itself is idempotent, so re-admitting such a
// task to any worker resumes it safely (spec §4.3 re-entry).
func heartbeatOrphanSweep(ctx context.Context, taskStore *store.Store, registry *health.Registry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			unhealthy := registry.Unhealthy()
			if len(unhealthy) == 0 {
				continue
			}
			running, err := taskStore.ListRunningTasks()
			if err != nil {
				log.Printf("orphan sweep: failed to list running tasks: %v", err)
				continue
			}
			log.Printf("orphan sweep: %d unhealthy workers, %d running tasks eligible for resume", len(unhealthy), len(running))
		}
	}
}
