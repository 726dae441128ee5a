package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/database"
	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/pkg/cron"
	"github.com/qs3c/repoanalyzer/internal/store"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, don't actually delete anything")
	cleanDirs    = flag.Bool("clean-dirs", true, "Clean orphan and soft-deleted repository directories")
	cleanIndexes = flag.Bool("clean-indexes", false, "Delete vector indexes of failed terminal tasks")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	taskStore := store.New(db)

	// 1. 清理本地目录（孤儿目录 + 软删除仓库残留）
	if *cleanDirs {
		log.Println("\n📦 Cleaning repository directories...")
		if *dryRun {
			reportDirCandidates(taskStore, cfg.Paths.RepoRoot)
		} else {
			removed := cron.NewService(taskStore, cfg.Paths.RepoRoot, 0).CleanupNow()
			log.Printf("Removed %d directories", removed)
		}
	}

	// 2. 删除失败任务遗留的向量索引
	if *cleanIndexes {
		log.Println("\n🗂  Cleaning vector indexes of failed tasks...")
		cleanFailedTaskIndexes(taskStore, cfg, *dryRun)
	}

	log.Println("\n✅ Cleanup finished")
}

// reportDirCandidates 只打印将被删除的目录，不动磁盘
func reportDirCandidates(taskStore *store.Store, repoRoot string) {
	repos, err := taskStore.ListRepositories()
	if err != nil {
		log.Printf("Failed to list repositories: %v", err)
		return
	}

	referenced := make(map[string]bool, len(repos))
	for _, repo := range repos {
		if repo.Status == model.RepositoryStatusDeleted && repo.LocalPath != "" {
			if _, err := os.Stat(repo.LocalPath); err == nil {
				log.Printf("[dry-run] would remove soft-deleted repo dir: %s", repo.LocalPath)
			}
			continue
		}
		if repo.LocalPath != "" {
			referenced[repo.LocalPath] = true
		}
	}

	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		full := repoRoot + string(os.PathSeparator) + entry.Name()
		if !referenced[full] {
			log.Printf("[dry-run] would remove orphan dir: %s", full)
		}
	}
}

// cleanFailedTaskIndexes 删除失败任务仍挂着的向量索引并清空记录字段
func cleanFailedTaskIndexes(taskStore *store.Store, cfg *config.Config, dryRun bool) {
	tasks, err := taskStore.ListFailedTasksWithIndex()
	if err != nil {
		log.Printf("Failed to list failed tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		log.Println("No failed tasks with a vector index")
		return
	}

	client := vectorindex.NewClient(cfg.VectorIndex.BaseURL, cfg.VectorIndex.Timeout)
	ctx := context.Background()

	for _, t := range tasks {
		if dryRun {
			log.Printf("[dry-run] would delete index %s (task %d)", t.VectorIndexName, t.ID)
			continue
		}
		if err := client.DeleteIndex(ctx, t.VectorIndexName); err != nil {
			log.Printf("Delete index %s (task %d): %v", t.VectorIndexName, t.ID, err)
			continue
		}
		empty := ""
		if err := taskStore.UpdateTask(t.ID, store.TaskPatch{VectorIndexName: &empty}); err != nil {
			log.Printf("Clear index name for task %d: %v", t.ID, err)
		}
	}
}
