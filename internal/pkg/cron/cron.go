package cron

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/store"
)

// Service 编排器的周期性维护任务：清理软删除仓库遗留的本地目录，
// 以及 repo_root 下没有任何仓库记录引用的孤儿目录。
type Service struct {
	store    *store.Store
	repoRoot string
	minAge   time.Duration
	stopChan chan struct{}
}

func NewService(st *store.Store, repoRoot string, minAge time.Duration) *Service {
	if minAge <= 0 {
		minAge = time.Hour
	}
	return &Service{
		store:    st,
		repoRoot: repoRoot,
		minAge:   minAge,
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runCleanup()
	log.Println("Cron service started (repo dir cleanup)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runCleanup 每小时执行一次全量清理
func (s *Service) runCleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.CleanupNow()
		}
	}
}

// CleanupNow 立即执行一次清理（供 cleanup 命令和测试调用）
func (s *Service) CleanupNow() int {
	c1 := s.cleanupDeletedRepoDirs()
	c2 := s.cleanupOrphanDirs()

	total := c1 + c2
	if total > 0 {
		log.Printf("Cleanup summary: deleted_repos=%d, orphans=%d", c1, c2)
	}
	return total
}

// cleanupDeletedRepoDirs 清理软删除仓库仍残留在磁盘上的目录
func (s *Service) cleanupDeletedRepoDirs() int {
	repos, err := s.store.ListRepositories()
	if err != nil {
		log.Printf("Cleanup: failed to list repositories: %v", err)
		return 0
	}

	cleaned := 0
	for _, repo := range repos {
		if repo.Status != model.RepositoryStatusDeleted || repo.LocalPath == "" {
			continue
		}
		if _, err := os.Stat(repo.LocalPath); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(repo.LocalPath); err != nil {
			log.Printf("Cleanup: failed to remove %s: %v", repo.LocalPath, err)
		} else {
			cleaned++
		}
	}
	return cleaned
}

// cleanupOrphanDirs 清理 repo_root 下没有仓库记录引用的目录
func (s *Service) cleanupOrphanDirs() int {
	if s.repoRoot == "" {
		return 0
	}

	entries, err := os.ReadDir(s.repoRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Cleanup: failed to read dir %s: %v", s.repoRoot, err)
		}
		return 0
	}

	repos, err := s.store.ListRepositories()
	if err != nil {
		log.Printf("Cleanup: failed to list repositories: %v", err)
		return 0
	}
	referenced := make(map[string]bool, len(repos))
	for _, repo := range repos {
		if repo.LocalPath != "" {
			referenced[filepath.Base(repo.LocalPath)] = true
		}
	}

	cleaned := 0
	for _, entry := range entries {
		if !entry.IsDir() || referenced[entry.Name()] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		// 刚解压、仓库行尚未提交的目录不动
		if time.Since(info.ModTime()) < s.minAge {
			continue
		}

		dirPath := filepath.Join(s.repoRoot, entry.Name())
		if err := os.RemoveAll(dirPath); err != nil {
			log.Printf("Cleanup: failed to remove %s: %v", dirPath, err)
		} else {
			cleaned++
		}
	}
	return cleaned
}
