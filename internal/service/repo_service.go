package service

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/qs3c/repoanalyzer/config"
	"github.com/qs3c/repoanalyzer/internal/adapter/vectorindex"
	"github.com/qs3c/repoanalyzer/internal/artifact"
	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
	"github.com/qs3c/repoanalyzer/internal/store"
)

var (
	ErrInvalidZip     = errors.New("ZIP 文件损坏或无法解压")
	ErrRepoNotFound   = errors.New("仓库不存在")
	ErrRepoPermission = errors.New("无权访问该仓库")
	ErrRepoHasRunning = errors.New("仓库有正在运行的分析任务，无法删除")
)

// RepoService ingests repositories into the content-addressed layout
// under paths.repo_root and owns the delete cascade: Task Store rows,
// the per-task vector index, the stored README artifact, and the
// local directory.
type RepoService struct {
	store     *store.Store
	vector    vectorindex.Adapter
	artifacts *artifact.Store
	cfg       *config.Config
}

func NewRepoService(st *store.Store, vector vectorindex.Adapter, artifacts *artifact.Store, cfg *config.Config) *RepoService {
	return &RepoService{store: st, vector: vector, artifacts: artifacts, cfg: cfg}
}

// CreateFromZip extracts an uploaded ZIP into
// repo_root/<sha256-of-upload> and records the Repository row. The
// directory name is the hash of the upload, so re-uploading identical
// content lands on the same path.
func (s *RepoService) CreateFromZip(userID int64, zipPath, displayName string) (*model.Repository, error) {
	hash, err := hashFile(zipPath)
	if err != nil {
		return nil, err
	}

	localPath := filepath.Join(s.cfg.Paths.RepoRoot, hash)
	if _, statErr := os.Stat(localPath); os.IsNotExist(statErr) {
		if err := extractZip(zipPath, localPath); err != nil {
			os.RemoveAll(localPath)
			return nil, ErrInvalidZip
		}
	}

	if displayName == "" {
		displayName = strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	}

	repo := &model.Repository{
		UserID:      userID,
		DisplayName: displayName,
		FullName:    fmt.Sprintf("%s/%s", displayName, hash[:12]),
		LocalPath:   localPath,
	}
	if err := s.store.CreateRepository(repo); err != nil {
		return nil, err
	}
	return repo, nil
}

// CreateFromGit shallow-clones a public repository into
// repo_root/<sha256-of-url> and records the Repository row.
func (s *RepoService) CreateFromGit(ctx context.Context, userID int64, repoURL, displayName string) (*model.Repository, error) {
	sum := sha256.Sum256([]byte(repoURL))
	hash := hex.EncodeToString(sum[:])
	localPath := filepath.Join(s.cfg.Paths.RepoRoot, hash)

	if ce := cloneRepoWithRetry(ctx, repoURL, localPath, 120, 2); ce != nil {
		log.Printf("clone %s failed: %v", repoURL, ce.RawError)
		return nil, ce
	}

	fullName := repoFullNameFromURL(repoURL)
	if displayName == "" {
		displayName = filepath.Base(fullName)
	}

	repo := &model.Repository{
		UserID:      userID,
		DisplayName: displayName,
		FullName:    fullName,
		LocalPath:   localPath,
	}
	if err := s.store.CreateRepository(repo); err != nil {
		os.RemoveAll(localPath)
		return nil, err
	}
	return repo, nil
}

// Get returns a repository after checking ownership.
func (s *RepoService) Get(userID, repoID int64) (*model.Repository, error) {
	repo, err := s.store.ReadRepository(repoID)
	if err != nil {
		if oe, ok := orcherr.As(err); ok && oe.Kind == orcherr.KindNotFound {
			return nil, ErrRepoNotFound
		}
		return nil, err
	}
	if repo.UserID != userID {
		return nil, ErrRepoPermission
	}
	return repo, nil
}

// List returns the user's repositories.
func (s *RepoService) List(userID int64) ([]*model.Repository, error) {
	return s.store.ListRepositoriesByUser(userID)
}

// Delete removes a repository. Soft delete flips the status and drops
// the local directory; hard delete additionally cascades through the
// Task Store, deletes each task's vector index, and removes stored
// README artifacts. Deleting a missing repository is a success.
func (s *RepoService) Delete(ctx context.Context, userID, repoID int64, soft bool) error {
	repo, err := s.store.ReadRepository(repoID)
	if err != nil {
		if oe, ok := orcherr.As(err); ok && oe.Kind == orcherr.KindNotFound {
			return nil
		}
		return err
	}
	if repo.UserID != userID {
		return ErrRepoPermission
	}

	tasks, err := s.store.ListTasksByRepository(repoID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status == model.TaskStatusRunning {
			return ErrRepoHasRunning
		}
	}

	if soft {
		if err := s.store.UpdateRepositoryStatus(repoID, model.RepositoryStatusDeleted); err != nil {
			return err
		}
		removeLocalPath(repo.LocalPath)
		return nil
	}

	for _, t := range tasks {
		if t.VectorIndexName != "" && s.vector != nil {
			if err := s.vector.DeleteIndex(ctx, t.VectorIndexName); err != nil {
				log.Printf("delete index %s for task %d: %v", t.VectorIndexName, t.ID, err)
			}
		}
		if err := s.artifacts.DeleteReadme(t.ID); err != nil {
			log.Printf("delete readme artifact for task %d: %v", t.ID, err)
		}
	}

	if err := s.store.DeleteRepositoryCascade(repoID); err != nil {
		return err
	}
	removeLocalPath(repo.LocalPath)
	return nil
}

func removeLocalPath(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.Printf("remove repository dir %s: %v", path, err)
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	for _, f := range r.File {
		destPath := filepath.Join(destDir, f.Name)
		// Security: prevent zip slip attack
		if !strings.HasPrefix(destPath, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("invalid file path: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(destPath, 0755)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return err
		}

		destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			return err
		}

		srcFile, err := f.Open()
		if err != nil {
			destFile.Close()
			return err
		}

		_, err = io.Copy(destFile, srcFile)
		srcFile.Close()
		destFile.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
