// Package store implements the Task Store (C1): the durable,
// transactional source of truth for Repositories, Tasks,
// FileAnalyses, AnalysisItems and ReadmeArtifacts.
//
// Grounded on the teacher's internal/repository/job_repo.go and
// analysis_repo.go for the Create/Update/GetByID shape, generalized to
// the invariants of spec §4.1 (atomic status+counter transitions,
// preserve-success upsert policy).
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
)

// Store is the Task Store. All mutating operations are transactional.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates/updates the tables owned by the Task Store.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Repository{},
		&model.Task{},
		&model.FileAnalysis{},
		&model.AnalysisItem{},
		&model.ReadmeArtifact{},
	)
}

// CreateRepository persists a new active repository row.
func (s *Store) CreateRepository(repo *model.Repository) error {
	repo.Status = model.RepositoryStatusActive
	if err := s.db.Create(repo).Error; err != nil {
		if isDuplicateErr(err) {
			return orcherr.Conflict("repository full_name already exists for user", err)
		}
		return err
	}
	return nil
}

func (s *Store) ReadRepository(id int64) (*model.Repository, error) {
	var repo model.Repository
	err := s.db.Where("id = ?", id).First(&repo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orcherr.NotFound("repository not found", err)
		}
		return nil, err
	}
	return &repo, nil
}

// CreateTask persists a new pending task for the given repository.
func (s *Store) CreateTask(repositoryID int64, configBlob string) (*model.Task, error) {
	task := &model.Task{
		RepositoryID: repositoryID,
		Status:       model.TaskStatusPending,
		CurrentStep:  int(model.StageScan),
		ConfigBlob:   configBlob,
		CreatedAt:    time.Now(),
	}
	if err := s.db.Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Store) ReadTask(id int64) (*model.Task, error) {
	var task model.Task
	err := s.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orcherr.NotFound("task not found", err)
		}
		return nil, err
	}
	return &task, nil
}

// TaskPatch carries the subset of restricted, mutable Task fields the
// control surface (and the driver) may update (spec §6). Nil fields
// are left untouched.
type TaskPatch struct {
	Status             *string
	CurrentStep        *int
	CurrentFile        *string
	VectorIndexName    *string
	TotalFiles         *int
	SuccessfulFiles    *int
	FailedFiles        *int
	CodeLines          *int
	ModuleCount        *int
	AnalysisTotalFiles *int
	AnalysisSuccess    *int
	AnalysisFailed     *int
	DocumentJobID      *string
	ErrorMessage       *string
	StartTime          *time.Time
	EndTime            *time.Time
}

// UpdateTask applies patch atomically, rejecting transitions that
// violate the Task invariants of spec §3: status monotonicity,
// end_time set iff terminal, successful+failed <= total.
func (s *Store) UpdateTask(id int64, patch TaskPatch) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var task model.Task
		if err := tx.Clauses().Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return orcherr.NotFound("task not found", err)
			}
			return err
		}

		next := task
		if patch.Status != nil {
			if err := validateStatusTransition(task.Status, *patch.Status); err != nil {
				return err
			}
			next.Status = *patch.Status
		}
		if patch.CurrentStep != nil {
			if *patch.CurrentStep < task.CurrentStep && task.Status != model.TaskStatusFailed {
				return orcherr.Conflict("current_step must not decrease", nil)
			}
			next.CurrentStep = *patch.CurrentStep
		}
		if patch.CurrentFile != nil {
			next.CurrentFile = *patch.CurrentFile
		}
		if patch.VectorIndexName != nil {
			next.VectorIndexName = *patch.VectorIndexName
		}
		if patch.TotalFiles != nil {
			next.TotalFiles = *patch.TotalFiles
		}
		if patch.SuccessfulFiles != nil {
			next.SuccessfulFiles = *patch.SuccessfulFiles
		}
		if patch.FailedFiles != nil {
			next.FailedFiles = *patch.FailedFiles
		}
		if next.SuccessfulFiles+next.FailedFiles > next.TotalFiles && next.TotalFiles > 0 {
			return orcherr.Conflict("successful_files + failed_files exceeds total_files", nil)
		}
		if patch.CodeLines != nil {
			next.CodeLines = *patch.CodeLines
		}
		if patch.ModuleCount != nil {
			next.ModuleCount = *patch.ModuleCount
		}
		if patch.AnalysisTotalFiles != nil {
			next.AnalysisTotalFiles = *patch.AnalysisTotalFiles
		}
		if patch.AnalysisSuccess != nil {
			next.AnalysisSuccess = *patch.AnalysisSuccess
		}
		if patch.AnalysisFailed != nil {
			next.AnalysisFailed = *patch.AnalysisFailed
		}
		if patch.DocumentJobID != nil {
			next.DocumentJobID = *patch.DocumentJobID
		}
		if patch.ErrorMessage != nil {
			next.ErrorMessage = *patch.ErrorMessage
		}
		if patch.StartTime != nil {
			next.StartTime = patch.StartTime
		}
		if patch.EndTime != nil {
			next.EndTime = patch.EndTime
		}

		if next.IsTerminal() && next.EndTime == nil {
			now := time.Now()
			next.EndTime = &now
		}
		if !next.IsTerminal() && next.EndTime != nil {
			return orcherr.Conflict("end_time may only be set on a terminal task", nil)
		}

		return tx.Save(&next).Error
	})
}

func validateStatusTransition(from, to string) error {
	if from == to {
		return nil
	}
	allowed := map[string][]string{
		model.TaskStatusPending: {model.TaskStatusRunning, model.TaskStatusFailed},
		model.TaskStatusRunning: {model.TaskStatusCompleted, model.TaskStatusFailed},
	}
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return orcherr.Conflict(fmt.Sprintf("invalid task status transition %s -> %s", from, to), nil)
}

// AppendFileAnalysis implements the preserve-success upsert policy of
// spec §4.1: a success row replaces any existing row for (task, path);
// a non-success row never overwrites an existing success row.
func (s *Store) AppendFileAnalysis(fa *model.FileAnalysis) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.FileAnalysis
		err := tx.Where("task_id = ? AND file_path = ?", fa.TaskID, fa.FilePath).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			fa.Timestamp = time.Now()
			return tx.Create(fa).Error
		case err != nil:
			return err
		}

		if existing.Status == model.FileAnalysisSuccess && fa.Status != model.FileAnalysisSuccess {
			// Preserve the existing success row; non-success updates are dropped.
			fa.ID = existing.ID
			return nil
		}

		fa.ID = existing.ID
		fa.Timestamp = time.Now()
		return tx.Save(fa).Error
	})
}

// AppendAnalysisItems bulk-inserts items for a successfully analyzed file.
func (s *Store) AppendAnalysisItems(items []*model.AnalysisItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.Create(&items).Error
}

// UpsertReadme writes the 1:1 ReadmeArtifact for a task.
func (s *Store) UpsertReadme(taskID int64, markdown string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.ReadmeArtifact
		err := tx.Where("task_id = ?", taskID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&model.ReadmeArtifact{TaskID: taskID, Markdown: markdown}).Error
		}
		if err != nil {
			return err
		}
		existing.Markdown = markdown
		return tx.Save(&existing).Error
	})
}

// ListPendingTaskIDs returns pending task ids in strict FIFO order by
// creation time, tie-broken by lower task id first (spec §4.2).
func (s *Store) ListPendingTaskIDs() ([]int64, error) {
	var ids []int64
	err := s.db.Model(&model.Task{}).
		Where("status = ?", model.TaskStatusPending).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountRunning returns the number of tasks currently running.
func (s *Store) CountRunning() (int64, error) {
	var count int64
	err := s.db.Model(&model.Task{}).Where("status = ?", model.TaskStatusRunning).Count(&count).Error
	return count, err
}

// TryAdmit attempts to move taskID from pending to running, but only
// if fewer than maxRunning tasks are currently running and taskID is
// still pending. Returns true if the admission succeeded.
func (s *Store) TryAdmit(taskID int64, maxRunning int) (bool, error) {
	admitted := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var running int64
		if err := tx.Model(&model.Task{}).Where("status = ?", model.TaskStatusRunning).Count(&running).Error; err != nil {
			return err
		}
		if running >= int64(maxRunning) {
			return nil
		}

		var task model.Task
		if err := tx.Where("id = ? AND status = ?", taskID, model.TaskStatusPending).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		// No two tasks of the same repository may run concurrently.
		var repoRunning int64
		if err := tx.Model(&model.Task{}).
			Where("repository_id = ? AND status = ?", task.RepositoryID, model.TaskStatusRunning).
			Count(&repoRunning).Error; err != nil {
			return err
		}
		if repoRunning > 0 {
			return nil
		}

		now := time.Now()
		task.Status = model.TaskStatusRunning
		task.StartTime = &now
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		admitted = true
		return nil
	})
	return admitted, err
}

func (s *Store) ReadFilesByTask(taskID int64) ([]*model.FileAnalysis, error) {
	var files []*model.FileAnalysis
	err := s.db.Where("task_id = ?", taskID).Find(&files).Error
	return files, err
}

func (s *Store) ReadPendingFilesByTask(taskID int64) ([]*model.FileAnalysis, error) {
	var files []*model.FileAnalysis
	err := s.db.Where("task_id = ? AND status = ?", taskID, model.FileAnalysisPending).Find(&files).Error
	return files, err
}

func (s *Store) ReadItemsByFile(fileAnalysisID int64) ([]*model.AnalysisItem, error) {
	var items []*model.AnalysisItem
	err := s.db.Where("file_analysis_id = ?", fileAnalysisID).Find(&items).Error
	return items, err
}

func (s *Store) ReadReadme(taskID int64) (*model.ReadmeArtifact, error) {
	var artifact model.ReadmeArtifact
	err := s.db.Where("task_id = ?", taskID).First(&artifact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orcherr.NotFound("readme not found", err)
		}
		return nil, err
	}
	return &artifact, nil
}

// DeleteRepositoryCascade deletes a repository and every task, file
// analysis, analysis item and readme it owns. Deleting an already
// missing repository is a success (idempotent per spec §7/§9).
func (s *Store) DeleteRepositoryCascade(repositoryID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var taskIDs []int64
		if err := tx.Model(&model.Task{}).Where("repository_id = ?", repositoryID).Pluck("id", &taskIDs).Error; err != nil {
			return err
		}

		if len(taskIDs) > 0 {
			var fileIDs []int64
			if err := tx.Model(&model.FileAnalysis{}).Where("task_id IN ?", taskIDs).Pluck("id", &fileIDs).Error; err != nil {
				return err
			}
			if len(fileIDs) > 0 {
				if err := tx.Where("file_analysis_id IN ?", fileIDs).Delete(&model.AnalysisItem{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("task_id IN ?", taskIDs).Delete(&model.FileAnalysis{}).Error; err != nil {
				return err
			}
			if err := tx.Where("task_id IN ?", taskIDs).Delete(&model.ReadmeArtifact{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", taskIDs).Delete(&model.Task{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Delete(&model.Repository{}, repositoryID).Error; err != nil {
			return err
		}
		return nil
	})
}

// ListRepositories returns every repository row, used by periodic
// filesystem cleanup.
func (s *Store) ListRepositories() ([]*model.Repository, error) {
	var repos []*model.Repository
	err := s.db.Find(&repos).Error
	return repos, err
}

// ListRepositoriesByUser returns a user's repositories, newest first.
func (s *Store) ListRepositoriesByUser(userID int64) ([]*model.Repository, error) {
	var repos []*model.Repository
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&repos).Error
	return repos, err
}

// UpdateRepositoryStatus flips a repository between active and deleted
// (soft delete path of spec §3's Repository lifecycle).
func (s *Store) UpdateRepositoryStatus(id int64, status string) error {
	return s.db.Model(&model.Repository{}).Where("id = ?", id).Update("status", status).Error
}

// ListTasksByRepository returns every task owned by the repository,
// newest first.
func (s *Store) ListTasksByRepository(repositoryID int64) ([]*model.Task, error) {
	var tasks []*model.Task
	err := s.db.Where("repository_id = ?", repositoryID).Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// ListFailedTasksWithIndex returns failed tasks that still reference a
// vector index, candidates for offline index cleanup.
func (s *Store) ListFailedTasksWithIndex() ([]*model.Task, error) {
	var tasks []*model.Task
	err := s.db.Where("status = ? AND vector_index_name != ''", model.TaskStatusFailed).Find(&tasks).Error
	return tasks, err
}

// ListRunningTasks returns every task currently in status=running, used
// by orphan recovery to find candidates whose worker may have died.
func (s *Store) ListRunningTasks() ([]*model.Task, error) {
	var tasks []*model.Task
	err := s.db.Where("status = ?", model.TaskStatusRunning).Find(&tasks).Error
	return tasks, err
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
