package service

import (
	"context"
	"errors"
	"time"

	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/model/dto"
	"github.com/qs3c/repoanalyzer/internal/orcherr"
	"github.com/qs3c/repoanalyzer/internal/progress"
	"github.com/qs3c/repoanalyzer/internal/queue"
	"github.com/qs3c/repoanalyzer/internal/store"
)

var (
	ErrTaskNotFound   = errors.New("任务不存在")
	ErrTaskPermission = errors.New("无权访问该任务")
	ErrRepoDeleted    = errors.New("仓库已删除，无法创建任务")
)

// TaskService is the control surface over the orchestrator core:
// creating pending tasks, reading derived progress, applying the
// restricted update set, cancelling, and reporting queue state.
type TaskService struct {
	store        *store.Store
	aq           *queue.AdmissionQueue
	meanStageDur time.Duration
}

func NewTaskService(st *store.Store, aq *queue.AdmissionQueue, meanStageDur time.Duration) *TaskService {
	if meanStageDur <= 0 {
		meanStageDur = 90 * time.Second
	}
	return &TaskService{store: st, aq: aq, meanStageDur: meanStageDur}
}

// Create persists a pending task for a repository the user owns and
// wakes the admission queue.
func (s *TaskService) Create(ctx context.Context, userID int64, req *dto.CreateTaskRequest) (*dto.CreateTaskResponse, error) {
	repo, err := s.store.ReadRepository(req.RepositoryID)
	if err != nil {
		if oe, ok := orcherr.As(err); ok && oe.Kind == orcherr.KindNotFound {
			return nil, ErrRepoNotFound
		}
		return nil, err
	}
	if repo.UserID != userID {
		return nil, ErrRepoPermission
	}
	if repo.Status != model.RepositoryStatusActive {
		return nil, ErrRepoDeleted
	}

	task, err := s.store.CreateTask(req.RepositoryID, req.Config)
	if err != nil {
		return nil, err
	}
	s.aq.Wake(ctx)

	return &dto.CreateTaskResponse{TaskID: task.ID}, nil
}

// GetDetail returns the task with its derived progress, per-file
// summaries, and (when generated) the README markdown.
func (s *TaskService) GetDetail(userID, taskID int64) (*dto.TaskDetailResponse, error) {
	task, err := s.getOwnedTask(userID, taskID)
	if err != nil {
		return nil, err
	}

	snap := progress.Derive(task, 0)
	resp := &dto.TaskDetailResponse{
		Task: task,
		Progress: dto.TaskProgress{
			Step:        string(snap.Step),
			Percent:     snap.Percent,
			CurrentFile: snap.CurrentFile,
		},
	}

	files, err := s.store.ReadFilesByTask(taskID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		resp.Files = append(resp.Files, dto.TaskFileSummary{
			ID:        f.ID,
			FilePath:  f.FilePath,
			Language:  f.Language,
			CodeLines: f.CodeLines,
			Status:    f.Status,
			Error:     f.ErrorMessage,
		})
	}

	if readme, err := s.store.ReadReadme(taskID); err == nil {
		resp.Readme = readme.Markdown
	}

	return resp, nil
}

// Update applies the restricted §6 patch set to a task. Invariant
// violations surface as Conflict from the store.
func (s *TaskService) Update(userID, taskID int64, req *dto.UpdateTaskRequest) error {
	if _, err := s.getOwnedTask(userID, taskID); err != nil {
		return err
	}

	return s.store.UpdateTask(taskID, store.TaskPatch{
		Status:          req.Status,
		CurrentFile:     req.CurrentFile,
		VectorIndexName: req.VectorIndexName,
		SuccessfulFiles: req.SuccessfulFiles,
		FailedFiles:     req.FailedFiles,
		ErrorMessage:    req.ErrorMessage,
	})
}

// Cancel flips a pending or running task to failed with a cancelled
// marker. The driver observes the status change at its next safe
// point and stops the stage.
func (s *TaskService) Cancel(ctx context.Context, userID, taskID int64) error {
	task, err := s.getOwnedTask(userID, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	status := model.TaskStatusFailed
	msg := "cancelled"
	if err := s.store.UpdateTask(taskID, store.TaskPatch{Status: &status, ErrorMessage: &msg}); err != nil {
		return err
	}
	s.aq.Wake(ctx)
	return nil
}

// QueueSnapshot reports the pending order, running count, and an
// advisory wait estimate. When taskID > 0 the response carries that
// task's 1-based position.
func (s *TaskService) QueueSnapshot(taskID int64) (*dto.QueueSnapshotResponse, error) {
	snap, err := s.aq.Snapshot()
	if err != nil {
		return nil, err
	}

	position := snap.Position(taskID)
	waitFor := len(snap.PendingTaskIDs)
	if position > 0 {
		waitFor = position
	}

	return &dto.QueueSnapshotResponse{
		PendingTaskIDs: snap.PendingTaskIDs,
		RunningCount:   snap.RunningCount,
		MaxRunning:     snap.MaxRunning,
		Position:       position,
		EstimatedWaitS: float64(waitFor) * s.meanStageDur.Seconds(),
	}, nil
}

func (s *TaskService) getOwnedTask(userID, taskID int64) (*model.Task, error) {
	task, err := s.store.ReadTask(taskID)
	if err != nil {
		if oe, ok := orcherr.As(err); ok && oe.Kind == orcherr.KindNotFound {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	repo, err := s.store.ReadRepository(task.RepositoryID)
	if err != nil {
		return nil, err
	}
	if repo.UserID != userID {
		return nil, ErrTaskPermission
	}
	return task, nil
}
