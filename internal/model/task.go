package model

import "time"

// Task status values. Transitions are monotone except for the
// pending -> running -> {completed, failed} path described in spec §3.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// PipelineStage is the tagged stage enum driving the Pipeline Driver
// (replaces a dynamic per-stage dispatch registry with a single
// dispatch function over this type, per the redesign flag in spec §9).
type PipelineStage int

const (
	StageScan PipelineStage = iota
	StageIndex
	StageAnalyze
	StageDocument
)

func (s PipelineStage) String() string {
	switch s {
	case StageScan:
		return "scan"
	case StageIndex:
		return "index"
	case StageAnalyze:
		return "analyze"
	case StageDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Task is one end-to-end analysis run for a repository version. Both
// Status and CurrentStep are persisted; the Pipeline Driver is a pure
// function of them on resume.
type Task struct {
	ID                 int64      `gorm:"primaryKey" json:"id"`
	RepositoryID       int64      `gorm:"not null;index" json:"repository_id"`
	Status             string     `gorm:"size:20;default:pending;index" json:"status"`
	CurrentStep        int        `gorm:"not null;default:0" json:"current_step"`
	StartTime          *time.Time `json:"start_time,omitempty"`
	EndTime            *time.Time `json:"end_time,omitempty"`
	TotalFiles         int        `gorm:"not null;default:0" json:"total_files"`
	SuccessfulFiles    int        `gorm:"not null;default:0" json:"successful_files"`
	FailedFiles        int        `gorm:"not null;default:0" json:"failed_files"`
	CodeLines          int        `gorm:"not null;default:0" json:"code_lines"`
	ModuleCount        int        `gorm:"not null;default:0" json:"module_count"`
	VectorIndexName    string     `gorm:"size:255" json:"vector_index_name,omitempty"`
	CurrentFile        string     `gorm:"size:1024" json:"current_file,omitempty"`
	AnalysisTotalFiles int        `gorm:"not null;default:0" json:"analysis_total_files"`
	AnalysisSuccess    int        `gorm:"not null;default:0" json:"analysis_success_files"`
	AnalysisFailed     int        `gorm:"not null;default:0" json:"analysis_failed_files"`
	DocumentJobID      string     `gorm:"size:255" json:"document_job_id,omitempty"`
	ConfigBlob         string     `gorm:"type:text" json:"-"`
	ErrorMessage       string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (Task) TableName() string {
	return "orch_tasks"
}

// IsTerminal reports whether the task has reached a terminal status.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
