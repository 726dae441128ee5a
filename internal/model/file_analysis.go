package model

import "time"

// FileAnalysis status values.
const (
	FileAnalysisPending = "pending"
	FileAnalysisSuccess = "success"
	FileAnalysisFailed  = "failed"
)

// FileAnalysis is one candidate file scanned for a Task. At most one
// row with status=success persists per (task_id, file_path); the
// Worker Pool must prefer the success row on conflict (§4.1).
type FileAnalysis struct {
	ID              int64       `gorm:"primaryKey" json:"id"`
	TaskID          int64       `gorm:"not null;index:idx_fa_task_path" json:"task_id"`
	FilePath        string      `gorm:"size:1024;not null;index:idx_fa_task_path" json:"file_path"`
	Language        string      `gorm:"size:64" json:"language"`
	SizeBytes       int64       `gorm:"not null;default:0" json:"size_bytes"`
	CodeLines       int         `gorm:"not null;default:0" json:"code_lines"`
	Status          string      `gorm:"size:20;default:pending;index" json:"status"`
	CodeContent     string      `gorm:"type:longtext" json:"-"`
	AnalysisContent string      `gorm:"type:longtext" json:"analysis_content,omitempty"`
	Dependencies    StringArray `gorm:"type:json" json:"dependencies,omitempty"`
	Timestamp       time.Time   `gorm:"autoUpdateTime" json:"timestamp"`
	ErrorMessage    string      `gorm:"type:text" json:"error_message,omitempty"`
}

func (FileAnalysis) TableName() string {
	return "orch_file_analyses"
}
