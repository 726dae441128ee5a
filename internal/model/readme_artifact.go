package model

import "time"

// ReadmeArtifact is the single generated README for a Task. It exists
// iff the Document stage completed successfully.
type ReadmeArtifact struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	TaskID    int64     `gorm:"not null;uniqueIndex" json:"task_id"`
	Markdown  string    `gorm:"type:longtext;not null" json:"markdown"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ReadmeArtifact) TableName() string {
	return "orch_readme_artifacts"
}
