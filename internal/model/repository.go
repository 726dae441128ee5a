package model

import "time"

// RepositoryStatus values per the Repository lifecycle: a repository is
// either active (local_path exists on disk) or soft-deleted.
const (
	RepositoryStatusActive  = "active"
	RepositoryStatusDeleted = "deleted"
)

// Repository is a single uploaded/cloned codebase. LocalPath is the
// content-addressed directory name derived from the upload hash.
type Repository struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;index;uniqueIndex:idx_repo_fullname_user" json:"user_id"`
	DisplayName string    `gorm:"size:255;not null" json:"display_name"`
	FullName    string    `gorm:"size:255;not null;uniqueIndex:idx_repo_fullname_user" json:"full_name"`
	LocalPath   string    `gorm:"size:1024;not null" json:"local_path"`
	Status      string    `gorm:"size:20;default:active;index" json:"status"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Repository) TableName() string {
	return "orch_repositories"
}
