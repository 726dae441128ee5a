package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/repoanalyzer/internal/model"
)

var userSeq int64

// UserOption 用户 fixture 的可选配置
type UserOption func(*model.User)

func WithUsername(username string) UserOption {
	return func(u *model.User) {
		u.Username = username
	}
}

func WithEmail(email string) UserOption {
	return func(u *model.User) {
		u.Email = &email
	}
}

func WithGithubID(githubID string) UserOption {
	return func(u *model.User) {
		u.GithubID = &githubID
	}
}

// TestUser 创建测试用户，默认用户名/邮箱自动去重
func TestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *model.User {
	t.Helper()

	n := atomic.AddInt64(&userSeq, 1)
	email := fmt.Sprintf("user%d@example.com", n)
	hash := "$2a$10$testhashtesthashtesthashtesthashtesthashtesthashtestha"
	user := &model.User{
		Username:     fmt.Sprintf("user%d", n),
		Email:        &email,
		PasswordHash: &hash,
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// TestRepository 创建测试仓库
func TestRepository(t *testing.T, db *gorm.DB, userID int64, name string) *model.Repository {
	t.Helper()

	repo := &model.Repository{
		UserID:      userID,
		DisplayName: name,
		FullName:    fmt.Sprintf("%s/%d", name, atomic.AddInt64(&userSeq, 1)),
		LocalPath:   t.TempDir(),
		Status:      model.RepositoryStatusActive,
	}
	if err := db.Create(repo).Error; err != nil {
		t.Fatalf("Failed to create test repository: %v", err)
	}
	return repo
}

// TestTask 创建指定状态的测试任务
func TestTask(t *testing.T, db *gorm.DB, repoID int64, status string) *model.Task {
	t.Helper()

	task := &model.Task{
		RepositoryID: repoID,
		Status:       status,
		CurrentStep:  int(model.StageScan),
		CreatedAt:    time.Now(),
	}
	if status == model.TaskStatusRunning {
		now := time.Now()
		task.StartTime = &now
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}
	return task
}

// TestFileAnalysis 创建测试文件分析行
func TestFileAnalysis(t *testing.T, db *gorm.DB, taskID int64, path, status string) *model.FileAnalysis {
	t.Helper()

	fa := &model.FileAnalysis{
		TaskID:    taskID,
		FilePath:  path,
		Language:  "python",
		CodeLines: 10,
		Status:    status,
		Timestamp: time.Now(),
	}
	if err := db.Create(fa).Error; err != nil {
		t.Fatalf("Failed to create test file analysis: %v", err)
	}
	return fa
}
