package cron

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/store"
	"github.com/qs3c/repoanalyzer/internal/testutil"
)

func setupCronService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	st := store.New(db)
	repoRoot := t.TempDir()
	svc := NewService(st, repoRoot, time.Millisecond)
	return svc, st, repoRoot
}

func TestNewService_DefaultMinAge(t *testing.T) {
	svc := NewService(nil, "", 0)
	assert.Equal(t, time.Hour, svc.minAge)
}

func TestCleanupNow_RemovesDeletedRepoDir(t *testing.T) {
	svc, st, _ := setupCronService(t)

	dir := t.TempDir()
	repo := &model.Repository{
		UserID:      1,
		DisplayName: "demo",
		FullName:    "demo/1",
		LocalPath:   dir,
		Status:      model.RepositoryStatusDeleted,
	}
	require.NoError(t, st.CreateRepository(repo))
	// CreateRepository 会把状态重置为 active，直接改回 deleted
	require.NoError(t, st.UpdateRepositoryStatus(repo.ID, model.RepositoryStatusDeleted))

	removed := svc.CleanupNow()
	assert.GreaterOrEqual(t, removed, 1)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupNow_RemovesOrphanDir(t *testing.T) {
	svc, _, repoRoot := setupCronService(t)

	orphan := filepath.Join(repoRoot, "deadbeef")
	require.NoError(t, os.MkdirAll(orphan, 0755))

	// minAge 是毫秒级，稍等让目录“变老”
	time.Sleep(5 * time.Millisecond)

	removed := svc.CleanupNow()
	assert.GreaterOrEqual(t, removed, 1)

	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupNow_KeepsReferencedDir(t *testing.T) {
	svc, st, repoRoot := setupCronService(t)

	referenced := filepath.Join(repoRoot, "cafebabe")
	require.NoError(t, os.MkdirAll(referenced, 0755))

	repo := &model.Repository{
		UserID:      1,
		DisplayName: "kept",
		FullName:    "kept/1",
		LocalPath:   referenced,
	}
	require.NoError(t, st.CreateRepository(repo))

	time.Sleep(5 * time.Millisecond)
	svc.CleanupNow()

	_, err := os.Stat(referenced)
	assert.NoError(t, err)
}

func TestCleanupNow_KeepsFreshDir(t *testing.T) {
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	st := store.New(db)
	repoRoot := t.TempDir()

	// minAge 一小时：刚创建的孤儿目录不应被清
	svc := NewService(st, repoRoot, time.Hour)

	fresh := filepath.Join(repoRoot, "freshdir")
	require.NoError(t, os.MkdirAll(fresh, 0755))

	svc.CleanupNow()

	_, err := os.Stat(fresh)
	assert.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	svc, _, _ := setupCronService(t)

	svc.Start()
	svc.Stop()
}
