package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/repoanalyzer/internal/model"
	"github.com/qs3c/repoanalyzer/internal/queue"
	"github.com/qs3c/repoanalyzer/internal/store"
	"github.com/qs3c/repoanalyzer/internal/testutil"
)

func setupRegistry(t *testing.T, interval time.Duration) (*Registry, *store.Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })
	st := store.New(db)
	aq := queue.New(st, nil, 2)
	return NewRegistry(aq, interval, 90*time.Second), st
}

func TestHeartbeat_TracksWorkers(t *testing.T) {
	r, _ := setupRegistry(t, time.Minute)

	r.Heartbeat("worker-0", 1)
	r.Heartbeat("worker-1", 0)

	report, err := r.Snapshot()
	require.NoError(t, err)
	assert.Len(t, report.Workers, 2)
}

func TestUnhealthy_StaleWorkerDetected(t *testing.T) {
	r, _ := setupRegistry(t, 10*time.Millisecond)

	r.Heartbeat("worker-0", 0)

	// 心跳超过 2H 视为不健康
	time.Sleep(30 * time.Millisecond)
	stale := r.Unhealthy()
	assert.Contains(t, stale, "worker-0")

	// 心跳恢复后移出不健康列表
	r.Heartbeat("worker-0", 0)
	assert.Empty(t, r.Unhealthy())
}

func TestUnhealthy_FreshWorkerNotListed(t *testing.T) {
	r, _ := setupRegistry(t, time.Minute)

	r.Heartbeat("worker-0", 0)
	assert.Empty(t, r.Unhealthy())
}

func TestSnapshot_QueueState(t *testing.T) {
	r, st := setupRegistry(t, time.Minute)

	repo := &model.Repository{UserID: 1, DisplayName: "r", FullName: "r/health", LocalPath: t.TempDir()}
	require.NoError(t, st.CreateRepository(repo))
	t1, err := st.CreateTask(repo.ID, "")
	require.NoError(t, err)

	repo2 := &model.Repository{UserID: 1, DisplayName: "r2", FullName: "r2/health", LocalPath: t.TempDir()}
	require.NoError(t, st.CreateRepository(repo2))
	_, err = st.CreateTask(repo2.ID, "")
	require.NoError(t, err)

	admitted, err := st.TryAdmit(t1.ID, 2)
	require.NoError(t, err)
	require.True(t, admitted)

	report, err := r.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 1, report.PendingCount)
	assert.Equal(t, int64(1), report.RunningCount)
	assert.Equal(t, 2, report.MaxRunning)
	// 估算等待 = 排队数 × 平均阶段时长（90s），仅为建议值
	assert.InDelta(t, 90.0, report.EstimatedWaitS, 0.001)
}
