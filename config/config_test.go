package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)

	// §4.8 各项默认值
	assert.Equal(t, 4, cfg.Concurrency.GlobalRunningTasks)
	assert.Equal(t, 4, cfg.Concurrency.WorkerCount)
	assert.Equal(t, 1, cfg.Concurrency.Prefetch)
	assert.Equal(t, 500, cfg.Limits.RPM)
	assert.Equal(t, 50, cfg.Index.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Doc.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Doc.MaxTotal)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.BaseMS)
	assert.InDelta(t, 0.2, cfg.Retry.JitterFrac, 0.001)
	assert.True(t, cfg.Pipeline.DocumentFailureIsFatal)
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
concurrency:
  global_running_tasks: 2
  worker_count: 8
limits:
  rpm: 120
  request_timeout: 30s
  hard_timeout: 2m
index:
  batch_size: 16
doc:
  poll_interval: 1s
  max_total: 10m
pipeline:
  document_failure_is_fatal: false
paths:
  repo_root: /data/repos
  vectorstore_root: /data/vectors
llm:
  base_url: https://llm.example.com
  model_id: model-x
  token_budget: 8192
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Concurrency.GlobalRunningTasks)
	assert.Equal(t, 8, cfg.Concurrency.WorkerCount)
	assert.Equal(t, 120, cfg.Limits.RPM)
	assert.Equal(t, 30*time.Second, cfg.Limits.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Limits.HardTimeout)
	assert.Equal(t, 16, cfg.Index.BatchSize)
	assert.Equal(t, time.Second, cfg.Doc.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Doc.MaxTotal)
	assert.False(t, cfg.Pipeline.DocumentFailureIsFatal)
	assert.Equal(t, "/data/repos", cfg.Paths.RepoRoot)
	assert.Equal(t, "model-x", cfg.LLM.ModelID)
	assert.Equal(t, 8192, cfg.LLM.TokenBudget)
}

func TestLoad_LocalOverrideWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(base, []byte("server:\n  port: 8080\n"), 0644))
	local := filepath.Join(dir, "config.local.yaml")
	require.NoError(t, os.WriteFile(local, []byte("server:\n  port: 9090\n"), 0644))

	cfg, err := Load(base)
	require.NoError(t, err)

	// config.local.yaml 优先
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
