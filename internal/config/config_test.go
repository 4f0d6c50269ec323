package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
aliyun:
  api_key: "file-key"
  model: "qwen-max"
  task_models:
    match_scoring: "qwen-plus"
qdrant:
  endpoint: "http://qdrant:6333"
  collection: "candidates_test"
  dimension: 768
  score_threshold: 0.25
server:
  address: ":9090"
match_scorer:
  max_concurrency: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// 确保环境变量不干扰测试
	t.Setenv("ALIYUN_API_KEY", "")
	t.Setenv("ALIYUN_API_URL", "")
	t.Setenv("ALIYUN_MODEL", "")
	t.Setenv("SERVER_API_KEY", "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Aliyun.APIKey)
	assert.Equal(t, "qwen-max", cfg.Aliyun.Model)
	assert.Equal(t, "http://qdrant:6333", cfg.Qdrant.Endpoint)
	assert.Equal(t, "candidates_test", cfg.Qdrant.Collection)
	assert.Equal(t, 768, cfg.Qdrant.Dimension)
	assert.Equal(t, 0.25, cfg.Qdrant.ScoreThreshold)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 8, cfg.MatchScorer.MaxConcurrency)

	// 未配置的字段应回填默认值
	assert.Equal(t, "text-embedding-v3", cfg.Aliyun.Embedding.Model)
	assert.Equal(t, 1024, cfg.Aliyun.Embedding.Dimensions)
	assert.Equal(t, 5, cfg.Qdrant.DefaultSearchLimit)
	assert.Equal(t, "resume.events.exchange", cfg.RabbitMQ.ResumeExchange)
	assert.Equal(t, 365, cfg.Redis.MD5RecordExpireDays)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliyun:\n  api_key: \"file-key\"\n"), 0644))

	t.Setenv("ALIYUN_API_KEY", "env-key")
	t.Setenv("ALIYUN_MODEL", "qwen-turbo")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Aliyun.APIKey)
	assert.Equal(t, "qwen-turbo", cfg.Aliyun.Model)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	t.Setenv("ALIYUN_API_KEY", "")

	cfg := Default()
	assert.Equal(t, "qwen-plus", cfg.Aliyun.Model)
	assert.Equal(t, 0.1, cfg.Qdrant.ScoreThreshold)
	assert.Equal(t, 4, cfg.MatchScorer.MaxConcurrency)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestGetModelForTask(t *testing.T) {
	cfg := Default()
	cfg.Aliyun.Model = "qwen-plus"
	cfg.Aliyun.TaskModels = map[string]string{"resume_extraction": "qwen-max"}

	assert.Equal(t, "qwen-max", cfg.GetModelForTask("resume_extraction"))
	assert.Equal(t, "qwen-plus", cfg.GetModelForTask("unknown_task"))
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration("30s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("bogus", time.Minute))
}
