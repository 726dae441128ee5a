package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OSS          OSSConfig          `mapstructure:"oss"`
	OAuth        OAuthConfig        `mapstructure:"oauth"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Upload       UploadConfig       `mapstructure:"upload"`

	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Index       IndexConfig       `mapstructure:"index"`
	Doc         DocConfig         `mapstructure:"doc"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Paths       PathsConfig       `mapstructure:"paths"`
	LLM         LLMConfig         `mapstructure:"llm"`
	VectorIndex ExternalServiceConfig `mapstructure:"vector_index"`
	DocGen      ExternalServiceConfig `mapstructure:"docgen"`
}

// ConcurrencyConfig holds the Admission Queue / Worker Pool sizing
// knobs of spec §4.8 (concurrency.*).
type ConcurrencyConfig struct {
	GlobalRunningTasks int `mapstructure:"global_running_tasks"`
	WorkerCount        int `mapstructure:"worker_count"`
	Prefetch           int `mapstructure:"prefetch"`
}

// LimitsConfig holds the LLM rate/timeout knobs (limits.*).
type LimitsConfig struct {
	RPM            int           `mapstructure:"rpm"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HardTimeout    time.Duration `mapstructure:"hard_timeout"`
}

// RetryConfig holds backoff parameters (retry.*).
type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseMS      int     `mapstructure:"base_ms"`
	JitterFrac  float64 `mapstructure:"jitter_frac"`
}

// IndexConfig holds the Index stage's batching knob (index.*).
type IndexConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DocConfig holds the Document stage's polling knobs (doc.*).
type DocConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxTotal     time.Duration `mapstructure:"max_total"`
}

// PipelineConfig holds orchestrator policy toggles not named directly
// in spec §4.8's table but decided as Open Questions in DESIGN.md.
type PipelineConfig struct {
	DocumentFailureIsFatal bool `mapstructure:"document_failure_is_fatal"`
}

// PathsConfig holds the filesystem roots (paths.*).
type PathsConfig struct {
	RepoRoot        string `mapstructure:"repo_root"`
	VectorstoreRoot string `mapstructure:"vectorstore_root"`
}

// LLMConfig holds the LLM provider credentials referenced in §6's
// environment-variable contract (provider credentials for the LLM
// adapter, mapped like every other key via AutomaticEnv).
type LLMConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	ModelID     string `mapstructure:"model_id"`
	TokenBudget int    `mapstructure:"token_budget"`
}

// ExternalServiceConfig is the shared shape for the Vector Index and
// Document-Generation adapters' base URL and timeout.
type ExternalServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	AllowedExtensions []string `mapstructure:"allowed_extensions"` // 允许的扩展名
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("pipeline.document_failure_is_fatal", true)
	viper.SetDefault("concurrency.global_running_tasks", 4)
	viper.SetDefault("concurrency.worker_count", 4)
	viper.SetDefault("concurrency.prefetch", 1)
	viper.SetDefault("limits.rpm", 500)
	viper.SetDefault("index.batch_size", 50)
	viper.SetDefault("doc.poll_interval", "5s")
	viper.SetDefault("doc.max_total", "5m")
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_ms", 1000)
	viper.SetDefault("retry.jitter_frac", 0.2)

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
