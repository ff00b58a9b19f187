package infra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Postgres PostgresConfig

	// Redis configuration (asynq task queue). Empty Addr disables the
	// queue and reviews run in-process.
	Redis RedisConfig

	// Ollama configuration (LLM + embeddings)
	Ollama OllamaConfig

	// GitLab configuration
	GitLab GitLabConfig

	// Review tunables
	Review ReviewConfig

	// Logging configuration
	LogLevel  string
	LogFormat string

	// Worker configuration
	WorkerConcurrency int
	WorkerMetricsAddr string
}

type ServerConfig struct {
	Addr string
	Port string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	// Computed connection string
	DSN string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type OllamaConfig struct {
	BaseURL    string
	LLMModel   string
	EmbedModel string
	EmbedDim   int
}

type GitLabConfig struct {
	URL           string
	Token         string
	WebhookSecret string
}

type ReviewConfig struct {
	MaxDiffLines   int
	RetrieverTopK  int
	ScoreThreshold float64
}

// LoadConfig loads configuration using viper with support for:
// - REVIEW_-prefixed environment variables
// - an optional .env file
// - default values
// Fails fast on invalid required configs.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("REVIEW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Config file is optional; env vars and defaults cover everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
			Port: v.GetString("server.port"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Database: v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Ollama: OllamaConfig{
			BaseURL:    strings.TrimRight(v.GetString("ollama.base.url"), "/"),
			LLMModel:   v.GetString("llm.model"),
			EmbedModel: v.GetString("embed.model"),
			EmbedDim:   v.GetInt("embed.dim"),
		},
		GitLab: GitLabConfig{
			URL:           strings.TrimRight(v.GetString("gitlab.url"), "/"),
			Token:         v.GetString("gitlab.token"),
			WebhookSecret: v.GetString("webhook.secret"),
		},
		Review: ReviewConfig{
			MaxDiffLines:   v.GetInt("max.diff.lines"),
			RetrieverTopK:  v.GetInt("retriever.top.k"),
			ScoreThreshold: v.GetFloat64("score.threshold"),
		},
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
		WorkerConcurrency: v.GetInt("worker.concurrency"),
		WorkerMetricsAddr: v.GetString("worker.metrics.addr"),
	}

	config.Postgres.DSN = buildPostgresDSN(config.Postgres)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults: all interfaces, port 8000
	v.SetDefault("server.addr", "0.0.0.0")
	v.SetDefault("server.port", "8000")

	// Postgres defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "reviewer")
	v.SetDefault("db.password", "reviewer")
	v.SetDefault("db.name", "review_db")
	v.SetDefault("db.sslmode", "disable")

	// Redis defaults: empty addr = queue disabled, reviews run in-process
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Ollama defaults
	v.SetDefault("ollama.base.url", "http://localhost:11434")
	v.SetDefault("llm.model", "qwen2.5-coder:7b")
	v.SetDefault("embed.model", "nomic-embed-text")
	v.SetDefault("embed.dim", 768)

	// GitLab defaults
	v.SetDefault("gitlab.url", "https://gitlab.example.com")
	v.SetDefault("gitlab.token", "")
	v.SetDefault("webhook.secret", "")

	// Review defaults
	v.SetDefault("max.diff.lines", 500)
	v.SetDefault("retriever.top.k", 5)
	v.SetDefault("score.threshold", 0.3)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Worker defaults. The metrics address is the worker's own scrape
	// endpoint; review counters are recorded in the worker process, not
	// the API server.
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics.addr", "0.0.0.0:9090")
}

func buildPostgresDSN(pg PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)
}

func validateConfig(config *Config) error {
	var missing []string

	if config.Postgres.Database == "" {
		missing = append(missing, "REVIEW_DB_NAME")
	}
	if config.Ollama.BaseURL == "" {
		missing = append(missing, "REVIEW_OLLAMA_BASE_URL")
	}
	if config.Server.Port == "" {
		missing = append(missing, "REVIEW_SERVER_PORT")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if config.Ollama.EmbedDim <= 0 {
		return fmt.Errorf("REVIEW_EMBED_DIM must be positive, got %d", config.Ollama.EmbedDim)
	}
	if config.Review.RetrieverTopK <= 0 {
		return fmt.Errorf("REVIEW_RETRIEVER_TOP_K must be positive, got %d", config.Review.RetrieverTopK)
	}

	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Addr, c.Server.Port)
}

// QueueEnabled reports whether the asynq task queue is configured.
func (c *Config) QueueEnabled() bool {
	return c.Redis.Addr != ""
}
