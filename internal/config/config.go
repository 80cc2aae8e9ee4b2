package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Generation GenerationConfig `mapstructure:"generation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Index      IndexConfig      `mapstructure:"index"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres or sqlite
	Path   string `mapstructure:"path"`   // sqlite file
	URL    string `mapstructure:"url"`    // postgres connection string, takes precedence

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

// ProviderConfig configures one completion backend. A provider with an
// empty APIKey is treated as not configured.
type ProviderConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	BaseURL  string        `mapstructure:"base_url"`
	Priority int           `mapstructure:"priority"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `mapstructure:"openai"`
	Gemini ProviderConfig `mapstructure:"gemini"`
}

// PriceConfig overrides one entry of the built-in price table. Rates are
// USD per token.
type PriceConfig struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	PromptRate     float64 `mapstructure:"prompt_rate"`
	CompletionRate float64 `mapstructure:"completion_rate"`
}

type UsageConfig struct {
	HourlyCostLimit float64       `mapstructure:"hourly_cost_limit"`
	DailyCostLimit  float64       `mapstructure:"daily_cost_limit"`
	MaxCallsPerDay  int           `mapstructure:"max_calls_per_day"`
	MonthlyBudget   float64       `mapstructure:"monthly_budget"`
	Prices          []PriceConfig `mapstructure:"prices"`
}

type AlertsConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GenerationConfig struct {
	MaxConcurrentJobs    int `mapstructure:"max_concurrent_jobs"`
	ChapterRetryAttempts int `mapstructure:"chapter_retry_attempts"`
	SourceCharLimit      int `mapstructure:"source_char_limit"`
	MaxUploadBytes       int `mapstructure:"max_upload_bytes"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; empty auto-detects
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// Enabled reports whether enough is set to build a storage client.
func (c *StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type IndexConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from configPath (or ./configs/config.yaml),
// a .env file and the environment, in increasing precedence.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Embedding.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/quizgen.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.priority", 1)
	v.SetDefault("providers.openai.timeout", 60*time.Second)
	v.SetDefault("providers.gemini.model", "gemini-1.5-flash")
	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("providers.gemini.priority", 2)
	v.SetDefault("providers.gemini.timeout", 60*time.Second)

	v.SetDefault("usage.hourly_cost_limit", 5.0)
	v.SetDefault("usage.daily_cost_limit", 50.0)
	v.SetDefault("usage.max_calls_per_day", 1000)
	v.SetDefault("usage.monthly_budget", 500.0)

	v.SetDefault("alerts.timeout", 5*time.Second)

	v.SetDefault("generation.max_concurrent_jobs", 2)
	v.SetDefault("generation.chapter_retry_attempts", 2)
	v.SetDefault("generation.source_char_limit", 8000)
	v.SetDefault("generation.max_upload_bytes", 2<<20)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "quizgen-sources")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "questions")

	v.SetDefault("embedding.name", "jina")
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.api_key_env", "JINA_API_KEY")
	v.SetDefault("embedding.dimensions", 1024)

	v.SetDefault("index.enabled", false)
}

// bindEnv maps the well-known environment names onto config keys.
func bindEnv(v *viper.Viper) {
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")

	v.BindEnv("providers.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("providers.openai.model", "OPENAI_MODEL")
	v.BindEnv("providers.openai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("providers.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("providers.gemini.model", "GEMINI_MODEL")

	v.BindEnv("usage.hourly_cost_limit", "AI_HOURLY_COST_LIMIT")
	v.BindEnv("usage.daily_cost_limit", "AI_DAILY_COST_LIMIT")
	v.BindEnv("usage.max_calls_per_day", "AI_MAX_CALLS_PER_DAY")
	v.BindEnv("usage.monthly_budget", "AI_MONTHLY_BUDGET")

	v.BindEnv("alerts.webhook_url", "ALERT_WEBHOOK_URL")

	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")

	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")

	v.BindEnv("index.enabled", "QUESTION_INDEX_ENABLED")
}
