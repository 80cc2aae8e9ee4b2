package logger

import (
	"os"
	"strconv"
)

// EnvConfig is the logger configuration read from LOG_* environment
// variables at process start, before the main config file is loaded.
type EnvConfig struct {
	Level       string
	Format      string
	ServiceName string
	Environment string // local, dev, prod

	LogFile     string
	LogFileOnly bool

	MaxSize    int // MB before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// LoadFromEnv reads the logger configuration from the environment.
func LoadFromEnv() *EnvConfig {
	return &EnvConfig{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: getEnv("SERVICE_NAME", "quizgen"),
		Environment: getEnv("APP_ENV", "local"),

		LogFile:     getEnv("LOG_FILE", ""),
		LogFileOnly: getEnvBool("LOG_FILE_ONLY", false),

		MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
		MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
		Compress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// ToConfig converts e into a Config for New. Local environments never
// write a log file.
func (e *EnvConfig) ToConfig() *Config {
	cfg := &Config{
		Level:       e.Level,
		Format:      e.Format,
		ServiceName: e.ServiceName,
	}
	if e.Environment != "local" && e.LogFile != "" {
		cfg.File = e.LogFile
		cfg.FileOnly = e.LogFileOnly
		cfg.MaxSizeMB = e.MaxSize
		cfg.MaxBackups = e.MaxBackups
		cfg.MaxAgeDays = e.MaxAge
		cfg.Compress = e.Compress
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
