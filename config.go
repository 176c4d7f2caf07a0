package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything read from the environment at startup.
type Config struct {
	// Suricata paths
	SuricataBinary string
	SuricataConfig string
	RulesDir       string
	LogDir         string
	EveLog         string
	StatsLog       string
	Interface      string // empty = detect from suricata.yaml

	// Database
	DBType        string // sqlite, postgres, mysql
	DBHost        string
	DBPort        int
	DBUser        string
	DBPassword    string
	DBName        string
	SQLitePath    string
	RetentionDays int // 0 disables cleanup

	// Process supervision
	AutoRestart        bool
	MaxRestartRetries  int
	RestartsPerHour    int
	CrashCheckInterval time.Duration
	StartupConfirm     time.Duration
	StopTimeout        time.Duration

	// Background sync intervals
	MetricsInterval   time.Duration
	AlertSyncInterval time.Duration
	StatsSyncInterval time.Duration
	RetentionInterval time.Duration

	// HTTP API
	HTTPHost string
	HTTPPort int
	APIToken string

	LogLinesLimit int
	RingSize      int
	LogLevel      string
}

// LoadConfig reads the environment (plus an optional .env file) into a Config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	logDir := getEnv("SURICATA_LOG_DIR", "/var/log/suricata")

	cfg := &Config{
		SuricataBinary: getEnv("SURICATA_BINARY_PATH", "suricata"),
		SuricataConfig: getEnv("SURICATA_CONFIG_PATH", "/etc/suricata/suricata.yaml"),
		RulesDir:       getEnv("SURICATA_RULES_DIR", "/etc/suricata/rules"),
		LogDir:         logDir,
		EveLog:         filepath.Join(logDir, "eve.json"),
		StatsLog:       filepath.Join(logDir, "stats.log"),
		Interface:      getEnv("SURICATA_INTERFACE", ""),

		DBType:        normalizeDBType(getEnv("DB_TYPE", "sqlite")),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnvInt("DB_PORT", 0),
		DBUser:        getEnv("DB_USER", ""),
		DBPassword:    getEnv("DB_PASSWORD", ""),
		DBName:        getEnv("DB_NAME", "suricata"),
		SQLitePath:    getEnv("SQLITE_PATH", "suricata.db"),
		RetentionDays: getEnvInt("DB_RETENTION_DAYS", 30),

		AutoRestart:        getEnvBool("AUTO_RESTART_ENABLED", false),
		MaxRestartRetries:  getEnvInt("AUTO_RESTART_MAX_RETRIES", 3),
		RestartsPerHour:    getEnvInt("AUTO_RESTART_PER_HOUR", 6),
		CrashCheckInterval: getEnvDuration("AUTO_RESTART_CHECK_INTERVAL", 15*time.Second),
		StartupConfirm:     getEnvDuration("STARTUP_CONFIRM_WINDOW", 5*time.Second),
		StopTimeout:        getEnvDuration("STOP_TIMEOUT", 10*time.Second),

		MetricsInterval:   getEnvDuration("TRAFFIC_METRICS_INTERVAL", time.Minute),
		AlertSyncInterval: getEnvDuration("ALERT_SYNC_INTERVAL", 5*time.Second),
		StatsSyncInterval: getEnvDuration("STATS_SYNC_INTERVAL", 10*time.Second),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", time.Hour),

		HTTPHost: getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getEnvInt("HTTP_PORT", 5000),
		APIToken: getEnv("API_TOKEN", ""),

		LogLinesLimit: getEnvInt("LOG_LINES_LIMIT", 100),
		RingSize:      getEnvInt("EVENT_RING_SIZE", 5000),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	// Default server ports per backend when DB_PORT is unset.
	if cfg.DBPort == 0 {
		switch cfg.DBType {
		case "postgres":
			cfg.DBPort = 5432
		case "mysql":
			cfg.DBPort = 3306
		}
	}
	if cfg.DBUser == "" {
		switch cfg.DBType {
		case "postgres":
			cfg.DBUser = "postgres"
		case "mysql":
			cfg.DBUser = "root"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeDBType maps the aliases users actually put in env files onto the
// three supported backends.
func normalizeDBType(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "sqlite", "sqlite3", "local":
		return "sqlite"
	case "postgres", "postgresql", "psql":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database type %q", c.DBType)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("DB_RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	for name, iv := range map[string]time.Duration{
		"TRAFFIC_METRICS_INTERVAL":    c.MetricsInterval,
		"ALERT_SYNC_INTERVAL":         c.AlertSyncInterval,
		"STATS_SYNC_INTERVAL":         c.StatsSyncInterval,
		"RETENTION_INTERVAL":          c.RetentionInterval,
		"AUTO_RESTART_CHECK_INTERVAL": c.CrashCheckInterval,
	} {
		if iv <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MaxRestartRetries < 0 {
		return fmt.Errorf("AUTO_RESTART_MAX_RETRIES must not be negative")
	}
	if c.RestartsPerHour <= 0 {
		return fmt.Errorf("AUTO_RESTART_PER_HOUR must be positive")
	}
	if c.RingSize <= 0 {
		return fmt.Errorf("EVENT_RING_SIZE must be positive")
	}
	return nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "1h") and, for
// compatibility with older deployments, bare integers meaning seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
