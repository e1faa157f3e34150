package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver はクライアント常駐ストレージの実装種別を表す。
type StorageDriver string

const (
	// StorageMemory はプロセス内メモリのみに保存する（再起動で消える）。
	StorageMemory StorageDriver = "memory"
	// StorageSQLite はSQLiteファイルに保存する（既定）。
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres はPostgreSQLのkv_entriesテーブルに保存する。
	StoragePostgres StorageDriver = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StorageDriver StorageDriver
	SQLitePath    string
	DatabaseURL   string

	// Auth
	LoginTokenSecret string

	// Catalog
	CatalogSource string

	// Absence sweep
	AbsenceSweepInterval time.Duration
	AbsenceGracePeriod   time.Duration

	// Rate Limit
	RateLimitGeneral    int
	RateLimitSubmission int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StorageDriver = StorageDriver(strings.ToLower(getEnvString("STORAGE_DRIVER", string(StorageSQLite))))
	switch cfg.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q", cfg.StorageDriver)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.StorageDriver == StoragePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.LoginTokenSecret = os.Getenv("LOGIN_TOKEN_SECRET")
	if cfg.LoginTokenSecret == "" {
		missing = append(missing, "LOGIN_TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "eventease.db")
	cfg.CatalogSource = getEnvString("CATALOG_SOURCE", "")
	cfg.AbsenceSweepInterval = getEnvDuration("ABSENCE_SWEEP_INTERVAL", time.Hour)
	cfg.AbsenceGracePeriod = getEnvDuration("ABSENCE_GRACE_PERIOD", 6*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmission = getEnvInt("RATE_LIMIT_SUBMISSION", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = strings.TrimRight(getEnvString("BASE_URL", "http://localhost:8080"), "/")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
