/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://streams.example.com)

	DBBackend DatabaseBackend
	DBDSN     string

	MediaRoot       string
	MaxUploadSizeMB int // Optional global multipart upload limit override (MB)

	// Encoder configuration
	FFmpegBin           string
	StreamWidth         int
	StreamHeight        int
	StreamFrameRate     int
	VideoBitrateKbps    int
	AudioBitrateKbps    int
	SessionStartTimeout time.Duration

	// Quota configuration
	QuotaSampleSeconds int // Minimum encoded-time delta before charging usage

	JWTSigningKey string
	JWTTokenTTL   time.Duration

	// AdminPassword bootstraps the initial admin account on first start.
	AdminPassword string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance event bridge configuration
	EventBridgeEnabled bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	InstanceID         string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("LITECAST_ENV", "development"),
		HTTPBind:    getEnv("LITECAST_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("LITECAST_HTTP_PORT", 8080),
		BaseURL:     getEnv("LITECAST_BASE_URL", ""),

		DBBackend: DatabaseBackend(getEnv("LITECAST_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("LITECAST_DB_DSN", ""),

		MediaRoot:       getEnv("LITECAST_MEDIA_ROOT", "./media"),
		MaxUploadSizeMB: getEnvInt("LITECAST_MAX_UPLOAD_SIZE_MB", 0),

		FFmpegBin:           getEnv("LITECAST_FFMPEG_BIN", "ffmpeg"),
		StreamWidth:         getEnvInt("LITECAST_STREAM_WIDTH", 1280),
		StreamHeight:        getEnvInt("LITECAST_STREAM_HEIGHT", 720),
		StreamFrameRate:     getEnvInt("LITECAST_STREAM_FRAMERATE", 24),
		VideoBitrateKbps:    getEnvInt("LITECAST_VIDEO_BITRATE_KBPS", 3000),
		AudioBitrateKbps:    getEnvInt("LITECAST_AUDIO_BITRATE_KBPS", 128),
		SessionStartTimeout: time.Duration(getEnvInt("LITECAST_SESSION_START_TIMEOUT_SECONDS", 15)) * time.Second,

		QuotaSampleSeconds: getEnvInt("LITECAST_QUOTA_SAMPLE_SECONDS", 5),

		JWTSigningKey: getEnv("LITECAST_JWT_SIGNING_KEY", ""),
		JWTTokenTTL:   time.Duration(getEnvInt("LITECAST_JWT_TTL_HOURS", 168)) * time.Hour,

		AdminPassword: getEnv("LITECAST_ADMIN_PASSWORD", "admin"),

		S3AccessKeyID:     getEnvAny([]string{"LITECAST_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"LITECAST_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"LITECAST_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"LITECAST_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"LITECAST_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"LITECAST_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBool("LITECAST_S3_USE_PATH_STYLE", false),

		TracingEnabled:    getEnvBool("LITECAST_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("LITECAST_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("LITECAST_TRACING_SAMPLE_RATE", 1.0),

		EventBridgeEnabled: getEnvBool("LITECAST_EVENT_BRIDGE_ENABLED", false),
		RedisAddr:          getEnv("LITECAST_REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("LITECAST_REDIS_PASSWORD", ""),
		RedisDB:            getEnvInt("LITECAST_REDIS_DB", 0),
		InstanceID:         getEnv("LITECAST_INSTANCE_ID", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("LITECAST_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("LITECAST_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("LITECAST_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	if cfg.QuotaSampleSeconds <= 0 {
		return nil, fmt.Errorf("LITECAST_QUOTA_SAMPLE_SECONDS must be positive")
	}

	return cfg, nil
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
