/*
Copyright (C) 2026 Friends Incode

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
	Environment    string
	HTTPBind       string
	HTTPPort       int
	AllowedOrigins []string // websocket origin patterns for the live endpoint
	DBBackend      DatabaseBackend
	DBDSN          string
	DBAutoMigrate  bool
	MediaRoot      string
	FFmpegBin      string
	CompileDir     string        // where compiled playlists are written
	BootLookback   time.Duration // concerts that started this long ago are still started at boot
	Timezone       string        // scheduler location

	// Feed configuration
	QueueDepth  int // frames buffered per listener
	OpusBitrate int // bits per second
	OpusFEC     bool

	// S3 Object Storage configuration (s3:// playlist locations)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO
	S3PresignTTL      time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
	MetricsEnabled    bool

	// Outbound event relay (optional, NATS wins when both are set)
	NATSURL       string
	NATSToken     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsPrefix  string

	// WebRTC configuration
	WebRTCSTUNURL      string // STUN server for NAT traversal
	WebRTCTURNURL      string // TURN server for relaying (optional)
	WebRTCTURNUsername string // TURN username
	WebRTCTURNPassword string // TURN password
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    getEnvAny([]string{"ENCORE_ENV"}, "development"),
		HTTPBind:       getEnvAny([]string{"ENCORE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:       getEnvIntAny([]string{"ENCORE_HTTP_PORT", "PORT"}, 8080),
		AllowedOrigins: splitList(getEnvAny([]string{"ENCORE_ALLOWED_ORIGINS"}, "*")),
		DBBackend:      DatabaseBackend(getEnvAny([]string{"ENCORE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:          getEnvAny([]string{"ENCORE_DB_DSN", "DATABASE_URL"}, ""),
		DBAutoMigrate:  getEnvBoolAny([]string{"ENCORE_DB_AUTO_MIGRATE"}, false),
		MediaRoot:      getEnvAny([]string{"ENCORE_MEDIA_ROOT", "MEDIA_PATH"}, "./media"),
		FFmpegBin:      getEnvAny([]string{"ENCORE_FFMPEG_BIN"}, "ffmpeg"),
		CompileDir:     getEnvAny([]string{"ENCORE_COMPILE_DIR"}, os.TempDir()),
		BootLookback:   time.Duration(getEnvIntAny([]string{"ENCORE_BOOT_LOOKBACK_MINUTES"}, 180)) * time.Minute,
		Timezone:       getEnvAny([]string{"ENCORE_TIMEZONE", "TZ"}, "UTC"),

		QueueDepth:  getEnvIntAny([]string{"ENCORE_QUEUE_DEPTH"}, 50),
		OpusBitrate: getEnvIntAny([]string{"ENCORE_OPUS_BITRATE"}, 128000),
		OpusFEC:     getEnvBoolAny([]string{"ENCORE_OPUS_FEC"}, true),

		S3AccessKeyID:     getEnvAny([]string{"ENCORE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"ENCORE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"ENCORE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"ENCORE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"ENCORE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3PresignTTL:      time.Duration(getEnvIntAny([]string{"ENCORE_S3_PRESIGN_TTL_MINUTES"}, 360)) * time.Minute,

		TracingEnabled:    getEnvBoolAny([]string{"ENCORE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ENCORE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ENCORE_TRACING_SAMPLE_RATE"}, 1.0),
		MetricsEnabled:    getEnvBoolAny([]string{"ENCORE_METRICS_ENABLED"}, true),

		NATSURL:       getEnvAny([]string{"ENCORE_NATS_URL", "NATS_URL"}, ""),
		NATSToken:     getEnvAny([]string{"ENCORE_NATS_TOKEN"}, ""),
		RedisAddr:     getEnvAny([]string{"ENCORE_REDIS_ADDR", "REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"ENCORE_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"ENCORE_REDIS_DB"}, 0),
		EventsPrefix:  getEnvAny([]string{"ENCORE_EVENTS_PREFIX"}, "encore.events"),

		WebRTCSTUNURL:      getEnvAny([]string{"ENCORE_WEBRTC_STUN_URL", "WEBRTC_STUN_URL"}, "stun:stun.l.google.com:19302"),
		WebRTCTURNURL:      getEnvAny([]string{"ENCORE_WEBRTC_TURN_URL", "WEBRTC_TURN_URL"}, ""),
		WebRTCTURNUsername: getEnvAny([]string{"ENCORE_WEBRTC_TURN_USERNAME", "WEBRTC_TURN_USERNAME"}, ""),
		WebRTCTURNPassword: getEnvAny([]string{"ENCORE_WEBRTC_TURN_PASSWORD", "WEBRTC_TURN_PASSWORD"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("ENCORE_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.QueueDepth < 1 {
		return nil, fmt.Errorf("ENCORE_QUEUE_DEPTH must be at least 1, got %d", cfg.QueueDepth)
	}

	// Opus accepts 6 kb/s to 510 kb/s.
	if cfg.OpusBitrate < 6000 || cfg.OpusBitrate > 510000 {
		return nil, fmt.Errorf("ENCORE_OPUS_BITRATE must be between 6000 and 510000, got %d", cfg.OpusBitrate)
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("ENCORE_TRACING_SAMPLE_RATE must be within [0, 1], got %v", cfg.TracingSampleRate)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("ENCORE_TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.WebRTCTURNURL != "" && (cfg.WebRTCTURNUsername == "" || cfg.WebRTCTURNPassword == "") {
			return nil, fmt.Errorf("ENCORE_WEBRTC_TURN_USERNAME and ENCORE_WEBRTC_TURN_PASSWORD are required when TURN is enabled in production")
		}
	}

	return cfg, nil
}

// Location returns the scheduler time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
