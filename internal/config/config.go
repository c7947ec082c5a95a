package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sqin/subtitles/pkg/icron"
)

// Config holds all application configuration.
// Values come from environment variables with sensible defaults.
//
// Environment Variables:
//
// HTTP:
// - SUBSEARCH_HTTP_ADDR: listen address (default: :8080)
// - SUBSEARCH_UI_DIR: SPA static directory (default: /app/web)
// - SUBSEARCH_UI_ENABLED: serve the SPA (default: true)
// - SUBSEARCH_ALLOWED_ORIGINS: comma list of CORS origins (default: *)
//
// Corpus and media:
// - SUBSEARCH_SUBTITLE_DIR: directory of .ass subtitle files (default: /subtitles)
// - SUBSEARCH_AUDIO_DIR: directory of episode mp3 files (default: /audio)
// - SUBSEARCH_VIDEO_DIR: directory of episode mkv/mp4 files (default: /videos)
//
// System:
// - SUBSEARCH_DATA_DIR: database and temp-clip root (default: /app/data)
// - SUBSEARCH_LOG_LEVEL: debug|info|warn|error (default: info)
// - SUBSEARCH_REINDEX_ON_START: force a rebuild at startup (default: false)
//
// Search:
// - SUBSEARCH_MAX_LIMIT: result cap per query (default: 5000)
// - SUBSEARCH_CACHE_SIZE: cached query count (default: 256)
// - SUBSEARCH_CACHE_TTL_SECONDS: cached result lifetime (default: 300)
//
// Clips:
// - SUBSEARCH_CLIP_PADDING_SECONDS: window padding each side (default: 2.0)
// - SUBSEARCH_CLIP_KEEP_NEWEST: clips kept per temp dir (default: 10)
// - SUBSEARCH_CLIP_MAX_AGE_HOURS: clip lifetime (default: 24)
// - SUBSEARCH_CLIP_AUDIO_TIMEOUT_SECONDS: ffmpeg audio timeout (default: 30)
// - SUBSEARCH_CLIP_VIDEO_TIMEOUT_SECONDS: ffmpeg video timeout (default: 60)
// - SUBSEARCH_CLEANUP_CRON: temp-dir janitor schedule (default: @hourly)

type Config struct {
	HTTP   HTTPConfig   `json:"http"`
	Media  MediaConfig  `json:"media"`
	System SystemConfig `json:"system"`
	Search SearchConfig `json:"search"`
	Clips  ClipsConfig  `json:"clips"`
}

// HTTPConfig holds the HTTP server configuration.
type HTTPConfig struct {
	Addr           string   `json:"addr"`
	UIStaticDir    string   `json:"ui_static_dir"`
	UIEnabled      bool     `json:"ui_enabled"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MediaConfig holds the corpus and media source directories.
type MediaConfig struct {
	SubtitleDir string `json:"subtitle_dir"`
	AudioDir    string `json:"audio_dir"`
	VideoDir    string `json:"video_dir"`
}

// SystemConfig holds the system configuration.
type SystemConfig struct {
	DataDir        string `json:"data_dir"`
	LogLevel       string `json:"log_level"`
	ReindexOnStart bool   `json:"reindex_on_start"`
}

// SearchConfig bounds the search service and its result cache.
type SearchConfig struct {
	MaxLimit        int `json:"max_limit"`
	CacheSize       int `json:"cache_size"`
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// ClipsConfig bounds clip generation and the temp-dir lifecycle.
type ClipsConfig struct {
	PaddingSeconds      float64 `json:"padding_seconds"`
	KeepNewest          int     `json:"keep_newest"`
	MaxAgeHours         int     `json:"max_age_hours"`
	AudioTimeoutSeconds int     `json:"audio_timeout_seconds"`
	VideoTimeoutSeconds int     `json:"video_timeout_seconds"`
	CleanupCron         string  `json:"cleanup_cron"`
}

// DBPath returns the SQLite database location under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "subsearch.db")
}

// TempAudioDir returns where generated audio clips are written and served from.
func (c *Config) TempAudioDir() string {
	return filepath.Join(c.System.DataDir, "temp_audio")
}

// TempVideoDir returns where generated video clips are written and served from.
func (c *Config) TempVideoDir() string {
	return filepath.Join(c.System.DataDir, "temp_video")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		HTTP: HTTPConfig{
			Addr:           getEnvString("SUBSEARCH_HTTP_ADDR", ":8080"),
			UIStaticDir:    getEnvString("SUBSEARCH_UI_DIR", "/app/web"),
			UIEnabled:      getEnvBool("SUBSEARCH_UI_ENABLED", true),
			AllowedOrigins: splitList(getEnvString("SUBSEARCH_ALLOWED_ORIGINS", "*")),
		},
		Media: MediaConfig{
			SubtitleDir: getEnvString("SUBSEARCH_SUBTITLE_DIR", "/subtitles"),
			AudioDir:    getEnvString("SUBSEARCH_AUDIO_DIR", "/audio"),
			VideoDir:    getEnvString("SUBSEARCH_VIDEO_DIR", "/videos"),
		},
		System: SystemConfig{
			DataDir:        getEnvString("SUBSEARCH_DATA_DIR", "/app/data"),
			LogLevel:       getEnvString("SUBSEARCH_LOG_LEVEL", "info"),
			ReindexOnStart: getEnvBool("SUBSEARCH_REINDEX_ON_START", false),
		},
		Search: SearchConfig{
			MaxLimit:        getEnvInt("SUBSEARCH_MAX_LIMIT", 5000),
			CacheSize:       getEnvInt("SUBSEARCH_CACHE_SIZE", 256),
			CacheTTLSeconds: getEnvInt("SUBSEARCH_CACHE_TTL_SECONDS", 300),
		},
		Clips: ClipsConfig{
			PaddingSeconds:      getEnvFloat("SUBSEARCH_CLIP_PADDING_SECONDS", 2.0),
			KeepNewest:          getEnvInt("SUBSEARCH_CLIP_KEEP_NEWEST", 10),
			MaxAgeHours:         getEnvInt("SUBSEARCH_CLIP_MAX_AGE_HOURS", 24),
			AudioTimeoutSeconds: getEnvInt("SUBSEARCH_CLIP_AUDIO_TIMEOUT_SECONDS", 30),
			VideoTimeoutSeconds: getEnvInt("SUBSEARCH_CLIP_VIDEO_TIMEOUT_SECONDS", 60),
			CleanupCron:         getEnvString("SUBSEARCH_CLEANUP_CRON", "@hourly"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if strings.TrimSpace(c.Media.SubtitleDir) == "" {
		return fmt.Errorf("SUBSEARCH_SUBTITLE_DIR is required")
	}
	if strings.TrimSpace(c.System.DataDir) == "" {
		return fmt.Errorf("SUBSEARCH_DATA_DIR is required")
	}
	if c.Search.MaxLimit <= 0 {
		return fmt.Errorf("SUBSEARCH_MAX_LIMIT must be positive")
	}
	if c.Search.CacheSize <= 0 {
		return fmt.Errorf("SUBSEARCH_CACHE_SIZE must be positive")
	}
	if c.Clips.KeepNewest <= 0 {
		return fmt.Errorf("SUBSEARCH_CLIP_KEEP_NEWEST must be positive")
	}
	if c.Clips.AudioTimeoutSeconds <= 0 || c.Clips.VideoTimeoutSeconds <= 0 {
		return fmt.Errorf("clip timeouts must be positive")
	}
	if err := icron.Validate(c.Clips.CleanupCron); err != nil {
		return fmt.Errorf("SUBSEARCH_CLEANUP_CRON: %w", err)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	ret := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	return ret
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
