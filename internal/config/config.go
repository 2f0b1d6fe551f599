// SPDX-License-Identifier: MIT

// Package config loads daemon configuration from the environment with an
// optional YAML file overlay. Environment variables always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the full daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	DataDir      string `yaml:"data_dir"`
	CaptureDir   string `yaml:"capture_dir"`
	CacheDir     string `yaml:"cache_dir"`
	BackupDir    string `yaml:"backup_dir"`
	DatabasePath string `yaml:"database_path"`

	YtdlpPath   string `yaml:"ytdlp_path"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// Audio quality passed to the transcoder (VBR 0 best .. 9 worst).
	AudioQuality int `yaml:"audio_quality"`

	// CaptureMaxFiles bounds on-disk capture retention (LRU by mtime).
	CaptureMaxFiles int `yaml:"capture_max_files"`

	// Broadcast sizing, in 8 KiB chunks.
	ReplayBufferChunks int `yaml:"replay_buffer_chunks"`
	ClientQueueChunks  int `yaml:"client_queue_chunks"`
	ChunkSize          int `yaml:"chunk_size"`

	// Child-process termination grace before SIGKILL.
	KillGrace time.Duration `yaml:"kill_grace"`

	// PrefetchThreshold: warm the next queue item when the remaining
	// duration of the current one drops below this.
	PrefetchThreshold time.Duration `yaml:"prefetch_threshold"`

	TranscriptionEnabled bool   `yaml:"transcription_enabled"`
	TranscriptionModel   string `yaml:"transcription_model"`
	SummaryModel         string `yaml:"summary_model"`

	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	TranscribeTimeout time.Duration `yaml:"transcribe_timeout"`
	SummarizeTimeout  time.Duration `yaml:"summarize_timeout"`
	PublishTimeout    time.Duration `yaml:"publish_timeout"`

	TriliumURL          string `yaml:"trilium_url"`
	TriliumToken        string `yaml:"-"`
	TriliumParentNoteID string `yaml:"trilium_parent_note_id"`

	// RedisAddr enables the redis metadata cache backend when set.
	RedisAddr string `yaml:"redis_addr"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig controls the OTLP tracer provider.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	ExporterType string  `yaml:"exporter"` // "http", "grpc" or "noop"
	SamplingRate float64 `yaml:"sampling_rate"`
}

// FromEnv builds a Config from environment variables, applying bounded
// defaults. It never fails: malformed values fall back to defaults.
func FromEnv() Config {
	dataDir := ParseString("DATA_DIR", "./data")
	cfg := Config{
		ListenAddr: ParseString("LISTEN_ADDR", ":8000"),
		LogLevel:   ParseString("LOG_LEVEL", "info"),

		DataDir:      dataDir,
		CaptureDir:   ParseString("CAPTURE_DIR", "/tmp/audio-captures"),
		CacheDir:     ParseString("CACHE_DIR", filepath.Join(dataDir, "cache")),
		BackupDir:    ParseString("BACKUP_DIR", filepath.Join(dataDir, "backup")),
		DatabasePath: ParseString("DATABASE_PATH", filepath.Join(dataDir, "tubescribe.db")),

		YtdlpPath:   ParseString("YTDLP_PATH", "yt-dlp"),
		FFmpegPath:  ParseString("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: ParseString("FFPROBE_PATH", "ffprobe"),

		AudioQuality:    ParseIntBounded("AUDIO_QUALITY", 5, 0, 9),
		CaptureMaxFiles: ParseIntBounded("CAPTURE_MAX_FILES", 10, 1, 100),

		ReplayBufferChunks: ParseIntBounded("REPLAY_BUFFER_CHUNKS", 100, 10, 1000),
		ClientQueueChunks:  ParseIntBounded("CLIENT_QUEUE_CHUNKS", 100, 10, 1000),
		ChunkSize:          ParseIntBounded("CHUNK_SIZE", 8192, 512, 65536),

		KillGrace:         ParseDuration("KILL_GRACE", 5*time.Second),
		PrefetchThreshold: ParseDuration("PREFETCH_THRESHOLD", 30*time.Second),

		TranscriptionEnabled: ParseBool("TRANSCRIPTION_ENABLED", false),
		TranscriptionModel:   ParseString("TRANSCRIPTION_MODEL", "whisper-1"),
		SummaryModel:         ParseString("SUMMARY_MODEL", "gpt-4o-mini"),

		OpenAIAPIKey:  ParseString("OPENAI_API_KEY", ""),
		OpenAIBaseURL: ParseString("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		TranscribeTimeout: ParseDuration("TRANSCRIBE_TIMEOUT", 300*time.Second),
		SummarizeTimeout:  ParseDuration("SUMMARIZE_TIMEOUT", 120*time.Second),
		PublishTimeout:    ParseDuration("PUBLISH_TIMEOUT", 30*time.Second),

		TriliumURL:          ParseString("TRILIUM_URL", ""),
		TriliumToken:        ParseString("TRILIUM_ETAPI_TOKEN", ""),
		TriliumParentNoteID: ParseString("TRILIUM_PARENT_NOTE_ID", ""),

		RedisAddr: ParseString("REDIS_ADDR", ""),

		Telemetry: TelemetryConfig{
			Enabled:      ParseBool("OTEL_ENABLED", false),
			Endpoint:     ParseString("OTEL_ENDPOINT", "localhost:4318"),
			ExporterType: ParseString("OTEL_EXPORTER", "http"),
			SamplingRate: ParseFloat("OTEL_SAMPLING_RATE", 1.0),
		},
	}
	return cfg
}

// Load builds the configuration from the environment, then overlays the YAML
// file named by path (or CONFIG_FILE) on top. File values win where set.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		return cfg, nil
	}
	if err := mergeFile(&cfg, path); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureDirs creates the directories the daemon writes to.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.CaptureDir, c.CacheDir, c.BackupDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks invariants that cannot be defaulted away.
func (c Config) Validate() error {
	if c.TranscriptionEnabled && c.OpenAIAPIKey == "" {
		return fmt.Errorf("transcription enabled but OPENAI_API_KEY is not set")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	return nil
}

// NotesConfigured reports whether the note store collaborator is usable.
func (c Config) NotesConfigured() bool {
	return c.TriliumURL != "" && c.TriliumToken != ""
}
