// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeFile overlays non-zero values from a YAML file onto cfg.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return err
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	overlay(cfg, file)
	return nil
}

func overlay(dst *Config, src Config) {
	if src.ListenAddr != "" {
		dst.ListenAddr = src.ListenAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.CaptureDir != "" {
		dst.CaptureDir = src.CaptureDir
	}
	if src.CacheDir != "" {
		dst.CacheDir = src.CacheDir
	}
	if src.BackupDir != "" {
		dst.BackupDir = src.BackupDir
	}
	if src.DatabasePath != "" {
		dst.DatabasePath = src.DatabasePath
	}
	if src.YtdlpPath != "" {
		dst.YtdlpPath = src.YtdlpPath
	}
	if src.FFmpegPath != "" {
		dst.FFmpegPath = src.FFmpegPath
	}
	if src.FFprobePath != "" {
		dst.FFprobePath = src.FFprobePath
	}
	if src.AudioQuality != 0 {
		dst.AudioQuality = src.AudioQuality
	}
	if src.CaptureMaxFiles != 0 {
		dst.CaptureMaxFiles = src.CaptureMaxFiles
	}
	if src.ReplayBufferChunks != 0 {
		dst.ReplayBufferChunks = src.ReplayBufferChunks
	}
	if src.ClientQueueChunks != 0 {
		dst.ClientQueueChunks = src.ClientQueueChunks
	}
	if src.ChunkSize != 0 {
		dst.ChunkSize = src.ChunkSize
	}
	if src.KillGrace != 0 {
		dst.KillGrace = src.KillGrace
	}
	if src.PrefetchThreshold != 0 {
		dst.PrefetchThreshold = src.PrefetchThreshold
	}
	if src.TranscriptionEnabled {
		dst.TranscriptionEnabled = true
	}
	if src.TranscriptionModel != "" {
		dst.TranscriptionModel = src.TranscriptionModel
	}
	if src.SummaryModel != "" {
		dst.SummaryModel = src.SummaryModel
	}
	if src.OpenAIBaseURL != "" {
		dst.OpenAIBaseURL = src.OpenAIBaseURL
	}
	if src.TranscribeTimeout != 0 {
		dst.TranscribeTimeout = src.TranscribeTimeout
	}
	if src.SummarizeTimeout != 0 {
		dst.SummarizeTimeout = src.SummarizeTimeout
	}
	if src.PublishTimeout != 0 {
		dst.PublishTimeout = src.PublishTimeout
	}
	if src.TriliumURL != "" {
		dst.TriliumURL = src.TriliumURL
	}
	if src.TriliumParentNoteID != "" {
		dst.TriliumParentNoteID = src.TriliumParentNoteID
	}
	if src.RedisAddr != "" {
		dst.RedisAddr = src.RedisAddr
	}
	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		dst.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
	if src.Telemetry.ExporterType != "" {
		dst.Telemetry.ExporterType = src.Telemetry.ExporterType
	}
	if src.Telemetry.SamplingRate != 0 {
		dst.Telemetry.SamplingRate = src.Telemetry.SamplingRate
	}
}
