// SPDX-License-Identifier: MIT

// Command daemon runs the tubescribe service: audio streaming with
// capture, the post-processing job engine and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tubescribe/tubescribe/internal/api"
	"github.com/tubescribe/tubescribe/internal/cache"
	"github.com/tubescribe/tubescribe/internal/capture"
	"github.com/tubescribe/tubescribe/internal/config"
	"github.com/tubescribe/tubescribe/internal/extractor"
	"github.com/tubescribe/tubescribe/internal/ingest"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/notes"
	"github.com/tubescribe/tubescribe/internal/pipeline"
	"github.com/tubescribe/tubescribe/internal/providers"
	"github.com/tubescribe/tubescribe/internal/store"
	"github.com/tubescribe/tubescribe/internal/telemetry"
	"github.com/tubescribe/tubescribe/internal/transcoder"
	"github.com/tubescribe/tubescribe/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tubescribe %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		logger := log.WithComponent("daemon")
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "tubescribe"})
	logger := log.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tubescribe",
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	metaCache := buildCache(cfg)
	defer stopCache(metaCache)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	captures := capture.NewStore(cfg.CaptureDir)
	artifacts, err := capture.NewArtifacts(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("init artifact cache: %w", err)
	}

	ex := extractor.New(cfg.YtdlpPath, metaCache)
	tc := transcoder.New(cfg.FFmpegPath, cfg.AudioQuality)
	prober := transcoder.NewProber(cfg.FFprobePath, metaCache)

	// Post-processing collaborators. The engine stays nil when
	// transcription is off; the supervisor and API tolerate that.
	var engine *jobs.Engine
	var provider *providers.Client
	if cfg.TranscriptionEnabled {
		provider = providers.New(providers.Config{
			BaseURL:            cfg.OpenAIBaseURL,
			APIKey:             cfg.OpenAIAPIKey,
			TranscriptionModel: cfg.TranscriptionModel,
			SummaryModel:       cfg.SummaryModel,
			TranscribeTimeout:  cfg.TranscribeTimeout,
			SummarizeTimeout:   cfg.SummarizeTimeout,
		}, st)
		defer provider.Close()

		var noteStore pipeline.NoteStore
		if cfg.NotesConfigured() {
			noteStore = notes.New(cfg.TriliumURL, cfg.TriliumToken)
		} else {
			logger.Warn().Msg("note store not configured, publishing to backup sink only")
		}

		runner := pipeline.NewRunner(pipeline.Deps{
			Notes:          noteStore,
			Backup:         notes.NewBackupSink(cfg.BackupDir),
			Transcriber:    provider,
			Summarizer:     provider,
			Artifacts:      artifacts,
			Capture:        captures,
			Waiter:         capture.NewWaiter(captures),
			Titles:         st,
			ParentNoteID:   cfg.TriliumParentNoteID,
			PublishTimeout: cfg.PublishTimeout,
		})
		engine = jobs.NewEngine(runner.Run, 64)
		defer engine.Close()
	}

	supervisor := ingest.New(ingest.Config{
		ChunkSize:            cfg.ChunkSize,
		KillGrace:            cfg.KillGrace,
		PrefetchThreshold:    cfg.PrefetchThreshold,
		CaptureMaxFiles:      cfg.CaptureMaxFiles,
		ReplayChunks:         cfg.ReplayBufferChunks,
		ClientQueueChunks:    cfg.ClientQueueChunks,
		TranscriptionEnabled: cfg.TranscriptionEnabled,
	}, ex, tc, captures, st, engineOrNil(engine))
	defer supervisor.Close()

	server := api.New(supervisor, st, captures, trackerOrNil(engine), prober, version.Version)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("version", version.Version).
			Bool("transcription", cfg.TranscriptionEnabled).
			Msg("daemon listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildCache picks redis when configured, falling back to the in-memory
// cache on connection failure.
func buildCache(cfg config.Config) cache.Cache {
	if cfg.RedisAddr != "" {
		logger := log.WithComponent("cache")
		c, err := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr}, logger)
		if err == nil {
			return c
		}
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
	}
	return cache.NewMemoryCache(5 * time.Minute)
}

func stopCache(c cache.Cache) {
	if s, ok := c.(interface{ Stop() }); ok {
		s.Stop()
	}
	if cl, ok := c.(interface{ Close() error }); ok {
		_ = cl.Close()
	}
}

// engineOrNil avoids handing the supervisor a typed-nil interface.
func engineOrNil(e *jobs.Engine) ingest.Engine {
	if e == nil {
		return nil
	}
	return e
}

func trackerOrNil(e *jobs.Engine) api.JobTracker {
	if e == nil {
		return nil
	}
	return e
}
