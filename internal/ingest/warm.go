// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tubescribe/tubescribe/internal/extractor"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
	"github.com/tubescribe/tubescribe/internal/procgroup"
	"github.com/tubescribe/tubescribe/internal/transcoder"
)

// warmTimeout bounds a single pre-fetch run. Encoding is faster than
// real time, so this covers even long videos.
const warmTimeout = 10 * time.Minute

// Warm downloads and encodes the capture for an identifier without
// broadcasting, so a later Start or transcription finds it on disk.
// Concurrent calls for the same identifier share one run.
func (s *Supervisor) Warm(ctx context.Context, videoID string) error {
	id, err := extractor.ParseID(videoID)
	if err != nil {
		return err
	}

	_, err, _ = s.warm.Do(id, func() (any, error) {
		return nil, s.warmOne(ctx, id)
	})
	return err
}

func (s *Supervisor) warmOne(ctx context.Context, videoID string) error {
	logger := log.WithComponent("prefetch")

	if s.captures.Ready(videoID) {
		metrics.PrefetchTotal.WithLabelValues("cached").Inc()
		return nil
	}

	// Never compete with the active session for the same capture file.
	s.mu.Lock()
	active := s.session != nil && s.session.videoID == videoID
	s.mu.Unlock()
	if active {
		metrics.PrefetchTotal.WithLabelValues("streaming").Inc()
		return nil
	}

	capturePath, err := s.captures.Path(videoID)
	if err != nil {
		return err
	}
	partPath, err := s.captures.PartPath(videoID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()

	extOut, extCmd, err := s.extractor.OpenStream(ctx, videoID)
	if err != nil {
		metrics.PrefetchTotal.WithLabelValues("error").Inc()
		return err
	}
	extWait := waitChan(extCmd)

	if err := os.WriteFile(partPath, nil, 0o640); err != nil {
		_ = procgroup.Terminate(extCmd, extWait, s.cfg.KillGrace)
		metrics.PrefetchTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write capture marker: %w", err)
	}

	ring := transcoder.NewLineRing(64)
	ffCmd := s.transcoder.CaptureCommand(ctx, capturePath)
	ffCmd.Stdin = extOut
	ffCmd.Stderr = ring

	if err := ffCmd.Start(); err != nil {
		_ = procgroup.Terminate(extCmd, extWait, s.cfg.KillGrace)
		_ = os.Remove(partPath)
		metrics.PrefetchTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	ffErr := ffCmd.Wait()
	extErr := <-extWait

	if ffErr != nil || extErr != nil {
		_ = os.Remove(partPath)
		_ = os.Remove(capturePath)
		metrics.PrefetchTotal.WithLabelValues("error").Inc()
		logger.Warn().
			Str("video_id", videoID).
			AnErr("ffmpeg", ffErr).
			AnErr("extractor", extErr).
			Strs("stderr", ring.LastN(5)).
			Msg("pre-fetch failed")
		if ffErr != nil {
			return fmt.Errorf("prefetch encode: %w", ffErr)
		}
		return fmt.Errorf("prefetch download: %w", extErr)
	}

	_ = os.Remove(partPath)
	s.captures.Retain(s.cfg.CaptureMaxFiles)
	metrics.PrefetchTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("video_id", videoID).Msg("capture pre-fetched")
	return nil
}

// warmNext pre-fetches the queue entry behind the playing head.
func (s *Supervisor) warmNext() {
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()

	next, err := s.store.PeekNext(ctx)
	if err != nil || next == nil {
		return
	}
	if err := s.Warm(ctx, next.VideoID); err != nil {
		logger := log.WithComponent("prefetch")
		logger.Warn().
			Err(err).
			Str("video_id", next.VideoID).
			Msg("queue pre-fetch failed")
	}
}
