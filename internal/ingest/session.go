// SPDX-License-Identifier: MIT

package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tubescribe/tubescribe/internal/broadcast"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
	"github.com/tubescribe/tubescribe/internal/procgroup"
	"github.com/tubescribe/tubescribe/internal/transcoder"
)

// session is one active ingest: the extractor and transcoder processes,
// the broadcaster, and the capture bookkeeping.
type session struct {
	videoID  string
	title    string
	duration float64

	cancel      context.CancelFunc
	broadcaster *broadcast.Broadcaster
	out         io.ReadCloser
	ring        *transcoder.LineRing

	extCmd  *exec.Cmd
	ffCmd   *exec.Cmd
	extWait chan error
	ffWait  chan error

	capturePath string
	partPath    string
	killGrace   time.Duration

	stopped  atomic.Bool
	termOnce sync.Once
	done     chan struct{}
}

// spawn builds the extractor|transcoder process pair and the broadcaster
// for one identifier. The returned session is not yet pumping; the caller
// starts run() once it is registered as the active session.
func (s *Supervisor) spawn(videoID, title string, duration float64) (*session, error) {
	capturePath, err := s.captures.Path(videoID)
	if err != nil {
		return nil, err
	}
	partPath, err := s.captures.PartPath(videoID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	extOut, extCmd, err := s.extractor.OpenStream(ctx, videoID)
	if err != nil {
		cancel()
		return nil, err
	}

	ring := transcoder.NewLineRing(64)
	ffCmd := s.transcoder.Command(ctx, capturePath)
	ffCmd.Stdin = extOut
	ffCmd.Stderr = ring

	ffOut, err := ffCmd.StdoutPipe()
	if err != nil {
		cancel()
		reap(extCmd)
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	// Marker first: a reader probing Ready() must not see a half-written
	// capture as complete.
	if err := os.WriteFile(partPath, nil, 0o640); err != nil {
		cancel()
		reap(extCmd)
		return nil, fmt.Errorf("write capture marker: %w", err)
	}

	if err := ffCmd.Start(); err != nil {
		cancel()
		reap(extCmd)
		_ = os.Remove(partPath)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	sess := &session{
		videoID:  videoID,
		title:    title,
		duration: duration,
		cancel:   cancel,
		broadcaster: broadcast.New(
			broadcast.WithReplayChunks(s.cfg.ReplayChunks),
			broadcast.WithQueueChunks(s.cfg.ClientQueueChunks),
		),
		out:         ffOut,
		ring:        ring,
		extCmd:      extCmd,
		ffCmd:       ffCmd,
		extWait:     waitChan(extCmd),
		ffWait:      waitChan(ffCmd),
		capturePath: capturePath,
		partPath:    partPath,
		killGrace:   s.cfg.KillGrace,
		done:        make(chan struct{}),
	}
	return sess, nil
}

// run pumps transcoder output into the broadcaster until EOF, error, or
// termination, then finishes the session and fires auto-advance on a
// natural end.
func (s *Supervisor) run(sess *session) {
	logger := log.WithComponent("ingest")

	buf := make([]byte, s.cfg.ChunkSize)
	start := time.Now()
	warmed := false

	var readErr error
	for {
		n, err := sess.out.Read(buf)
		if n > 0 {
			sess.broadcaster.Publish(buf[:n])
		}
		if err != nil {
			readErr = err
			break
		}

		// Pre-fetch the next queue entry's capture shortly before this
		// stream ends.
		if !warmed && sess.duration > 0 && s.cfg.PrefetchThreshold > 0 {
			remaining := sess.duration - time.Since(start).Seconds()
			if remaining < s.cfg.PrefetchThreshold.Seconds() {
				warmed = true
				go s.warmNext()
			}
		}
	}

	switch {
	case sess.stopped.Load():
		sess.finish("stopped")
		logger.Info().Str("video_id", sess.videoID).Msg("ingest stopped")

	case readErr == io.EOF:
		// End of stdout alone does not mean a clean end: a transcoder
		// that dies, or an extractor that dies before the first byte,
		// also closes the pipe. Only a zero exit from both children is a
		// natural end of stream.
		ffErr := <-sess.ffWait
		extErr := <-sess.extWait
		if ffErr != nil || extErr != nil {
			sess.finish("failed")
			s.clearSession(sess)
			logger.Error().
				Str("video_id", sess.videoID).
				AnErr("ffmpeg", ffErr).
				AnErr("extractor", extErr).
				Strs("stderr", sess.ring.LastN(5)).
				Msg("ingest child exited abnormally")
			break
		}

		sess.finish("eof")
		s.clearSession(sess)
		s.captures.Retain(s.cfg.CaptureMaxFiles)
		logger.Info().Str("video_id", sess.videoID).Msg("ingest reached end of stream")
		s.autoAdvance(sess.videoID)

	default:
		sess.finish("error")
		s.clearSession(sess)
		logger.Error().
			Str("video_id", sess.videoID).
			Str("error", readErr.Error()).
			Strs("stderr", sess.ring.LastN(5)).
			Msg("ingest failed")
	}
}

func (s *Supervisor) clearSession(sess *session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
}

// finish closes the broadcaster, reaps the child processes and settles
// the capture file. Runs exactly once, from the run goroutine.
func (sess *session) finish(reason string) {
	defer close(sess.done)

	sess.broadcaster.Close()

	switch reason {
	case "eof":
		// Both children exit on their own after end of stream.
		<-sess.ffWait
		<-sess.extWait
		_ = os.Remove(sess.partPath)

	case "failed":
		// Children already reaped by the run goroutine; whatever the
		// transcoder wrote cannot be trusted.
		_ = os.Remove(sess.partPath)
		_ = os.Remove(sess.capturePath)

	case "error":
		_ = procgroup.Terminate(sess.ffCmd, sess.ffWait, sess.killGrace)
		_ = procgroup.Terminate(sess.extCmd, sess.extWait, sess.killGrace)
		sess.removeBrokenCapture()

	case "stopped":
		// terminate() owns process reaping on this path.
		sess.removeBrokenCapture()
	}

	metrics.IngestExitTotal.WithLabelValues(reason).Inc()
}

// terminate cancels the session and waits for the run goroutine. Safe to
// call multiple times and from any goroutine.
func (sess *session) terminate() {
	sess.termOnce.Do(func() {
		sess.stopped.Store(true)
		_ = procgroup.Terminate(sess.ffCmd, sess.ffWait, sess.killGrace)
		_ = procgroup.Terminate(sess.extCmd, sess.extWait, sess.killGrace)
		sess.cancel()
	})
	<-sess.done
}

// removeBrokenCapture drops the in-progress marker and a zero-size
// capture file left behind by an interrupted session.
func (sess *session) removeBrokenCapture() {
	_ = os.Remove(sess.partPath)
	if info, err := os.Stat(sess.capturePath); err == nil && info.Size() == 0 {
		_ = os.Remove(sess.capturePath)
	}
}

// waitChan reaps a command on its own goroutine. The channel is closed
// after the result is delivered, so late receivers observe nil instead
// of blocking.
func waitChan(cmd *exec.Cmd) chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- cmd.Wait()
		close(ch)
	}()
	return ch
}

func reap(cmd *exec.Cmd) {
	go func() { _ = cmd.Wait() }()
}
