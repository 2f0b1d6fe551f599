// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tubescribe/tubescribe/internal/log"
)

// Waiter blocks until a capture becomes ready. It uses fsnotify on the
// capture directory with a coarse poll fallback, since some filesystems
// (network mounts) deliver no events.
type Waiter struct {
	store *Store
}

// NewWaiter returns a Waiter over the given store.
func NewWaiter(store *Store) *Waiter {
	return &Waiter{store: store}
}

// Wait blocks until the capture for id is ready, the timeout elapses, or
// the context is done.
func (w *Waiter) Wait(ctx context.Context, id string, timeout time.Duration) error {
	// Fast path before any watcher setup.
	if w.store.Ready(id) {
		return nil
	}

	logger := log.WithComponent("capture")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("watch capture dir: %w", err)
	}

	// Re-check after the watcher is in place to close the setup race.
	if w.store.Ready(id) {
		return nil
	}

	target, err := w.store.Path(id)
	if err != nil {
		return err
	}
	targetName := filepath.Base(target)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("timeout waiting for capture %s", id)
		case <-poll.C:
			if w.store.Ready(id) {
				return nil
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if filepath.Base(event.Name) != targetName && filepath.Base(event.Name) != targetName+partSuffix {
				continue
			}
			if w.store.Ready(id) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}
