// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, s *Store, id string, data []byte, mtime time.Time) {
	t.Helper()

	p, err := s.Path(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
}

func TestStorePathConfinement(t *testing.T) {
	s := NewStore(t.TempDir())

	p, err := s.Path("abc12345678")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "abc12345678.mp3"), p)

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := s.Path(id)
		assert.Error(t, err, "id %q must be rejected", id)
	}
}

func TestStoreReady(t *testing.T) {
	s := NewStore(t.TempDir())

	assert.False(t, s.Ready("abc12345678"), "missing file")

	writeCapture(t, s, "abc12345678", nil, time.Time{})
	assert.False(t, s.Ready("abc12345678"), "zero-size file")

	writeCapture(t, s, "abc12345678", []byte("audio"), time.Time{})
	assert.True(t, s.Ready("abc12345678"))

	// In-progress marker suppresses readiness.
	part, err := s.PartPath("abc12345678")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(part, nil, 0o644))
	assert.False(t, s.Ready("abc12345678"))
}

func TestStoreRemove(t *testing.T) {
	s := NewStore(t.TempDir())

	writeCapture(t, s, "abc12345678", []byte("audio"), time.Time{})
	require.NoError(t, s.Remove("abc12345678"))
	assert.False(t, s.Ready("abc12345678"))

	// Removing a missing capture is not an error.
	require.NoError(t, s.Remove("abc12345678"))
}

func TestStoreRetainKeepsMostRecent(t *testing.T) {
	s := NewStore(t.TempDir())

	base := time.Now().Add(-time.Hour)
	ids := []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc", "ddddddddddd"}
	for i, id := range ids {
		writeCapture(t, s, id, []byte("audio"), base.Add(time.Duration(i)*time.Minute))
	}

	s.retain(3)

	assert.False(t, s.Ready("aaaaaaaaaaa"), "oldest capture must be deleted")
	for _, id := range ids[1:] {
		assert.True(t, s.Ready(id), "capture %s must survive", id)
	}
}

func TestStoreRetainUnderLimit(t *testing.T) {
	s := NewStore(t.TempDir())

	writeCapture(t, s, "aaaaaaaaaaa", []byte("audio"), time.Time{})
	s.retain(10)

	assert.True(t, s.Ready("aaaaaaaaaaa"))
}

func TestWaiterAlreadyReady(t *testing.T) {
	s := NewStore(t.TempDir())
	writeCapture(t, s, "abc12345678", []byte("audio"), time.Time{})

	w := NewWaiter(s)
	require.NoError(t, w.Wait(context.Background(), "abc12345678", time.Second))
}

func TestWaiterObservesLateWrite(t *testing.T) {
	s := NewStore(t.TempDir())
	w := NewWaiter(s)

	go func() {
		time.Sleep(100 * time.Millisecond)
		p, _ := s.Path("abc12345678")
		_ = os.WriteFile(p, []byte("audio"), 0o644)
	}()

	require.NoError(t, w.Wait(context.Background(), "abc12345678", 5*time.Second))
}

func TestWaiterTimeout(t *testing.T) {
	s := NewStore(t.TempDir())
	w := NewWaiter(s)

	err := w.Wait(context.Background(), "abc12345678", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestWaiterContextCancel(t *testing.T) {
	s := NewStore(t.TempDir())
	w := NewWaiter(s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := w.Wait(ctx, "abc12345678", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
