// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestRecordPlayUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlay(ctx, "abc12345678", "First Title", "Chan", "thumb.jpg"))
	require.NoError(t, s.RecordPlay(ctx, "abc12345678", "Updated Title", "Chan", "thumb2.jpg"))

	entries, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "abc12345678", e.VideoID)
	assert.Equal(t, "Updated Title", e.Title)
	assert.Equal(t, "thumb2.jpg", e.Thumbnail)
	assert.Equal(t, 2, e.PlayCount)
	assert.False(t, e.LastPlayedAt.Before(e.FirstPlayedAt))
}

func TestHistoryOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlay(ctx, "aaaaaaaaaaa", "A", "", ""))
	time.Sleep(1100 * time.Millisecond) // RFC3339 has second resolution
	require.NoError(t, s.RecordPlay(ctx, "bbbbbbbbbbb", "B", "", ""))

	entries, err := s.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "bbbbbbbbbbb", entries[0].VideoID)
}

func TestClearHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlay(ctx, "abc12345678", "T", "", ""))
	require.NoError(t, s.ClearHistory(ctx))

	entries, err := s.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTitleFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordPlay(ctx, "abc12345678", "Known Title", "", ""))

	assert.Equal(t, "Known Title", s.TitleFor(ctx, "abc12345678"))
	assert.Equal(t, "YouTube Video unknown0000", s.TitleFor(ctx, "unknown0000"))
}

func TestQueueAppendPositions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa", Title: "A"})
	require.NoError(t, err)
	b, err := s.Append(ctx, QueueItem{VideoID: "bbbbbbbbbbb", Title: "B"})
	require.NoError(t, err)

	assert.Equal(t, 0, a.Position)
	assert.Equal(t, 1, b.Position)
	assert.Equal(t, KindPrimary, a.Kind)

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	requirePositionsContiguous(t, entries)
}

func TestQueueRemoveRenumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa"})
	require.NoError(t, err)
	b, err := s.Append(ctx, QueueItem{VideoID: "bbbbbbbbbbb"})
	require.NoError(t, err)
	_, err = s.Append(ctx, QueueItem{VideoID: "ccccccccccc"})
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, b.ID))

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	requirePositionsContiguous(t, entries)
	assert.Equal(t, "aaaaaaaaaaa", entries[0].VideoID)
	assert.Equal(t, "ccccccccccc", entries[1].VideoID)

	assert.ErrorIs(t, s.Remove(ctx, 99999), ErrNotFound)
}

func TestQueueReorder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa"})
	b, _ := s.Append(ctx, QueueItem{VideoID: "bbbbbbbbbbb"})
	c, _ := s.Append(ctx, QueueItem{VideoID: "ccccccccccc"})

	require.NoError(t, s.Reorder(ctx, []int64{c.ID, a.ID, b.ID}))

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ccccccccccc", entries[0].VideoID)
	assert.Equal(t, "aaaaaaaaaaa", entries[1].VideoID)
	assert.Equal(t, "bbbbbbbbbbb", entries[2].VideoID)
	requirePositionsContiguous(t, entries)

	// Removing the second entry keeps the new order contiguous.
	require.NoError(t, s.Remove(ctx, a.ID))
	entries, err = s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ccccccccccc", entries[0].VideoID)
	assert.Equal(t, "bbbbbbbbbbb", entries[1].VideoID)
	requirePositionsContiguous(t, entries)
}

func TestQueueReorderRejectsSetMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa"})
	b, _ := s.Append(ctx, QueueItem{VideoID: "bbbbbbbbbbb"})

	assert.ErrorIs(t, s.Reorder(ctx, []int64{a.ID}), ErrQueueMismatch)
	assert.ErrorIs(t, s.Reorder(ctx, []int64{a.ID, 99999}), ErrQueueMismatch)
	assert.ErrorIs(t, s.Reorder(ctx, []int64{a.ID, a.ID}), ErrQueueMismatch)

	// Queue unchanged after rejected reorders.
	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, a.ID, entries[0].ID)
	assert.Equal(t, b.ID, entries[1].ID)
}

func TestQueuePopCurrentAndPeekNext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.PopCurrent(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa"})
	s.Append(ctx, QueueItem{VideoID: "bbbbbbbbbbb"})

	next, err := s.PeekNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "bbbbbbbbbbb", next.VideoID)

	popped, err := s.PopCurrent(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, "aaaaaaaaaaa", popped.VideoID)

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Position)

	next, err = s.PeekNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestClearQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Append(ctx, QueueItem{VideoID: "aaaaaaaaaaa"})
	require.NoError(t, s.ClearQueue(ctx))

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueueSummaryKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e, err := s.Append(ctx, QueueItem{VideoID: "wk-summary", Kind: KindSummary, WeekTag: "2026-W34"})
	require.NoError(t, err)
	assert.Equal(t, KindSummary, e.Kind)

	entries, err := s.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-W34", entries[0].WeekTag)
}

func TestUsageLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogUsage(ctx, UsageRecord{
		Provider:     "openai",
		Model:        "whisper-1",
		Feature:      "transcription",
		AudioSeconds: 215.4,
		VideoID:      "abc12345678",
	}))
	require.NoError(t, s.LogUsage(ctx, UsageRecord{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Feature:        "summary",
		PromptTokens:   1200,
		ResponseTokens: 300,
	}))
	require.NoError(t, s.LogUsage(ctx, UsageRecord{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Feature:        "summary",
		PromptTokens:   800,
		ResponseTokens: 200,
	}))

	report, err := s.UsageSummary(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalCalls)
	assert.Equal(t, 2500, report.TotalTokens)
	require.Len(t, report.Groups, 2)

	summary := report.Groups[0]
	assert.Equal(t, "gpt-4o-mini", summary.Model)
	assert.Equal(t, 2, summary.Calls)
	assert.Equal(t, 2000, summary.PromptTokens)
	assert.Equal(t, 500, summary.ResponseTokens)

	transcription := report.Groups[1]
	assert.Equal(t, "whisper-1", transcription.Model)
	assert.InDelta(t, 215.4, transcription.AudioSeconds, 0.001)
}

func requirePositionsContiguous(t *testing.T, entries []QueueEntry) {
	t.Helper()
	for i, e := range entries {
		require.Equal(t, i, e.Position, "positions must be 0..N-1")
	}
}
