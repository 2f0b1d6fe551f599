// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Queue entry kinds.
const (
	KindPrimary = "primary"
	KindSummary = "summary"
)

// QueueEntry is one row of the ordered playback queue. The head of the
// queue (position 0) is the currently playing item; position 1 is the
// upcoming one.
type QueueEntry struct {
	ID             int64     `json:"id"`
	VideoID        string    `json:"video_id"`
	Title          string    `json:"title"`
	Kind           string    `json:"kind"`
	WeekTag        string    `json:"week_tag,omitempty"`
	SkipProcessing bool      `json:"skip_processing"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

// QueueItem describes a new entry to append.
type QueueItem struct {
	VideoID        string
	Title          string
	Kind           string
	WeekTag        string
	SkipProcessing bool
}

// Append adds an item at the end of the queue (position max+1, or 0 when
// empty) and returns the stored entry.
func (s *Store) Append(ctx context.Context, item QueueItem) (QueueEntry, error) {
	kind := item.Kind
	if kind == "" {
		kind = KindPrimary
	}

	now := time.Now().UTC()
	entry := QueueEntry{
		VideoID:        item.VideoID,
		Title:          item.Title,
		Kind:           kind,
		WeekTag:        item.WeekTag,
		SkipProcessing: item.SkipProcessing,
		CreatedAt:      now,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var pos sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(position) FROM queue`).Scan(&pos); err != nil {
			return err
		}
		position := 0
		if pos.Valid {
			position = int(pos.Int64) + 1
		}

		res, err := tx.ExecContext(ctx, `
		INSERT INTO queue (video_id, title, kind, week_tag, skip_processing, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.VideoID, item.Title, kind, item.WeekTag, boolToInt(item.SkipProcessing), position, now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("append queue entry: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		entry.ID = id
		entry.Position = position
		return nil
	})

	return entry, err
}

// Queue returns all entries ordered by position.
func (s *Store) Queue(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, video_id, title, kind, week_tag, skip_processing, position, created_at
	FROM queue
	ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Remove deletes an entry by id and renumbers the remaining rows so
// positions stay a contiguous 0..N-1 sequence.
func (s *Store) Remove(ctx context.Context, entryID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, entryID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return renumber(ctx, tx)
	})
}

// Reorder atomically rewrites positions according to the given entry-id
// order. The input must name exactly the current set of entries.
func (s *Store) Reorder(ctx context.Context, entryIDs []int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM queue`)
		if err != nil {
			return err
		}
		current := make(map[int64]bool)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			current[id] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		if len(entryIDs) != len(current) {
			return ErrQueueMismatch
		}
		seen := make(map[int64]bool, len(entryIDs))
		for _, id := range entryIDs {
			if !current[id] || seen[id] {
				return ErrQueueMismatch
			}
			seen[id] = true
		}

		// Two passes: positions are UNIQUE, so park them out of the way
		// before assigning the final order.
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET position = position + 1000000`); err != nil {
			return err
		}
		for i, id := range entryIDs {
			if _, err := tx.ExecContext(ctx, `UPDATE queue SET position = ? WHERE id = ?`, i, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// PopCurrent removes the entry at position 0, renumbers the rest, and
// returns the removed entry. Returns nil when the queue is empty.
func (s *Store) PopCurrent(ctx context.Context) (*QueueEntry, error) {
	var entry *QueueEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
		SELECT id, video_id, title, kind, week_tag, skip_processing, position, created_at
		FROM queue WHERE position = 0`)

		e, err := scanQueueEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, e.ID); err != nil {
			return err
		}
		if err := renumber(ctx, tx); err != nil {
			return err
		}

		entry = &e
		return nil
	})
	return entry, err
}

// PeekNext returns the entry at position 1 (the upcoming item), or nil.
func (s *Store) PeekNext(ctx context.Context) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, video_id, title, kind, week_tag, skip_processing, position, created_at
	FROM queue WHERE position = 1`)

	e, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ClearQueue deletes all queue rows.
func (s *Store) ClearQueue(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM queue`)
		return err
	})
}

// renumber rewrites positions to 0..N-1 in the current position order.
// Updates run in ascending order, so positions only ever decrease and the
// UNIQUE constraint is never violated mid-pass.
func renumber(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM queue ORDER BY position`)
	if err != nil {
		return err
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE queue SET position = ? WHERE id = ?`, i, id); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (QueueEntry, error) {
	var e QueueEntry
	var skip int
	var created string

	if err := row.Scan(&e.ID, &e.VideoID, &e.Title, &e.Kind, &e.WeekTag, &skip, &e.Position, &created); err != nil {
		return QueueEntry{}, err
	}

	e.SkipProcessing = skip != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
