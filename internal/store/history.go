// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HistoryEntry is one row of the deduplicated play history.
type HistoryEntry struct {
	VideoID       string    `json:"video_id"`
	Title         string    `json:"title"`
	Channel       string    `json:"channel"`
	Thumbnail     string    `json:"thumbnail"`
	PlayCount     int       `json:"play_count"`
	FirstPlayedAt time.Time `json:"first_played_at"`
	LastPlayedAt  time.Time `json:"last_played_at"`
}

// RecordPlay upserts a history row: a new identifier gets play_count 1 with
// first_played_at == last_played_at, a replay increments play_count,
// refreshes last_played_at and updates the metadata.
func (s *Store) RecordPlay(ctx context.Context, videoID, title, channel, thumbnail string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
	INSERT INTO history (video_id, title, channel, thumbnail, play_count, first_played_at, last_played_at)
	VALUES (?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(video_id) DO UPDATE SET
		title = excluded.title,
		channel = excluded.channel,
		thumbnail = excluded.thumbnail,
		play_count = play_count + 1,
		last_played_at = excluded.last_played_at
	`

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, videoID, title, channel, thumbnail, now, now); err != nil {
			return fmt.Errorf("record play: %w", err)
		}
		return nil
	})
}

// History returns the most recently played entries, newest first.
// limit <= 0 returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
	SELECT video_id, title, channel, thumbnail, play_count, first_played_at, last_played_at
	FROM history
	ORDER BY last_played_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var first, last string

		if err := rows.Scan(&e.VideoID, &e.Title, &e.Channel, &e.Thumbnail, &e.PlayCount, &first, &last); err != nil {
			return nil, err
		}

		e.FirstPlayedAt, _ = time.Parse(time.RFC3339, first)
		e.LastPlayedAt, _ = time.Parse(time.RFC3339, last)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ClearHistory deletes all history rows.
func (s *Store) ClearHistory(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM history`)
		return err
	})
}

// TitleFor returns the stored title for an identifier, or a generic
// placeholder when the identifier has never been played or has no title.
func (s *Store) TitleFor(ctx context.Context, videoID string) string {
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM history WHERE video_id = ?`, videoID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) || title == "" {
		return "YouTube Video " + videoID
	}
	if err != nil {
		return "YouTube Video " + videoID
	}
	return title
}
