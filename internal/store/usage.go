// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"time"
)

// UsageRecord is one append-only ledger row per external-model call.
type UsageRecord struct {
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Feature         string    `json:"feature"`
	PromptTokens    int       `json:"prompt_tokens"`
	ResponseTokens  int       `json:"response_tokens"`
	ReasoningTokens int       `json:"reasoning_tokens"`
	AudioSeconds    float64   `json:"audio_seconds,omitempty"`
	VideoID         string    `json:"video_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// UsageGroup aggregates ledger rows for one (provider, model, feature).
type UsageGroup struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	Feature         string  `json:"feature"`
	Calls           int     `json:"calls"`
	PromptTokens    int     `json:"prompt_tokens"`
	ResponseTokens  int     `json:"response_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	AudioSeconds    float64 `json:"audio_seconds"`
}

// UsageReport is the aggregated view over a time window.
type UsageReport struct {
	Since       time.Time    `json:"since"`
	Until       time.Time    `json:"until"`
	TotalCalls  int          `json:"total_calls"`
	TotalTokens int          `json:"total_tokens"`
	Groups      []UsageGroup `json:"groups"`
}

// LogUsage appends a ledger row. A zero CreatedAt is filled with now.
func (s *Store) LogUsage(ctx context.Context, rec UsageRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (provider, model, feature, prompt_tokens, response_tokens, reasoning_tokens, audio_seconds, video_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Provider, rec.Model, rec.Feature,
			rec.PromptTokens, rec.ResponseTokens, rec.ReasoningTokens,
			rec.AudioSeconds, rec.VideoID, created.Format(time.RFC3339))
		return err
	})
}

// UsageSummary aggregates ledger rows within [since, until). Zero bounds
// widen the window to everything recorded.
func (s *Store) UsageSummary(ctx context.Context, since, until time.Time) (UsageReport, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT provider, model, feature,
	       COUNT(*),
	       COALESCE(SUM(prompt_tokens), 0),
	       COALESCE(SUM(response_tokens), 0),
	       COALESCE(SUM(reasoning_tokens), 0),
	       COALESCE(SUM(audio_seconds), 0)
	FROM usage_records
	WHERE created_at >= ? AND created_at < ?
	GROUP BY provider, model, feature
	ORDER BY provider, model, feature`,
		since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339))
	if err != nil {
		return UsageReport{}, err
	}
	defer func() { _ = rows.Close() }()

	report := UsageReport{Since: since, Until: until}
	for rows.Next() {
		var g UsageGroup
		if err := rows.Scan(&g.Provider, &g.Model, &g.Feature, &g.Calls,
			&g.PromptTokens, &g.ResponseTokens, &g.ReasoningTokens, &g.AudioSeconds); err != nil {
			return UsageReport{}, err
		}
		report.Groups = append(report.Groups, g)
		report.TotalCalls += g.Calls
		report.TotalTokens += g.PromptTokens + g.ResponseTokens + g.ReasoningTokens
	}

	return report, rows.Err()
}
