// SPDX-License-Identifier: MIT

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
)

// Retry settings for provider calls: 3 attempts with exponential delays.
const (
	RetryAttempts  = 3
	RetryBaseDelay = 2 * time.Second
)

// Retry runs fn up to RetryAttempts times with delays 2s, 4s, 8s between
// attempts. retriable decides whether an error is worth another attempt;
// non-retriable errors fail immediately. Returns the attempt count used.
func Retry(ctx context.Context, stage string, retriable func(error) bool, fn func(ctx context.Context) error) (int, error) {
	var err error
	delay := RetryBaseDelay

	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}

		if !retriable(err) || attempt == RetryAttempts {
			return attempt, err
		}

		metrics.JobRetriesTotal.WithLabelValues(stage).Inc()
		logger := log.WithComponentFromContext(ctx, "jobs")
		logger.Warn().
			Str("stage", stage).
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("error", err.Error()).
			Msg("stage failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, fmt.Errorf("%s cancelled during backoff: %w", stage, ctx.Err())
		}
		delay *= 2
	}

	return RetryAttempts, err
}
