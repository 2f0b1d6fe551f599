// SPDX-License-Identifier: MIT

// Package providers holds the HTTP clients for the external transcription
// and summarization models. Both speak the OpenAI wire format; calls are
// paced by a shared rate limiter and every completed call emits a usage
// ledger record.
package providers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tubescribe/tubescribe/internal/store"
)

// Defaults for provider deadlines.
const (
	DefaultTranscribeTimeout = 300 * time.Second
	DefaultSummarizeTimeout  = 120 * time.Second
)

// UsageLogger records one ledger row per external-model call.
// *store.Store satisfies it.
type UsageLogger interface {
	LogUsage(ctx context.Context, rec store.UsageRecord) error
}

// Config holds provider connection settings.
type Config struct {
	BaseURL            string
	APIKey             string
	TranscriptionModel string
	SummaryModel       string
	TranscribeTimeout  time.Duration
	SummarizeTimeout   time.Duration
}

// Client talks to the provider API.
type Client struct {
	base    string
	key     string
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	usage   UsageLogger
}

// New returns a Client. usage may be nil to skip ledger writes.
func New(cfg Config, usage UsageLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "whisper-1"
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = "gpt-4o-mini"
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = DefaultTranscribeTimeout
	}
	if cfg.SummarizeTimeout <= 0 {
		cfg.SummarizeTimeout = DefaultSummarizeTimeout
	}

	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		key:  cfg.APIKey,
		cfg:  cfg,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		// The providers are rate-sensitive; one request per second with a
		// small burst keeps the sequential worker well inside any quota.
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		usage:   usage,
	}
}

// Close releases pooled connections. Idempotent.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// do sends a request after waiting for the limiter and converts non-2xx
// responses into *APIError.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		return nil, &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return res, nil
}

func (c *Client) logUsage(ctx context.Context, rec store.UsageRecord) {
	if c.usage == nil {
		return
	}
	// Ledger writes must not fail the provider call.
	_ = c.usage.LogUsage(ctx, rec)
}
