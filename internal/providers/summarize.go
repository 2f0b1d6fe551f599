// SPDX-License-Identifier: MIT

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tubescribe/tubescribe/internal/metrics"
	"github.com/tubescribe/tubescribe/internal/store"
)

// Summary is the result of one summarization call.
type Summary struct {
	Text           string
	PromptTokens   int
	ResponseTokens int
	Model          string
}

// Summarize sends a prompt to the chat completions endpoint. The call
// carries its own deadline (SummarizeTimeout).
func (c *Client) Summarize(ctx context.Context, prompt, videoID string) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SummarizeTimeout)
	defer cancel()

	reqBody := map[string]any{
		"model": c.cfg.SummaryModel,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return Summary{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return Summary{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.do(ctx, req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("summary", "error").Inc()
		return Summary{}, err
	}
	defer func() { _ = res.Body.Close() }()

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			CompletionDetail struct {
				ReasoningTokens int `json:"reasoning_tokens"`
			} `json:"completion_tokens_details"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("summary", "malformed").Inc()
		return Summary{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(payload.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues("summary", "malformed").Inc()
		return Summary{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("summary", "ok").Inc()

	rec := usageRecord("summary", c.cfg.SummaryModel,
		payload.Usage.PromptTokens, payload.Usage.CompletionTokens, 0, videoID)
	rec.ReasoningTokens = payload.Usage.CompletionDetail.ReasoningTokens
	c.logUsage(ctx, rec)

	return Summary{
		Text:           payload.Choices[0].Message.Content,
		PromptTokens:   payload.Usage.PromptTokens,
		ResponseTokens: payload.Usage.CompletionTokens,
		Model:          c.cfg.SummaryModel,
	}, nil
}

func usageRecord(feature, model string, prompt, response int, audioSeconds float64, videoID string) store.UsageRecord {
	return store.UsageRecord{
		Provider:       "openai",
		Model:          model,
		Feature:        feature,
		PromptTokens:   prompt,
		ResponseTokens: response,
		AudioSeconds:   audioSeconds,
		VideoID:        videoID,
		CreatedAt:      time.Now().UTC(),
	}
}
