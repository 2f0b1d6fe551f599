// SPDX-License-Identifier: MIT

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
)

// Transcription is the result of one transcription call.
type Transcription struct {
	Text         string
	AudioSeconds float64
	Model        string
}

// Transcribe uploads an audio file and returns the transcript. The call
// carries its own deadline (TranscribeTimeout).
func (c *Client) Transcribe(ctx context.Context, audioPath, videoID string) (Transcription, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
	defer cancel()

	audio, err := os.Open(audioPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("open audio file: %w", err)
	}
	defer func() { _ = audio.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return Transcription{}, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Transcription{}, fmt.Errorf("read audio file: %w", err)
	}
	if err := mw.WriteField("model", c.cfg.TranscriptionModel); err != nil {
		return Transcription{}, err
	}
	// verbose_json carries the audio duration alongside the text.
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Transcription{}, err
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/audio/transcriptions", &body)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.do(ctx, req)
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("transcription", "error").Inc()
		return Transcription{}, err
	}
	defer func() { _ = res.Body.Close() }()

	var payload struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("transcription", "malformed").Inc()
		return Transcription{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("transcription", "ok").Inc()
	logger := log.WithComponent("providers")
	logger.Debug().
		Str("video_id", videoID).
		Float64("audio_seconds", payload.Duration).
		Msg("transcription complete")

	c.logUsage(ctx, usageRecord("transcription", c.cfg.TranscriptionModel, 0, 0, payload.Duration, videoID))

	return Transcription{
		Text:         payload.Text,
		AudioSeconds: payload.Duration,
		Model:        c.cfg.TranscriptionModel,
	}, nil
}
