// SPDX-License-Identifier: MIT

package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubescribe/tubescribe/internal/store"
)

type recordingUsage struct {
	records []store.UsageRecord
}

func (r *recordingUsage) LogUsage(_ context.Context, rec store.UsageRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "abc12345678.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake-mp3-bytes"), 0o644))
	return path
}

func TestTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		_ = file.Close()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello world","duration":215.4}`))
	}))
	defer srv.Close()

	usage := &recordingUsage{}
	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "sk-test"}, usage)
	defer c.Close()

	tr, err := c.Transcribe(context.Background(), writeAudio(t), "abc12345678")
	require.NoError(t, err)

	assert.Equal(t, "hello world", tr.Text)
	assert.InDelta(t, 215.4, tr.AudioSeconds, 0.001)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "whisper-1", gotModel)

	require.Len(t, usage.records, 1)
	assert.Equal(t, "transcription", usage.records[0].Feature)
	assert.InDelta(t, 215.4, usage.records[0].AudioSeconds, 0.001)
	assert.Equal(t, "abc12345678", usage.records[0].VideoID)
}

func TestTranscribeMissingFile(t *testing.T) {
	c := New(Config{BaseURL: "http://unused.invalid"}, nil)
	defer c.Close()

	_, err := c.Transcribe(context.Background(), "/does/not/exist.mp3", "abc12345678")
	assert.Error(t, err)
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	defer c.Close()

	_, err := c.Transcribe(context.Background(), writeAudio(t), "abc12345678")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, Retriable(err))
}

func TestSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"- point one"}}],
			"usage":{"prompt_tokens":1200,"completion_tokens":300}
		}`))
	}))
	defer srv.Close()

	usage := &recordingUsage{}
	c := New(Config{BaseURL: srv.URL, SummaryModel: "gpt-4o-mini"}, usage)
	defer c.Close()

	s, err := c.Summarize(context.Background(), "summarize this", "abc12345678")
	require.NoError(t, err)

	assert.Equal(t, "- point one", s.Text)
	assert.Equal(t, 1200, s.PromptTokens)
	assert.Equal(t, 300, s.ResponseTokens)

	require.Len(t, usage.records, 1)
	assert.Equal(t, "summary", usage.records[0].Feature)
	assert.Equal(t, 1200, usage.records[0].PromptTokens)
}

func TestSummarizeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	defer c.Close()

	_, err := c.Summarize(context.Background(), "p", "abc12345678")
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, Retriable(err))
}

func TestRetriableClassification(t *testing.T) {
	assert.False(t, Retriable(nil))
	assert.False(t, Retriable(context.Canceled))
	assert.True(t, Retriable(context.DeadlineExceeded))
	assert.True(t, Retriable(&APIError{Status: 500}))
	assert.True(t, Retriable(&APIError{Status: 503}))
	assert.True(t, Retriable(&APIError{Status: 429}))
	assert.False(t, Retriable(&APIError{Status: 400}))
	assert.False(t, Retriable(&APIError{Status: 401}))
	assert.True(t, Retriable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, Retriable(errors.Join(ErrMalformedResponse, errors.New("bad json"))))
}

func TestSummaryPrompt(t *testing.T) {
	p := SummaryPrompt("the transcript", "A Talk", "SomeChannel")

	assert.Contains(t, p, "Title: A Talk")
	assert.Contains(t, p, "Channel: SomeChannel")
	assert.Contains(t, p, "the transcript")
}

func TestSummaryPromptTruncatesLongTranscripts(t *testing.T) {
	long := strings.Repeat("x", maxTranscriptChars+1000)
	p := SummaryPrompt(long, "T", "")

	assert.Contains(t, p, "[transcript truncated]")
	assert.Less(t, len(p), maxTranscriptChars+500)
}

func TestSummaryPromptTruncatesOnRuneBoundary(t *testing.T) {
	// Pad so a multi-byte rune straddles the cut point; the cut must
	// back up rather than emit half a rune.
	long := strings.Repeat("x", maxTranscriptChars-1) + strings.Repeat("日本語", 400)
	p := SummaryPrompt(long, "T", "")

	assert.True(t, utf8.ValidString(p))
	assert.Contains(t, p, "[transcript truncated]")
}

func TestDeadlineApplied(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{BaseURL: srv.URL, SummarizeTimeout: 50 * time.Millisecond}, nil)
	defer c.Close()

	_, err := c.Summarize(context.Background(), "p", "abc12345678")
	require.Error(t, err)
	assert.True(t, Retriable(err), "deadline exceeded must be retriable")
}
