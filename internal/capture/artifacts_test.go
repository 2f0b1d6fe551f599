// SPDX-License-Identifier: MIT

package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactsTranscriptRoundTrip(t *testing.T) {
	a, err := NewArtifacts(t.TempDir())
	require.NoError(t, err)

	in := Transcript{
		VideoID:      "abc12345678",
		Text:         "hello world",
		Provider:     "openai",
		Model:        "whisper-1",
		AudioSeconds: 215.4,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, a.SaveTranscript(in))

	out, ok, err := a.Transcript("abc12345678")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestArtifactsSummaryRoundTrip(t *testing.T) {
	a, err := NewArtifacts(t.TempDir())
	require.NoError(t, err)

	in := Summary{
		VideoID:        "abc12345678",
		Text:           "a fine talk",
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		PromptTokens:   1200,
		ResponseTokens: 300,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, a.SaveSummary(in))

	out, ok, err := a.Summary("abc12345678")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestArtifactsMissing(t *testing.T) {
	a, err := NewArtifacts(t.TempDir())
	require.NoError(t, err)

	_, ok, err := a.Transcript("abc12345678")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtifactsOverwriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArtifacts(dir)
	require.NoError(t, err)

	require.NoError(t, a.SaveTranscript(Transcript{VideoID: "abc12345678", Text: "v1"}))
	require.NoError(t, a.SaveTranscript(Transcript{VideoID: "abc12345678", Text: "v2"}))

	out, ok, err := a.Transcript("abc12345678")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", out.Text)

	// No temp files left behind after the replace.
	entries, err := os.ReadDir(filepath.Join(dir, "transcripts"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc12345678.json", entries[0].Name())
}

func TestArtifactsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArtifacts(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "summaries", "abc12345678.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err = a.Summary("abc12345678")
	assert.Error(t, err)
}
