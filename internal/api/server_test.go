// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubescribe/tubescribe/internal/broadcast"
	"github.com/tubescribe/tubescribe/internal/capture"
	"github.com/tubescribe/tubescribe/internal/ingest"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/store"
)

const testID = "ccccccccccc"

type fakeStreamer struct {
	status      ingest.Status
	startErr    error
	startedID   string
	stopped     bool
	broadcaster *broadcast.Broadcaster
	nextEntry   *store.QueueEntry
	nextErr     error
	warmErr     error
	warmedID    string
}

func (f *fakeStreamer) Start(_ context.Context, videoID string, _ ingest.StartOptions) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.startedID = videoID
	f.status = ingest.Status{Streaming: true, VideoID: videoID, Title: "Started"}
	return "Started", nil
}

func (f *fakeStreamer) Stop() { f.stopped = true }

func (f *fakeStreamer) Status() ingest.Status { return f.status }

func (f *fakeStreamer) Subscribe() (*broadcast.Subscription, error) {
	if f.broadcaster == nil {
		return nil, ingest.ErrNotStreaming
	}
	return f.broadcaster.Subscribe(), nil
}

func (f *fakeStreamer) Unsubscribe(sub *broadcast.Subscription) {
	if f.broadcaster != nil {
		f.broadcaster.Unsubscribe(sub)
	}
}

func (f *fakeStreamer) Next(context.Context) (*store.QueueEntry, error) {
	return f.nextEntry, f.nextErr
}

func (f *fakeStreamer) Warm(_ context.Context, videoID string) error {
	if f.warmErr != nil {
		return f.warmErr
	}
	f.warmedID = videoID
	return nil
}

type fakeTracker struct {
	job jobs.Job
	ok  bool
}

func (f *fakeTracker) Status(string) (jobs.Job, bool) { return f.job, f.ok }

type testServer struct {
	*Server
	streamer *fakeStreamer
	store    *store.Store
	captures *capture.Store
	http     *httptest.Server
}

func newTestServer(t *testing.T, tracker JobTracker) *testServer {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	streamer := &fakeStreamer{}
	captures := capture.NewStore(t.TempDir())
	srv := New(streamer, st, captures, tracker, nil, "test")

	hs := httptest.NewServer(srv.Router())
	t.Cleanup(hs.Close)

	return &testServer{Server: srv, streamer: streamer, store: st, captures: captures, http: hs}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.http.URL+path, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestStreamStart(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/stream", map[string]any{"url": testID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[streamResponse](t, resp)
	assert.Equal(t, testID, body.VideoID)
	assert.Equal(t, "Started", body.Title)
}

func TestStreamStartValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/stream", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/stream", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamStartError(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.streamer.startErr = errors.New("resolver down")

	resp := ts.do(t, http.MethodPost, "/api/stream", map[string]any{"url": testID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStopAndStatus(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, ts.streamer.stopped)

	resp = ts.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[ingest.Status](t, resp)
	assert.False(t, st.Streaming)
}

func TestAudioLiveNoSession(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/audio/live", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
}

func TestAudioLiveStreamsReplayAndLive(t *testing.T) {
	ts := newTestServer(t, nil)

	b := broadcast.New()
	b.Publish([]byte("first-"))
	b.Publish([]byte("second"))
	b.Close()
	ts.streamer.broadcaster = b

	resp := ts.do(t, http.MethodGet, "/api/audio/live", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))

	var got bytes.Buffer
	_, err := got.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "first-second", got.String())
}

func TestAudioFileLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	// Unknown capture: plain 404.
	resp := ts.do(t, http.MethodGet, "/api/audio/"+testID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Retry-After"))

	// In progress: 404 with a retry hint.
	part, err := ts.captures.PartPath(testID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(part, nil, 0o644))
	resp = ts.do(t, http.MethodGet, "/api/audio/"+testID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))

	// Finished: full body and byte ranges.
	require.NoError(t, os.Remove(part))
	path, err := ts.captures.Path(testID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	resp = ts.do(t, http.MethodGet, "/api/audio/"+testID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/audio/"+testID, nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")
	ranged, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ranged.Body.Close()

	require.Equal(t, http.StatusPartialContent, ranged.StatusCode)
	var got bytes.Buffer
	_, err = got.ReadFrom(ranged.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", got.String())
}

type fakeProber struct{ seconds float64 }

func (f *fakeProber) Duration(context.Context, string) (float64, error) { return f.seconds, nil }

func TestAudioFileDurationHeader(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.Server.prober = &fakeProber{seconds: 12.5}

	path, err := ts.captures.Path(testID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	resp := ts.do(t, http.MethodGet, "/api/audio/"+testID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12.500", resp.Header.Get("X-Audio-Duration"))
}

func TestAudioFileRejectsInvalidID(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/audio/..%2Fescape", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueueEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	// Add two entries.
	resp := ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": testID, "title": "One"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decodeBody[queueAddResponse](t, resp)
	require.True(t, added.Added)
	require.NotNil(t, added.Entry)
	first := *added.Entry

	resp = ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": "ddddddddddd", "kind": "summary", "week_tag": "2026-W34"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added = decodeBody[queueAddResponse](t, resp)
	require.NotNil(t, added.Entry)
	second := *added.Entry

	// List preserves position order.
	resp = ts.do(t, http.MethodGet, "/api/queue/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Entries []store.QueueEntry `json:"entries"`
	}](t, resp)
	require.Len(t, list.Entries, 2)
	assert.Equal(t, 0, list.Entries[0].Position)
	assert.Equal(t, 1, list.Entries[1].Position)

	// Reorder, then verify.
	resp = ts.do(t, http.MethodPost, "/api/queue/reorder", map[string]any{"entry_ids": []int64{second.ID, first.ID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reordered := decodeBody[struct {
		Entries []store.QueueEntry `json:"entries"`
	}](t, resp)
	require.Len(t, reordered.Entries, 2)
	gotIDs := []int64{reordered.Entries[0].ID, reordered.Entries[1].ID}
	if diff := cmp.Diff([]int64{second.ID, first.ID}, gotIDs); diff != "" {
		t.Fatalf("queue order mismatch (-want +got):\n%s", diff)
	}

	// Reorder with a stale id set conflicts.
	resp = ts.do(t, http.MethodPost, "/api/queue/reorder", map[string]any{"entry_ids": []int64{first.ID}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Remove one, clear the rest.
	resp = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/queue/%d", first.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/queue/%d", first.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/queue/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestQueueAddValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": "not a video"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": testID, "kind": "weird"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueueAddRefusedWhileJobRuns(t *testing.T) {
	tracker := &fakeTracker{job: jobs.Job{VideoID: testID, State: jobs.StateTranscribing}, ok: true}
	ts := newTestServer(t, tracker)

	resp := ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": testID})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decodeBody[queueAddResponse](t, resp)
	assert.False(t, body.Added)
	assert.Equal(t, "already_in_progress", body.Reason)
	assert.Equal(t, jobs.StateTranscribing, body.JobState)

	// Nothing was appended.
	entries, err := ts.store.Queue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A terminal job does not block a re-add.
	tracker.job.State = jobs.StateCompleted
	resp = ts.do(t, http.MethodPost, "/api/queue/", map[string]any{"url": testID})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestQueueNext(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/queue/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "queue empty", body["status"])

	ts.streamer.nextEntry = &store.QueueEntry{VideoID: testID, Position: 0}
	resp = ts.do(t, http.MethodPost, "/api/queue/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decodeBody[store.QueueEntry](t, resp)
	assert.Equal(t, testID, entry.VideoID)
}

func TestQueuePrefetch(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodPost, "/api/queue/prefetch/"+testID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testID, ts.streamer.warmedID)

	ts.streamer.warmErr = errors.New("download failed")
	resp = ts.do(t, http.MethodPost, "/api/queue/prefetch/"+testID, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, ts.store.RecordPlay(ctx, testID, "A Title", "Chan", ""))

	resp := ts.do(t, http.MethodGet, "/api/history/?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[struct {
		Entries []store.HistoryEntry `json:"entries"`
	}](t, resp)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "A Title", list.Entries[0].Title)

	resp = ts.do(t, http.MethodDelete, "/api/history/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/history/", nil)
	list = decodeBody[struct {
		Entries []store.HistoryEntry `json:"entries"`
	}](t, resp)
	assert.Empty(t, list.Entries)
}

func TestJobStatus(t *testing.T) {
	tracker := &fakeTracker{job: jobs.Job{VideoID: testID, State: jobs.StateTranscribing}, ok: true}
	ts := newTestServer(t, tracker)

	resp := ts.do(t, http.MethodGet, "/api/jobs/"+testID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	job := decodeBody[jobs.Job](t, resp)
	assert.Equal(t, jobs.StateTranscribing, job.State)

	tracker.ok = false
	resp = ts.do(t, http.MethodGet, "/api/jobs/"+testID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobStatusWithoutTracker(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/jobs/"+testID, nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestUsageReport(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, ts.store.LogUsage(ctx, store.UsageRecord{
		VideoID: testID, Provider: "openai", Model: "whisper-1", Feature: "transcription", AudioSeconds: 42,
	}))

	resp := ts.do(t, http.MethodGet, "/api/usage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[store.UsageReport](t, resp)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "transcription", report.Groups[0].Feature)

	resp = ts.do(t, http.MethodGet, "/api/usage?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/api/status", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/api/status", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "fixed-id")
	echo, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer echo.Body.Close()
	assert.Equal(t, "fixed-id", echo.Header.Get("X-Request-ID"))
}
