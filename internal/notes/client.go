// SPDX-License-Identifier: MIT

// Package notes talks to the Trilium ETAPI note store: duplicate lookup
// by label, note creation, and label attachment. A filesystem backup sink
// catches payloads when the store is unavailable.
package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LabelName is the label attached to published notes for deduplication.
const LabelName = "youtube_id"

// NoteRef identifies an existing note.
type NoteRef struct {
	NoteID string
	Title  string
}

// Client is a minimal ETAPI client.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New returns a Client for the given Trilium base URL and ETAPI token.
func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Close releases pooled connections. Idempotent.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// FindByLabel searches for a note carrying #name="value". Returns nil
// when no note matches.
func (c *Client) FindByLabel(ctx context.Context, name, value string) (*NoteRef, error) {
	search := fmt.Sprintf(`#%s="%s"`, name, value)
	u := c.base + "/etapi/notes?search=" + url.QueryEscape(search)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []struct {
			NoteID string `json:"noteId"`
			Title  string `json:"title"`
		} `json:"results"`
	}
	if err := c.doJSON(req, &payload); err != nil {
		return nil, err
	}

	if len(payload.Results) == 0 {
		return nil, nil
	}
	return &NoteRef{NoteID: payload.Results[0].NoteID, Title: payload.Results[0].Title}, nil
}

// CreateNote creates a note under parent and returns its id.
func (c *Client) CreateNote(ctx context.Context, parentID, title, content, mime string) (string, error) {
	body := map[string]string{
		"parentNoteId": parentID,
		"title":        title,
		"type":         "text",
		"content":      content,
	}
	if mime != "" {
		body["mime"] = mime
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/etapi/create-note", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var payload struct {
		Note struct {
			NoteID string `json:"noteId"`
		} `json:"note"`
	}
	if err := c.doJSON(req, &payload); err != nil {
		return "", err
	}
	if payload.Note.NoteID == "" {
		return "", fmt.Errorf("create note: empty noteId in response")
	}
	return payload.Note.NoteID, nil
}

// AddLabel attaches a label attribute to a note.
func (c *Client) AddLabel(ctx context.Context, noteID, name, value string) error {
	body := map[string]string{
		"noteId": noteID,
		"type":   "label",
		"name":   name,
		"value":  value,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/etapi/attributes", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(req, nil)
}

// NoteURL returns the UI link for a note id.
func (c *Client) NoteURL(noteID string) string {
	return c.base + "/#root/" + noteID
}

func (c *Client) doJSON(req *http.Request, into any) error {
	req.Header.Set("Authorization", c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return fmt.Errorf("note store returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	if into == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(into)
}
