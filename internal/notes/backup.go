// SPDX-License-Identifier: MIT

package notes

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// BackupSink writes publish payloads to disk when the note store is
// unavailable, so a failed publish can be replayed by hand.
type BackupSink struct {
	dir string
}

// NewBackupSink returns a sink rooted at dir.
func NewBackupSink(dir string) *BackupSink {
	return &BackupSink{dir: dir}
}

// WriteJSON atomically writes payload as {dir}/{id}.json.
func (s *BackupSink) WriteJSON(id string, payload any) error {
	path := filepath.Join(s.dir, id+".json")

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending backup: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode backup payload: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace backup: %w", err)
	}
	return nil
}
