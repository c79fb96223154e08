// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists sessions. The file store below is the only
// implementation in the daemon; tests substitute in-memory fakes.
type Store interface {
	Save(session *Session) error
	Load(id string) (*Session, error)
	List() ([]*Session, error)
	Delete(id string) error
}

// FileStore keeps one JSON file per session under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store
// over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the session atomically: a temp file in the same
// directory, fsynced, then renamed over the destination. A crash mid
// write never leaves a truncated session file behind.
func (s *FileStore) Save(session *Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, session.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating session temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session %s: %w", session.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing session %s: %w", session.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(session.ID)); err != nil {
		return fmt.Errorf("committing session %s: %w", session.ID, err)
	}
	return nil
}

// Load reads one session by id.
func (s *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("reading session %s: %w", id, err)
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &session, nil
}

// List returns every stored session. Files that fail to decode are
// skipped rather than failing the whole listing.
func (s *FileStore) List() ([]*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		session, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Delete removes a session file; deleting an absent session is a
// no-op.
func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
