// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Harvester collects screenshots a game wrote into the shared media
// mount during a session and copies them into the game's entry
// directory, where the library UI picks them up. Everything here is
// best effort: a failed harvest is logged and never affects the
// session's terminal state.
type Harvester struct {
	// MediaDir is the host side of the media mount shared with game
	// containers, one subdirectory per game id.
	MediaDir string

	// EntriesDir is the root of per-game entry directories.
	EntriesDir string

	Logger *slog.Logger
}

var screenshotExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// Collect copies screenshots taken during the session into the
// game's entry directory. Files older than the session start are
// leftovers from earlier sessions and are skipped; files already
// present at the destination are not overwritten.
func (h *Harvester) Collect(session *Session) {
	sourceDir := filepath.Join(h.MediaDir, session.GameID)
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		if !os.IsNotExist(err) {
			h.Logger.Warn("reading media directory failed",
				"session", session.ID, "dir", sourceDir, "error", err)
		}
		return
	}

	targetDir := filepath.Join(h.EntriesDir, session.GameID, "screenshots")
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		h.Logger.Warn("creating screenshots directory failed",
			"session", session.ID, "dir", targetDir, "error", err)
		return
	}

	copied := 0
	for _, entry := range entries {
		if entry.IsDir() || !screenshotExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(session.Performance.StartTime) {
			continue
		}
		target := filepath.Join(targetDir, entry.Name())
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := copyFile(filepath.Join(sourceDir, entry.Name()), target); err != nil {
			h.Logger.Warn("copying screenshot failed",
				"session", session.ID, "file", entry.Name(), "error", err)
			continue
		}
		copied++
	}
	if copied > 0 {
		h.Logger.Info("harvested screenshots",
			"session", session.ID, "game", session.GameID, "count", copied)
	}
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
