// Package snapshot persists and restores the playlist across a clean
// shutdown: one path per line, preceded by a "# cursor N"
// header line recording the cursor at save time.
package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/drgolem/soundd/internal/playlist"
)

const cursorHeaderPrefix = "# cursor "

// Save writes the playlist's entries and cursor to path, creating any
// missing parent directory. A missing path disables persistence
// entirely (internal/config.Config.SnapshotPath == "" means "skip
// this"), so Save is only ever called with a non-empty path.
func Save(path string, list *playlist.Playlist) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("snapshot: create: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%s%d\n", cursorHeaderPrefix, list.Cursor()); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}
	for _, entry := range list.Entries() {
		if _, err := fmt.Fprintln(w, entry); err != nil {
			return fmt.Errorf("snapshot: write entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}

	// Rename is atomic on the same filesystem, so a crash mid-write
	// never leaves a half-written snapshot in place of a good one.
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads a snapshot previously written by Save into a fresh
// playlist. A missing file is not an error: it returns an empty
// playlist, matching "restored on startup if present".
func Load(path string) (*playlist.Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return playlist.New(), nil
		}
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()

	list := playlist.New()
	cursor := playlist.NoCursor

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, cursorHeaderPrefix) {
				n, err := strconv.Atoi(strings.TrimPrefix(line, cursorHeaderPrefix))
				if err != nil {
					return nil, fmt.Errorf("snapshot: malformed cursor header %q: %w", line, err)
				}
				cursor = n
				continue
			}
		}
		if line == "" {
			continue
		}
		list.Append(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: scan: %w", err)
	}

	if cursor != playlist.NoCursor {
		if cursor < 0 || cursor >= list.Len() {
			cursor = playlist.NoCursor
		}
		if err := list.SetCursor(cursor); err != nil {
			return nil, fmt.Errorf("snapshot: restore cursor: %w", err)
		}
	}
	return list, nil
}
