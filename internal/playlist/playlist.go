// Package playlist implements the playlist data model and play-state
// machine of the control plane: an ordered sequence of file paths with a
// signed cursor, the {Stopped, Playing, Paused} state machine, and the
// three independent playback-mode toggles.
package playlist

import "fmt"

// NoCursor is the sentinel cursor value meaning "before first".
const NoCursor = -1

// Playlist is an ordered sequence of file paths with a current-index
// cursor. It is single-writer, owned exclusively by the orchestrator,
// and carries no synchronization of its own.
type Playlist struct {
	entries []string
	cursor  int
}

// New returns an empty playlist with the cursor before the first entry.
func New() *Playlist {
	return &Playlist{cursor: NoCursor}
}

// Len returns the number of entries.
func (p *Playlist) Len() int { return len(p.entries) }

// Cursor returns the current cursor, NoCursor or in [0, Len()).
func (p *Playlist) Cursor() int { return p.cursor }

// Entries returns the playlist's paths. The returned slice must not be
// mutated by the caller.
func (p *Playlist) Entries() []string { return p.entries }

// Current returns the entry at the cursor, or "" if the cursor is
// NoCursor or out of range.
func (p *Playlist) Current() string {
	if p.cursor < 0 || p.cursor >= len(p.entries) {
		return ""
	}
	return p.entries[p.cursor]
}

// Append adds path to the end of the playlist. Appending never
// invalidates the cursor.
func (p *Playlist) Append(path string) {
	p.entries = append(p.entries, path)
}

// Find returns the index of the first entry exactly matching path, or -1.
func (p *Playlist) Find(path string) int {
	for i, e := range p.entries {
		if e == path {
			return i
		}
	}
	return -1
}

// SetCursor sets the cursor to idx, which must be NoCursor or in
// [0, Len()).
func (p *Playlist) SetCursor(idx int) error {
	if idx != NoCursor && (idx < 0 || idx >= len(p.entries)) {
		return fmt.Errorf("playlist: cursor %d out of range [0, %d)", idx, len(p.entries))
	}
	p.cursor = idx
	return nil
}

// Advance moves the cursor forward by one. It does not wrap; callers
// implementing repeat_all wrap explicitly by calling SetCursor(0).
// Returns false, and resets the cursor to NoCursor, if the new cursor
// would run past the end.
func (p *Playlist) Advance() bool {
	if p.cursor+1 >= len(p.entries) {
		p.cursor = NoCursor
		return false
	}
	p.cursor++
	return true
}

// Retreat moves the cursor back by one, clamped at 0.
func (p *Playlist) Retreat() {
	if p.cursor <= 0 {
		p.cursor = 0
		return
	}
	p.cursor--
}

// RemoveCurrent deletes the entry at the cursor (consume mode) without
// moving the cursor, so it now points at what was the next entry.
func (p *Playlist) RemoveCurrent() {
	if p.cursor < 0 || p.cursor >= len(p.entries) {
		return
	}
	p.entries = append(p.entries[:p.cursor], p.entries[p.cursor+1:]...)
	if p.cursor >= len(p.entries) {
		p.cursor = NoCursor
	}
}

// Truncate drops every entry with index > keepThrough (inclusive cutoff),
// resetting the cursor to NoCursor: truncation to entries <= cursor
// resets the cursor to -1 and forces stop. Truncate is used by
// the Flush command, which truncates past the *current* cursor, so
// callers pass the current cursor as keepThrough.
func (p *Playlist) Truncate(keepThrough int) {
	if keepThrough < -1 {
		keepThrough = -1
	}
	if keepThrough+1 < len(p.entries) {
		p.entries = p.entries[:keepThrough+1]
	}
	p.cursor = NoCursor
}

// ReplaceFrom splices replacement into the playlist starting at offset,
// discarding everything from offset onward first. offset must be in
// [0, Len()]. This implements the non-negative branch of Commit(offset)
//.
func (p *Playlist) ReplaceFrom(offset int, replacement []string) error {
	if offset < 0 || offset > len(p.entries) {
		return fmt.Errorf("playlist: replace offset %d out of range [0, %d]", offset, len(p.entries))
	}
	p.entries = append(p.entries[:offset], replacement...)
	if p.cursor >= len(p.entries) {
		p.cursor = NoCursor
	}
	return nil
}

// AppendAll appends every entry of additions to the end of the playlist
// (the negative-offset branch of Commit).
func (p *Playlist) AppendAll(additions []string) {
	p.entries = append(p.entries, additions...)
}
