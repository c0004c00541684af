package controlendpoint

import (
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/playlist"
)

// Handler is the canonical-state side of the control plane (implemented
// by internal/orchestrator). The endpoint owns connections, parsing and
// broadcast; Handler owns playlist/play-state/modes/transaction and
// decides what, if anything, gets broadcast as a result of a command.
type Handler interface {
	Play() Notification
	TogglePlay() Notification
	Pause() Notification
	Stop() Notification
	Next() Notification
	Prev() Notification
	Jump(target string) (Notification, error)
	Seek(req SeekRequest) (PositionReply, error)
	Mode(req playlist.ModeRequest) Notification
	Flush() Notification
	Show() []string
	Status() StatusReply

	Begin(owner int) error
	Add(owner int, path string) (*Notification, error)
	Commit(owner int, offset int64) (Notification, error)

	// Abort rolls back any transaction owned by fd. Called on connection
	// close.
	Abort(owner int)
}

// Notification is the broadcast payload: "event type, current position,
// current duration, all three modes".
type Notification struct {
	Event    ipc.Type
	Position int64
	Duration int64
	Modes    playlist.Modes
}

// StatusReply answers the Status command.
type StatusReply struct {
	Track    string
	Position int64
	Duration int64
	State    playlist.State
	Modes    playlist.Modes
}

// PositionReply answers the Seek command with the worker-reported
// position.
type PositionReply struct {
	Position int64
}

// SeekRequest decodes the Seek command's payload.
type SeekRequest struct {
	Position int64
	Relative bool
	Percent  bool
}
