// Package orchestrator implements the main process's canonical state:
// the playlist, the play-state machine, the playback modes, the
// enqueue transaction, and the player-control link.
package orchestrator

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/soundd/internal/controlendpoint"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/playlist"
	"github.com/drgolem/soundd/internal/transaction"
)

// Broadcaster sends a Notification to every monitoring connection. It is
// satisfied by (*controlendpoint.Endpoint).Broadcast; orchestrator calls
// it for state changes that aren't the direct reply to a dispatched
// command (track-end advancement, worker errors).
type Broadcaster func(controlendpoint.Notification)

// Orchestrator owns every piece of state that is single-writer-by-main:
// playlist, play state, modes, transaction. It is driven exclusively
// from the control endpoint's dispatch (via the
// controlendpoint.Handler methods below) and from worker events (via
// HandleWorkerEvent), both called from the same event-loop goroutine, so
// no locking is needed.
type Orchestrator struct {
	log   *slog.Logger
	list  *playlist.Playlist
	state playlist.State
	modes playlist.Modes
	tx    *transaction.Transaction

	link      PlayerLink
	broadcast Broadcaster

	currentTrack string
	position     int64
	duration     int64
}

// New constructs an Orchestrator. broadcast may be nil in tests that
// don't care about out-of-band notifications, or set later with
// SetBroadcaster once a controlendpoint.Endpoint exists — Endpoint's
// constructor needs a Handler, and Orchestrator implements Handler, so
// the two can't both be fully built in one step.
func New(log *slog.Logger, link PlayerLink, broadcast Broadcaster) *Orchestrator {
	return &Orchestrator{
		log:       log,
		list:      playlist.New(),
		tx:        transaction.New(),
		link:      link,
		broadcast: broadcast,
	}
}

// SetBroadcaster wires the endpoint's broadcast once it has been
// constructed with this Orchestrator as its Handler.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	o.broadcast = b
}

// SetPlaylist replaces the live playlist, used at startup to restore a
// persisted snapshot before the control endpoint starts accepting.
func (o *Orchestrator) SetPlaylist(list *playlist.Playlist) {
	o.list = list
}

// Playlist exposes the live playlist for startup snapshot restore
// (internal/snapshot) and introspection.
func (o *Orchestrator) Playlist() *playlist.Playlist { return o.list }

// State returns the current play state.
func (o *Orchestrator) State() playlist.State { return o.state }

func (o *Orchestrator) notify(event ipc.Type) controlendpoint.Notification {
	return controlendpoint.Notification{
		Event:    event,
		Position: o.position,
		Duration: o.duration,
		Modes:    o.modes,
	}
}

func (o *Orchestrator) emit(event ipc.Type) {
	if o.broadcast != nil {
		o.broadcast(o.notify(event))
	}
}

// openTrack opens path read-only for handoff to the worker. os.OpenFile
// already sets CLOEXEC on the returned descriptor on Unix.
func openTrack(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open %s: %w", path, err)
	}
	return f, nil
}

// startTrack opens and hands off the entry at the playlist cursor to the
// worker, skipping over entries that fail to open (not fatal, an error
// event is broadcast instead), bounded to one full pass over the
// playlist so a playlist of entirely unreadable files terminates rather
// than spinning forever.
func (o *Orchestrator) startTrack() {
	for attempts := 0; attempts <= o.list.Len(); attempts++ {
		if o.list.Cursor() == playlist.NoCursor {
			if o.list.Len() == 0 {
				o.stopForNoMoreTracks()
				return
			}
			_ = o.list.SetCursor(0)
		}

		path := o.list.Current()
		if path == "" {
			o.stopForNoMoreTracks()
			return
		}

		f, err := openTrack(path)
		if err != nil {
			o.log.Warn("orchestrator: skipping unreadable track", "path", path, "error", err)
			o.emit(ipc.TypeError)
			if !o.advanceCursorForSkip() {
				o.stopForNoMoreTracks()
				return
			}
			continue
		}

		if err := o.link.Play(f); err != nil {
			f.Close()
			o.log.Error("orchestrator: player worker rejected Play", "error", err)
			o.emit(ipc.TypeError)
			return
		}
		f.Close() // handoff complete; main keeps no reference to the fd

		o.currentTrack = path
		o.state, _ = playlist.Transition(o.state, playlist.TriggerPlay)
		return
	}
	o.stopForNoMoreTracks()
}

// advanceCursorForSkip moves past an unopenable entry, wrapping under
// repeat_all like the natural end-of-playlist case. Returns false if
// there is nowhere left to go.
func (o *Orchestrator) advanceCursorForSkip() bool {
	if o.list.Advance() {
		return true
	}
	if o.modes.RepeatAll {
		_ = o.list.SetCursor(0)
		return true
	}
	return false
}

func (o *Orchestrator) stopForNoMoreTracks() {
	_ = o.link.Stop()
	o.state, _ = playlist.Transition(o.state, playlist.TriggerStop)
	o.currentTrack = ""
	o.emit(ipc.TypeStop)
}
