package orchestrator

import (
	"fmt"

	"github.com/drgolem/soundd/internal/controlendpoint"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/playlist"
)

// Play implements controlendpoint.Handler.
func (o *Orchestrator) Play() controlendpoint.Notification {
	switch o.state {
	case playlist.Stopped:
		o.startTrack()
	case playlist.Paused:
		if err := o.link.Resume(); err != nil {
			o.log.Error("orchestrator: resume failed", "error", err)
		}
		o.state, _ = playlist.Transition(o.state, playlist.TriggerResume)
	case playlist.Playing:
		// no-op
	}
	return o.notify(ipc.TypePlay)
}

// TogglePlay implements controlendpoint.Handler.
func (o *Orchestrator) TogglePlay() controlendpoint.Notification {
	switch o.state {
	case playlist.Stopped:
		o.startTrack()
		return o.notify(ipc.TypePlay)
	case playlist.Paused:
		if err := o.link.Resume(); err != nil {
			o.log.Error("orchestrator: resume failed", "error", err)
		}
		o.state, _ = playlist.Transition(o.state, playlist.TriggerResume)
		return o.notify(ipc.TypePlay)
	default: // Playing
		if err := o.link.Pause(); err != nil {
			o.log.Error("orchestrator: pause failed", "error", err)
		}
		o.state, _ = playlist.Transition(o.state, playlist.TriggerPause)
		return o.notify(ipc.TypePause)
	}
}

// Pause implements controlendpoint.Handler.
func (o *Orchestrator) Pause() controlendpoint.Notification {
	if o.state == playlist.Playing {
		if err := o.link.Pause(); err != nil {
			o.log.Error("orchestrator: pause failed", "error", err)
		}
		o.state, _ = playlist.Transition(o.state, playlist.TriggerPause)
	}
	return o.notify(ipc.TypePause)
}

// Stop implements controlendpoint.Handler.
func (o *Orchestrator) Stop() controlendpoint.Notification {
	if o.state != playlist.Stopped {
		if err := o.link.Stop(); err != nil {
			o.log.Error("orchestrator: stop failed", "error", err)
		}
		o.state, _ = playlist.Transition(o.state, playlist.TriggerStop)
		o.currentTrack = ""
	}
	return o.notify(ipc.TypeStop)
}

// Next implements controlendpoint.Handler. Ignores repeat_one/consume —
// those govern natural track-end only; an explicit Next
// always moves forward, wrapping under repeat_all.
func (o *Orchestrator) Next() controlendpoint.Notification {
	_ = o.link.Stop()
	if o.advanceCursorForSkip() {
		o.startTrack()
	} else {
		o.stopForNoMoreTracks()
	}
	return o.notify(ipc.TypeNext)
}

// Prev implements controlendpoint.Handler.
func (o *Orchestrator) Prev() controlendpoint.Notification {
	_ = o.link.Stop()
	if o.state == playlist.Stopped {
		_ = o.list.SetCursor(0)
	} else {
		o.list.Retreat()
	}
	o.startTrack()
	return o.notify(ipc.TypePrev)
}

// Jump implements controlendpoint.Handler.
func (o *Orchestrator) Jump(target string) (controlendpoint.Notification, error) {
	idx := o.list.Find(target)
	if idx < 0 {
		return controlendpoint.Notification{}, fmt.Errorf("orchestrator: jump target not found: %s", target)
	}
	_ = o.link.Stop()
	_ = o.list.SetCursor(idx)
	o.startTrack()
	return o.notify(ipc.TypeJump), nil
}

// Seek implements controlendpoint.Handler, forwarding to the worker and
// blocking this turn for its position reply.
func (o *Orchestrator) Seek(req controlendpoint.SeekRequest) (controlendpoint.PositionReply, error) {
	pos, err := o.link.Seek(req.Position, req.Relative, req.Percent)
	if err != nil {
		return controlendpoint.PositionReply{}, fmt.Errorf("orchestrator: seek: %w", err)
	}
	o.position = pos
	return controlendpoint.PositionReply{Position: pos}, nil
}

// Mode implements controlendpoint.Handler.
func (o *Orchestrator) Mode(req playlist.ModeRequest) controlendpoint.Notification {
	o.modes.Merge(req)
	return o.notify(ipc.TypeMode)
}

// Flush implements controlendpoint.Handler. Truncation past the cursor
// forces Stop per the playlist's own invariant.
func (o *Orchestrator) Flush() controlendpoint.Notification {
	o.list.Truncate(o.list.Cursor())
	if o.state != playlist.Stopped {
		_ = o.link.Stop()
		o.state, _ = playlist.Transition(o.state, playlist.TriggerStop)
		o.currentTrack = ""
	}
	return o.notify(ipc.TypeCommit)
}

// Show implements controlendpoint.Handler.
func (o *Orchestrator) Show() []string {
	return o.list.Entries()
}

// Status implements controlendpoint.Handler.
func (o *Orchestrator) Status() controlendpoint.StatusReply {
	return controlendpoint.StatusReply{
		Track:    o.currentTrack,
		Position: o.position,
		Duration: o.duration,
		State:    o.state,
		Modes:    o.modes,
	}
}

// Begin implements controlendpoint.Handler.
func (o *Orchestrator) Begin(owner int) error {
	return o.tx.Begin(owner)
}

// Add implements controlendpoint.Handler. While a transaction is open,
// additions land in its scratch playlist and are not broadcast until
// Commit.
func (o *Orchestrator) Add(owner int, path string) (*controlendpoint.Notification, error) {
	if o.tx.Open() {
		if err := o.tx.Add(owner, path); err != nil {
			return nil, err
		}
		return nil, nil
	}
	o.list.Append(path)
	n := o.notify(ipc.TypeAdd)
	return &n, nil
}

// Commit implements controlendpoint.Handler.
func (o *Orchestrator) Commit(owner int, offset int64) (controlendpoint.Notification, error) {
	scratch, err := o.tx.Commit(owner)
	if err != nil {
		return controlendpoint.Notification{}, err
	}
	if offset < 0 {
		o.list.AppendAll(scratch)
	} else if err := o.list.ReplaceFrom(int(offset), scratch); err != nil {
		return controlendpoint.Notification{}, err
	}
	return o.notify(ipc.TypeCommit), nil
}

// Abort implements controlendpoint.Handler, called on connection close.
func (o *Orchestrator) Abort(owner int) {
	o.tx.AbortIfOwnedBy(owner)
}
