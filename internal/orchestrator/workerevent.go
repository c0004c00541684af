package orchestrator

import (
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/workerproto"
)

// HandleWorkerEvent processes one event read off the player link,
// called from the event loop when that fd becomes readable. Position
// updates are relayed to monitors; track-end outcomes drive the
// playlist advancement rule below.
func (o *Orchestrator) HandleWorkerEvent(ev workerproto.Event) {
	o.position = ev.Position
	if ev.Duration > 0 {
		o.duration = ev.Duration
	}

	switch ev.Kind {
	case workerproto.PositionUpdate:
		o.emit(ipc.TypeMonitorEvent)

	case workerproto.TrackEnd:
		switch ev.Outcome {
		case workerproto.Stopped:
			// The command that caused this (Stop/Next/Prev/Jump) already
			// transitioned state and broadcast; nothing further to do.
		case workerproto.Error:
			o.log.Warn("orchestrator: track ended with error", "path", o.currentTrack, "message", ev.Message)
			o.advanceAfterTrackEnd()
		case workerproto.Finished:
			o.advanceAfterTrackEnd()
		}
	}
}

// advanceAfterTrackEnd implements the playlist advancement rule for a
// track that ran to completion on its own.
func (o *Orchestrator) advanceAfterTrackEnd() {
	switch {
	case o.modes.Consume:
		o.list.RemoveCurrent()
		if o.list.Cursor() == -1 {
			o.stopForNoMoreTracks()
			return
		}
		o.startTrack()
		o.emit(ipc.TypeNext)

	case o.modes.RepeatOne:
		o.startTrack()
		o.emit(ipc.TypeNext)

	default:
		if o.advanceCursorForSkip() {
			o.startTrack()
			o.emit(ipc.TypeNext)
			return
		}
		o.stopForNoMoreTracks()
	}
}
