// Package workerproto defines the payload layouts carried over the
// main-process <-> player-worker socketpair, shared by internal/
// orchestrator (the sender/consumer on main's side) and internal/player
// (the sender/consumer on the worker's side) so both agree on one wire
// format without either importing the other.
package workerproto

import (
	"encoding/binary"
	"fmt"

	"github.com/drgolem/soundd/internal/ipc"
)

// EventKind distinguishes a periodic position tick from a track's
// terminal outcome.
type EventKind uint8

const (
	PositionUpdate EventKind = iota
	TrackEnd
)

// Outcome is the closed set of ways a Play(fd) can end.
type Outcome uint8

const (
	Finished Outcome = iota
	Stopped
	Error
)

// Event is the decoded payload of a TypeWorkerEvent frame.
type Event struct {
	Kind     EventKind
	Outcome  Outcome // meaningful only when Kind == TrackEnd
	Position int64
	Duration int64
	Message  string // populated when Outcome == Error
}

// EncodeEvent lays out: kind(1) outcome(1) position(8) duration(8)
// message(NUL-terminated).
func EncodeEvent(ev Event) []byte {
	buf := make([]byte, 18+len(ev.Message)+1)
	buf[0] = byte(ev.Kind)
	buf[1] = byte(ev.Outcome)
	binary.LittleEndian.PutUint64(buf[2:10], uint64(ev.Position))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(ev.Duration))
	ipc.PutString(buf, 18, ev.Message)
	return buf
}

// DecodeEvent parses a payload produced by EncodeEvent.
func DecodeEvent(payload []byte) (Event, error) {
	if len(payload) < 18 {
		return Event{}, fmt.Errorf("workerproto: short event payload: %d bytes", len(payload))
	}
	ev := Event{
		Kind:     EventKind(payload[0]),
		Outcome:  Outcome(payload[1]),
		Position: int64(binary.LittleEndian.Uint64(payload[2:10])),
		Duration: int64(binary.LittleEndian.Uint64(payload[10:18])),
	}
	if len(payload) > 18 {
		if msg, _, err := ipc.GetString(payload, 18); err == nil {
			ev.Message = msg
		}
	}
	return ev, nil
}

// SeekRequest is the decoded payload of a TypeWorkerSeek frame.
type SeekRequest struct {
	Position int64
	Relative bool
	Percent  bool
}

// EncodeSeek lays out: position(8) relative(1) percent(1).
func EncodeSeek(req SeekRequest) []byte {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(req.Position))
	if req.Relative {
		buf[8] = 1
	}
	if req.Percent {
		buf[9] = 1
	}
	return buf
}

// DecodeSeek parses a payload produced by EncodeSeek.
func DecodeSeek(payload []byte) (SeekRequest, error) {
	if len(payload) < 10 {
		return SeekRequest{}, fmt.Errorf("workerproto: short seek payload: %d bytes", len(payload))
	}
	return SeekRequest{
		Position: int64(binary.LittleEndian.Uint64(payload[0:8])),
		Relative: payload[8] != 0,
		Percent:  payload[9] != 0,
	}, nil
}
