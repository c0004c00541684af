// Package ipc implements the length-delimited framing protocol shared by
// the control endpoint, the main orchestrator, and the player worker.
package ipc

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Type is the closed set of frame types carried by the framing protocol.
type Type uint16

const (
	TypeUnknown Type = iota

	// Client-originated commands.
	TypePlay
	TypePause
	TypeStop
	TypeNext
	TypePrev
	TypeJump
	TypeMode
	TypeFlush
	TypeCommit
	TypeBegin
	TypeAdd
	TypeSeek
	TypeMonitor
	TypeStatus
	TypeShow
	TypeTogglePlay

	// Server-originated responses and events.
	TypeError
	TypePlaylistEntry
	TypeStatusReply
	TypeMonitorEvent
	TypeBeginAck
	TypeCommitAck
	TypeSeekReply

	// Main <-> player worker control messages (reuse the same header).
	TypeWorkerPlay
	TypeWorkerPause
	TypeWorkerResume
	TypeWorkerStop
	TypeWorkerSeek
	TypeWorkerEvent
)

// maxPayload bounds a single frame's payload. Frames advertising a larger
// payload are treated as corrupt and terminate the connection.
const maxPayload = 1 << 20

// headerSize is the fixed, tightly packed, little-endian frame header:
//
//	type     uint16
//	pid      int32
//	uid      uint32
//	hasFD    uint8
//	_pad     uint8   (reserved, always zero)
//	payload  uint32  (length of the trailing payload)
const headerSize = 2 + 4 + 4 + 1 + 1 + 4

// Message is one decoded frame. FD is nil unless HasFD is true, in which
// case the caller takes ownership of the descriptor the moment ReadOne
// returns it.
type Message struct {
	Type    Type
	PID     int32
	UID     uint32
	HasFD   bool
	Payload []byte
	FD      *os.File
}

// marshalHeader writes the packed header for a frame carrying payload of
// length payloadLen and returns it as a standalone slice.
func marshalHeader(typ Type, pid int32, uid uint32, hasFD bool, payloadLen int) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(typ))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(pid))
	binary.LittleEndian.PutUint32(buf[6:10], uid)
	if hasFD {
		buf[10] = 1
	}
	binary.LittleEndian.PutUint32(buf[12:16], uint32(payloadLen))
	return buf
}

// unmarshalHeader parses a headerSize-byte header.
func unmarshalHeader(buf []byte) (typ Type, pid int32, uid uint32, hasFD bool, payloadLen int, err error) {
	if len(buf) < headerSize {
		return 0, 0, 0, false, 0, fmt.Errorf("ipc: short header: %d bytes", len(buf))
	}
	typ = Type(binary.LittleEndian.Uint16(buf[0:2]))
	pid = int32(binary.LittleEndian.Uint32(buf[2:6]))
	uid = binary.LittleEndian.Uint32(buf[6:10])
	hasFD = buf[10] != 0
	payloadLen = int(binary.LittleEndian.Uint32(buf[12:16]))
	if payloadLen < 0 || payloadLen > maxPayload {
		return 0, 0, 0, false, 0, fmt.Errorf("ipc: frame payload %d exceeds limit %d", payloadLen, maxPayload)
	}
	return typ, pid, uid, hasFD, payloadLen, nil
}

// PutString writes a NUL-terminated string into dst at offset off and
// returns the offset just past the terminator.
func PutString(dst []byte, off int, s string) int {
	n := copy(dst[off:], s)
	dst[off+n] = 0
	return off + n + 1
}

// GetString reads a NUL-terminated string starting at offset off, returning
// the string and the offset just past the terminator.
func GetString(src []byte, off int) (string, int, error) {
	for i := off; i < len(src); i++ {
		if src[i] == 0 {
			return string(src[off:i]), i + 1, nil
		}
	}
	return "", off, fmt.Errorf("ipc: unterminated string in payload")
}
