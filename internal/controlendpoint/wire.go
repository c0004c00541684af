package controlendpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/playlist"
)

// Payload layouts are fixed per frame type; none of them are versioned
// because the type enum itself is a closed set.

func encodeJump(target string) []byte {
	buf := make([]byte, len(target)+1)
	ipc.PutString(buf, 0, target)
	return buf
}

func decodeJump(payload []byte) (string, error) {
	target, _, err := ipc.GetString(payload, 0)
	if err != nil {
		return "", fmt.Errorf("controlendpoint: decode Jump: %w", err)
	}
	return target, nil
}

func encodeSeek(req SeekRequest) []byte {
	buf := make([]byte, 8+1+1)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(req.Position))
	if req.Relative {
		buf[8] = 1
	}
	if req.Percent {
		buf[9] = 1
	}
	return buf
}

func decodeSeek(payload []byte) (SeekRequest, error) {
	if len(payload) < 10 {
		return SeekRequest{}, fmt.Errorf("controlendpoint: short Seek payload: %d bytes", len(payload))
	}
	return SeekRequest{
		Position: int64(binary.LittleEndian.Uint64(payload[0:8])),
		Relative: payload[8] != 0,
		Percent:  payload[9] != 0,
	}, nil
}

func encodePositionReply(r PositionReply) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(r.Position))
	return buf
}

func encodeMode(req playlist.ModeRequest) []byte {
	return []byte{byte(req.RepeatOne), byte(req.RepeatAll), byte(req.Consume)}
}

func decodeMode(payload []byte) (playlist.ModeRequest, error) {
	if len(payload) < 3 {
		return playlist.ModeRequest{}, fmt.Errorf("controlendpoint: short Mode payload: %d bytes", len(payload))
	}
	return playlist.ModeRequest{
		RepeatOne: playlist.TriState(payload[0]),
		RepeatAll: playlist.TriState(payload[1]),
		Consume:   playlist.TriState(payload[2]),
	}, nil
}

func encodeAdd(path string) []byte {
	buf := make([]byte, len(path)+1)
	ipc.PutString(buf, 0, path)
	return buf
}

func decodeAdd(payload []byte) (string, error) {
	path, _, err := ipc.GetString(payload, 0)
	if err != nil {
		return "", fmt.Errorf("controlendpoint: decode Add: %w", err)
	}
	return path, nil
}

func encodeCommit(offset int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(offset))
	return buf
}

func decodeCommit(payload []byte) (int64, error) {
	if len(payload) < 8 {
		return 0, fmt.Errorf("controlendpoint: short Commit payload: %d bytes", len(payload))
	}
	return int64(binary.LittleEndian.Uint64(payload[0:8])), nil
}

func encodePlaylistEntry(path string) []byte {
	buf := make([]byte, len(path)+1)
	ipc.PutString(buf, 0, path)
	return buf
}

func encodeStatus(s StatusReply) []byte {
	buf := make([]byte, len(s.Track)+1+8+8+1+3)
	off := ipc.PutString(buf, 0, s.Track)
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(s.Position))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(s.Duration))
	off += 8
	buf[off] = byte(s.State)
	off++
	buf[off] = boolByte(s.Modes.RepeatOne)
	buf[off+1] = boolByte(s.Modes.RepeatAll)
	buf[off+2] = boolByte(s.Modes.Consume)
	return buf
}

func encodeMonitorEvent(n Notification) []byte {
	buf := make([]byte, 2+8+8+3)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(n.Event))
	binary.LittleEndian.PutUint64(buf[2:10], uint64(n.Position))
	binary.LittleEndian.PutUint64(buf[10:18], uint64(n.Duration))
	buf[18] = boolByte(n.Modes.RepeatOne)
	buf[19] = boolByte(n.Modes.RepeatAll)
	buf[20] = boolByte(n.Modes.Consume)
	return buf
}

func encodeError(msg string) []byte {
	buf := make([]byte, len(msg)+1)
	ipc.PutString(buf, 0, msg)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
