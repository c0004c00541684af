package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/workerproto"
)

// PlayerLink is the main process's side of the player-control socketpair.
// It carries exactly the five control messages the worker understands:
// Play with an attached fd, Pause, Resume, Stop, and Seek.
type PlayerLink interface {
	Play(f *os.File) error
	Pause() error
	Resume() error
	Stop() error
	Seek(position int64, relative, percent bool) (int64, error)
}

// IPCPlayerLink is the real PlayerLink, driving one end of an
// internal/ipc socketpair connection to the player-worker process. It
// also owns that connection's event-loop registration and delivers
// decoded worker events to whatever onEvent is set to, so a restarted
// worker's fresh connection can be adopted in place via Rebind without
// the orchestrator's held PlayerLink ever changing identity.
type IPCPlayerLink struct {
	log  *slog.Logger
	loop *eventcore.Loop
	conn *ipc.Conn
	fd   int

	onEvent func(workerproto.Event)
}

// NewIPCPlayerLink wraps main's end of a socketpair already connected to
// the player-worker process and registers it for readability on loop.
func NewIPCPlayerLink(log *slog.Logger, loop *eventcore.Loop, conn *ipc.Conn) (*IPCPlayerLink, error) {
	l := &IPCPlayerLink{log: log, loop: loop}
	if err := l.bind(conn); err != nil {
		return nil, err
	}
	return l, nil
}

// OnEvent sets the callback invoked for every workerproto.Event read off
// the link. Typically orchestrator.HandleWorkerEvent, wired after both
// the link and the Orchestrator exist.
func (l *IPCPlayerLink) OnEvent(fn func(workerproto.Event)) {
	l.onEvent = fn
}

// Rebind swaps the underlying connection, as after the player-worker
// subprocess is restarted and handed a fresh socketpair. The previous
// connection is already dead by the time a restart happens, so it is
// unregistered and closed here rather than left for the caller.
func (l *IPCPlayerLink) Rebind(conn *ipc.Conn) error {
	if l.conn != nil {
		_ = l.loop.Unregister(l.fd)
		_ = l.conn.Close()
	}
	return l.bind(conn)
}

func (l *IPCPlayerLink) bind(conn *ipc.Conn) error {
	fd, err := conn.Fd()
	if err != nil {
		return fmt.Errorf("orchestrator: player link fd: %w", err)
	}
	if err := l.loop.Register(fd, eventcore.Readable, l.handleReadable); err != nil {
		return fmt.Errorf("orchestrator: register player link: %w", err)
	}
	l.conn = conn
	l.fd = fd
	return nil
}

// Close unregisters the link and closes its connection.
func (l *IPCPlayerLink) Close() error {
	_ = l.loop.Unregister(l.fd)
	return l.conn.Close()
}

// handleReadable drains every complete frame currently buffered on the
// link, decoding and forwarding TypeWorkerEvent payloads. Seek's own
// blocking ReadOne loop (below) may already have consumed the reply it
// was waiting for by the time this runs; DecodeEvent errors are logged
// and skipped rather than treated as fatal, since a single malformed
// frame shouldn't take down the whole link.
func (l *IPCPlayerLink) handleReadable(fd int, ready eventcore.Interest) {
	for {
		msg, ok, err := l.conn.ReadOne()
		if err != nil {
			l.log.Error("orchestrator: read player link", "error", err)
			return
		}
		if !ok {
			return
		}
		if msg.Type != ipc.TypeWorkerEvent {
			continue
		}
		ev, err := workerproto.DecodeEvent(msg.Payload)
		if err != nil {
			l.log.Error("orchestrator: decode worker event", "error", err)
			continue
		}
		if l.onEvent != nil {
			l.onEvent(ev)
		}
	}
}

// Play hands the opened track fd to the worker. Ownership of f passes to
// the connection, which closes it once it has been sent (or when the
// connection is closed); a later Close by the caller only returns an
// already-closed error.
func (l *IPCPlayerLink) Play(f *os.File) error {
	if err := l.conn.Compose(ipc.TypeWorkerPlay, 0, 0, f, nil); err != nil {
		return err
	}
	return l.drain()
}

// Pause sends a Pause control message.
func (l *IPCPlayerLink) Pause() error { return l.send(ipc.TypeWorkerPause) }

// Resume sends a Resume control message.
func (l *IPCPlayerLink) Resume() error { return l.send(ipc.TypeWorkerResume) }

// Stop sends a Stop control message.
func (l *IPCPlayerLink) Stop() error { return l.send(ipc.TypeWorkerStop) }

func (l *IPCPlayerLink) send(typ ipc.Type) error {
	if err := l.conn.Compose(typ, 0, 0, nil, nil); err != nil {
		return err
	}
	return l.drain()
}

func (l *IPCPlayerLink) drain() error {
	for {
		p := l.conn.Flush()
		if p.Closed {
			return fmt.Errorf("orchestrator: player link closed")
		}
		if !p.WouldBlock {
			return nil
		}
	}
}

// seekReplyTimeout bounds how long Seek blocks this event-loop turn
// waiting on the worker's position reply.
const seekReplyTimeout = 2 * time.Second

// Seek sends a Seek control message and blocks for the worker's
// position reply. This is the one place the orchestrator's otherwise
// non-blocking turn waits synchronously; the socketpair is local and
// the worker answers promptly, so the tradeoff favors a simple dispatch
// handler over threading a pending-reply map through the control
// endpoint.
func (l *IPCPlayerLink) Seek(position int64, relative, percent bool) (int64, error) {
	payload := workerproto.EncodeSeek(workerproto.SeekRequest{Position: position, Relative: relative, Percent: percent})
	if err := l.conn.Compose(ipc.TypeWorkerSeek, 0, 0, nil, payload); err != nil {
		return 0, err
	}
	if err := l.drain(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(seekReplyTimeout)
	for time.Now().Before(deadline) {
		msg, ok, err := l.conn.ReadOne()
		if err != nil {
			return 0, err
		}
		if ok && msg.Type == ipc.TypeWorkerEvent {
			ev, err := workerproto.DecodeEvent(msg.Payload)
			if err != nil {
				return 0, err
			}
			return ev.Position, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return 0, fmt.Errorf("orchestrator: seek: no reply from worker within %s", seekReplyTimeout)
}
