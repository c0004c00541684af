// Package controlendpoint implements the client-facing control socket:
// accept loop, connection table, frame dispatch, and broadcast to
// monitors. It owns no playback state itself; every command
// is forwarded to a Handler (internal/orchestrator) that owns the
// playlist, play-state, modes and transaction.
package controlendpoint

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"golang.org/x/sys/unix"
)

// Endpoint is the control socket's accept loop and connection table.
//
// net.ListenUnix does not expose listen(2)'s backlog argument, so the
// listener gets Go's default backlog (the system's somaxconn); it is not
// limited to a small fixed value such as 5.
type Endpoint struct {
	log      *slog.Logger
	loop     *eventcore.Loop
	handler  Handler
	socketPath string

	listener *net.UnixListener
	listenFD int

	conns map[int]*connection
}

// New opens the control socket at socketPath, unlinking any stale entry
// first and applying the socket's permission/umask policy, then
// registers the listener for accept events on loop.
func New(log *slog.Logger, loop *eventcore.Loop, handler Handler, socketPath string) (*Endpoint, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("controlendpoint: unlink stale socket: %w", err)
	}

	// Strip world and execute bits so the socket is created at 0660
	// regardless of the process umask.
	oldMask := syscall.Umask(0117)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: socketPath, Net: "unix"})
	syscall.Umask(oldMask)
	if err != nil {
		return nil, fmt.Errorf("controlendpoint: listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlendpoint: chmod %s: %w", socketPath, err)
	}

	lfd, err := listenerFD(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}

	e := &Endpoint{
		log:        log,
		loop:       loop,
		handler:    handler,
		socketPath: socketPath,
		listener:   ln,
		listenFD:   lfd,
		conns:      make(map[int]*connection),
	}

	if err := loop.Register(lfd, eventcore.Readable, e.handleListener); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlendpoint: register listener: %w", err)
	}
	return e, nil
}

// Close flushes each live connection's pending output (all connections
// share one 2-second deadline), closes every connection and unlinks the
// socket, used during graceful shutdown.
func (e *Endpoint) Close() error {
	deadline := time.Now().Add(2 * time.Second)
	for fd, c := range e.conns {
		for time.Now().Before(deadline) {
			p := c.conn.Flush()
			if p.Closed || !p.WouldBlock {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		e.closeConnection(fd, c)
	}
	err := e.listener.Close()
	os.Remove(e.socketPath)
	return err
}

func listenerFD(ln *net.UnixListener) (int, error) {
	raw, err := ln.SyscallConn()
	if err != nil {
		return -1, fmt.Errorf("controlendpoint: SyscallConn: %w", err)
	}
	var fd int
	if ctrlErr := raw.Control(func(f uintptr) { fd = int(f) }); ctrlErr != nil {
		return -1, fmt.Errorf("controlendpoint: listener fd: %w", ctrlErr)
	}
	return fd, nil
}

// handleListener accepts as many pending connections as are ready. On
// EMFILE/ENFILE it detaches the listener from the event core and arms
// the 1-second reattach timer, the only backpressure
// mechanism against fd exhaustion.
func (e *Endpoint) handleListener(fd int, ready eventcore.Interest) {
	for {
		uc, err := e.listener.AcceptUnix()
		if err != nil {
			if isFDExhausted(err) {
				e.log.Warn("control socket: fd exhaustion on accept, pausing listener", "error", err)
				_ = e.loop.Detach(e.listenFD, eventcore.Readable)
				e.loop.ArmTimer(1*time.Second, e.reattachListener)
			}
			return
		}
		e.acceptConnection(uc)
	}
}

func (e *Endpoint) reattachListener() {
	if err := e.loop.Attach(e.listenFD, eventcore.Readable); err != nil {
		e.log.Error("control socket: failed to reattach listener", "error", err)
		e.loop.ArmTimer(1*time.Second, e.reattachListener)
	}
}

func isFDExhausted(err error) bool {
	return isErrno(err, syscall.EMFILE) || isErrno(err, syscall.ENFILE)
}

func isErrno(err error, target syscall.Errno) bool {
	type syscallErr interface{ Err() error }
	for err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return errno == target
		}
		if se, ok := err.(syscallErr); ok {
			err = se.Err()
			continue
		}
		type unwrapper interface{ Unwrap() error }
		if u, ok := err.(unwrapper); ok {
			err = u.Unwrap()
			continue
		}
		return false
	}
	return false
}

func (e *Endpoint) acceptConnection(uc *net.UnixConn) {
	conn := ipc.NewConn(uc)
	fd, err := conn.Fd()
	if err != nil {
		e.log.Error("control socket: failed to read accepted fd", "error", err)
		conn.Close()
		return
	}

	rec := &connection{fd: fd, conn: conn}
	if pid, uid, err := peerCredentials(fd); err == nil {
		rec.peerPID, rec.peerUID = pid, uid
	}
	e.conns[fd] = rec

	if err := e.loop.Register(fd, eventcore.Readable, e.handleConnection); err != nil {
		e.log.Error("control socket: register accepted connection", "error", err)
		e.closeConnection(fd, rec)
		return
	}
}

// handleConnection drains every currently available frame from one
// connection in a single atomic turn.
func (e *Endpoint) handleConnection(fd int, ready eventcore.Interest) {
	rec, ok := e.conns[fd]
	if !ok {
		return
	}

	if ready&eventcore.Writable != 0 {
		e.flushConnection(fd, rec)
		if _, stillOpen := e.conns[fd]; !stillOpen {
			return
		}
	}
	if ready&eventcore.Readable == 0 {
		return
	}

	for {
		msg, ok, err := rec.conn.ReadOne()
		if err != nil {
			e.closeConnection(fd, rec)
			return
		}
		if !ok {
			break
		}
		e.dispatch(fd, rec, msg)
		if _, stillOpen := e.conns[fd]; !stillOpen {
			return
		}
	}

	e.flushConnection(fd, rec)
}

func (e *Endpoint) flushConnection(fd int, rec *connection) {
	progress := rec.conn.Flush()
	if progress.Closed {
		e.closeConnection(fd, rec)
		return
	}
	interest := eventcore.Readable
	if progress.WouldBlock {
		interest |= eventcore.Writable
	}
	_ = e.loop.Modify(fd, interest)
}

// closeConnection detaches the connection from the event core, removes
// it from the table, and rolls back any transaction it owned.
func (e *Endpoint) closeConnection(fd int, rec *connection) {
	delete(e.conns, fd)
	_ = e.loop.Unregister(fd)
	rec.conn.Close()
	e.handler.Abort(fd)
}

// Broadcast enqueues one MonitorEvent frame on every connection with its
// monitor flag set. Exported so internal/orchestrator can push
// out-of-band notifications (track-end advancement, worker errors) that
// aren't the direct reply to a dispatched command.
func (e *Endpoint) Broadcast(n Notification) {
	e.broadcast(n)
}

func (e *Endpoint) broadcast(n Notification) {
	payload := encodeMonitorEvent(n)
	for fd, rec := range e.conns {
		if !rec.monitor {
			continue
		}
		if err := rec.conn.Compose(ipc.TypeMonitorEvent, rec.peerPID, rec.peerUID, nil, payload); err != nil {
			continue
		}
		e.flushConnection(fd, rec)
	}
}

// peerCredentials reads the accepted connection's peer pid/uid via
// SO_PEERCRED, captured once at accept time.
func peerCredentials(fd int) (pid int32, uid uint32, err error) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, err
	}
	return ucred.Pid, ucred.Uid, nil
}

func (e *Endpoint) reply(rec *connection, typ ipc.Type, payload []byte) {
	_ = rec.conn.Compose(typ, rec.peerPID, rec.peerUID, nil, payload)
}

func (e *Endpoint) replyError(rec *connection, msg string) {
	e.reply(rec, ipc.TypeError, encodeError(msg))
}
