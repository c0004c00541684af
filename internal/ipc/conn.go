package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Progress reports the outcome of a Flush call.
type Progress struct {
	Written    int
	WouldBlock bool
	Closed     bool
}

// Conn wraps one Unix-domain connection with a per-connection framed
// input/output buffer pair, matching the ConnectionRecord data model:
// the buffers, not Conn itself, are what the control endpoint and the
// player keep alive across event-loop turns.
type Conn struct {
	uc *net.UnixConn

	in  []byte // bytes read but not yet parsed into frames
	out []byte // bytes composed but not yet written to the socket

	rxFDs       []*os.File // fds received via SCM_RIGHTS, awaiting pickup by ReadOne
	pendingOutFD []*os.File // fds queued via Compose, awaiting their frame's bytes going out

	closed bool
}

// NewConn wraps an already-connected *net.UnixConn.
func NewConn(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// Close tears down the underlying socket. Idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for _, f := range c.rxFDs {
		f.Close()
	}
	for _, f := range c.pendingOutFD {
		f.Close()
	}
	return c.uc.Close()
}

// Fd returns the raw file descriptor, for event-core registration.
func (c *Conn) Fd() (int, error) {
	raw, err := c.uc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// Compose enqueues one frame on the output buffer. fd may be nil; if
// non-nil, ownership transfers to Conn, which closes it once it has been
// handed off via sendmsg (or on Close if it never goes out).
func (c *Conn) Compose(typ Type, pid int32, uid uint32, fd *os.File, payload []byte) error {
	if len(payload) > maxPayload {
		return fmt.Errorf("ipc: payload %d exceeds limit %d", len(payload), maxPayload)
	}
	hdr := marshalHeader(typ, pid, uid, fd != nil, len(payload))
	c.out = append(c.out, hdr...)
	c.out = append(c.out, payload...)
	if fd != nil {
		c.pendingOutFD = append(c.pendingOutFD, fd)
	}
	return nil
}

// parseOne attempts to parse a single frame out of c.in without touching
// the socket. ok is false if the buffer holds an incomplete frame.
func (c *Conn) parseOne() (msg *Message, ok bool, err error) {
	if len(c.in) < headerSize {
		return nil, false, nil
	}
	typ, pid, uid, hasFD, payloadLen, err := unmarshalHeader(c.in)
	if err != nil {
		return nil, false, err
	}
	total := headerSize + payloadLen
	if len(c.in) < total {
		return nil, false, nil
	}
	payload := make([]byte, payloadLen)
	copy(payload, c.in[headerSize:total])
	c.in = c.in[total:]

	m := &Message{Type: typ, PID: pid, UID: uid, HasFD: hasFD, Payload: payload}
	if hasFD {
		m.FD = c.takePendingRxFD()
	}
	return m, true, nil
}

// ReadOne does a non-destructive pull of one complete frame, reading more
// bytes (and, if a frame declares hasFD, one attached fd) off the socket
// as needed. It returns (nil, false, nil) when no complete frame is
// available yet without blocking.
func (c *Conn) ReadOne() (*Message, bool, error) {
	if m, ok, err := c.parseOne(); ok || err != nil {
		return m, ok, err
	}

	buf := make([]byte, 64*1024)
	oob := make([]byte, unix.CmsgSpace(4))

	rc, err := c.uc.SyscallConn()
	if err != nil {
		return nil, false, err
	}

	var n, oobn int
	var readErr error
	ctrlErr := rc.Read(func(fd uintptr) bool {
		n, oobn, _, _, readErr = unix.Recvmsg(int(fd), buf, oob, unix.MSG_DONTWAIT)
		return readErr != unix.EAGAIN
	})
	if ctrlErr != nil {
		return nil, false, ctrlErr
	}
	if readErr == unix.EAGAIN {
		return nil, false, nil
	}
	if readErr != nil {
		return nil, false, readErr
	}
	if n == 0 {
		return nil, false, fmt.Errorf("ipc: connection closed")
	}

	c.in = append(c.in, buf[:n]...)
	if oobn > 0 {
		if fds, ferr := parseFDs(oob[:oobn]); ferr == nil {
			for _, fd := range fds {
				setCloexec(fd)
				c.rxFDs = append(c.rxFDs, os.NewFile(uintptr(fd), "ipc-fd"))
			}
		}
	}

	return c.parseOne()
}

func (c *Conn) takePendingRxFD() *os.File {
	if len(c.rxFDs) == 0 {
		return nil
	}
	fd := c.rxFDs[0]
	c.rxFDs = c.rxFDs[1:]
	return fd
}

// Flush writes as much of the output buffer as the socket accepts without
// blocking, attaching any fd queued via Compose on the frame boundary it
// belongs to.
func (c *Conn) Flush() Progress {
	if len(c.out) == 0 {
		return Progress{}
	}

	rc, err := c.uc.SyscallConn()
	if err != nil {
		return Progress{Closed: true}
	}

	var oob []byte
	if len(c.pendingOutFD) > 0 {
		oob = unix.UnixRights(int(c.pendingOutFD[0].Fd()))
	}

	var n int
	var writeErr error
	ctrlErr := rc.Write(func(fd uintptr) bool {
		n, writeErr = unix.SendmsgN(int(fd), c.out, oob, nil, unix.MSG_DONTWAIT)
		return writeErr != unix.EAGAIN
	})
	if ctrlErr != nil || isClosedErr(writeErr) {
		return Progress{Closed: true}
	}
	if writeErr == unix.EAGAIN {
		return Progress{WouldBlock: true}
	}
	if writeErr != nil {
		return Progress{Closed: true}
	}

	if n > 0 && oob != nil {
		// The fd rode along with these bytes; it has now transited to the peer.
		c.pendingOutFD[0].Close()
		c.pendingOutFD = c.pendingOutFD[1:]
	}
	c.out = c.out[n:]
	return Progress{Written: n, WouldBlock: len(c.out) > 0}
}

func isClosedErr(err error) bool {
	return err != nil && (err == unix.EPIPE || err == unix.ECONNRESET || err == unix.EBADF)
}
