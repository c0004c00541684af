package controlendpoint

import "github.com/drgolem/soundd/internal/ipc"

// connection records one accepted client: its fd, its framed
// input/output buffers (held inside ipc.Conn), a monitor flag, and the
// peer pid/uid captured at accept time.
type connection struct {
	fd      int
	conn    *ipc.Conn
	monitor bool
	peerPID int32
	peerUID uint32
}
