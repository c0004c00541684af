package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// parseFDs extracts file descriptors carried in a control-message buffer
// produced by recvmsg.
func parseFDs(oob []byte) ([]int, error) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("ipc: parse control message: %w", err)
	}
	var fds []int
	for _, cmsg := range cmsgs {
		got, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		fds = append(fds, got...)
	}
	return fds, nil
}

// setCloexec marks fd CLOEXEC immediately after it is accepted from a
// peer, so it is never leaked across a later exec in this process.
func setCloexec(fd int) {
	unix.CloseOnExec(fd)
}

// NewSocketpair creates a connected pair of SOCK_STREAM Unix-domain
// sockets, wrapped as *Conn, for the main-process <-> player-worker
// control channel.
func NewSocketpair() (*Conn, *Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}
	a, err := fdToConn(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := fdToConn(fds[1])
	if err != nil {
		a.Close()
		unix.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}

// NewConnFromFD wraps an already-open, already-connected Unix-domain
// socket fd as a *Conn. Used by the player-worker process to adopt the
// control socketpair half it inherited across exec via ExtraFiles.
func NewConnFromFD(fd int) (*Conn, error) {
	return fdToConn(fd)
}

func fdToConn(fd int) (*Conn, error) {
	f := os.NewFile(uintptr(fd), "socketpair")
	defer f.Close() // net.FileConn dups the descriptor; the original is ours to close
	nc, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("ipc: FileConn: %w", err)
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		nc.Close()
		return nil, fmt.Errorf("ipc: not a unix conn")
	}
	return NewConn(uc), nil
}
