// Package workerspawn creates the control socketpair for a player-worker
// subprocess and re-execs the current binary with the worker's half
// inherited across exec via ExtraFiles, the standard fd-handoff pattern
// for privilege-separated Unix daemons.
package workerspawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/drgolem/soundd/internal/ipc"
)

// RoleArg is the argv[1] the re-exec'd child checks for to take the
// player-worker code path instead of the normal serve command.
const RoleArg = "internal-worker"

// FDEnv names the environment variable carrying the inherited control
// socket's fd number inside the child. ExtraFiles always lands its
// first entry at fd 3 (0, 1, 2 are stdin/stdout/stderr), but the child
// reads this rather than hardcoding 3 so the convention lives in one
// place.
const FDEnv = "SOUNDD_WORKER_FD"

// New creates a connected SOCK_STREAM socketpair for a player-worker
// instance: mainConn is wrapped for the orchestrator's side, workerFile
// is the raw *os.File handed to Spawn for the child's side. Callers
// must close workerFile once Spawn has started the child (the child's
// exec dups it; the parent's copy is no longer needed).
func New() (mainConn *ipc.Conn, workerFile *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("workerspawn: socketpair: %w", err)
	}
	mainConn, err = ipc.NewConnFromFD(fds[0])
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}
	workerFile = os.NewFile(uintptr(fds[1]), "player-worker-control")
	return mainConn, workerFile, nil
}

// Spawn re-execs exePath as the player-worker, passing workerFile as
// the first (and only) ExtraFile and signaling both the re-exec role
// and the inherited fd number through argv/env. extraEnv is appended
// on top, letting the caller forward anything the worker needs that
// isn't already in its own environment (e.g. a resolved audio device
// index). The caller closes workerFile once this returns, whether or
// not it errors.
func Spawn(ctx context.Context, exePath string, workerFile *os.File, extraEnv ...string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, exePath, RoleArg)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{workerFile}
	cmd.Env = append(append(os.Environ(), fmt.Sprintf("%s=3", FDEnv)), extraEnv...)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("workerspawn: start %s: %w", exePath, err)
	}
	return cmd, nil
}

// WorkerFD reads the inherited control socket's fd number out of FDEnv,
// called from the player-worker process after it has taken the RoleArg
// code path.
func WorkerFD() (int, error) {
	v := os.Getenv(FDEnv)
	if v == "" {
		return 0, fmt.Errorf("workerspawn: %s not set", FDEnv)
	}
	var fd int
	if _, err := fmt.Sscanf(v, "%d", &fd); err != nil {
		return 0, fmt.Errorf("workerspawn: parse %s=%q: %w", FDEnv, v, err)
	}
	return fd, nil
}
