package workerspawn

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/drgolem/soundd/internal/ipc"
)

func TestNewCreatesUsableSocketpair(t *testing.T) {
	mainConn, workerFile, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer mainConn.Close()
	defer workerFile.Close()

	peer, err := ipc.NewConnFromFD(int(workerFile.Fd()))
	if err != nil {
		t.Fatalf("NewConnFromFD: %v", err)
	}
	defer peer.Close()

	if err := mainConn.Compose(ipc.TypeWorkerPause, 0, 0, nil, nil); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if prog := mainConn.Flush(); prog.Closed {
		t.Fatalf("Flush: connection closed")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msg, ok, err := peer.ReadOne()
		if err != nil {
			t.Fatalf("ReadOne: %v", err)
		}
		if ok {
			if msg.Type != ipc.TypeWorkerPause {
				t.Fatalf("got %v, want TypeWorkerPause", msg.Type)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("never observed the composed frame on the peer side")
}

// TestSpawnWiresExtraFileAndEnv starts /bin/sh in place of a built
// soundd binary (none exists to exec from this test binary) and checks
// only the wiring Spawn is responsible for: the role argument, the
// inherited fd's env var, and that workerFile is the process's one
// ExtraFile. What the child does with fd 3 is player.go's concern, not
// this package's.
func TestSpawnWiresExtraFileAndEnv(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	_, workerFile, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer workerFile.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd, err := Spawn(ctx, "/bin/sh", workerFile)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer cmd.Process.Kill()

	if len(cmd.ExtraFiles) != 1 || cmd.ExtraFiles[0] != workerFile {
		t.Fatalf("ExtraFiles = %v, want [workerFile]", cmd.ExtraFiles)
	}
	if len(cmd.Args) < 2 || cmd.Args[1] != RoleArg {
		t.Fatalf("Args = %v, want [... %q]", cmd.Args, RoleArg)
	}
	wantEnv := FDEnv + "=3"
	var gotEnv bool
	for _, e := range cmd.Env {
		if e == wantEnv {
			gotEnv = true
			break
		}
	}
	if !gotEnv {
		t.Fatalf("Env missing %q", wantEnv)
	}
}
