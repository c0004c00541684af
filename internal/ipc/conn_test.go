package ipc

import (
	"os"
	"testing"
	"time"
)

func TestConnComposeFlushReadOne(t *testing.T) {
	a, b, err := NewSocketpair()
	if err != nil {
		t.Fatalf("NewSocketpair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	payload := []byte("hello")
	if err := a.Compose(TypeAdd, 99, 1000, nil, payload); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if prog := a.Flush(); prog.Closed {
		t.Fatalf("Flush reported closed")
	}

	msg := waitForMessage(t, b)
	if msg.Type != TypeAdd || msg.PID != 99 || string(msg.Payload) != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestConnFDPassing(t *testing.T) {
	a, b, err := NewSocketpair()
	if err != nil {
		t.Fatalf("NewSocketpair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	tmp, err := os.CreateTemp(t.TempDir(), "track-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := tmp.WriteString("pcm-data"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if err := a.Compose(TypeWorkerPlay, 1, 0, tmp, []byte("/track")); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if prog := a.Flush(); prog.Closed {
		t.Fatalf("Flush reported closed")
	}

	msg := waitForMessage(t, b)
	if !msg.HasFD || msg.FD == nil {
		t.Fatalf("expected fd in message, got %+v", msg)
	}
	defer msg.FD.Close()

	buf := make([]byte, 8)
	if _, err := msg.FD.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt on received fd: %v", err)
	}
	if string(buf) != "pcm-data" {
		t.Fatalf("got %q, want pcm-data", string(buf))
	}
}

func TestConnReadOnePartialFrame(t *testing.T) {
	a, b, err := NewSocketpair()
	if err != nil {
		t.Fatalf("NewSocketpair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	msg, ok, err := b.ReadOne()
	if err != nil {
		t.Fatalf("ReadOne: %v", err)
	}
	if ok || msg != nil {
		t.Fatalf("expected no frame yet, got %+v", msg)
	}
}

func waitForMessage(t *testing.T, c *Conn) *Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, ok, err := c.ReadOne()
		if err != nil {
			t.Fatalf("ReadOne: %v", err)
		}
		if ok {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for message")
	return nil
}
