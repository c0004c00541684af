package controlendpoint

import (
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/playlist"
	"github.com/drgolem/soundd/internal/transaction"
)

type fakeHandler struct {
	playCalls int
	aborted   []int
	begun     map[int]bool
	added     map[int][]string
	locked    bool
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{begun: make(map[int]bool), added: make(map[int][]string)}
}

func (f *fakeHandler) Play() Notification        { f.playCalls++; return Notification{Event: ipc.TypePlay} }
func (f *fakeHandler) TogglePlay() Notification   { return Notification{Event: ipc.TypeTogglePlay} }
func (f *fakeHandler) Pause() Notification        { return Notification{Event: ipc.TypePause} }
func (f *fakeHandler) Stop() Notification         { return Notification{Event: ipc.TypeStop} }
func (f *fakeHandler) Next() Notification         { return Notification{Event: ipc.TypeNext} }
func (f *fakeHandler) Prev() Notification         { return Notification{Event: ipc.TypePrev} }

func (f *fakeHandler) Jump(target string) (Notification, error) {
	return Notification{Event: ipc.TypeJump}, nil
}

func (f *fakeHandler) Seek(req SeekRequest) (PositionReply, error) {
	return PositionReply{Position: req.Position}, nil
}

func (f *fakeHandler) Mode(req playlist.ModeRequest) Notification {
	return Notification{Event: ipc.TypeMode}
}

func (f *fakeHandler) Flush() Notification { return Notification{Event: ipc.TypeFlush} }

func (f *fakeHandler) Show() []string { return []string{"/a.flac", "/b.flac"} }

func (f *fakeHandler) Status() StatusReply {
	return StatusReply{Track: "/a.flac", Position: 5, Duration: 120, State: playlist.Playing}
}

func (f *fakeHandler) Begin(owner int) error {
	if f.locked {
		return transaction.ErrLocked
	}
	f.begun[owner] = true
	return nil
}

func (f *fakeHandler) Add(owner int, path string) (*Notification, error) {
	f.added[owner] = append(f.added[owner], path)
	n := Notification{Event: ipc.TypeAdd}
	return &n, nil
}

func (f *fakeHandler) Commit(owner int, offset int64) (Notification, error) {
	return Notification{Event: ipc.TypeCommit}, nil
}

func (f *fakeHandler) Abort(owner int) { f.aborted = append(f.aborted, owner) }

func newTestEndpoint(t *testing.T, h Handler) (*Endpoint, *connection, *ipc.Conn) {
	t.Helper()
	loop, err := eventcore.New()
	if err != nil {
		t.Fatalf("eventcore.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	serverSide, clientSide, err := ipc.NewSocketpair()
	if err != nil {
		t.Fatalf("NewSocketpair: %v", err)
	}
	t.Cleanup(func() { clientSide.Close() })

	fd, err := serverSide.Fd()
	if err != nil {
		t.Fatalf("Fd: %v", err)
	}
	if err := loop.Register(fd, eventcore.Readable, func(int, eventcore.Interest) {}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e := &Endpoint{
		log:     slog.Default(),
		loop:    loop,
		handler: h,
		conns:   make(map[int]*connection),
	}
	rec := &connection{fd: fd, conn: serverSide}
	e.conns[fd] = rec

	return e, rec, clientSide
}

func TestDispatchPlayBroadcastsToMonitors(t *testing.T) {
	h := newFakeHandler()
	e, rec, client := newTestEndpoint(t, h)
	rec.monitor = true

	e.dispatch(rec.fd, rec, &ipc.Message{Type: ipc.TypePlay})

	if h.playCalls != 1 {
		t.Fatalf("Play called %d times, want 1", h.playCalls)
	}

	msg := waitForFrame(t, client)
	if msg.Type != ipc.TypeMonitorEvent {
		t.Fatalf("got frame type %v, want TypeMonitorEvent", msg.Type)
	}
	gotEvent := ipc.Type(binary.LittleEndian.Uint16(msg.Payload[0:2]))
	if gotEvent != ipc.TypePlay {
		t.Fatalf("monitor event = %v, want TypePlay", gotEvent)
	}
}

func TestDispatchStatusReplies(t *testing.T) {
	h := newFakeHandler()
	e, rec, client := newTestEndpoint(t, h)

	e.dispatch(rec.fd, rec, &ipc.Message{Type: ipc.TypeStatus})

	msg := waitForFrame(t, client)
	if msg.Type != ipc.TypeStatusReply {
		t.Fatalf("got frame type %v, want TypeStatusReply", msg.Type)
	}
}

func TestDispatchShowTerminatesWithEmptyFrame(t *testing.T) {
	h := newFakeHandler()
	e, rec, client := newTestEndpoint(t, h)

	e.dispatch(rec.fd, rec, &ipc.Message{Type: ipc.TypeShow})

	first := waitForFrame(t, client)
	if first.Type != ipc.TypePlaylistEntry || len(first.Payload) == 0 {
		t.Fatalf("expected first non-empty PlaylistEntry frame, got %+v", first)
	}
	second := waitForFrame(t, client)
	if second.Type != ipc.TypePlaylistEntry || len(second.Payload) == 0 {
		t.Fatalf("expected second non-empty PlaylistEntry frame, got %+v", second)
	}
	term := waitForFrame(t, client)
	if term.Type != ipc.TypePlaylistEntry || len(term.Payload) != 0 {
		t.Fatalf("expected terminating empty frame, got %+v", term)
	}
}

func TestDispatchAddWithoutTransactionBroadcasts(t *testing.T) {
	h := newFakeHandler()
	e, rec, client := newTestEndpoint(t, h)
	rec.monitor = true

	payload := encodeAdd("/new.flac")
	e.dispatch(rec.fd, rec, &ipc.Message{Type: ipc.TypeAdd, Payload: payload})

	if got := h.added[rec.fd]; len(got) != 1 || got[0] != "/new.flac" {
		t.Fatalf("added = %v, want [/new.flac]", got)
	}

	msg := waitForFrame(t, client)
	if msg.Type != ipc.TypeMonitorEvent {
		t.Fatalf("got frame type %v, want TypeMonitorEvent", msg.Type)
	}
}

func TestCloseConnectionAbortsOwnedTransaction(t *testing.T) {
	h := newFakeHandler()
	e, rec, _ := newTestEndpoint(t, h)

	e.closeConnection(rec.fd, rec)

	if len(h.aborted) != 1 || h.aborted[0] != rec.fd {
		t.Fatalf("aborted = %v, want [%d]", h.aborted, rec.fd)
	}
	if _, stillPresent := e.conns[rec.fd]; stillPresent {
		t.Fatalf("connection should be removed from the table after close")
	}
}

func waitForFrame(t *testing.T, c *ipc.Conn) *ipc.Message {
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
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for frame")
	return nil
}
