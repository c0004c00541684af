package orchestrator

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/drgolem/soundd/internal/playlist"
	"github.com/drgolem/soundd/internal/workerproto"
)

type fakeLink struct {
	plays    []string
	pauses   int
	resumes  int
	stops    int
	seekPos  int64
	seekErr  error
	playErr  error
}

func (f *fakeLink) Play(file *os.File) error {
	if f.playErr != nil {
		return f.playErr
	}
	f.plays = append(f.plays, file.Name())
	return nil
}
func (f *fakeLink) Pause() error  { f.pauses++; return nil }
func (f *fakeLink) Resume() error { f.resumes++; return nil }
func (f *fakeLink) Stop() error   { f.stops++; return nil }
func (f *fakeLink) Seek(position int64, relative, percent bool) (int64, error) {
	return f.seekPos, f.seekErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempTrack(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "track-*.flac")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestPlayFromStoppedStartsFirstTrack(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	track := tempTrack(t)
	o.Playlist().Append(track)

	n := o.Play()

	if len(link.plays) != 1 {
		t.Fatalf("plays = %v, want one play", link.plays)
	}
	if o.State() != playlist.Playing {
		t.Fatalf("state = %v, want Playing", o.State())
	}
	if n.Position != 0 || n.Duration != 0 {
		t.Fatalf("expected zero position/duration on a fresh Play, got %+v", n)
	}
}

func TestPlayWhilePlayingIsNoop(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Playlist().Append(tempTrack(t))
	o.Play()
	link.plays = nil

	o.Play()

	if len(link.plays) != 0 {
		t.Fatalf("expected no additional Play call, got %v", link.plays)
	}
}

func TestPauseOnlyWhilePlaying(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Pause()
	if link.pauses != 0 {
		t.Fatalf("Pause should be a no-op while Stopped")
	}

	o.Playlist().Append(tempTrack(t))
	o.Play()
	o.Pause()
	if link.pauses != 1 {
		t.Fatalf("pauses = %d, want 1", link.pauses)
	}
	if o.State() != playlist.Paused {
		t.Fatalf("state = %v, want Paused", o.State())
	}
}

func TestTogglePlayFlipsPlayingAndPaused(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Playlist().Append(tempTrack(t))

	o.TogglePlay()
	if o.State() != playlist.Playing {
		t.Fatalf("state = %v, want Playing", o.State())
	}
	o.TogglePlay()
	if o.State() != playlist.Paused {
		t.Fatalf("state = %v, want Paused", o.State())
	}
	if link.pauses != 1 {
		t.Fatalf("pauses = %d, want 1", link.pauses)
	}
	o.TogglePlay()
	if o.State() != playlist.Playing {
		t.Fatalf("state = %v, want Playing", o.State())
	}
	if link.resumes != 1 {
		t.Fatalf("resumes = %d, want 1", link.resumes)
	}
}

func TestNextAdvancesAndWrapsUnderRepeatAll(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	a, b := tempTrack(t), tempTrack(t)
	o.Playlist().Append(a)
	o.Playlist().Append(b)
	o.modes.RepeatAll = true
	o.Play()

	o.Next()
	if o.Playlist().Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1", o.Playlist().Cursor())
	}

	o.Next()
	if o.Playlist().Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0 (wrapped)", o.Playlist().Cursor())
	}
}

func TestNextStopsAtEndWithoutRepeatAll(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Playlist().Append(tempTrack(t))
	o.Play()

	o.Next()

	if o.State() != playlist.Stopped {
		t.Fatalf("state = %v, want Stopped", o.State())
	}
}

func TestPrevClampsAtZero(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	a, b := tempTrack(t), tempTrack(t)
	o.Playlist().Append(a)
	o.Playlist().Append(b)
	_ = o.Playlist().SetCursor(1)
	o.Play()

	o.Prev()
	if o.Playlist().Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0", o.Playlist().Cursor())
	}
	o.Prev()
	if o.Playlist().Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0 (clamped)", o.Playlist().Cursor())
	}
}

func TestJumpToMissingTargetErrors(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Playlist().Append(tempTrack(t))

	if _, err := o.Jump("/does/not/exist.flac"); err == nil {
		t.Fatalf("expected error for missing jump target")
	}
}

func TestBeginAddCommitAppendsToLivePlaylist(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)

	if err := o.Begin(42); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if n, err := o.Add(42, "/a.flac"); err != nil || n != nil {
		t.Fatalf("Add during transaction should not broadcast: n=%v err=%v", n, err)
	}
	if _, err := o.Commit(42, -1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if o.Playlist().Len() != 1 || o.Playlist().Entries()[0] != "/a.flac" {
		t.Fatalf("entries = %v, want [/a.flac]", o.Playlist().Entries())
	}
}

func TestAddWithoutTransactionAppendsDirectly(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)

	n, err := o.Add(1, "/b.flac")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n == nil {
		t.Fatalf("expected a broadcast notification for untransacted Add")
	}
	if o.Playlist().Len() != 1 {
		t.Fatalf("len = %d, want 1", o.Playlist().Len())
	}
}

func TestAbortRollsBackTransaction(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	_ = o.Begin(7)
	_ = o.tx.Add(7, "/x.flac")

	o.Abort(7)

	if err := o.Begin(9); err != nil {
		t.Fatalf("Begin by a new owner after abort should succeed: %v", err)
	}
}

func TestHandleWorkerEventFinishedAdvances(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	a, b := tempTrack(t), tempTrack(t)
	o.Playlist().Append(a)
	o.Playlist().Append(b)
	o.Play()

	o.HandleWorkerEvent(workerproto.Event{Kind: workerproto.TrackEnd, Outcome: workerproto.Finished})

	if o.Playlist().Cursor() != 1 {
		t.Fatalf("cursor = %d, want 1 after track-end advance", o.Playlist().Cursor())
	}
	if o.State() != playlist.Playing {
		t.Fatalf("state = %v, want Playing", o.State())
	}
}

func TestHandleWorkerEventConsumeRemovesCurrent(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	a, b := tempTrack(t), tempTrack(t)
	o.Playlist().Append(a)
	o.Playlist().Append(b)
	o.modes.Consume = true
	o.Play()

	o.HandleWorkerEvent(workerproto.Event{Kind: workerproto.TrackEnd, Outcome: workerproto.Finished})

	if o.Playlist().Len() != 1 {
		t.Fatalf("len = %d, want 1 after consume", o.Playlist().Len())
	}
}

func TestHandleWorkerEventRepeatOneReplaysCurrent(t *testing.T) {
	link := &fakeLink{}
	o := New(testLogger(), link, nil)
	o.Playlist().Append(tempTrack(t))
	o.modes.RepeatOne = true
	o.Play()
	before := o.Playlist().Cursor()

	o.HandleWorkerEvent(workerproto.Event{Kind: workerproto.TrackEnd, Outcome: workerproto.Finished})

	if o.Playlist().Cursor() != before {
		t.Fatalf("cursor changed under repeat_one: got %d, want %d", o.Playlist().Cursor(), before)
	}
	if len(link.plays) != 2 {
		t.Fatalf("expected the track to be replayed, got %d plays", len(link.plays))
	}
}
