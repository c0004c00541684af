// Package player implements the player-worker process's side of the
// control socketpair: one active decode at a time, driven by a
// background goroutine and supervised from the event loop.
package player

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/workerproto"
)

// positionTickInterval drives PositionUpdate events, comfortably under
// once-per-second.
const positionTickInterval = 500 * time.Millisecond

// decodeStopTimeout bounds how long Play/Stop/Seek wait for a
// superseded decode to notice shouldStop and return. The socketpair is
// local and codecs poll shouldStop every few thousand samples, so this
// is a backstop, not the expected path.
const decodeStopTimeout = 2 * time.Second

// Player owns the worker's one in-flight decode and the control
// connection it reports progress and outcomes over. codec.Codec.Play
// blocks on audio-device writes and the initial filesystem open, so it
// always runs in its own goroutine; the event loop only ever touches
// atomics and channels.
type Player struct {
	log    *slog.Logger
	loop   *eventcore.Loop
	conn   *ipc.Conn
	connFD int
	sink   audiosink.Sink

	wakeR *os.File
	wakeW *os.File

	active *decodeRun

	done chan struct{}
}

// decodeRun tracks the single in-flight decode. paused and stopped are
// polled by the decode goroutine via pauseGate.Write and shouldStop;
// everything else is touched only from the event-loop goroutine.
type decodeRun struct {
	cdc     codec.Codec
	fd      *os.File
	cancel  context.CancelFunc
	paused  atomic.Bool
	stopped atomic.Bool
	done    chan decodeOutcome
}

type decodeOutcome struct {
	outcome codec.Outcome
	err     error
}

// New registers conn and a wake pipe with loop and arms the first
// position-update timer. conn must already be connected to the main
// process's end of the control socketpair.
func New(log *slog.Logger, loop *eventcore.Loop, conn *ipc.Conn, sink audiosink.Sink) (*Player, error) {
	connFD, err := conn.Fd()
	if err != nil {
		return nil, fmt.Errorf("player: control conn fd: %w", err)
	}
	wakeR, wakeW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("player: wake pipe: %w", err)
	}

	p := &Player{log: log, loop: loop, conn: conn, connFD: connFD, sink: sink, wakeR: wakeR, wakeW: wakeW, done: make(chan struct{})}

	if err := loop.Register(connFD, eventcore.Readable, p.handleConn); err != nil {
		return nil, fmt.Errorf("player: register control conn: %w", err)
	}
	if err := loop.Register(int(wakeR.Fd()), eventcore.Readable, p.handleWake); err != nil {
		return nil, fmt.Errorf("player: register wake pipe: %w", err)
	}

	loop.ArmTimer(positionTickInterval, p.tick)
	return p, nil
}

// Done closes once the control connection has gone away, signaling the
// worker's main loop that there is nothing left to serve.
func (p *Player) Done() <-chan struct{} { return p.done }

// Close halts any active decode and releases the worker's own
// resources. The control connection itself is owned by the caller.
func (p *Player) Close() error {
	if run, _ := p.haltActiveDecode(); run != nil {
		run.fd.Close()
	}
	_ = p.loop.Unregister(p.connFD)
	_ = p.loop.Unregister(int(p.wakeR.Fd()))
	p.wakeR.Close()
	p.wakeW.Close()
	return p.sink.Stop()
}

func (p *Player) handleConn(fd int, ready eventcore.Interest) {
	if ready&eventcore.Writable != 0 {
		p.flush()
	}
	if ready&eventcore.Readable == 0 {
		return
	}
	for {
		msg, ok, err := p.conn.ReadOne()
		if err != nil {
			p.log.Error("player: read control conn", "error", err)
			p.signalDone()
			return
		}
		if !ok {
			break
		}
		p.dispatch(msg)
	}
	p.flush()
}

func (p *Player) signalDone() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}

func (p *Player) dispatch(msg *ipc.Message) {
	switch msg.Type {
	case ipc.TypeWorkerPlay:
		if msg.FD == nil {
			p.log.Error("player: WorkerPlay frame carried no fd")
			return
		}
		p.startPlay(msg.FD)
	case ipc.TypeWorkerPause:
		p.pause()
	case ipc.TypeWorkerResume:
		p.resume()
	case ipc.TypeWorkerStop:
		p.stopCommand()
	case ipc.TypeWorkerSeek:
		p.handleSeek(msg)
	default:
		p.log.Warn("player: unexpected frame type", "type", msg.Type)
	}
}

// handleWake drains the decode-completion notification pipe and, if the
// byte belongs to the still-current decode, reports its outcome. A wake
// byte for a decode already superseded by haltActiveDecode finds
// p.active pointing elsewhere (or nil) and is a no-op.
func (p *Player) handleWake(fd int, ready eventcore.Interest) {
	buf := make([]byte, 8)
	if _, err := p.wakeR.Read(buf); err != nil {
		return
	}
	if p.active == nil {
		return
	}
	select {
	case res := <-p.active.done:
		run := p.active
		p.active = nil
		p.reportHalted(run, res)
	default:
	}
}

func (p *Player) tick() {
	if p.active != nil {
		if rep, ok := p.active.cdc.(codec.PositionReporter); ok {
			p.sendEvent(workerproto.Event{
				Kind:     workerproto.PositionUpdate,
				Position: int64(rep.Position()),
				Duration: int64(rep.Duration()),
			})
		}
	}
	p.loop.ArmTimer(positionTickInterval, p.tick)
}

func (p *Player) pause() {
	if p.active != nil {
		p.active.paused.Store(true)
	}
}

func (p *Player) resume() {
	if p.active != nil {
		p.active.paused.Store(false)
	}
}

func (p *Player) stopCommand() {
	if run, res := p.haltActiveDecode(); run != nil {
		p.reportHalted(run, res)
	}
}

// startPlay stops whatever is currently decoding, reports its outcome,
// and begins decoding fd from the start. The worker has at most one
// active decode.
func (p *Player) startPlay(fd *os.File) {
	if run, res := p.haltActiveDecode(); run != nil {
		p.reportHalted(run, res)
	}
	p.beginDecode(fd, 0)
}

// handleSeek halts the active decode, computes the target offset, and
// restarts decoding the same fd with the leading skipSeconds discarded.
// The reply position is the computed target rather than a position read
// back after decode resumes, since the caller only needs some position
// in the reply, not one that reflects a goroutine just told to run.
func (p *Player) handleSeek(msg *ipc.Message) {
	req, err := workerproto.DecodeSeek(msg.Payload)
	if err != nil {
		p.log.Error("player: decode seek request", "error", err)
		return
	}

	var currentSeconds, durationSeconds float64
	if p.active != nil {
		if rep, ok := p.active.cdc.(codec.PositionReporter); ok {
			currentSeconds = rep.Position().Seconds()
			durationSeconds = rep.Duration().Seconds()
		}
	}

	target, err := seekTargetSeconds(currentSeconds, durationSeconds, req.Position, req.Relative, req.Percent)
	if err != nil {
		p.log.Warn("player: seek rejected", "error", err)
		p.sendEvent(workerproto.Event{Kind: workerproto.PositionUpdate, Position: int64(currentSeconds * float64(time.Second))})
		return
	}

	run, res := p.haltActiveDecode()
	if run == nil {
		p.sendEvent(workerproto.Event{Kind: workerproto.PositionUpdate, Position: 0})
		return
	}
	if res.outcome == codec.Error {
		p.reportHalted(run, res)
		p.sendEvent(workerproto.Event{Kind: workerproto.PositionUpdate, Position: 0})
		return
	}

	p.beginDecode(run.fd, target)
	p.sendEvent(workerproto.Event{Kind: workerproto.PositionUpdate, Position: int64(target * float64(time.Second))})
}

// haltActiveDecode cancels and waits for the active decode without
// closing its fd or reporting an outcome, leaving both to the caller
// since Seek needs the fd back and Play/Stop don't.
func (p *Player) haltActiveDecode() (*decodeRun, decodeOutcome) {
	if p.active == nil {
		return nil, decodeOutcome{}
	}
	run := p.active
	p.active = nil
	run.stopped.Store(true)
	run.cancel()

	select {
	case res := <-run.done:
		return run, res
	case <-time.After(decodeStopTimeout):
		p.log.Warn("player: decode did not stop within timeout")
		return run, decodeOutcome{outcome: codec.Stopped}
	}
}

func (p *Player) reportHalted(run *decodeRun, res decodeOutcome) {
	run.fd.Close()
	p.sendTrackEnd(run.cdc, res)
}

func (p *Player) sendTrackEnd(cdc codec.Codec, res decodeOutcome) {
	ev := workerproto.Event{Kind: workerproto.TrackEnd, Outcome: toWireOutcome(res.outcome)}
	if rep, ok := cdc.(codec.PositionReporter); ok {
		ev.Position = int64(rep.Position())
		ev.Duration = int64(rep.Duration())
	}
	if res.err != nil {
		ev.Message = res.err.Error()
	}
	p.sendEvent(ev)
}

// beginDecode sniffs fd's format, rewinds it to byte 0 (a fresh start
// for a new track, or the point skipSink will fast-forward past for a
// seek), and launches the decode goroutine.
func (p *Player) beginDecode(fd *os.File, skipSeconds float64) {
	cdc, err := sniffFunc(fd)
	if err != nil {
		p.log.Error("player: sniff", "error", err)
		fd.Close()
		p.sendEvent(workerproto.Event{Kind: workerproto.TrackEnd, Outcome: workerproto.Error, Message: err.Error()})
		return
	}
	if _, err := fd.Seek(0, io.SeekStart); err != nil {
		p.log.Error("player: seek to start", "error", err)
		fd.Close()
		p.sendEvent(workerproto.Event{Kind: workerproto.TrackEnd, Outcome: workerproto.Error, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &decodeRun{cdc: cdc, fd: fd, cancel: cancel, done: make(chan decodeOutcome, 1)}
	p.active = run

	var sink audiosink.Sink = p.sink
	if skipSeconds > 0 {
		sink = newSkipSink(sink, skipSeconds)
	}
	sink = &pauseGate{real: sink, paused: &run.paused, stopped: run.stopped.Load}

	go func() {
		outcome, err := cdc.Play(ctx, fd, sink, run.stopped.Load)
		run.done <- decodeOutcome{outcome: outcome, err: err}
		p.wakeW.Write([]byte{1})
	}()
}

func (p *Player) sendEvent(ev workerproto.Event) {
	payload := workerproto.EncodeEvent(ev)
	if err := p.conn.Compose(ipc.TypeWorkerEvent, 0, 0, nil, payload); err != nil {
		p.log.Error("player: compose event", "error", err)
		return
	}
	p.flush()
}

func (p *Player) flush() {
	progress := p.conn.Flush()
	if progress.Closed {
		p.log.Warn("player: control connection closed")
		p.signalDone()
		return
	}
	interest := eventcore.Readable
	if progress.WouldBlock {
		interest |= eventcore.Writable
	}
	_ = p.loop.Modify(p.connFD, interest)
}

func toWireOutcome(o codec.Outcome) workerproto.Outcome {
	switch o {
	case codec.Finished:
		return workerproto.Finished
	case codec.Stopped:
		return workerproto.Stopped
	default:
		return workerproto.Error
	}
}
