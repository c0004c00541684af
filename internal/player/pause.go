package player

import (
	"sync/atomic"
	"time"

	"github.com/drgolem/soundd/internal/audiosink"
)

// pauseGate wraps a real Sink so Pause/Resume can be implemented as
// "stop writing PCM to the device" without tearing down and
// renegotiating the stream. Sink.Write is the decode loop's only
// blocking point, so that is where the wait lives.
type pauseGate struct {
	real    audiosink.Sink
	paused  *atomic.Bool
	stopped func() bool
}

func (g *pauseGate) Negotiate(p audiosink.Params) error   { return g.real.Negotiate(p) }
func (g *pauseGate) Renegotiate(p audiosink.Params) error { return g.real.Renegotiate(p) }
func (g *pauseGate) Stop() error                          { return g.real.Stop() }

func (g *pauseGate) Write(pcm []byte) error {
	for g.paused.Load() {
		if g.stopped() {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return g.real.Write(pcm)
}
