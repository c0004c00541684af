// Package codec defines the player worker's decode collaborator
// boundary: a Codec turns one opened track fd into
// PCM written to a Sink, reporting how it ended.
package codec

import (
	"context"
	"os"
	"time"

	"github.com/drgolem/soundd/internal/audiosink"
)

// Outcome is how a codec's Play call ended.
type Outcome int

const (
	Finished Outcome = iota
	Stopped
	Error
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// PositionReporter lets the player worker poll decode progress without
// the codec pushing events itself; the worker's own ticker, which emits
// position updates at least once per second, reads this.
type PositionReporter interface {
	Position() time.Duration
	Duration() time.Duration
}

// Codec decodes one track fd to sink, checking shouldStop periodically
// so Stop/Next/Prev/Jump can interrupt decode promptly.
type Codec interface {
	Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (Outcome, error)
	ReportsPosition() bool
}

// Seeker is implemented by codecs that can jump within the stream
// without replaying from the start.
type Seeker interface {
	Seek(delta time.Duration) error
}
