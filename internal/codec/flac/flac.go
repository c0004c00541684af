// Package flac wraps github.com/drgolem/go-flac into a codec.Codec.
// go-flac's decoder only opens by filesystem path, but the player
// worker never holds a path — so Play resolves the handed-over fd
// through /proc/self/fd/N, the standard way to hand an already-open
// descriptor to a path-only API on Linux.
package flac

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	goflac "github.com/drgolem/go-flac/flac"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
)

const bitsPerSample = 16

// Codec decodes FLAC tracks.
type Codec struct {
	position atomic.Int64 // nanoseconds
	duration atomic.Int64
}

// New returns a fresh FLAC codec instance; each Play call owns its own
// decoder, so one Codec value may be reused across tracks.
func New() *Codec { return &Codec{} }

func (c *Codec) ReportsPosition() bool { return true }

func (c *Codec) Position() time.Duration { return time.Duration(c.position.Load()) }
func (c *Codec) Duration() time.Duration { return time.Duration(c.duration.Load()) }

// Play decodes fd to sink until end-of-stream, shouldStop, or error.
func (c *Codec) Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (codec.Outcome, error) {
	decoder, err := goflac.NewFlacFrameDecoder(bitsPerSample)
	if err != nil {
		return codec.Error, fmt.Errorf("flac: new decoder: %w", err)
	}
	defer decoder.Delete()

	if err := decoder.Open(fmt.Sprintf("/proc/self/fd/%d", fd.Fd())); err != nil {
		return codec.Error, fmt.Errorf("flac: open: %w", err)
	}
	defer decoder.Close()

	rate, channels, bps := decoder.GetFormat()
	params := audiosink.Params{SampleRate: rate, Channels: channels, BitsPerSample: bps}
	if err := sink.Negotiate(params); err != nil {
		return codec.Error, fmt.Errorf("flac: negotiate: %w", err)
	}

	const chunkSamples = 4096
	bytesPerSample := bps / 8
	buf := make([]byte, chunkSamples*channels*bytesPerSample)
	var samplesDecoded int64

	for {
		if shouldStop != nil && shouldStop() {
			return codec.Stopped, nil
		}
		select {
		case <-ctx.Done():
			return codec.Stopped, nil
		default:
		}

		n, err := decoder.DecodeSamples(chunkSamples, buf)
		if n > 0 {
			bytesToWrite := n * channels * bytesPerSample
			if err := sink.Write(buf[:bytesToWrite]); err != nil {
				return codec.Error, fmt.Errorf("flac: write: %w", err)
			}
			samplesDecoded += int64(n)
			c.position.Store(int64(time.Duration(samplesDecoded) * time.Second / time.Duration(rate)))
		}
		if err != nil {
			return codec.Finished, nil
		}
		if n == 0 {
			return codec.Finished, nil
		}
	}
}
