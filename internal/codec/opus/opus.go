// Package opus wraps github.com/drgolem/go-opus into a codec.Codec,
// following the same decoder shape as the FLAC wrapper (same author,
// same Open-by-path/GetFormat/DecodeSamples/Close API) — and so the
// same /proc/self/fd/N adaptation for a path-blind worker.
package opus

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	goopus "github.com/drgolem/go-opus/opus"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
)

// Codec decodes Opus tracks.
type Codec struct {
	position atomic.Int64
}

func New() *Codec { return &Codec{} }

func (c *Codec) ReportsPosition() bool   { return true }
func (c *Codec) Position() time.Duration { return time.Duration(c.position.Load()) }

// Duration is unknown: GetFormat reports only sample rate and channel
// layout, not a total sample count, so there is nothing to report up
// front. Percent-based Seek against an Opus track is therefore
// unsupported for now (see internal/player.seekTargetSeconds).
func (c *Codec) Duration() time.Duration { return 0 }

// Play decodes fd to sink until end-of-stream, shouldStop, or error.
func (c *Codec) Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (codec.Outcome, error) {
	decoder, err := goopus.NewDecoder()
	if err != nil {
		return codec.Error, fmt.Errorf("opus: new decoder: %w", err)
	}
	defer decoder.Delete()

	if err := decoder.Open(fmt.Sprintf("/proc/self/fd/%d", fd.Fd())); err != nil {
		return codec.Error, fmt.Errorf("opus: open: %w", err)
	}
	defer decoder.Close()

	rate, channels, bps := decoder.GetFormat()
	params := audiosink.Params{SampleRate: rate, Channels: channels, BitsPerSample: bps}
	if err := sink.Negotiate(params); err != nil {
		return codec.Error, fmt.Errorf("opus: negotiate: %w", err)
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
			if werr := sink.Write(buf[:bytesToWrite]); werr != nil {
				return codec.Error, fmt.Errorf("opus: write: %w", werr)
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
