// Package vorbis adapts github.com/jfreymuth/oggvorbis (which decodes
// straight off an io.Reader, no filesystem path) into a codec.Codec.
// oggvorbis yields interleaved float32 samples in [-1, 1]; the sink
// expects 16-bit PCM, so this package is also where that conversion
// lives.
package vorbis

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/oggvorbis"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
)

const bitsPerSample = 16

// Codec decodes Ogg Vorbis tracks.
type Codec struct {
	position atomic.Int64
}

func New() *Codec { return &Codec{} }

func (c *Codec) ReportsPosition() bool   { return true }
func (c *Codec) Position() time.Duration { return time.Duration(c.position.Load()) }

// Duration is unknown: the reader exposes channel count and sample
// rate but no total sample count up front. Percent-based Seek against
// a Vorbis track is therefore unsupported for now (see
// internal/player.seekTargetSeconds).
func (c *Codec) Duration() time.Duration { return 0 }

// Play decodes fd to sink until end-of-stream, shouldStop, or error.
func (c *Codec) Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (codec.Outcome, error) {
	reader, err := oggvorbis.NewReader(fd)
	if err != nil {
		return codec.Error, fmt.Errorf("vorbis: new reader: %w", err)
	}

	channels := reader.Channels()
	rate := reader.SampleRate()
	params := audiosink.Params{SampleRate: rate, Channels: channels, BitsPerSample: bitsPerSample}
	if err := sink.Negotiate(params); err != nil {
		return codec.Error, fmt.Errorf("vorbis: negotiate: %w", err)
	}

	floats := make([]float32, 4096*channels)
	pcm := make([]byte, len(floats)*2)
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

		n, err := reader.Read(floats)
		if n > 0 {
			encodePCM16(floats[:n], pcm)
			if werr := sink.Write(pcm[:n*2]); werr != nil {
				return codec.Error, fmt.Errorf("vorbis: write: %w", werr)
			}
			samplesDecoded += int64(n / channels)
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

// encodePCM16 converts float32 samples in [-1, 1] to little-endian
// signed 16-bit PCM.
func encodePCM16(floats []float32, out []byte) {
	for i, f := range floats {
		v := int16(math.Round(float64(clamp(f, -1, 1)) * 32767))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
