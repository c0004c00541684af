// Package mp3 adapts github.com/imcarsen/go-mp3 (a pure-Go MP3
// decoder reading from an io.Reader) into a codec.Codec. Unlike a
// cgo-backed mpg123 wrapper, go-mp3 decodes directly off the
// handed-over fd with no filesystem path needed, which fits the
// player worker's path-blind design more directly.
package mp3

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	gomp3 "github.com/imcarsen/go-mp3"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
)

const (
	channels      = 2
	bitsPerSample = 16
)

// Codec decodes MP3 tracks. go-mp3 always produces 16-bit stereo PCM.
type Codec struct {
	position atomic.Int64
}

func New() *Codec { return &Codec{} }

func (c *Codec) ReportsPosition() bool   { return true }
func (c *Codec) Position() time.Duration { return time.Duration(c.position.Load()) }

// Duration is unknown: go-mp3 exposes no frame count or bitrate total
// up front, only a running sample count as decoding proceeds. Percent-
// based Seek against an MP3 track is therefore unsupported for now
// (see internal/player.seekTargetSeconds).
func (c *Codec) Duration() time.Duration { return 0 }

// Play decodes fd to sink until end-of-stream, shouldStop, or error.
func (c *Codec) Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (codec.Outcome, error) {
	decoder, err := gomp3.NewDecoder(fd)
	if err != nil {
		return codec.Error, fmt.Errorf("mp3: new decoder: %w", err)
	}

	rate := decoder.SampleRate()
	params := audiosink.Params{SampleRate: rate, Channels: channels, BitsPerSample: bitsPerSample}
	if err := sink.Negotiate(params); err != nil {
		return codec.Error, fmt.Errorf("mp3: negotiate: %w", err)
	}

	buf := make([]byte, 4096*channels*(bitsPerSample/8))
	bytesPerFrame := channels * (bitsPerSample / 8)
	var bytesDecoded int64

	for {
		if shouldStop != nil && shouldStop() {
			return codec.Stopped, nil
		}
		select {
		case <-ctx.Done():
			return codec.Stopped, nil
		default:
		}

		n, err := decoder.Read(buf)
		if n > 0 {
			aligned := (n / bytesPerFrame) * bytesPerFrame
			if aligned > 0 {
				if werr := sink.Write(buf[:aligned]); werr != nil {
					return codec.Error, fmt.Errorf("mp3: write: %w", werr)
				}
				bytesDecoded += int64(aligned)
				frames := bytesDecoded / int64(bytesPerFrame)
				c.position.Store(int64(time.Duration(frames) * time.Second / time.Duration(rate)))
			}
		}
		if err != nil {
			return codec.Finished, nil
		}
		if n == 0 {
			return codec.Finished, nil
		}
	}
}
