// Package wav wraps github.com/youpy/go-wav into a codec.Codec. go-wav
// reads straight off any io.Reader, so unlike flac/opus this one needs
// no /proc/self/fd indirection — the handed-over fd works directly.
package wav

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	gowav "github.com/youpy/go-wav"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/codec"
)

// Codec decodes PCM WAV tracks, a format supported in addition to the
// compressed codecs below.
type Codec struct {
	position atomic.Int64
}

func New() *Codec { return &Codec{} }

func (c *Codec) ReportsPosition() bool   { return true }
func (c *Codec) Position() time.Duration { return time.Duration(c.position.Load()) }

// Duration is unknown: Format reports sample rate and bit depth but
// not a data chunk size, so there is no total sample count available
// before decoding finishes. Percent-based Seek against a WAV track is
// therefore unsupported for now (see internal/player.seekTargetSeconds).
func (c *Codec) Duration() time.Duration { return 0 }

// Play decodes fd to sink until end-of-stream, shouldStop, or error.
func (c *Codec) Play(ctx context.Context, fd *os.File, sink audiosink.Sink, shouldStop func() bool) (codec.Outcome, error) {
	reader := gowav.NewReader(fd)
	format, err := reader.Format()
	if err != nil {
		return codec.Error, fmt.Errorf("wav: format: %w", err)
	}
	if format.AudioFormat != gowav.AudioFormatPCM {
		return codec.Error, fmt.Errorf("wav: unsupported audio format %d, only PCM is supported", format.AudioFormat)
	}

	rate := int(format.SampleRate)
	channels := int(format.NumChannels)
	bps := int(format.BitsPerSample)
	params := audiosink.Params{SampleRate: rate, Channels: channels, BitsPerSample: bps}
	if err := sink.Negotiate(params); err != nil {
		return codec.Error, fmt.Errorf("wav: negotiate: %w", err)
	}

	const chunkSamples = 4096
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

		samplesData, err := reader.ReadSamples(chunkSamples)
		if len(samplesData) > 0 {
			pcm := encodeSamples(samplesData, channels, bps)
			if werr := sink.Write(pcm); werr != nil {
				return codec.Error, fmt.Errorf("wav: write: %w", werr)
			}
			samplesDecoded += int64(len(samplesData))
			c.position.Store(int64(time.Duration(samplesDecoded) * time.Second / time.Duration(rate)))
		}
		if err != nil {
			return codec.Finished, nil
		}
		if len(samplesData) == 0 {
			return codec.Finished, nil
		}
	}
}

// encodeSamples packs go-wav's decoded Sample values (one IntValue
// per channel) back into little-endian interleaved PCM.
func encodeSamples(samples []gowav.Sample, channels, bps int) []byte {
	bytesPerSample := bps / 8
	out := make([]byte, len(samples)*channels*bytesPerSample)
	for i, s := range samples {
		for ch := 0; ch < channels; ch++ {
			value := s.Values[ch]
			offset := (i*channels + ch) * bytesPerSample
			switch bps {
			case 8:
				out[offset] = byte(value)
			case 16:
				out[offset] = byte(value & 0xFF)
				out[offset+1] = byte((value >> 8) & 0xFF)
			case 24:
				out[offset] = byte(value & 0xFF)
				out[offset+1] = byte((value >> 8) & 0xFF)
				out[offset+2] = byte((value >> 16) & 0xFF)
			case 32:
				out[offset] = byte(value & 0xFF)
				out[offset+1] = byte((value >> 8) & 0xFF)
				out[offset+2] = byte((value >> 16) & 0xFF)
				out[offset+3] = byte((value >> 24) & 0xFF)
			}
		}
	}
	return out
}
