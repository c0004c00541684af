package player

import (
	"fmt"

	"github.com/drgolem/soundd/internal/audiosink"
)

// skipSink wraps a real Sink and discards the first skipSeconds worth
// of PCM instead of writing it to the device, implementing Seek as
// "decode from the start and fast-forward" without needing each codec
// to support random access into its own bitstream.
type skipSink struct {
	real         audiosink.Sink
	skipSeconds  float64
	skipBytes    int64
	bytesSkipped int64
}

func newSkipSink(real audiosink.Sink, skipSeconds float64) *skipSink {
	return &skipSink{real: real, skipSeconds: skipSeconds}
}

func (s *skipSink) Negotiate(p audiosink.Params) error {
	bytesPerFrame := p.Channels * (p.BitsPerSample / 8)
	s.skipBytes = int64(s.skipSeconds * float64(p.SampleRate) * float64(bytesPerFrame))
	// Round down to a whole frame so the cutover never splits a frame.
	if bytesPerFrame > 0 {
		s.skipBytes -= s.skipBytes % int64(bytesPerFrame)
	}
	return s.real.Negotiate(p)
}

func (s *skipSink) Write(pcm []byte) error {
	if s.bytesSkipped >= s.skipBytes {
		return s.real.Write(pcm)
	}
	remaining := s.skipBytes - s.bytesSkipped
	if int64(len(pcm)) <= remaining {
		s.bytesSkipped += int64(len(pcm))
		return nil
	}
	s.bytesSkipped = s.skipBytes
	return s.real.Write(pcm[remaining:])
}

func (s *skipSink) Renegotiate(p audiosink.Params) error { return s.real.Renegotiate(p) }
func (s *skipSink) Stop() error                          { return s.real.Stop() }

// seekTargetSeconds resolves a workerproto seek request against the
// current playback position into an absolute target in seconds.
func seekTargetSeconds(currentSeconds, durationSeconds float64, position int64, relative, percent bool) (float64, error) {
	switch {
	case percent:
		if durationSeconds <= 0 {
			return 0, fmt.Errorf("player: percent seek requires a known duration")
		}
		if position < 0 || position > 100 {
			return 0, fmt.Errorf("player: percent %d out of range [0, 100]", position)
		}
		return durationSeconds * float64(position) / 100, nil
	case relative:
		target := currentSeconds + float64(position)
		if target < 0 {
			target = 0
		}
		return target, nil
	default:
		if position < 0 {
			return 0, fmt.Errorf("player: absolute seek position must be >= 0")
		}
		return float64(position), nil
	}
}
