package player

import (
	"testing"

	"github.com/drgolem/soundd/internal/audiosink"
)

func TestSeekTargetSecondsAbsolute(t *testing.T) {
	got, err := seekTargetSeconds(10, 0, 42, false, false)
	if err != nil {
		t.Fatalf("seekTargetSeconds: %v", err)
	}
	if got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestSeekTargetSecondsAbsoluteRejectsNegative(t *testing.T) {
	if _, err := seekTargetSeconds(10, 0, -1, false, false); err == nil {
		t.Fatalf("expected error for negative absolute position")
	}
}

func TestSeekTargetSecondsRelativeClampsAtZero(t *testing.T) {
	got, err := seekTargetSeconds(5, 0, -30, true, false)
	if err != nil {
		t.Fatalf("seekTargetSeconds: %v", err)
	}
	if got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestSeekTargetSecondsRelativeForward(t *testing.T) {
	got, err := seekTargetSeconds(5, 0, 10, true, false)
	if err != nil {
		t.Fatalf("seekTargetSeconds: %v", err)
	}
	if got != 15 {
		t.Errorf("got %v, want 15", got)
	}
}

func TestSeekTargetSecondsPercent(t *testing.T) {
	got, err := seekTargetSeconds(0, 60, 50, false, true)
	if err != nil {
		t.Fatalf("seekTargetSeconds: %v", err)
	}
	if got != 30 {
		t.Errorf("got %v, want 30", got)
	}
}

func TestSeekTargetSecondsPercentRequiresKnownDuration(t *testing.T) {
	if _, err := seekTargetSeconds(0, 0, 50, false, true); err == nil {
		t.Fatalf("expected error when duration is unknown")
	}
}

func TestSeekTargetSecondsPercentOutOfRange(t *testing.T) {
	if _, err := seekTargetSeconds(0, 60, 150, false, true); err == nil {
		t.Fatalf("expected error for percent out of [0, 100]")
	}
}

type fakeSink struct {
	negotiated   audiosink.Params
	written      []byte
	renegotiated int
	stopped      bool
}

func (s *fakeSink) Negotiate(p audiosink.Params) error {
	s.negotiated = p
	return nil
}

func (s *fakeSink) Write(pcm []byte) error {
	s.written = append(s.written, pcm...)
	return nil
}

func (s *fakeSink) Renegotiate(p audiosink.Params) error {
	s.renegotiated++
	s.negotiated = p
	return nil
}

func (s *fakeSink) Stop() error {
	s.stopped = true
	return nil
}

func TestSkipSinkDiscardsLeadingBytes(t *testing.T) {
	real := &fakeSink{}
	sink := newSkipSink(real, 1) // skip 1 second

	params := audiosink.Params{SampleRate: 10, Channels: 1, BitsPerSample: 16}
	if err := sink.Negotiate(params); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	// bytesPerFrame = 2, skipBytes = 1 * 10 * 2 = 20

	first := make([]byte, 12) // entirely within the skip window
	if err := sink.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(real.written) != 0 {
		t.Fatalf("expected nothing forwarded yet, got %d bytes", len(real.written))
	}

	second := make([]byte, 12) // crosses the 20-byte threshold 8 bytes in
	for i := range second {
		second[i] = byte(i + 1)
	}
	if err := sink.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(real.written) != 4 {
		t.Fatalf("expected 4 bytes forwarded past the threshold, got %d", len(real.written))
	}

	third := make([]byte, 4)
	if err := sink.Write(third); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(real.written) != 8 {
		t.Fatalf("expected everything after the threshold forwarded, got %d bytes", len(real.written))
	}
}
