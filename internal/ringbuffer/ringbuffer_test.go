package ringbuffer

import "testing"

func TestWriteFramesThenReadFramesRoundTrip(t *testing.T) {
	b := New(4096, 4) // 2ch 16-bit

	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := b.WriteFrames(frame, nil); err != nil {
		t.Fatalf("WriteFrames: %v", err)
	}

	out := make([]byte, 8)
	n, err := b.ReadFrames(out)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if n != 8 {
		t.Fatalf("n = %d, want 8", n)
	}
	for i, want := range frame {
		if out[i] != want {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want)
		}
	}
}

func TestReadFramesTruncatesToFrameBoundary(t *testing.T) {
	b := New(4096, 4)
	if _, err := b.WriteFrames([]byte{1, 2, 3, 4, 5, 6}, nil); err != nil {
		t.Fatalf("WriteFrames: %v", err)
	}

	out := make([]byte, 6)
	n, err := b.ReadFrames(out)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4 (one whole frame, remainder held back)", n)
	}
}

func TestReadFramesOnEmptyBufferReturnsZero(t *testing.T) {
	b := New(4096, 4)
	out := make([]byte, 16)
	n, err := b.ReadFrames(out)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

func TestWriteFramesStopsEarlyWhenFull(t *testing.T) {
	b := New(16, 4) // tiny buffer, rounds up to a power of two internally
	big := make([]byte, 64)

	calls := 0
	stop := func() bool {
		calls++
		return calls > 2
	}

	n, err := b.WriteFrames(big, stop)
	if err != nil {
		t.Fatalf("WriteFrames: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 once stop fired", n)
	}
}
