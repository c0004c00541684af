// Package ringbuffer provides a lock-free SPSC byte ring buffer (the
// same design published standalone as github.com/drgolem/ringbuffer)
// for the player worker's decode/sink boundary: one goroutine decodes
// PCM into the buffer, one goroutine drains it to the audio sink.
package ringbuffer

import (
	"time"

	"github.com/drgolem/ringbuffer"
)

// Buffer wraps ringbuffer.RingBuffer with frame-aligned helpers (a
// blocking WriteFrames, a non-blocking ReadFrames) so callers never
// hand a partial audio frame to
// the sink (a torn frame pops as an audible click).
type Buffer struct {
	rb         *ringbuffer.RingBuffer
	bytesPerFrame int
}

// New creates a Buffer sized in bytes, rounded up by the underlying
// ring buffer to the next power of two. bytesPerFrame is channels *
// (bitsPerSample/8); it may be updated later via SetFrameSize when the
// codec renegotiates the device mid-stream.
func New(size uint64, bytesPerFrame int) *Buffer {
	return &Buffer{
		rb:            ringbuffer.New(size),
		bytesPerFrame: bytesPerFrame,
	}
}

// SetFrameSize updates the frame width after a sample-rate/channel
// renegotiation. Must only be
// called when both the producer and consumer are quiesced.
func (b *Buffer) SetFrameSize(bytesPerFrame int) {
	b.bytesPerFrame = bytesPerFrame
}

// WriteFrames blocks until all of data has been written, backing off
// briefly between attempts when the buffer is full. stop aborts the
// wait early, letting the decode goroutine notice it should stop.
func (b *Buffer) WriteFrames(data []byte, stop func() bool) (int, error) {
	for {
		n, err := b.rb.Write(data)
		if err == nil {
			return n, nil
		}
		if stop != nil && stop() {
			return 0, nil
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ReadFrames reads up to len(buf) bytes, truncated down to the nearest
// whole frame so the caller never writes a partial frame to the
// device. Returns 0 immediately (no blocking) if fewer than one frame
// is currently available; the caller is expected to poll.
func (b *Buffer) ReadFrames(buf []byte) (int, error) {
	if b.bytesPerFrame <= 0 {
		return 0, nil
	}
	want := (len(buf) / b.bytesPerFrame) * b.bytesPerFrame
	if want == 0 {
		return 0, nil
	}
	n, err := b.rb.Read(buf[:want])
	if err != nil {
		// Underrun: not an error condition for the caller, just "nothing yet".
		return 0, nil
	}
	aligned := (n / b.bytesPerFrame) * b.bytesPerFrame
	return aligned, nil
}

// AvailableRead reports bytes currently buffered and ready to drain.
func (b *Buffer) AvailableRead() uint64 { return b.rb.AvailableRead() }

// Size reports the buffer's total capacity in bytes.
func (b *Buffer) Size() uint64 { return b.rb.Size() }
