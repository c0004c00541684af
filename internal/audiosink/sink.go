// Package audiosink drives the player worker's audio output device:
// a ringbuffer-backed producer/consumer split over a PortAudio stream,
// restructured around an explicit Negotiate/Write/Renegotiate/Stop
// boundary so a codec collaborator (internal/codec) can own decoding
// while the sink owns only device I/O.
package audiosink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiokit"
	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/drgolem/soundd/internal/ringbuffer"
)

// Params is the format a codec declares when it starts producing PCM.
type Params struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (p Params) bytesPerFrame() int {
	return p.Channels * (p.BitsPerSample / 8)
}

// Sink is the player worker's device-facing collaborator: it negotiates
// rate, bits, and channels with the audio device and streams PCM to it.
type Sink interface {
	Negotiate(p Params) error
	Write(pcm []byte) error
	Renegotiate(p Params) error
	Stop() error
}

// PortAudioSink is the concrete Sink backing production use, wrapping
// a device index chosen from internal/config.Config.AudioDevice. PCM
// handed to Write is a producer into a ring buffer; a drain goroutine
// started by open is the sole consumer, so a slow or blocked device
// never stalls the decode goroutine calling Write.
type PortAudioSink struct {
	deviceIndex     int
	framesPerBuffer int

	mu             sync.Mutex
	stream         *portaudio.PaStream
	params         Params // as declared by the codec
	deviceChannels int    // channels actually opened on the device
	buf            *ringbuffer.Buffer

	closed    atomic.Bool
	drainStop chan struct{}
	drainDone chan struct{}
}

// DefaultFramesPerBuffer is PortAudio's usual per-callback frame count.
const DefaultFramesPerBuffer = 512

// DefaultBufferBytes is the ring buffer's default capacity.
const DefaultBufferBytes = 256 * 1024

// New creates a PortAudioSink bound to deviceIndex (the default device
// when deviceIndex is negative; cmd/soundd resolves the configured
// audio_device string to an index and hands it to the worker).
func New(deviceIndex int) *PortAudioSink {
	return &PortAudioSink{
		deviceIndex:     deviceIndex,
		framesPerBuffer: DefaultFramesPerBuffer,
	}
}

// Negotiate opens the device stream with the codec's declared format.
// A failure here is fatal to the playback session. It returns only an
// error; the parameters the device accepted are not reported back, and
// when the device falls back to mono, Write downmixes internally.
func (s *PortAudioSink) Negotiate(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(p)
}

// Renegotiate swaps the device stream to a new format mid-stream.
// Sample-rate changes mid-stream are tolerated by renegotiating the
// device: stop, set params, start.
func (s *PortAudioSink) Renegotiate(p Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeStream(); err != nil {
		return fmt.Errorf("audiosink: renegotiate: stop old stream: %w", err)
	}
	return s.open(p)
}

// open opens the device stream, falling back to mono when the device
// refuses the codec's declared channel count, and starts the drain
// goroutine that feeds the stream from the ring buffer.
func (s *PortAudioSink) open(p Params) error {
	var sampleFormat portaudio.PaSampleFormat
	switch p.BitsPerSample {
	case 16:
		sampleFormat = portaudio.SampleFmtInt16
	case 24:
		sampleFormat = portaudio.SampleFmtInt24
	case 32:
		sampleFormat = portaudio.SampleFmtInt32
	default:
		return fmt.Errorf("audiosink: unsupported bit depth: %d", p.BitsPerSample)
	}

	outParams := portaudio.PaStreamParameters{
		DeviceIndex:  s.deviceIndex,
		ChannelCount: p.Channels,
		SampleFormat: sampleFormat,
	}

	stream, err := portaudio.NewStream(outParams, float64(p.SampleRate))
	deviceChannels := p.Channels
	if err != nil && p.Channels > 1 {
		// The device rejected the declared channel count. Retry with
		// mono; Write downmixes every frame before it reaches the
		// ring buffer.
		outParams.ChannelCount = 1
		stream, err = portaudio.NewStream(outParams, float64(p.SampleRate))
		deviceChannels = 1
	}
	if err != nil {
		return fmt.Errorf("audiosink: new stream: %w", err)
	}
	if err := stream.Open(s.framesPerBuffer); err != nil {
		return fmt.Errorf("audiosink: open stream: %w", err)
	}
	if err := stream.StartStream(); err != nil {
		return fmt.Errorf("audiosink: start stream: %w", err)
	}

	deviceParams := p
	deviceParams.Channels = deviceChannels
	bytesPerFrame := deviceParams.bytesPerFrame()

	s.stream = stream
	s.params = p
	s.deviceChannels = deviceChannels
	s.buf = ringbuffer.New(DefaultBufferBytes, bytesPerFrame)
	s.closed.Store(false)

	s.drainStop = make(chan struct{})
	s.drainDone = make(chan struct{})
	go s.drain(stream, s.buf, deviceParams, bytesPerFrame, s.drainStop, s.drainDone)
	return nil
}

// drain is the ring buffer's sole consumer: it reads whatever is ready
// and writes it to the device, padding with silence rather than
// stalling the stream when the decode goroutine falls behind.
func (s *PortAudioSink) drain(stream *portaudio.PaStream, buf *ringbuffer.Buffer, deviceParams Params, bytesPerFrame int, stop, done chan struct{}) {
	defer close(done)

	chunk := make([]byte, s.framesPerBuffer*bytesPerFrame)
	var pad []byte
	if deviceParams.BitsPerSample == 16 {
		pad = Silence(deviceParams, s.framesPerBuffer)
	} else {
		pad = make([]byte, len(chunk))
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, _ := buf.ReadFrames(chunk)
		if n == 0 {
			if err := stream.Write(s.framesPerBuffer, pad); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
			continue
		}
		if err := stream.Write(n/bytesPerFrame, chunk[:n]); err != nil {
			return
		}
	}
}

// Write hands one chunk of PCM, already in the negotiated format, to
// the ring buffer the drain goroutine feeds to the device. It blocks
// briefly if the buffer is full, backing off until the drain goroutine
// catches up or the sink is stopped out from under it.
func (s *PortAudioSink) Write(pcm []byte) error {
	s.mu.Lock()
	buf := s.buf
	declaredBytesPerFrame := s.params.bytesPerFrame()
	downmix := s.deviceChannels < s.params.Channels
	channels := s.params.Channels
	s.mu.Unlock()

	if buf == nil {
		return fmt.Errorf("audiosink: write before negotiate")
	}
	if declaredBytesPerFrame == 0 || len(pcm)%declaredBytesPerFrame != 0 {
		return fmt.Errorf("audiosink: pcm length %d is not frame-aligned (frame=%d)", len(pcm), declaredBytesPerFrame)
	}
	if downmix {
		pcm = Downmix(pcm, channels)
	}

	_, err := buf.WriteFrames(pcm, func() bool { return s.closed.Load() })
	return err
}

// Stop halts and releases the device stream. Safe to call repeatedly.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeStream()
}

// closeStream signals the drain goroutine to stop and waits for it
// before touching the stream again, since the goroutine holds no lock
// of its own while it writes to it.
func (s *PortAudioSink) closeStream() error {
	if s.stream == nil {
		return nil
	}
	s.closed.Store(true)
	close(s.drainStop)
	<-s.drainDone
	s.drainStop = nil
	s.drainDone = nil

	if err := s.stream.StopStream(); err != nil {
		return fmt.Errorf("audiosink: stop stream: %w", err)
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("audiosink: close stream: %w", err)
	}
	s.stream = nil
	s.buf = nil
	return nil
}

// Downmix sums and averages an interleaved 16-bit PCM buffer down to
// mono. Used by Write when the device has refused the codec's declared
// channel count.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	return audiokit.DownmixMono16(pcm, channels)
}

// Silence returns n frames of silence in the given format, used by the
// drain goroutine to pad a buffer underrun rather than stall the
// device.
func Silence(p Params, frames int) []byte {
	return audiokit.Silence16(frames * p.Channels)
}
