// sniff.go chooses a codec by magic bytes instead of a file
// extension, because the player worker never sees a path, only an
// already-open fd.
package player

import (
	"bytes"
	"fmt"
	"os"

	"github.com/drgolem/soundd/internal/codec"
	"github.com/drgolem/soundd/internal/codec/flac"
	"github.com/drgolem/soundd/internal/codec/mp3"
	"github.com/drgolem/soundd/internal/codec/opus"
	"github.com/drgolem/soundd/internal/codec/vorbis"
	"github.com/drgolem/soundd/internal/codec/wav"
)

const sniffLen = 64

// sniffFunc is the format-detection step beginDecode calls through,
// indirected so tests can substitute a fake codec without a real
// audio file on disk.
var sniffFunc = sniff

// sniff peeks at the first sniffLen bytes of fd and picks a codec.
// It reads via ReadAt so the fd's seek offset is untouched; the
// chosen codec's own Play call still starts decoding from byte 0.
func sniff(fd *os.File) (codec.Codec, error) {
	buf := make([]byte, sniffLen)
	n, err := fd.ReadAt(buf, 0)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("player: sniff: %w", err)
	}
	head := buf[:n]

	switch {
	case bytes.HasPrefix(head, []byte("fLaC")):
		return flac.New(), nil
	case bytes.HasPrefix(head, []byte("OggS")) && bytes.Contains(head, []byte("vorbis")):
		return vorbis.New(), nil
	case bytes.HasPrefix(head, []byte("OggS")) && bytes.Contains(head, []byte("Opus")):
		return opus.New(), nil
	case bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Equal(head[8:12], []byte("WAVE")):
		return wav.New(), nil
	case bytes.HasPrefix(head, []byte("ID3")):
		return mp3.New(), nil
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		// MPEG frame sync with no leading ID3 tag.
		return mp3.New(), nil
	default:
		return nil, fmt.Errorf("player: unrecognized format (first bytes %x)", head[:min(n, 8)])
	}
}
