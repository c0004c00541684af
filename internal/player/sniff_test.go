package player

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/drgolem/soundd/internal/codec/flac"
	"github.com/drgolem/soundd/internal/codec/mp3"
	"github.com/drgolem/soundd/internal/codec/opus"
	"github.com/drgolem/soundd/internal/codec/vorbis"
	"github.com/drgolem/soundd/internal/codec/wav"
)

func writeSniffFile(t *testing.T, contents []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.bin")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestSniffDetectsFLAC(t *testing.T) {
	f := writeSniffFile(t, []byte("fLaC"+string(make([]byte, 32))))
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*flac.Codec); !ok {
		t.Fatalf("got %T, want *flac.Codec", cdc)
	}
}

func TestSniffDetectsOggVorbis(t *testing.T) {
	body := append([]byte("OggS"), make([]byte, 20)...)
	body = append(body, []byte("vorbis")...)
	f := writeSniffFile(t, body)
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*vorbis.Codec); !ok {
		t.Fatalf("got %T, want *vorbis.Codec", cdc)
	}
}

func TestSniffDetectsOggOpus(t *testing.T) {
	body := append([]byte("OggS"), make([]byte, 20)...)
	body = append(body, []byte("OpusHead")...)
	f := writeSniffFile(t, body)
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*opus.Codec); !ok {
		t.Fatalf("got %T, want *opus.Codec", cdc)
	}
}

func TestSniffDetectsWAV(t *testing.T) {
	body := append([]byte("RIFF"), make([]byte, 4)...)
	body = append(body, []byte("WAVE")...)
	f := writeSniffFile(t, body)
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*wav.Codec); !ok {
		t.Fatalf("got %T, want *wav.Codec", cdc)
	}
}

func TestSniffDetectsID3MP3(t *testing.T) {
	f := writeSniffFile(t, append([]byte("ID3"), make([]byte, 16)...))
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*mp3.Codec); !ok {
		t.Fatalf("got %T, want *mp3.Codec", cdc)
	}
}

func TestSniffDetectsBareMPEGFrameSync(t *testing.T) {
	f := writeSniffFile(t, []byte{0xFF, 0xFB, 0x90, 0x00})
	cdc, err := sniff(f)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if _, ok := cdc.(*mp3.Codec); !ok {
		t.Fatalf("got %T, want *mp3.Codec", cdc)
	}
}

func TestSniffRejectsUnrecognizedFormat(t *testing.T) {
	f := writeSniffFile(t, []byte("not audio data at all"))
	if _, err := sniff(f); err == nil {
		t.Fatalf("expected error for unrecognized format")
	}
}
