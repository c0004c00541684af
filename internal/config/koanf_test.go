package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath == "" {
		t.Fatalf("expected a default socket_path")
	}
	if cfg.SnapshotPath == "" {
		t.Fatalf("expected a default snapshot_path")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "soundd.yaml", ""+
		"socket_path: /tmp/soundd-test/control.sock\n"+
		"audio_device: hw:1,0\n"+
		"verbose: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/soundd-test/control.sock" {
		t.Fatalf("socket_path = %q", cfg.SocketPath)
	}
	if cfg.AudioDevice != "hw:1,0" {
		t.Fatalf("audio_device = %q", cfg.AudioDevice)
	}
	if !cfg.Verbose {
		t.Fatalf("expected verbose = true")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "soundd.yaml", "socket_path: /tmp/from-file/control.sock\n")

	t.Setenv("SOUNDD_SOCKET_PATH", "/tmp/from-env/control.sock")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SocketPath != "/tmp/from-env/control.sock" {
		t.Fatalf("socket_path = %q, want env override", cfg.SocketPath)
	}
}

func TestLoadRejectsRelativeSocketPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "soundd.yaml", "socket_path: relative/path.sock\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a relative socket_path")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
