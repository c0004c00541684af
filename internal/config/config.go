// Package config loads soundd's configuration: a YAML file layered with
// SOUNDD_-prefixed environment variables, matching the koanf-based
// loader style of the pack's device-daemon config layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config is the complete daemon configuration.
type Config struct {
	// SocketPath is the control socket's filesystem path. Empty means
	// derive it from XDG_RUNTIME_DIR/HOME at load time.
	SocketPath string `yaml:"socket_path" koanf:"socket_path"`

	// SnapshotPath is where the playlist is persisted on clean shutdown
	// and restored from at startup. Load replaces an empty value with
	// DefaultSnapshotPath, so a loaded Config always has persistence on;
	// callers skip persistence only when the field is empty.
	SnapshotPath string `yaml:"snapshot_path" koanf:"snapshot_path"`

	// AudioDevice identifies the output device passed to the audio
	// sink's negotiation step; empty selects the system default.
	AudioDevice string `yaml:"audio_device" koanf:"audio_device"`

	// DropPrivilegesTo, if set, is a "user[:group]" the main process
	// setuid/setgids to after binding the control socket.
	DropPrivilegesTo string `yaml:"drop_privileges_to" koanf:"drop_privileges_to"`

	// Verbose raises the logger to debug level.
	Verbose bool `yaml:"verbose" koanf:"verbose"`
}

// DefaultSocketPath resolves the socket path fallback rule:
// $XDG_RUNTIME_DIR/soundd/control.sock, or $HOME/.cache/soundd/control.sock.
func DefaultSocketPath() string {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "soundd", "control.sock")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache", "soundd", "control.sock")
}

// DefaultSnapshotPath mirrors DefaultSocketPath for the playlist
// snapshot file.
func DefaultSnapshotPath() string {
	if rt := os.Getenv("XDG_RUNTIME_DIR"); rt != "" {
		return filepath.Join(rt, "soundd", "playlist.snapshot")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache", "soundd", "playlist.snapshot")
}

// applyDefaults fills in anything Load left empty.
func (c *Config) applyDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath()
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = DefaultSnapshotPath()
	}
}

// Validate rejects configurations that would fail later in a confusing
// way.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("config: socket_path must not be empty")
	}
	if !filepath.IsAbs(c.SocketPath) {
		return fmt.Errorf("config: socket_path must be absolute: %s", c.SocketPath)
	}
	return nil
}
