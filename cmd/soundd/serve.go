package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgolem/soundd/internal/config"
	"github.com/drgolem/soundd/internal/controlendpoint"
	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/orchestrator"
	"github.com/drgolem/soundd/internal/playlist"
	"github.com/drgolem/soundd/internal/snapshot"
	"github.com/drgolem/soundd/internal/supervisor"
	"github.com/drgolem/soundd/internal/workerspawn"
)

var verboseFlag bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the soundd daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug-level logging")
}

// exit codes: 0 clean shutdown, 1 fatal startup failure, 2 the
// player-worker exhausted its restart budget and the supervisor tree
// was torn down.
const (
	exitClean   = 0
	exitStartup = 1
	exitWorker  = 2
)

// workerRestartBudget and workerRestartBackoff bound how hard soundd
// retries a crashing player-worker before giving up and exiting 2.
const (
	workerRestartBudget  = 5
	workerRestartBackoff = 500 * time.Millisecond
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStartup)
	}

	logLevel := slog.LevelInfo
	if verboseFlag || cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	signal.Ignore(syscall.SIGPIPE)

	exePath, err := os.Executable()
	if err != nil {
		log.Error("serve: resolve own executable path", "error", err)
		os.Exit(exitStartup)
	}

	loop, err := eventcore.New()
	if err != nil {
		log.Error("serve: eventcore.New", "error", err)
		os.Exit(exitStartup)
	}
	defer loop.Close()

	var deviceIndex atomic.Int32
	deviceIndex.Store(int32(resolveDeviceIndex(log, cfg.AudioDevice)))

	sup := supervisor.New(log)
	supCtx, cancelSup := context.WithCancel(context.Background())
	defer cancelSup()

	rebindCh := make(chan *ipc.Conn, 1)
	spawnErrCh := make(chan error, 1)

	spawnWorker := func(ctx context.Context) (bool, error) {
		mainConn, workerFile, err := workerspawn.New()
		if err != nil {
			return false, fmt.Errorf("serve: create worker socketpair: %w", err)
		}
		deviceEnv := fmt.Sprintf("%s=%d", deviceIndexEnv, deviceIndex.Load())
		proc, err := workerspawn.Spawn(ctx, exePath, workerFile, deviceEnv)
		workerFile.Close()
		if err != nil {
			mainConn.Close()
			return false, fmt.Errorf("serve: spawn player-worker: %w", err)
		}

		select {
		case rebindCh <- mainConn:
		case <-ctx.Done():
			mainConn.Close()
			_ = proc.Process.Kill()
			return true, nil
		}

		waitErr := proc.Wait()
		if ctx.Err() != nil {
			return true, nil
		}
		if waitErr != nil {
			return false, fmt.Errorf("serve: player-worker exited: %w", waitErr)
		}
		return false, fmt.Errorf("serve: player-worker exited on its own")
	}

	sup.Add(supervisor.NewWorkerService(log, workerRestartBudget, workerRestartBackoff, spawnWorker))

	go func() {
		spawnErrCh <- sup.Serve(supCtx)
	}()

	var mainConn *ipc.Conn
	select {
	case mainConn = <-rebindCh:
	case err := <-spawnErrCh:
		log.Error("serve: player-worker failed to start", "error", err)
		os.Exit(exitStartup)
	case <-time.After(10 * time.Second):
		log.Error("serve: timed out waiting for the player-worker's first connection")
		os.Exit(exitStartup)
	}

	link, err := orchestrator.NewIPCPlayerLink(log, loop, mainConn)
	if err != nil {
		log.Error("serve: wire player link", "error", err)
		os.Exit(exitStartup)
	}

	orch := orchestrator.New(log, link, nil)

	if cfg.SnapshotPath != "" {
		list, err := snapshot.Load(cfg.SnapshotPath)
		if err != nil {
			log.Warn("serve: restore snapshot", "error", err)
		} else {
			orch.SetPlaylist(list)
		}
	}

	endpoint, err := controlendpoint.New(log, loop, orch, cfg.SocketPath)
	if err != nil {
		log.Error("serve: open control socket", "error", err)
		os.Exit(exitStartup)
	}

	orch.SetBroadcaster(endpoint.Broadcast)
	link.OnEvent(orch.HandleWorkerEvent)

	if err := dropPrivileges(log, cfg.DropPrivilegesTo); err != nil {
		log.Error("serve: drop privileges", "error", err)
		os.Exit(exitStartup)
	}

	runOnce := func(maxWait time.Duration) error {
		select {
		case conn := <-rebindCh:
			if err := link.Rebind(conn); err != nil {
				return fmt.Errorf("serve: rebind player link: %w", err)
			}
			log.Info("serve: player-worker reconnected")
			if orch.State() != playlist.Stopped {
				endpoint.Broadcast(orch.Next())
			}
		default:
		}
		return loop.RunOnce(maxWait)
	}
	sup.Add(supervisor.NewEventLoopService("event-loop", runOnce))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	log.Info("serve: ready", "socket", cfg.SocketPath)

	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGHUP:
				reloadConfig(log, &deviceIndex)
			default:
				log.Info("serve: signal received, shutting down", "signal", s)
				shutdown(log, cancelSup, spawnErrCh, endpoint, orch, cfg)
				os.Exit(exitClean)
			}
		case err := <-spawnErrCh:
			log.Error("serve: supervisor tree terminated", "error", err)
			persistAndClose(log, endpoint, orch, cfg)
			os.Exit(exitWorker)
		}
	}
}

// shutdown cancels the supervisor tree, waits briefly for it to drain,
// then persists the playlist snapshot and closes the control socket.
// It does not return control codes itself; callers decide the exit
// code.
func shutdown(log *slog.Logger, cancelSup context.CancelFunc, done <-chan error, endpoint *controlendpoint.Endpoint, orch *orchestrator.Orchestrator, cfg *config.Config) {
	cancelSup()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warn("serve: supervisor did not drain within the shutdown deadline")
	}
	persistAndClose(log, endpoint, orch, cfg)
}

// persistAndClose saves the playlist snapshot and closes the control
// socket. Shared by the graceful-shutdown and worker-exhausted exit
// paths so a restart budget blowout doesn't also lose the playlist.
func persistAndClose(log *slog.Logger, endpoint *controlendpoint.Endpoint, orch *orchestrator.Orchestrator, cfg *config.Config) {
	if cfg.SnapshotPath != "" {
		if err := snapshot.Save(cfg.SnapshotPath, orch.Playlist()); err != nil {
			log.Warn("serve: save snapshot", "error", err)
		}
	}
	if err := endpoint.Close(); err != nil {
		log.Warn("serve: close control endpoint", "error", err)
	}
}

// reloadConfig re-reads the config file (the same one the daemon
// originally started with) and applies the two settings that are safe
// to change while running: the output device, picked up by the next
// player-worker restart, and a fresh privilege-drop attempt, which is
// a no-op if privileges were already dropped and soundd is no longer
// running as the user that could do it again.
func reloadConfig(log *slog.Logger, deviceIndex *atomic.Int32) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Warn("serve: reload config", "error", err)
		return
	}
	deviceIndex.Store(int32(resolveDeviceIndex(log, cfg.AudioDevice)))
	if err := dropPrivileges(log, cfg.DropPrivilegesTo); err != nil {
		log.Warn("serve: drop privileges on reload", "error", err)
	}
	log.Info("serve: config reloaded")
}

// resolveDeviceIndex maps the configured device identifier to
// PortAudio's integer device index. go-portaudio indexes devices
// numerically with no by-name lookup available in this pack, so a
// numeric string is the only identifier accepted; anything else (or an
// empty string) selects the system default device (-1).
func resolveDeviceIndex(log *slog.Logger, identifier string) int {
	if identifier == "" {
		return -1
	}
	idx, err := strconv.Atoi(identifier)
	if err != nil {
		log.Warn("serve: audio_device is not a numeric device index, using the system default", "audio_device", identifier)
		return -1
	}
	return idx
}

// dropPrivileges parses "user[:group]" and setgids/setuids the process
// to it. An empty spec is a no-op. Group is set before user since
// dropping the uid first would leave the process without permission to
// change its gid.
func dropPrivileges(log *slog.Logger, spec string) error {
	if spec == "" {
		return nil
	}
	userName, groupName, hasGroup := splitUserGroup(spec)

	u, err := user.Lookup(userName)
	if err != nil {
		return fmt.Errorf("lookup user %q: %w", userName, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parse gid for %q: %w", userName, err)
	}
	if hasGroup {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("lookup group %q: %w", groupName, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("parse gid for group %q: %w", groupName, err)
		}
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parse uid for %q: %w", userName, err)
	}

	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("setgid(%d): %w", gid, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("setuid(%d): %w", uid, err)
	}
	log.Info("serve: dropped privileges", "user", userName, "uid", uid, "gid", gid)
	return nil
}

func splitUserGroup(spec string) (userName, groupName string, hasGroup bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], true
		}
	}
	return spec, "", false
}
