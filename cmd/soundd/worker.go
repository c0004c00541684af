package main

import (
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/soundd/internal/audiosink"
	"github.com/drgolem/soundd/internal/eventcore"
	"github.com/drgolem/soundd/internal/ipc"
	"github.com/drgolem/soundd/internal/player"
	"github.com/drgolem/soundd/internal/workerspawn"
)

// deviceIndexEnv carries the audio device index serve.go already
// resolved from the config string, so the worker never has to repeat
// that resolution or load a config file of its own.
const deviceIndexEnv = "SOUNDD_WORKER_DEVICE_INDEX"

var internalWorkerCmd = &cobra.Command{
	Use:    workerspawn.RoleArg,
	Short:  "Run the player-worker control loop (internal use only)",
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(internalWorkerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	fd, err := workerspawn.WorkerFD()
	if err != nil {
		log.Error("worker: no inherited control fd", "error", err)
		return err
	}
	conn, err := ipc.NewConnFromFD(fd)
	if err != nil {
		log.Error("worker: adopt control fd", "error", err)
		return err
	}
	defer conn.Close()

	if err := portaudio.Initialize(); err != nil {
		log.Error("worker: initialize portaudio", "error", err)
		return err
	}
	defer portaudio.Terminate()

	sink := audiosink.New(workerDeviceIndex())
	defer sink.Stop()

	loop, err := eventcore.New()
	if err != nil {
		log.Error("worker: eventcore.New", "error", err)
		return err
	}
	defer loop.Close()

	p, err := player.New(log, loop, conn, sink)
	if err != nil {
		log.Error("worker: player.New", "error", err)
		return err
	}
	defer p.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	log.Info("worker: ready")
	for {
		select {
		case <-p.Done():
			log.Info("worker: control connection closed, exiting")
			return nil
		case s := <-sig:
			log.Info("worker: signal received, exiting", "signal", s)
			return nil
		default:
		}
		if err := loop.RunOnce(200 * time.Millisecond); err != nil {
			log.Error("worker: RunOnce", "error", err)
			return err
		}
	}
}

// workerDeviceIndex reads the device index serve.go resolved for this
// instance. A missing or malformed value falls back to -1, PortAudio's
// default output device.
func workerDeviceIndex() int {
	v := os.Getenv(deviceIndexEnv)
	if v == "" {
		return -1
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return idx
}
