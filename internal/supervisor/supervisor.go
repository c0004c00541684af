// Package supervisor wires the main process's two long-running
// components — the shared event loop and the player-worker subprocess —
// into one suture.Supervisor tree, grounded on the pack's koanf/suture
// config-layer repo's dependency set. Unlike a generic supervision
// tree, a worker death here is not unconditionally restartable: the
// "exit code 2" condition is reached once the worker exhausts a small
// restart budget, at which point the tree is torn down deliberately
// rather than retried forever.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
)

// New returns a suture.Supervisor configured for soundd's two
// services. FailureThreshold/FailureDecay are left at suture's
// defaults; the worker's own restart budget (see WorkerService) is
// what actually enforces the small retry budget, not suture's generic
// backoff.
func New(log *slog.Logger) *suture.Supervisor {
	return suture.New("soundd", suture.Spec{
		EventHook: func(ev suture.Event) {
			log.Warn("supervisor: event", "event", ev.String())
		},
	})
}

// EventLoopService adapts an eventcore.Loop into a suture.Service: it
// owns the process's single cooperative-dispatch goroutine.
type EventLoopService struct {
	name string
	run  func(maxWait time.Duration) error
}

// NewEventLoopService wraps a RunOnce-style poller. runOnce is called
// repeatedly with a bounded wait so ctx cancellation is observed
// promptly instead of blocking indefinitely in epoll_wait.
func NewEventLoopService(name string, runOnce func(maxWait time.Duration) error) *EventLoopService {
	return &EventLoopService{name: name, run: runOnce}
}

func (s *EventLoopService) String() string { return s.name }

// Serve runs until ctx is cancelled or RunOnce reports a fatal error.
func (s *EventLoopService) Serve(ctx context.Context) error {
	const tick = 200 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := s.run(tick); err != nil {
			return err
		}
	}
}

// WorkerService supervises the player-worker subprocess's lifecycle.
// spawn starts one instance and blocks until it exits or ctx is
// cancelled; it returns (exitedCleanly, err). exitedCleanly=true for
// an exit the caller requested (ctx cancellation propagated into the
// child, or a deliberate Stop); false means the worker died on its
// own, which counts against maxRestarts.
type WorkerService struct {
	name        string
	spawn       func(ctx context.Context) (exitedCleanly bool, err error)
	maxRestarts int
	backoff     time.Duration
	log         *slog.Logger

	restarts int
}

// NewWorkerService wraps spawn with a restart budget. Exceeding
// maxRestarts returns a suture.ErrTerminateSupervisorTree-wrapped
// error, which brings down the whole tree so cmd/soundd can exit 2.
func NewWorkerService(log *slog.Logger, maxRestarts int, backoff time.Duration, spawn func(ctx context.Context) (bool, error)) *WorkerService {
	return &WorkerService{
		name:        "player-worker",
		spawn:       spawn,
		maxRestarts: maxRestarts,
		backoff:     backoff,
		log:         log,
	}
}

func (s *WorkerService) String() string { return s.name }

func (s *WorkerService) Serve(ctx context.Context) error {
	for {
		clean, err := s.spawn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if clean {
			s.restarts = 0
			continue
		}

		s.restarts++
		s.log.Warn("supervisor: worker exited unexpectedly", "restarts", s.restarts, "error", err)
		if s.restarts > s.maxRestarts {
			return fmt.Errorf("player-worker: exceeded %d restarts: %w: %w", s.maxRestarts, err, suture.ErrTerminateSupervisorTree)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.backoff):
		}
	}
}
