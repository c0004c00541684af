package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventLoopServiceStopsOnContextCancel(t *testing.T) {
	calls := 0
	svc := NewEventLoopService("test-loop", func(maxWait time.Duration) error {
		calls++
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if calls == 0 {
		t.Fatalf("expected RunOnce to be called at least once")
	}
}

func TestEventLoopServicePropagatesFatalError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewEventLoopService("test-loop", func(maxWait time.Duration) error {
		return boom
	})

	if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Serve: got %v, want %v", err, boom)
	}
}

func TestWorkerServiceRestartsOnUnexpectedExit(t *testing.T) {
	attempts := 0
	svc := NewWorkerService(testLogger(), 3, time.Millisecond, func(ctx context.Context) (bool, error) {
		attempts++
		if attempts >= 2 {
			return true, nil
		}
		return false, errors.New("device error")
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := svc.Serve(ctx)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if attempts < 2 {
		t.Fatalf("attempts = %d, want at least 2", attempts)
	}
}

func TestWorkerServiceTerminatesTreeAfterBudgetExhausted(t *testing.T) {
	svc := NewWorkerService(testLogger(), 2, time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, errors.New("device error")
	})

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatalf("expected an error once the restart budget is exhausted")
	}
	if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Fatalf("expected ErrTerminateSupervisorTree, got %T: %v", err, err)
	}
}

func TestWorkerServiceCleanExitResetsRestartCount(t *testing.T) {
	attempts := 0
	svc := NewWorkerService(testLogger(), 3, time.Millisecond, func(ctx context.Context) (bool, error) {
		attempts++
		switch attempts {
		case 1, 2:
			return false, errors.New("device error")
		case 3:
			return true, nil
		default:
			return true, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := svc.Serve(ctx); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
