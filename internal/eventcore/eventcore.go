// Package eventcore implements the poll/timer abstraction shared by the
// main process, the control endpoint, and the player worker: one
// goroutine per process drives readiness-based dispatch instead of
// blocking I/O, in a single-threaded-cooperative model.
package eventcore

import (
	"container/heap"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is a bitmask of the readiness a registered fd cares about.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Handler is invoked at most once per ready fd per Loop.RunOnce call,
// with every ready interest bit combined into ready.
type Handler func(fd int, ready Interest)

// TimerFunc is invoked once, after its deadline elapses.
type TimerFunc func()

// Loop is a single-threaded epoll-driven readiness multiplexer with a
// one-shot timer wheel. It is not safe for concurrent use: exactly one
// goroutine per process calls RunOnce, matching the cooperative scheduling
// model described above.
type Loop struct {
	epfd     int
	handlers map[int]Handler
	interest map[int]Interest
	timers   timerHeap
	closed   bool
}

// New creates an epoll-backed Loop.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventcore: epoll_create1: %w", err)
	}
	return &Loop{
		epfd:     epfd,
		handlers: make(map[int]Handler),
		interest: make(map[int]Interest),
	}, nil
}

// Close releases the underlying epoll instance.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.epfd)
}

func toEpollEvents(i Interest) uint32 {
	var ev uint32
	if i&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if i&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register adds fd to the loop with the given interest and handler.
func (l *Loop) Register(fd int, interest Interest, h Handler) error {
	l.handlers[fd] = h
	l.interest[fd] = interest
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("eventcore: epoll_ctl(add, %d): %w", fd, err)
	}
	return nil
}

// Modify changes the interest set for an already-registered fd.
func (l *Loop) Modify(fd int, interest Interest) error {
	l.interest[fd] = interest
	ev := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return fmt.Errorf("eventcore: epoll_ctl(mod, %d): %w", fd, err)
	}
	return nil
}

// Unregister removes fd from the loop entirely.
func (l *Loop) Unregister(fd int) error {
	delete(l.handlers, fd)
	delete(l.interest, fd)
	err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return fmt.Errorf("eventcore: epoll_ctl(del, %d): %w", fd, err)
	}
	return nil
}

// Detach removes interest bits from fd without forgetting the handler,
// so a later Attach can restore it. Used by the control endpoint's
// accept-pause backpressure.
func (l *Loop) Detach(fd int, interest Interest) error {
	remaining := l.interest[fd] &^ interest
	if remaining == 0 {
		l.interest[fd] = 0
		err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err != nil && err != unix.ENOENT {
			return fmt.Errorf("eventcore: epoll_ctl(del, %d): %w", fd, err)
		}
		return nil
	}
	return l.Modify(fd, remaining)
}

// Attach restores interest bits on a previously registered fd.
func (l *Loop) Attach(fd int, interest Interest) error {
	h, ok := l.handlers[fd]
	if !ok {
		return fmt.Errorf("eventcore: Attach on unregistered fd %d", fd)
	}
	if l.interest[fd] == 0 {
		return l.Register(fd, interest, h)
	}
	return l.Modify(fd, l.interest[fd]|interest)
}

// ArmTimer schedules fn to run once after d elapses, from within Run.
func (l *Loop) ArmTimer(d time.Duration, fn TimerFunc) {
	heap.Push(&l.timers, &timer{deadline: time.Now().Add(d), fn: fn})
}

// RunOnce waits up to maxWait (less if a timer is due sooner), dispatches
// the fds that became ready, then fires every expired timer. Callers loop
// calling it until they decide to stop.
func (l *Loop) RunOnce(maxWait time.Duration) error {
	timeout := l.nextTimeout(maxWait)

	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(l.epfd, events, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			n = 0
		} else {
			return fmt.Errorf("eventcore: epoll_wait: %w", err)
		}
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		h, ok := l.handlers[fd]
		if !ok {
			continue
		}
		var ready Interest
		if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ready |= Readable
		}
		if events[i].Events&unix.EPOLLOUT != 0 {
			ready |= Writable
		}
		if ready != 0 {
			h(fd, ready)
		}
	}

	l.fireExpiredTimers()
	return nil
}

func (l *Loop) nextTimeout(maxWait time.Duration) time.Duration {
	if len(l.timers) == 0 {
		return maxWait
	}
	until := time.Until(l.timers[0].deadline)
	if until < 0 {
		return 0
	}
	if until < maxWait {
		return until
	}
	return maxWait
}

func (l *Loop) fireExpiredTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		t := heap.Pop(&l.timers).(*timer)
		t.fn()
	}
}

type timer struct {
	deadline time.Time
	fn       TimerFunc
}

type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
