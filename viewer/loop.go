package viewer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FrameID identifies a requested frame callback.
type FrameID uint64

// Scheduler is the frame-scheduling primitive driving the animation loop.
type Scheduler interface {
	// RequestFrame queues fn for the next frame.
	RequestFrame(fn func()) FrameID
	// CancelFrame drops a queued callback. Unknown ids are ignored.
	CancelFrame(id FrameID)
}

type frameRequest struct {
	id FrameID
	fn func()
}

// frameQueue is the bookkeeping shared by both schedulers.
type frameQueue struct {
	next    FrameID
	pending []frameRequest
}

func (q *frameQueue) request(fn func()) FrameID {
	q.next++
	q.pending = append(q.pending, frameRequest{id: q.next, fn: fn})
	return q.next
}

func (q *frameQueue) cancel(id FrameID) {
	for i, r := range q.pending {
		if r.id == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// take returns the callbacks queued so far. Callbacks requested while they
// run belong to the next frame.
func (q *frameQueue) take() []frameRequest {
	batch := q.pending
	q.pending = nil
	return batch
}

// ManualScheduler runs frames only when Step is called. It is used by
// tests and batch rendering.
type ManualScheduler struct {
	q frameQueue
}

// NewManualScheduler creates an idle scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) RequestFrame(fn func()) FrameID {
	return s.q.request(fn)
}

func (s *ManualScheduler) CancelFrame(id FrameID) {
	s.q.cancel(id)
}

// Pending returns the number of queued callbacks.
func (s *ManualScheduler) Pending() int {
	return len(s.q.pending)
}

// Step runs one frame. It reports whether anything ran.
func (s *ManualScheduler) Step() bool {
	batch := s.q.take()
	for _, r := range batch {
		r.fn()
	}
	return len(batch) > 0
}

// Run runs up to n frames, stopping early when nothing is queued.
func (s *ManualScheduler) Run(n int) int {
	ran := 0
	for ; ran < n && s.Step(); ran++ {
	}
	return ran
}

// Loop is a real-time scheduler. Run drives frames from a ticker on one
// goroutine and also executes host calls submitted through Do on that same
// goroutine, so controller state is only ever touched by one goroutine.
type Loop struct {
	interval time.Duration
	logger   *slog.Logger

	mu sync.Mutex
	q  frameQueue

	tasks chan func()
}

// NewLoop creates a loop ticking every interval. Non-positive intervals
// default to 60 frames per second.
func NewLoop(interval time.Duration, logger *slog.Logger) *Loop {
	if interval <= 0 {
		interval = time.Second / 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		interval: interval,
		logger:   logger,
		tasks:    make(chan func()),
	}
}

func (l *Loop) RequestFrame(fn func()) FrameID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.request(fn)
}

func (l *Loop) CancelFrame(id FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.q.cancel(id)
}

// Run processes frames and tasks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Debug("frame loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("frame loop stopped")
			return ctx.Err()
		case task := <-l.tasks:
			task()
		case <-ticker.C:
			l.mu.Lock()
			batch := l.q.take()
			l.mu.Unlock()
			for _, r := range batch {
				r.fn()
			}
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish. It fails
// only when ctx ends first.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
