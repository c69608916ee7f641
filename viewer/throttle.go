package viewer

import "time"

// Throttle limits how often fn runs. The first call runs immediately;
// calls inside the wait window collapse into one trailing call, which runs
// on the first Poll after the window closes. Poll is driven by the frame
// loop, so fn always runs on the frame goroutine.
type Throttle struct {
	fn      func()
	wait    time.Duration
	now     func() time.Time
	last    time.Time
	ran     bool
	pending bool
}

// NewThrottle creates a throttle around fn. A nil clock means time.Now.
func NewThrottle(fn func(), wait time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{fn: fn, wait: wait, now: now}
}

// Call runs fn now if the window is open, otherwise marks a trailing call.
func (t *Throttle) Call() {
	now := t.now()
	if !t.ran || now.Sub(t.last) >= t.wait {
		t.invoke(now)
		return
	}
	t.pending = true
}

// Poll runs the trailing call once its window has closed.
func (t *Throttle) Poll() {
	if !t.pending {
		return
	}
	if now := t.now(); now.Sub(t.last) >= t.wait {
		t.invoke(now)
	}
}

// Pending reports whether a trailing call is waiting.
func (t *Throttle) Pending() bool {
	return t.pending
}

// Flush runs a waiting trailing call immediately.
func (t *Throttle) Flush() {
	if t.pending {
		t.invoke(t.now())
	}
}

// Cancel drops a waiting trailing call.
func (t *Throttle) Cancel() {
	t.pending = false
}

func (t *Throttle) invoke(now time.Time) {
	t.pending = false
	t.ran = true
	t.last = now
	t.fn()
}
