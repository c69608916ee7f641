// Package observable provides the reactive value cells that connect the
// simulation, the renderers and the interaction controller.
//
// A Cell holds a value and an ordered list of change handlers. Handlers run
// synchronously on the goroutine calling Set, in registration order, before
// Set returns. Cells are not safe for concurrent use; all access happens on
// the frame loop goroutine.
//
// A Set issued on a cell from inside one of its own handlers is not applied
// recursively. It is queued and applied once the current fan-out has
// finished, so a handler can never recurse into its own cell.
package observable

// Handler is called with the new value and the value it replaced.
// For TriggerChange the previous value is the zero value of T.
type Handler[T any] func(value, prev T)

// Cell is an observable value owned by R. Setters return the owner so
// configuration calls can be chained.
type Cell[T any, R any] struct {
	value    T
	owner    R
	handlers []Handler[T]

	notifying bool
	pending   []pendingChange[T]

	// write is overridden by Linked to forward writes upstream.
	write func(T)
}

type pendingChange[T any] struct {
	value   T
	trigger bool
}

// New creates a cell owned by owner holding value.
func New[T any, R any](owner R, value T, handlers ...Handler[T]) *Cell[T, R] {
	c := &Cell[T, R]{
		value:    value,
		owner:    owner,
		handlers: append([]Handler[T](nil), handlers...),
	}
	c.write = c.store
	return c
}

// Value returns the current value.
func (c *Cell[T, R]) Value() T {
	return c.value
}

// Owner returns the owner passed at construction.
func (c *Cell[T, R]) Owner() R {
	return c.owner
}

// Set stores v and notifies every handler with (v, previous).
func (c *Cell[T, R]) Set(v T) R {
	c.write(v)
	return c.owner
}

// Update replaces the value with fn(current).
func (c *Cell[T, R]) Update(fn func(T) T) R {
	return c.Set(fn(c.value))
}

// TriggerChange notifies handlers without changing the value. It is used
// after the value was mutated in place.
func (c *Cell[T, R]) TriggerChange() {
	if c.notifying {
		c.pending = append(c.pending, pendingChange[T]{trigger: true})
		return
	}
	var zero T
	c.fanOut(c.value, zero)
}

// Subscribe appends a handler.
func (c *Cell[T, R]) Subscribe(h Handler[T]) {
	c.handlers = append(c.handlers, h)
}

// Len returns the number of registered handlers.
func (c *Cell[T, R]) Len() int {
	return len(c.handlers)
}

func (c *Cell[T, R]) store(v T) {
	if c.notifying {
		c.pending = append(c.pending, pendingChange[T]{value: v})
		return
	}
	prev := c.value
	c.value = v
	c.fanOut(v, prev)
}

func (c *Cell[T, R]) fanOut(v, prev T) {
	c.notifying = true
	defer func() { c.notifying = false }()

	for {
		for _, h := range c.handlers {
			h(v, prev)
		}
		if len(c.pending) == 0 {
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		if next.trigger {
			var zero T
			v, prev = c.value, zero
			continue
		}
		prev = c.value
		c.value = next.value
		v = next.value
	}
}

// Linked mirrors an upstream cell. Upstream changes update the mirrored
// value and are forwarded to the linked cell's own handlers; Set and
// TriggerChange on the linked cell go through the upstream cell so every
// mirror of it observes the change.
type Linked[T any, R any] struct {
	*Cell[T, R]
	trigger func()
}

// NewLinked creates a cell owned by owner that mirrors upstream.
func NewLinked[T any, R any, U any](owner R, upstream *Cell[T, U], handlers ...Handler[T]) *Linked[T, R] {
	c := New(owner, upstream.Value(), handlers...)
	c.write = func(v T) { upstream.Set(v) }

	upstream.Subscribe(func(v, prev T) {
		c.value = v
		for _, h := range c.handlers {
			h(v, prev)
		}
	})
	return &Linked[T, R]{Cell: c, trigger: upstream.TriggerChange}
}

// TriggerChange notifies the upstream cell, and through it every mirror.
func (l *Linked[T, R]) TriggerChange() {
	l.trigger()
}
