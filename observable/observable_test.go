package observable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type owner struct {
	name string
}

func TestCell_SetNotifiesInOrder(t *testing.T) {
	o := &owner{name: "root"}
	var calls []string

	c := New(o, 1,
		func(v, prev int) { calls = append(calls, "first") },
		func(v, prev int) { calls = append(calls, "second") },
	)

	got := c.Set(2)
	assert.Same(t, o, got, "Set should return the owner for chaining")
	assert.Equal(t, 2, c.Value())
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestCell_HandlerReceivesPrevious(t *testing.T) {
	var gotV, gotPrev string
	c := New(&owner{}, "a", func(v, prev string) {
		gotV, gotPrev = v, prev
	})

	c.Set("b")
	assert.Equal(t, "b", gotV)
	assert.Equal(t, "a", gotPrev)

	c.Update(func(s string) string { return s + "c" })
	assert.Equal(t, "bc", gotV)
	assert.Equal(t, "b", gotPrev)
}

func TestCell_TriggerChange(t *testing.T) {
	slice := []int{1}
	count := 0
	c := New(&owner{}, slice, func(v, prev []int) {
		count++
		assert.Nil(t, prev)
	})

	c.Value()[0] = 5
	c.TriggerChange()
	assert.Equal(t, 1, count)
	assert.Equal(t, 5, c.Value()[0])
}

func TestCell_ReentrantSetIsQueued(t *testing.T) {
	var seen []int
	depth, maxDepth := 0, 0

	var c *Cell[int, *owner]
	c = New(&owner{}, 0, func(v, prev int) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		seen = append(seen, v)
		if v < 3 {
			c.Set(v + 1)
		}
		depth--
	})

	c.Set(1)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 1, maxDepth, "handlers must never nest")
	assert.Equal(t, 3, c.Value())
}

func TestCell_Subscribe(t *testing.T) {
	c := New(&owner{}, 0)
	require.Equal(t, 0, c.Len())

	n := 0
	c.Subscribe(func(v, prev int) { n += v })
	c.Set(4)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, c.Len())
}

func TestLinked_MirrorsUpstream(t *testing.T) {
	up := New(&owner{name: "sim"}, 10)
	down := &owner{name: "renderer"}

	var forwarded []int
	l := NewLinked(down, up, func(v, prev int) {
		forwarded = append(forwarded, v)
	})
	assert.Equal(t, 10, l.Value())

	up.Set(11)
	assert.Equal(t, 11, l.Value())
	assert.Equal(t, []int{11}, forwarded)

	got := l.Set(12)
	assert.Same(t, down, got)
	assert.Equal(t, 12, up.Value(), "Set on a linked cell writes upstream")
	assert.Equal(t, 12, l.Value())
	assert.Equal(t, []int{11, 12}, forwarded)
}

func TestLinked_TriggerChangeReachesSiblings(t *testing.T) {
	up := New(&owner{}, []string{"x"})
	a, b := 0, 0
	la := NewLinked(&owner{}, up, func(v, prev []string) { a++ })
	NewLinked(&owner{}, up, func(v, prev []string) { b++ })

	la.TriggerChange()
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
