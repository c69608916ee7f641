package colortrack

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entity struct {
	id int
}

func TestTracker_RoundTrip(t *testing.T) {
	tr := New[*entity](DefaultChecksumBits)
	require.Equal(t, 1<<18, tr.Cap())

	entities := make([]*entity, 500)
	colors := make([]string, len(entities))
	for i := range entities {
		entities[i] = &entity{id: i}
		c, ok := tr.Register(entities[i])
		require.True(t, ok)
		require.Len(t, c, 7)
		colors[i] = c
	}

	for i, c := range colors {
		got, ok := tr.Lookup(c)
		require.True(t, ok, "color %s", c)
		assert.Same(t, entities[i], got)
	}
}

func TestTracker_LookupRGBMatchesHex(t *testing.T) {
	tr := New[string](DefaultChecksumBits)
	c, ok := tr.Register("node")
	require.True(t, ok)

	var r, g, b uint8
	_, err := fmt.Sscanf(c, "#%02x%02x%02x", &r, &g, &b)
	require.NoError(t, err)

	got, ok := tr.LookupRGB(r, g, b)
	require.True(t, ok)
	assert.Equal(t, "node", got)
}

func TestTracker_ResetInvalidatesColors(t *testing.T) {
	tr := New[int](DefaultChecksumBits)
	var colors []string
	for i := 1; i <= 10; i++ {
		c, ok := tr.Register(i)
		require.True(t, ok)
		colors = append(colors, c)
	}

	tr.Reset()
	assert.Equal(t, 1, tr.Len())
	for _, c := range colors {
		_, ok := tr.Lookup(c)
		assert.False(t, ok, "color %s should not resolve after reset", c)
	}
}

func TestTracker_ChecksumRejection(t *testing.T) {
	tr := New[int](DefaultChecksumBits)
	for i := 1; i <= 64; i++ {
		_, ok := tr.Register(i)
		require.True(t, ok)
	}

	for idx := 1; idx <= 64; idx++ {
		good := checksum(idx, DefaultChecksumBits)
		for cs := 0; cs < 1<<DefaultChecksumBits; cs++ {
			if cs == good {
				continue
			}
			corrupted := fmt.Sprintf("#%06x", idx+cs<<(24-DefaultChecksumBits))
			_, ok := tr.Lookup(corrupted)
			assert.False(t, ok, "index %d with checksum %d should be rejected", idx, cs)
		}
	}
}

func TestTracker_BackgroundAndGarbage(t *testing.T) {
	tr := New[int](DefaultChecksumBits)
	_, _ = tr.Register(7)

	tests := []struct {
		name  string
		color string
	}{
		{"background", "#000000"},
		{"empty", ""},
		{"not hex", "#zzzzzz"},
		{"short", "#fff"},
		{"unallocated index", fmt.Sprintf("#%06x", 2+checksum(2, DefaultChecksumBits)<<18)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tr.Lookup(tt.color)
			assert.False(t, ok)
		})
	}

	_, ok := tr.LookupRGB(0, 0, 0)
	assert.False(t, ok)
}

func TestTracker_Full(t *testing.T) {
	// 20 checksum bits leave 16 slots, one of them reserved.
	tr := New[int](20)
	require.Equal(t, 16, tr.Cap())

	for i := 1; i < 16; i++ {
		_, ok := tr.Register(i)
		require.True(t, ok, "slot %d", i)
	}
	assert.True(t, tr.Full())

	c, ok := tr.Register(99)
	assert.False(t, ok)
	assert.Empty(t, c)
}

func TestTracker_Remove(t *testing.T) {
	tr := New[string](DefaultChecksumBits)
	a, _ := tr.Register("a")
	b, _ := tr.Register("b")

	tr.Remove(a)
	_, ok := tr.Lookup(a)
	assert.False(t, ok)

	got, ok := tr.Lookup(b)
	require.True(t, ok)
	assert.Equal(t, "b", got)

	idx, ok := tr.Index(b)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestChecksumIsDeterministic(t *testing.T) {
	assert.Equal(t, 123%64, checksum(1, 6))
	assert.Equal(t, (2*123)%64, checksum(2, 6))
	assert.Equal(t, 0, checksum(64, 6))
}
