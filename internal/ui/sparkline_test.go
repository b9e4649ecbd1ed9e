package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_Empty(t *testing.T) {
	// Given: a fresh sparkline
	s := NewSparkline(10)

	// Then: renders as blanks
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "     ", s.Render(5))
}

func TestSparkline_Push(t *testing.T) {
	// Given: a sparkline
	s := NewSparkline(10)

	// When: pushing samples
	s.Push(1)
	s.Push(2)
	s.Push(3)

	// Then: count tracks pushes
	assert.Equal(t, 3, s.Len())
}

func TestSparkline_Render_ScalesToMax(t *testing.T) {
	// Given: samples from low to high
	s := NewSparkline(10)
	s.Push(0)
	s.Push(50)
	s.Push(100)

	// When: rendering exactly the sample count
	out := []rune(s.Render(3))

	// Then: the largest sample gets the tallest rune
	assert.Len(t, out, 3)
	assert.Equal(t, '▁', out[0])
	assert.Equal(t, '█', out[2])
}

func TestSparkline_Render_PadsLeft(t *testing.T) {
	// Given: fewer samples than the window
	s := NewSparkline(10)
	s.Push(5)

	// When: rendering wider than the sample count
	out := s.Render(4)

	// Then: recent samples are right-aligned
	assert.Len(t, []rune(out), 4)
	assert.Equal(t, "   ", out[:3])
}

func TestSparkline_RingOverwrite(t *testing.T) {
	// Given: a small capacity
	s := NewSparkline(3)

	// When: pushing past capacity
	for i := 1; i <= 5; i++ {
		s.Push(float64(i))
	}

	// Then: only the newest samples remain
	assert.Equal(t, 3, s.Len())
	out := []rune(s.Render(3))
	// Newest sample (5) is the window max.
	assert.Equal(t, '█', out[2])
}

func TestSparkline_Reset(t *testing.T) {
	// Given: a sparkline with samples
	s := NewSparkline(5)
	s.Push(1)
	s.Push(2)

	// When: resetting
	s.Reset()

	// Then: empty again
	assert.Equal(t, 0, s.Len())
}

func TestSparkline_ZeroCapacityDefaults(t *testing.T) {
	// Given: a nonsense capacity
	s := NewSparkline(0)

	// When: pushing
	s.Push(1)

	// Then: still usable
	assert.Equal(t, 1, s.Len())
}
