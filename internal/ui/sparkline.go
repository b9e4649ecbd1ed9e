package ui

import "strings"

// sparkRunes are the block characters used for the throughput chart,
// lowest to highest.
var sparkRunes = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps a ring of recent samples and renders them as a block
// chart scaled to the window maximum. Not safe for concurrent use; the
// tracker guards it.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (s *Sparkline) Push(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	if s.count < len(s.samples) {
		s.count++
	}
}

// Len returns the number of stored samples.
func (s *Sparkline) Len() int {
	return s.count
}

// Reset drops all samples.
func (s *Sparkline) Reset() {
	s.head = 0
	s.count = 0
}

// Render draws the most recent samples right-aligned into width cells.
// Cells with no sample yet render as spaces.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}

	shown := s.count
	if shown > width {
		shown = width
	}

	// Window maximum for scaling.
	max := 0.0
	for i := 0; i < shown; i++ {
		if v := s.at(s.count - shown + i); v > max {
			max = v
		}
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	for i := 0; i < width-shown; i++ {
		sb.WriteRune(' ')
	}
	for i := 0; i < shown; i++ {
		v := s.at(s.count - shown + i)
		idx := 0
		if max > 0 {
			idx = int(v / max * float64(len(sparkRunes)-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= len(sparkRunes) {
				idx = len(sparkRunes) - 1
			}
		}
		sb.WriteRune(sparkRunes[idx])
	}
	return sb.String()
}

// at returns the i-th oldest stored sample, i in [0, count).
func (s *Sparkline) at(i int) float64 {
	start := s.head - s.count
	for start < 0 {
		start += len(s.samples)
	}
	return s.samples[(start+i)%len(s.samples)]
}
