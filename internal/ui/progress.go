package ui

import (
	"sync"
	"time"
)

// rateInterval is the minimum spacing between throughput samples;
// shorter gaps are noise, not signal.
const rateInterval = 500 * time.Millisecond

// etaSmoothing is the weight given to the newest ETA estimate. The
// remainder carries over from the previous estimate so per-file
// variance does not make the countdown jump around.
const etaSmoothing = 0.3

// Tracker accumulates progress state across stages. Safe for
// concurrent use.
type Tracker struct {
	mu          sync.Mutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startedAt   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastCount int
	lastTick  time.Time
	rate      float64
	peakRate  float64
	history   *Sparkline

	smoothedETA time.Duration
}

// RateStats holds throughput figures for display.
type RateStats struct {
	Current float64 // items/sec over the last sample window
	Peak    float64 // highest observed
}

// Snapshot is a point-in-time view of tracker state.
type Snapshot struct {
	Stage       Stage
	Current     int
	Total       int
	Fraction    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Rate        RateStats
}

// NewTracker creates a tracker starting in the scanning stage.
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		stage:      StageScanning,
		startedAt:  now,
		stageStart: now,
		lastTick:   now,
		history:    NewSparkline(60),
	}
}

// SetStage transitions to a new stage and resets per-stage counters.
func (t *Tracker) SetStage(stage Stage, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stage = stage
	t.total = total
	t.current = 0
	t.currentFile = ""
	t.stageStart = time.Now()
	t.smoothedETA = 0

	t.lastCount = 0
	t.lastTick = t.stageStart
	t.rate = 0
	t.peakRate = 0
	t.history.Reset()
}

// Update records progress within the current stage.
func (t *Tracker) Update(current int, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = current
	if file != "" {
		t.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(t.lastTick)
	if elapsed < rateInterval {
		return
	}
	if delta := current - t.lastCount; delta > 0 {
		r := float64(delta) / elapsed.Seconds()
		t.rate = r
		if r > t.peakRate {
			t.peakRate = r
		}
		t.history.Push(r)
	}
	t.lastCount = current
	t.lastTick = now
}

// AddError records a failure or warning.
func (t *Tracker) AddError(event ErrorEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.IsWarn {
		t.warnings = append(t.warnings, event)
	} else {
		t.errors = append(t.errors, event)
	}
}

// Stats returns a snapshot of the current state. The ETA estimate is
// refreshed as a side effect.
func (t *Tracker) Stats() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	fraction := 0.0
	if t.total > 0 {
		fraction = float64(t.current) / float64(t.total)
		if fraction > 1.0 {
			fraction = 1.0
		}
	}

	return Snapshot{
		Stage:       t.stage,
		Current:     t.current,
		Total:       t.total,
		Fraction:    fraction,
		ETA:         t.estimateETA(),
		CurrentFile: t.currentFile,
		ErrorCount:  len(t.errors),
		WarnCount:   len(t.warnings),
		Rate: RateStats{
			Current: t.rate,
			Peak:    t.peakRate,
		},
	}
}

// Elapsed returns time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startedAt)
}

// Errors returns a copy of the recorded failures.
func (t *Tracker) Errors() []ErrorEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorEvent, len(t.errors))
	copy(out, t.errors)
	return out
}

// Warnings returns a copy of the recorded warnings.
func (t *Tracker) Warnings() []ErrorEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ErrorEvent, len(t.warnings))
	copy(out, t.warnings)
	return out
}

// Rate returns the current throughput figures.
func (t *Tracker) Rate() RateStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return RateStats{Current: t.rate, Peak: t.peakRate}
}

// History renders the throughput sparkline at the given width.
func (t *Tracker) History(width int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Render(width)
}

// estimateETA projects remaining time from stage elapsed and fraction,
// then blends with the previous estimate. Caller holds the lock.
func (t *Tracker) estimateETA() time.Duration {
	if t.current == 0 || t.total == 0 {
		return 0
	}

	fraction := float64(t.current) / float64(t.total)
	if fraction <= 0 || fraction >= 1.0 {
		return 0
	}

	elapsed := time.Since(t.stageStart)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining < 0 {
		return 0
	}

	if t.smoothedETA == 0 {
		t.smoothedETA = remaining
		return remaining
	}
	t.smoothedETA = time.Duration(
		etaSmoothing*float64(remaining) + (1-etaSmoothing)*float64(t.smoothedETA),
	)
	return t.smoothedETA
}
