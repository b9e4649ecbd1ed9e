package coordinator

import "time"

// Progress is one progress event for a repository run.
type Progress struct {
	Current int
	Total   int
	Message string
}

// ProgressFunc receives throttled progress events.
type ProgressFunc func(Progress)

const (
	progressInterval = time.Second
	progressEvery    = 10
)

// throttle gates progress emission to once per interval or every N
// completions, whichever comes first. The final completion always
// passes so consumers see 100%.
type throttle struct {
	interval time.Duration
	every    int

	lastTime  time.Time
	lastCount int

	now func() time.Time
}

func newThrottle() *throttle {
	return &throttle{
		interval: progressInterval,
		every:    progressEvery,
		now:      time.Now,
	}
}

// allow reports whether the event for the given completion count should
// be emitted, and records the emission when it is.
func (t *throttle) allow(current, total int) bool {
	if current >= total {
		return t.emit(current)
	}
	if current-t.lastCount >= t.every {
		return t.emit(current)
	}
	if t.now().Sub(t.lastTime) >= t.interval {
		return t.emit(current)
	}
	return false
}

func (t *throttle) emit(current int) bool {
	t.lastTime = t.now()
	t.lastCount = current
	return true
}
