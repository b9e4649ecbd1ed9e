package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_EveryTenthCompletion(t *testing.T) {
	now := time.Unix(1000, 0)
	th := newThrottle()
	th.now = func() time.Time { return now }
	th.lastTime = now // suppress the time gate

	var emitted []int
	for i := 1; i <= 35; i++ {
		if th.allow(i, 100) {
			emitted = append(emitted, i)
		}
	}
	assert.Equal(t, []int{10, 20, 30}, emitted)
}

func TestThrottle_OncePerSecond(t *testing.T) {
	now := time.Unix(1000, 0)
	th := newThrottle()
	th.now = func() time.Time { return now }
	th.lastTime = now

	assert.False(t, th.allow(1, 100))

	now = now.Add(time.Second)
	assert.True(t, th.allow(2, 100))
	assert.False(t, th.allow(3, 100))

	now = now.Add(500 * time.Millisecond)
	assert.False(t, th.allow(4, 100))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, th.allow(5, 100))
}

func TestThrottle_FinalCompletionAlwaysPasses(t *testing.T) {
	now := time.Unix(1000, 0)
	th := newThrottle()
	th.now = func() time.Time { return now }
	th.lastTime = now
	th.lastCount = 95

	assert.False(t, th.allow(99, 100))
	assert.True(t, th.allow(100, 100))
}

func TestThrottle_CountResetsAfterTimeEmit(t *testing.T) {
	now := time.Unix(1000, 0)
	th := newThrottle()
	th.now = func() time.Time { return now }
	th.lastTime = now

	for i := 1; i <= 4; i++ {
		assert.False(t, th.allow(i, 100))
	}
	now = now.Add(time.Second)
	assert.True(t, th.allow(5, 100))

	// The counter restarts from the emission point.
	for i := 6; i <= 14; i++ {
		assert.False(t, th.allow(i, 100), "completion %d", i)
	}
	assert.True(t, th.allow(15, 100))
}
