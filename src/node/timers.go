package node

import (
	"math/rand"
	"time"
)

// intervalTimer tracks the next firing deadline of a periodic cycle. Firing
// times are jittered by up to 10% of the base interval so that nodes started
// together do not shuffle in lockstep.
type intervalTimer struct {
	base time.Duration
	next time.Time
	rng  *rand.Rand
}

func newIntervalTimer(base time.Duration, now time.Time, rng *rand.Rand) *intervalTimer {
	t := &intervalTimer{base: base, rng: rng}
	t.reset(now)
	return t
}

// due reports whether the deadline has passed and, if so, re-arms it.
func (t *intervalTimer) due(now time.Time) bool {
	if t.base <= 0 || now.Before(t.next) {
		return false
	}
	t.reset(now)
	return true
}

func (t *intervalTimer) reset(now time.Time) {
	jitter := time.Duration(0)
	if t.base >= 10 {
		jitter = time.Duration(t.rng.Int63n(int64(t.base / 10)))
	}
	t.next = now.Add(t.base + jitter)
}
