package identity

import (
	"sync"
	"time"
)

// attemptLimiter is a per-source sliding window over login attempts. It is
// consulted before the identity record is touched so a flood of attempts
// cannot trip lockouts for accounts the attacker does not own.
type attemptLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	sources map[string][]time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		limit:   limit,
		window:  window,
		sources: make(map[string][]time.Time),
	}
}

// allow records one attempt from source and reports whether it fits the
// window, with a retry hint when it does not.
func (l *attemptLimiter) allow(source string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	attempts := l.sources[source]
	kept := attempts[:0]
	for _, ts := range attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		retryAfter := kept[0].Add(l.window).Sub(now)
		l.sources[source] = kept
		return false, retryAfter
	}

	l.sources[source] = append(kept, now)
	return true, 0
}

// sweep drops sources whose every attempt has aged out of the window.
func (l *attemptLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for source, attempts := range l.sources {
		live := false
		for _, ts := range attempts {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.sources, source)
		}
	}
}
