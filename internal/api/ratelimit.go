package api

import (
	"sync"
	"time"
)

// RateLimiter guards the admission endpoints against a caller hammering
// them with a bad API key, adapted from internal/auth/ratelimit.go's
// attempt-window tracker: same mutex-over-map-with-cleanup-goroutine shape,
// narrowed to a plain fixed window per key instead of exponential backoff.
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*window
	maxAttempts int
	windowSecs  int
}

type window struct {
	count   int
	firstAt time.Time
}

// NewRateLimiter creates a limiter allowing maxAttempts per windowSecs,
// keyed by caller identity (API key or remote IP before authentication).
func NewRateLimiter(maxAttempts, windowSecs int) *RateLimiter {
	rl := &RateLimiter{
		attempts:    make(map[string]*window),
		maxAttempts: maxAttempts,
		windowSecs:  windowSecs,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether key may proceed, recording the attempt either way.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.attempts[key]
	if !ok || time.Since(w.firstAt) > time.Duration(rl.windowSecs)*time.Second {
		rl.attempts[key] = &window{count: 1, firstAt: time.Now()}
		return true
	}

	w.count++
	return w.count <= rl.maxAttempts
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		time.Sleep(5 * time.Minute)
		rl.mu.Lock()
		cutoff := time.Duration(rl.windowSecs) * time.Second
		for k, w := range rl.attempts {
			if time.Since(w.firstAt) > cutoff {
				delete(rl.attempts, k)
			}
		}
		rl.mu.Unlock()
	}
}
