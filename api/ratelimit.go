package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// setupMaxAttempts bounds how many enrollment attempts a user may make
	// within setupWindow.
	setupMaxAttempts = 3
	setupWindow      = 15 * time.Minute

	// verifyMaxAttempts bounds verification attempts (TOTP or recovery code)
	// within verifyWindow.
	verifyMaxAttempts = 5
	verifyWindow      = 15 * time.Minute

	// sendMaxAttempts bounds out-of-band code deliveries within sendWindow.
	// Unlike the verify limiter, every send counts: each one costs a store
	// read, a decryption and an outbound message regardless of outcome.
	sendMaxAttempts = 5
	sendWindow      = 15 * time.Minute
)

// attemptLimiter enforces a per-key sliding window. Keys are user IDs, never
// raw codes or secrets, so limiter state holds no credential material.
type attemptLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		max:      max,
		window:   window,
		attempts: make(map[string][]time.Time),
	}
}

// check returns true if the key is over its limit, along with how long the
// caller should wait. A zero duration means the request may proceed.
func (rl *attemptLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.trimLocked(key, now)
	if len(recent) < rl.max {
		return false, 0
	}
	// The oldest attempt inside the window determines when a slot frees up.
	return true, recent[0].Add(rl.window).Sub(now)
}

// record counts an attempt against the key.
func (rl *attemptLimiter) record(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.attempts[key] = append(rl.trimLocked(key, now), now)
}

// clear resets the counter after a successful attempt.
func (rl *attemptLimiter) clear(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// sweep removes keys whose attempts have all aged out. Call periodically from
// a background goroutine.
func (rl *attemptLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key := range rl.attempts {
		if len(rl.trimLocked(key, now)) == 0 {
			delete(rl.attempts, key)
		}
	}
}

// trimLocked drops attempts outside the window and returns the remainder.
// Caller must hold rl.mu.
func (rl *attemptLimiter) trimLocked(key string, now time.Time) []time.Time {
	recent := rl.attempts[key]
	cutoff := now.Add(-rl.window)
	start := 0
	for start < len(recent) && !recent[start].After(cutoff) {
		start++
	}
	recent = recent[start:]
	if len(recent) == 0 {
		delete(rl.attempts, key)
	} else {
		rl.attempts[key] = recent
	}
	return recent
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, KindRateLimited, "too many attempts; try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
