package services

import (
	"sort"
	"sync"
	"time"

	"route-aggregator/internal/config"
	"route-aggregator/internal/metrics"
)

// Default admission window applied when a source has no usable limit configured.
const (
	DefaultRateLimitMax    = 50
	DefaultRateLimitWindow = 60 * time.Second
)

// RateLimitResult is the outcome of one admission check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// RateLimitStatus is a read-only view of one source's window.
type RateLimitStatus struct {
	SourceID    string    `json:"sourceId"`
	Used        int       `json:"used"`
	MaxRequests int       `json:"maxRequests"`
	WindowSec   int       `json:"windowSeconds"`
	ResetAt     time.Time `json:"resetAt"`
}

type rateWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
	max        int
	window     time.Duration
}

// RateLimiter admits source calls with a per-source sliding window.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

func effectiveLimit(cfg config.RateLimitConfig) (int, time.Duration) {
	if cfg.MaxRequests <= 0 || cfg.WindowSeconds <= 0 {
		return DefaultRateLimitMax, DefaultRateLimitWindow
	}
	return cfg.MaxRequests, cfg.Window()
}

func (l *RateLimiter) window(sourceID string) *rateWindow {
	l.mu.RLock()
	w, ok := l.windows[sourceID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[sourceID]; !ok {
		w = &rateWindow{}
		l.windows[sourceID] = w
	}
	return w
}

// Check prunes expired admissions and admits the call when the window has room.
// A rejected call is not recorded.
func (l *RateLimiter) Check(sourceID string, cfg config.RateLimitConfig) RateLimitResult {
	max, window := effectiveLimit(cfg)
	w := l.window(sourceID)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.max, w.window = max, window
	w.prune(now)
	// a shrunk limit keeps only the newest max entries
	if over := len(w.timestamps) - max; over > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[over:]...)
	}

	if len(w.timestamps) < max {
		w.timestamps = append(w.timestamps, now)
		return RateLimitResult{
			Allowed:   true,
			Remaining: max - len(w.timestamps),
			ResetAt:   w.timestamps[0].Add(window),
		}
	}

	metrics.RateLimitRejections.WithLabelValues(sourceID).Inc()
	return RateLimitResult{
		Allowed:   false,
		Remaining: 0,
		ResetAt:   w.timestamps[0].Add(window),
	}
}

func (w *rateWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}

// Status returns the current window of one source.
func (l *RateLimiter) Status(sourceID string) (RateLimitStatus, bool) {
	l.mu.RLock()
	w, ok := l.windows[sourceID]
	l.mu.RUnlock()
	if !ok {
		return RateLimitStatus{}, false
	}
	return w.status(sourceID, l.now()), true
}

// Statuses returns every known window ordered by source id.
func (l *RateLimiter) Statuses() []RateLimitStatus {
	l.mu.RLock()
	ids := make([]string, 0, len(l.windows))
	windows := make(map[string]*rateWindow, len(l.windows))
	for id, w := range l.windows {
		ids = append(ids, id)
		windows[id] = w
	}
	l.mu.RUnlock()

	sort.Strings(ids)
	now := l.now()
	out := make([]RateLimitStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, windows[id].status(id, now))
	}
	return out
}

func (w *rateWindow) status(sourceID string, now time.Time) RateLimitStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	// read-only view; history is pruned in Check
	cutoff := now.Add(-w.window)
	used := 0
	var oldest time.Time
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			if used == 0 {
				oldest = ts
			}
			used++
		}
	}
	resetAt := now.Add(w.window)
	if used > 0 {
		resetAt = oldest.Add(w.window)
	}
	return RateLimitStatus{
		SourceID:    sourceID,
		Used:        used,
		MaxRequests: w.max,
		WindowSec:   int(w.window / time.Second),
		ResetAt:     resetAt,
	}
}
