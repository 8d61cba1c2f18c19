package health

import (
	"sync"
	"time"
)

// DefaultDedupeWindow suppresses repeats of an alert key.
const DefaultDedupeWindow = 15 * time.Minute

// Deduper drops alerts whose key was emitted within the window.
type Deduper struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduper creates a deduper. A nil clock uses time.Now.
func NewDeduper(window time.Duration, now func() time.Time) *Deduper {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{window: window, now: now, seen: make(map[string]time.Time)}
}

// Allow reports whether an alert with key may be emitted, and records it if so.
func (d *Deduper) Allow(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
	if _, recent := d.seen[key]; recent {
		return false
	}
	d.seen[key] = now
	return true
}
