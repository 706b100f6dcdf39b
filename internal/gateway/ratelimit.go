package gateway

import (
	"sync"
	"time"
)

// rateWindow is a per-connection fixed counting window. The bucket boundary
// is coarse on purpose: this guards against abuse, not precise fairness.
type rateWindow struct {
	mu        sync.Mutex
	max       int
	window    time.Duration
	count     int
	windowEnd time.Time
}

func newRateWindow(max int, window time.Duration) *rateWindow {
	return &rateWindow{max: max, window: window}
}

// allow records one client-originated message and reports whether it is
// inside the limit. The first message at or past the window boundary starts
// a fresh window.
func (w *rateWindow) allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !now.Before(w.windowEnd) {
		w.count = 1
		w.windowEnd = now.Add(w.window)
		return true
	}
	w.count++
	return w.count <= w.max
}
