package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindow_AllowsUpToMax(t *testing.T) {
	w := newRateWindow(3, time.Second)
	now := time.Unix(100, 0)

	assert.True(t, w.allow(now))
	assert.True(t, w.allow(now.Add(10*time.Millisecond)))
	assert.True(t, w.allow(now.Add(20*time.Millisecond)))
	assert.False(t, w.allow(now.Add(30*time.Millisecond)))
	assert.False(t, w.allow(now.Add(40*time.Millisecond)))
}

func TestRateWindow_NewWindowResets(t *testing.T) {
	w := newRateWindow(2, time.Second)
	now := time.Unix(100, 0)

	assert.True(t, w.allow(now))
	assert.True(t, w.allow(now))
	assert.False(t, w.allow(now))

	// At the boundary a fresh window starts with count 1.
	later := now.Add(time.Second)
	assert.True(t, w.allow(later))
	assert.True(t, w.allow(later))
	assert.False(t, w.allow(later))
}

func TestRateWindow_SparseTrafficNeverLimited(t *testing.T) {
	w := newRateWindow(1, 100*time.Millisecond)
	now := time.Unix(100, 0)
	for i := 0; i < 20; i++ {
		assert.True(t, w.allow(now.Add(time.Duration(i)*100*time.Millisecond)))
	}
}
