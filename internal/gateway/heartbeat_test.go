package gateway

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeat_ExpiresWithoutPong(t *testing.T) {
	var pings, expiries atomic.Int32
	hb := newHeartbeat(10*time.Millisecond, 50*time.Millisecond,
		func() { pings.Add(1) },
		func() { expiries.Add(1) })
	defer hb.stop()

	hb.start()
	assert.Eventually(t, func() bool { return expiries.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, pings.Load(), int32(1))

	// The expiry timer fires once, not repeatedly.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), expiries.Load())
}

func TestHeartbeat_PongKeepsAlive(t *testing.T) {
	var expiries atomic.Int32
	hb := newHeartbeat(5*time.Millisecond, 40*time.Millisecond,
		func() {},
		func() { expiries.Add(1) })
	defer hb.stop()

	hb.start()
	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		hb.pong()
	}
	assert.Equal(t, int32(0), expiries.Load())
}

func TestHeartbeat_StopCancelsTimers(t *testing.T) {
	var pings, expiries atomic.Int32
	hb := newHeartbeat(5*time.Millisecond, 10*time.Millisecond,
		func() { pings.Add(1) },
		func() { expiries.Add(1) })

	hb.start()
	hb.stop()
	before := pings.Load()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, pings.Load())
	assert.Equal(t, int32(0), expiries.Load())

	// stop is idempotent and pong after stop is a no-op.
	hb.stop()
	hb.pong()
}

func TestHeartbeat_PongBeforeStartIsSafe(t *testing.T) {
	hb := newHeartbeat(time.Hour, time.Hour, func() {}, func() {})
	hb.stop()
	hb.pong()
	hb.start()
}
