package gateway

import (
	"sync"
	"time"
)

// heartbeat drives one connection's ping/pong cycle: a recurring ping at
// interval cadence and a single pending expiry timer. A connection never
// holds more than one live ping timer or expiry timer; pong stops both
// before re-arming them, and stop cancels both for good.
type heartbeat struct {
	mu       sync.Mutex
	interval time.Duration
	timeout  time.Duration

	ping    *time.Timer
	expire  *time.Timer
	stopped bool

	sendPing func()
	onExpire func()
}

func newHeartbeat(interval, timeout time.Duration, sendPing, onExpire func()) *heartbeat {
	return &heartbeat{
		interval: interval,
		timeout:  timeout,
		sendPing: sendPing,
		onExpire: onExpire,
	}
}

// start arms the first ping and the expiry timer.
func (h *heartbeat) start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.ping = time.AfterFunc(h.interval, h.firePing)
	h.expire = time.AfterFunc(h.timeout, h.onExpire)
}

func (h *heartbeat) firePing() {
	h.sendPing()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.ping.Stop()
	h.ping = time.AfterFunc(h.interval, h.firePing)
}

// pong clears and re-arms both timers.
func (h *heartbeat) pong() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.ping == nil {
		return
	}
	h.ping.Stop()
	h.expire.Stop()
	h.ping = time.AfterFunc(h.interval, h.firePing)
	h.expire = time.AfterFunc(h.timeout, h.onExpire)
}

// stop cancels both timers. Idempotent; safe to call from any disconnect path.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.ping != nil {
		h.ping.Stop()
	}
	if h.expire != nil {
		h.expire.Stop()
	}
}
