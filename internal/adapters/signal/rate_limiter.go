package signal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const sweepThreshold = 1024

// ConnectLimiter caps connection attempts per client token in a sliding window.
type ConnectLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewConnectLimiter(clock clockwork.Clock, limit int, interval time.Duration) *ConnectLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectLimiter{
		clock:    clock,
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *ConnectLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)
	if len(rl.history) > sweepThreshold {
		rl.sweepLocked(windowStart)
	}

	attempts := rl.history[client]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[client] = fresh
		return false
	}

	rl.history[client] = append(fresh, now)
	return true
}

// Sweep forgets clients with no attempt inside the window.
func (rl *ConnectLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked(rl.clock.Now().Add(-rl.interval))
}

func (rl *ConnectLimiter) sweepLocked(windowStart time.Time) {
	for client, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, client)
		}
	}
}

func (rl *ConnectLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
