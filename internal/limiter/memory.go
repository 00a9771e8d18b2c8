package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/docflow/internal/clock"
)

type entry struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same rules as PG.
type Memory struct {
	mu       sync.Mutex
	clk      clock.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration
	entries  map[string]*entry
}

// NewMemory constructs an in-process limiter.
func NewMemory(clk clock.Clock, window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{clk: clk, window: window, maxFails: maxFails, blockFor: blockFor, entries: map[string]*entry{}}
}

// Allow reports whether ip is currently unblocked.
func (m *Memory) Allow(_ context.Context, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[string(ipHash)]
	now := m.clk.Now()
	if ok && e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success drops an elapsed block for ip. Failures stay counted.
func (m *Memory) Success(_ context.Context, ipHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[string(ipHash)]; ok && !e.blockedUntil.After(m.clk.Now()) {
		e.blockedUntil = time.Time{}
	}
	return nil
}

// Failure counts a failed lookup and blocks ip at the threshold.
func (m *Memory) Failure(_ context.Context, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	e, ok := m.entries[string(ipHash)]
	if !ok || now.Sub(e.windowStart) > m.window {
		e = &entry{windowStart: now}
		m.entries[string(ipHash)] = e
	}
	e.fails++
	if e.fails >= m.maxFails {
		e.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
