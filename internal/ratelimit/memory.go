package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a per-key token bucket held in process memory. A
// mission fans out to as many as four model calls, so the defaults are
// deliberately low; burst absorbs an operator resubmitting after a veto.
type MemoryLimiter struct {
	perSecond float64
	capacity  float64

	mu        sync.Mutex
	keys      map[string]*tokenState
	closeOnce sync.Once
	done      chan struct{}
}

// tokenState tracks one key's remaining tokens and the last refill time.
type tokenState struct {
	remaining float64
	seenAt    time.Time
}

const (
	sweepInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// NewMemoryLimiter builds a limiter refilling rate tokens per second per
// key, holding at most burst. A janitor goroutine evicts keys idle for
// ten minutes; Close stops it.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		perSecond: rate,
		capacity:  float64(burst),
		keys:      make(map[string]*tokenState),
		done:      make(chan struct{}),
	}
	go m.janitor()
	return m
}

// Allow spends one token for key, reporting whether one was available.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	st, ok := m.keys[key]
	if !ok {
		// A fresh key starts full and spends its first token here.
		m.keys[key] = &tokenState{remaining: m.capacity - 1, seenAt: now}
		return true, nil
	}

	st.remaining += now.Sub(st.seenAt).Seconds() * m.perSecond
	if st.remaining > m.capacity {
		st.remaining = m.capacity
	}
	st.seenAt = now

	if st.remaining < 1 {
		return false, nil
	}
	st.remaining--
	return true, nil
}

// Close stops the janitor. Idempotent.
func (m *MemoryLimiter) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep(time.Now().Add(-idleEviction))
		}
	}
}

func (m *MemoryLimiter) sweep(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, st := range m.keys {
		if st.seenAt.Before(cutoff) {
			delete(m.keys, key)
		}
	}
}
