// Package ratelimit throttles ingestion per signal key with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"BusScope/pkg/clock"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter keeps one bucket per key. Buckets idle for longer than the idle
// horizon are forgotten by Sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	clock clock.Clock
}

func New() *Limiter { return NewWithClock(clock.Real{}) }

func NewWithClock(c clock.Clock) *Limiter {
	return &Limiter{m: make(map[string]*bucket), clock: c}
}

// Allow returns true if one token can be consumed for key. A non-positive
// refill rate disables throttling.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	if refillPerSec <= 0 {
		return true
	}
	if capacity < 1 {
		capacity = 1
	}
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Sweep drops buckets untouched for idle and returns how many were dropped.
func (l *Limiter) Sweep(idle time.Duration) int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.m {
		if now.Sub(b.last) > idle {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
