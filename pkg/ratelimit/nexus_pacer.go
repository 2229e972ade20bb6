// Package ratelimit shapes the rate of outbound LLM and provider calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pacer enforces a minimum gap between consecutive calls. The email
// triage loop uses it so a batch of deep analyses does not burst the
// LLM provider.
type Pacer struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
}

// NewPacer creates a pacer with the given minimum gap between calls.
// A zero or negative gap disables pacing.
func NewPacer(gap time.Duration) *Pacer {
	return &Pacer{gap: gap}
}

// Wait blocks until the gap since the previous call has elapsed, or the
// context is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.gap <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	wait := p.gap - now.Sub(p.last)
	if wait < 0 {
		wait = 0
	}
	p.last = now.Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gap returns the configured gap.
func (p *Pacer) Gap() time.Duration {
	return p.gap
}

// Debouncer suppresses repeated work for the same key within a window.
// Backed by Redis when available, with a local map fallback so the
// behavior survives a Redis outage.
type Debouncer struct {
	redis    *redis.Client
	duration time.Duration
	local    map[string]time.Time
	mu       sync.Mutex
}

// NewDebouncer creates a new debouncer.
func NewDebouncer(redisClient *redis.Client, duration time.Duration) *Debouncer {
	return &Debouncer{
		redis:    redisClient,
		duration: duration,
		local:    make(map[string]time.Time),
	}
}

// IsDuplicate reports whether key was marked within the window.
func (d *Debouncer) IsDuplicate(ctx context.Context, key string) bool {
	if d.redis != nil {
		exists, err := d.redis.Exists(ctx, d.redisKey(key)).Result()
		if err == nil {
			return exists > 0
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	lastTime, exists := d.local[key]
	return exists && time.Since(lastTime) < d.duration
}

// Mark records key as processed, starting its suppression window.
func (d *Debouncer) Mark(ctx context.Context, key string) {
	if d.redis != nil {
		d.redis.Set(ctx, d.redisKey(key), "1", d.duration)
	}

	d.mu.Lock()
	d.local[key] = time.Now()
	now := time.Now()
	for k, v := range d.local {
		if now.Sub(v) > d.duration*2 {
			delete(d.local, k)
		}
	}
	d.mu.Unlock()
}

func (d *Debouncer) redisKey(key string) string {
	return fmt.Sprintf("debounce:%s", key)
}
