// Package ratelimit throttles form submissions per client.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a per-process sliding window limiter.
type Memory struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a limiter and starts the background eviction goroutine.
// Call Stop to release it.
func NewMemory(limit int, window time.Duration) *Memory {
	m := &Memory{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Allow records a request for key if it fits.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := m.fresh(m.requests[key], now)

	if len(recent) >= m.limit {
		m.requests[key] = recent
		return false, nil
	}

	m.requests[key] = append(recent, now)
	return true, nil
}

// Stop ends the eviction goroutine.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *Memory) fresh(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	var recent []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	return recent
}

// evictLoop periodically drops expired keys so the map cannot grow unbounded.
func (m *Memory) evictLoop() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evict()
		}
	}
}

func (m *Memory) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, times := range m.requests {
		if recent := m.fresh(times, now); len(recent) == 0 {
			delete(m.requests, key)
		} else {
			m.requests[key] = recent
		}
	}
}

// Redis is a fixed window limiter shared by every replica.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a limiter storing counters under prefix.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

// incrWithWindow bumps the counter and gives it a TTL in one step. A counter
// left without a TTL gets one on its next hit.
var incrWithWindow = redis.NewScript(`
	local count = redis.call("incr", KEYS[1])
	if redis.call("pttl", KEYS[1]) < 0 then
		redis.call("pexpire", KEYS[1], ARGV[1])
	end
	return count
`)

// Allow increments the counter for key and starts its window on first use.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := r.prefix + key

	count, err := incrWithWindow.Run(ctx, r.client, []string{redisKey}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}

	return count <= int64(r.limit), nil
}
