// Package trial counts free audits per tool and caller fingerprint within a fixed window.
package trial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
)

const (
	DefaultLimit  = 3
	DefaultWindow = 24 * time.Hour
)

// Config bounds the trial window.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

func key(tool, fingerprint string) string {
	return fmt.Sprintf("trial:%s:%s", tool, fingerprint)
}

func status(limit, used int, resetAt time.Time) domain.TrialStatus {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.TrialStatus{Allowed: used < limit, Remaining: remaining, ResetAt: resetAt}
}

// RedisLimiter keeps counters in Redis so every API replica sees the same usage.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults(), now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, tool, fingerprint string) (domain.TrialStatus, error) {
	k := key(tool, fingerprint)
	used, err := l.client.Get(ctx, k).Int()
	if errors.Is(err, redis.Nil) {
		return status(l.cfg.Limit, 0, l.now().Add(l.cfg.Window)), nil
	}
	if err != nil {
		return domain.TrialStatus{}, fmt.Errorf("read trial counter: %w", err)
	}

	ttl, err := l.client.TTL(ctx, k).Result()
	if err != nil {
		return domain.TrialStatus{}, fmt.Errorf("read trial ttl: %w", err)
	}
	if ttl < 0 {
		// counter tanpa expiry: pasang ulang supaya tidak terkunci selamanya
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return domain.TrialStatus{}, fmt.Errorf("repair trial ttl: %w", err)
		}
		ttl = l.cfg.Window
	}
	return status(l.cfg.Limit, used, l.now().Add(ttl)), nil
}

// recordScript increments and sets the window expiry in one step.
// A counter left without a TTL gets one on the next increment.
var recordScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (l *RedisLimiter) Record(ctx context.Context, tool, fingerprint string) error {
	// window dimulai dari pemakaian pertama
	err := recordScript.Run(ctx, l.client, []string{key(tool, fingerprint)}, l.cfg.Window.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("increment trial counter: %w", err)
	}
	return nil
}

// MemoryLimiter is the single-process fallback when Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	entries map[string]*window
}

type window struct {
	used    int
	resetAt time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{cfg: cfg.withDefaults(), now: time.Now, entries: make(map[string]*window)}
}

func (l *MemoryLimiter) Check(ctx context.Context, tool, fingerprint string) (domain.TrialStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[key(tool, fingerprint)]
	if !ok || !now.Before(w.resetAt) {
		return status(l.cfg.Limit, 0, now.Add(l.cfg.Window)), nil
	}
	return status(l.cfg.Limit, w.used, w.resetAt), nil
}

func (l *MemoryLimiter) Record(ctx context.Context, tool, fingerprint string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(tool, fingerprint)
	w, ok := l.entries[k]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.entries[k] = w
	}
	w.used++
	return nil
}

// Cleanup drops expired windows.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, k)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (l *MemoryLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
