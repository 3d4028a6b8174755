package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc picks the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Store keeps the counters. Defaults to an in-process store.
	Store RateLimitStore
}

// Counts are the request counters of the previous and current fixed windows.
type Counts struct {
	Prev int64
	Curr int64
}

// RateLimitStore records a hit for key in the window starting at currStart
// and returns the counters including that hit.
type RateLimitStore interface {
	Hit(ctx context.Context, key string, currStart time.Time, window time.Duration) (Counts, error)
}

// decide applies the sliding window approximation: the previous window is
// weighted by how much of it still overlaps the sliding window.
func decide(c Counts, max int, elapsed, window time.Duration) (remaining int, allowed bool) {
	overlap := 1 - elapsed.Seconds()/window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := float64(c.Prev)*overlap + float64(c.Curr)
	if effective > float64(max) {
		return 0, false
	}
	return max - int(math.Ceil(effective)), true
}

// MemoryStore is a RateLimitStore for a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	start time.Time
	prev  int64
	curr  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

var _ RateLimitStore = (*MemoryStore)(nil)

func (s *MemoryStore) Hit(_ context.Context, key string, currStart time.Time, window time.Duration) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	switch {
	case !ok:
		e = &memoryEntry{start: currStart}
		s.entries[key] = e
	case currStart.Sub(e.start) == window:
		e.prev, e.curr, e.start = e.curr, 0, currStart
	case currStart.After(e.start):
		e.prev, e.curr, e.start = 0, 0, currStart
	}
	e.curr++
	return Counts{Prev: e.prev, Curr: e.curr}, nil
}

// Cleanup drops entries idle for two windows or more.
func (s *MemoryStore) Cleanup(now time.Time, window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if now.Sub(e.start) >= 2*window {
			delete(s.entries, key)
		}
	}
}

// RunCleanup calls Cleanup every two windows until ctx is cancelled.
func (s *MemoryStore) RunCleanup(ctx context.Context, window time.Duration) {
	ticker := time.NewTicker(2 * window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Cleanup(now, window)
		}
	}
}

// RedisStore shares rate limit counters between instances.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore with keys under prefix.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

var _ RateLimitStore = (*RedisStore)(nil)

func (s *RedisStore) Hit(ctx context.Context, key string, currStart time.Time, window time.Duration) (Counts, error) {
	currKey := s.prefix + key + ":" + strconv.FormatInt(currStart.UnixMilli(), 10)
	prevKey := s.prefix + key + ":" + strconv.FormatInt(currStart.Add(-window).UnixMilli(), 10)

	var (
		prev *redis.StringCmd
		curr *redis.IntCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		prev = p.Get(ctx, prevKey)
		curr = p.Incr(ctx, currKey)
		p.PExpire(ctx, currKey, 2*window)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Counts{}, errors.Wrap(err, "rate limit pipeline")
	}

	var c Counts
	c.Curr = curr.Val()
	if n, err := prev.Int64(); err == nil {
		c.Prev = n
	}
	return c, nil
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get
// 429 with the API error body. Every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset. Store failures let the
// request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			currStart := now.Truncate(cfg.Window)
			resetAt := currStart.Add(cfg.Window)

			counts, err := cfg.Store.Hit(r.Context(), cfg.KeyFunc(r), currStart, cfg.Window)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit store failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			remaining, allowed := decide(counts, cfg.Max, now.Sub(currStart), cfg.Window)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(time.Until(resetAt).Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, X-Real-IP, or the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
