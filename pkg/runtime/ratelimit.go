package runtime

import (
	"sync"
	"time"

	"github.com/kamitools/kami/pkg/types"
)

// Token-bucket rate limiting for tool executions: one bucket per tool
// plus one global bucket, each refilled by window reset rather than
// continuous drip. Near a window boundary the effective cap is 2× the
// configured rate; that matches the intended, simple semantics. Zero
// capacity means unlimited.

// RateLimitConfig configures the limiter.
type RateLimitConfig struct {
	// PerTool is the per-window cap for each tool (0 = unlimited).
	PerTool uint64 `json:"per_tool"`
	// Global is the per-window cap across all tools (0 = unlimited).
	Global uint64 `json:"global"`
	// Window is the reset interval.
	Window time.Duration `json:"window"`
}

// DefaultRateLimitConfig allows 100 calls per tool and 1000 overall per
// minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{PerTool: 100, Global: 1000, Window: time.Minute}
}

type tokenBucket struct {
	tokens     uint64
	capacity   uint64
	window     time.Duration
	lastRefill time.Time
}

func newTokenBucket(capacity uint64, window time.Duration) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, window: window, lastRefill: time.Now()}
}

func (b *tokenBucket) tryAcquire() bool {
	if time.Since(b.lastRefill) >= b.window {
		b.tokens = b.capacity
		b.lastRefill = time.Now()
	}
	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// RateLimiter admits a request iff both the per-tool and global buckets
// have a token.
type RateLimiter struct {
	config RateLimitConfig

	globalMu sync.Mutex
	global   *tokenBucket

	perToolMu sync.Mutex
	perTool   map[string]*tokenBucket
}

// NewRateLimiter creates a limiter from config.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		global:  newTokenBucket(config.Global, config.Window),
		perTool: make(map[string]*tokenBucket),
	}
}

// Check reports whether one more execution of id is admitted now.
func (r *RateLimiter) Check(id types.ToolID) bool {
	if r.config.Global == 0 && r.config.PerTool == 0 {
		return true
	}
	if r.config.Global > 0 {
		r.globalMu.Lock()
		ok := r.global.tryAcquire()
		r.globalMu.Unlock()
		if !ok {
			return false
		}
	}
	if r.config.PerTool > 0 {
		r.perToolMu.Lock()
		bucket, exists := r.perTool[id.String()]
		if !exists {
			bucket = newTokenBucket(r.config.PerTool, r.config.Window)
			r.perTool[id.String()] = bucket
		}
		ok := bucket.tryAcquire()
		r.perToolMu.Unlock()
		if !ok {
			return false
		}
	}
	return true
}
