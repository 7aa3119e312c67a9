package backend

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket is a non-blocking token bucket. Refill happens lazily on each
// Consume; there is no background timer.
type TokenBucket struct {
	mu  sync.Mutex
	lim *rate.Limiter
	now func() time.Time
}

// NewTokenBucket returns a full bucket that refills at perSecond tokens per
// second up to capacity. Only whole tokens can be consumed, so a fractional
// capacity rounds down and a capacity below one never admits a call.
func NewTokenBucket(perSecond, capacity float64) *TokenBucket {
	return newTokenBucket(perSecond, capacity, time.Now)
}

func newTokenBucket(perSecond, capacity float64, now func() time.Time) *TokenBucket {
	if perSecond < 0 {
		perSecond = 0
	}
	burst := int(math.Floor(capacity))
	if burst < 0 {
		burst = 0
	}
	lim := rate.NewLimiter(rate.Limit(perSecond), burst)
	// Anchor the limiter's refill clock to the injected clock; a fresh
	// limiter starts full and this only sets the last-refill timestamp.
	lim.SetBurstAt(now(), burst)
	return &TokenBucket{lim: lim, now: now}
}

// Consume takes n tokens if available and reports whether it did.
func (b *TokenBucket) Consume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lim.AllowN(b.now(), n)
}

// Tokens returns the tokens available right now.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lim.TokensAt(b.now())
}

// Capacity is the maximum burst.
func (b *TokenBucket) Capacity() int {
	return b.lim.Burst()
}

// Rate is the refill rate in tokens per second.
func (b *TokenBucket) Rate() float64 {
	return float64(b.lim.Limit())
}

// RateLimitConfig configures a KeyedLimiter.
type RateLimitConfig struct {
	PerSecond float64            `toml:"qps"`
	Burst     float64            `toml:"burst"`
	PerKey    map[string]float64 `toml:"per_tool"`
}

// KeyedLimiter owns one TokenBucket per key. Buckets are created on first use
// and never evicted.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	rate    float64
	burst   float64
	perKey  map[string]float64
	now     func() time.Time
}

// NewKeyedLimiter builds a limiter from cfg. A zero burst defaults to the
// rate; an override rate also sets that key's capacity.
func NewKeyedLimiter(cfg RateLimitConfig) *KeyedLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerSecond
	}
	perKey := make(map[string]float64, len(cfg.PerKey))
	for k, v := range cfg.PerKey {
		if v > 0 {
			perKey[k] = v
		}
	}
	return &KeyedLimiter{
		buckets: make(map[string]*TokenBucket),
		rate:    cfg.PerSecond,
		burst:   burst,
		perKey:  perKey,
		now:     time.Now,
	}
}

// Allow consumes one token from key's bucket. It never blocks.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.bucket(key).Consume(1)
}

// bucket returns key's bucket, creating and storing it under the lock so
// racing first calls share one bucket.
func (l *KeyedLimiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	r, c := l.rate, l.burst
	if override, ok := l.perKey[key]; ok {
		r, c = override, override
	}
	b := newTokenBucket(r, c, l.now)
	l.buckets[key] = b
	return b
}

// Len reports how many keys have buckets.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
