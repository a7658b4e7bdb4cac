package signal

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkeye/Dispatch/internal/domain"
)

type callerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// CallRateLimiter caps call initiations per caller: limit calls per
// interval, refilled evenly. A bucket untouched for a whole interval is
// full again and gets dropped, so the map only holds recent callers.
type CallRateLimiter struct {
	mu        sync.Mutex
	buckets   map[domain.UserID]*callerBucket
	limit     int
	interval  time.Duration
	every     rate.Limit
	lastSweep time.Time
	now       func() time.Time
}

func NewCallRateLimiter(limit int, interval time.Duration) *CallRateLimiter {
	return &CallRateLimiter{
		buckets:  make(map[domain.UserID]*callerBucket),
		limit:    limit,
		interval: interval,
		every:    rate.Every(interval / time.Duration(limit)),
		now:      time.Now,
	}
}

func (rl *CallRateLimiter) Allow(uid domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.interval {
		rl.sweepLocked(now)
	}

	b, ok := rl.buckets[uid]
	if !ok {
		b = &callerBucket{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.buckets[uid] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (rl *CallRateLimiter) sweepLocked(now time.Time) {
	rl.lastSweep = now
	for uid, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.interval {
			delete(rl.buckets, uid)
		}
	}
}

// Tracked reports how many callers currently hold a bucket.
func (rl *CallRateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}
