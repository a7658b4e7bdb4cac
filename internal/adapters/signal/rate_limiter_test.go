package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dispatch/internal/domain"
)

func TestCallRateLimiterPerCaller(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewCallRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per caller")

	// one call comes back every interval/limit
	now = now.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
}

func TestCallRateLimiterDropsIdleCallers(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewCallRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	for _, uid := range []string{"a", "b", "c"} {
		require.True(t, rl.Allow(domain.UserID(uid)))
	}
	assert.Equal(t, 3, rl.Tracked())

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("d"))
	assert.Equal(t, 1, rl.Tracked())

	// a dropped caller starts over with a full budget
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}
