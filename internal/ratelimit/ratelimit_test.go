package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"festival-orders/internal/domain"
)

func newTestLimiter(rule Rule) (*Limiter, *time.Time) {
	l := New(map[string]Rule{"place_order": rule})
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(Rule{MaxRequests: 3, Window: time.Minute, BlockDuration: 5 * time.Minute})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("t1", "place_order"))
	}
	err := l.Allow("t1", "place_order")
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 5*time.Minute, rl.RetryAfter)
}

func TestUnknownActionUnlimited(t *testing.T) {
	l, _ := newTestLimiter(Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow("t1", "check_status"))
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute})

	require.NoError(t, l.Allow("t1", "place_order"))
	require.Error(t, l.Allow("t1", "place_order"))
	require.NoError(t, l.Allow("t2", "place_order"), "other tenants are unaffected")
}

func TestWindowSlides(t *testing.T) {
	l, now := newTestLimiter(Rule{MaxRequests: 2, Window: time.Minute, BlockDuration: 5 * time.Minute})

	require.NoError(t, l.Allow("t1", "place_order"))
	*now = now.Add(59 * time.Second)
	require.NoError(t, l.Allow("t1", "place_order"))

	*now = now.Add(2 * time.Second)
	// first attempt has left the window
	require.NoError(t, l.Allow("t1", "place_order"))
}

func TestBlockedAttemptsDoNotExtendBlock(t *testing.T) {
	l, now := newTestLimiter(Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute})

	require.NoError(t, l.Allow("t1", "place_order"))
	require.Error(t, l.Allow("t1", "place_order")) // starts the block at 12:00

	*now = now.Add(4 * time.Minute)
	err := l.Allow("t1", "place_order")
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, time.Minute, rl.RetryAfter, "retry-after counts down from the original block")

	*now = now.Add(time.Minute + time.Second)
	require.NoError(t, l.Allow("t1", "place_order"), "block expired despite attempts during it")
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute})

	require.NoError(t, l.Allow("t1", "place_order"))
	require.Error(t, l.Allow("t1", "place_order"))

	l.Reset()
	require.NoError(t, l.Allow("t1", "place_order"))
}
