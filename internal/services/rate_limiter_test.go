package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
)

func newTestLimiter(clock *fakeClock) *RateLimiter {
	l := NewRateLimiter()
	l.now = clock.Now
	return l
}

func TestRateLimiterRejectsOverLimitAndRecovers(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	cfg := config.RateLimitConfig{MaxRequests: 3, WindowSeconds: 10}
	first := clock.Now()

	for i := 0; i < 3; i++ {
		res := l.Check("lifi", cfg)
		require.True(t, res.Allowed, "call %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		clock.Advance(time.Second)
	}

	res := l.Check("lifi", cfg)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, first.Add(10*time.Second), res.ResetAt)

	// rejected calls are not recorded
	st, ok := l.Status("lifi")
	require.True(t, ok)
	assert.Equal(t, 3, st.Used)

	clock.Advance(7 * time.Second) // 10s after the first admission
	res = l.Check("lifi", cfg)
	assert.True(t, res.Allowed)
}

func TestRateLimiterDefaultsForUnknownConfig(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < DefaultRateLimitMax; i++ {
		require.True(t, l.Check("unknown", config.RateLimitConfig{}).Allowed)
	}
	res := l.Check("unknown", config.RateLimitConfig{})
	assert.False(t, res.Allowed)
	assert.Equal(t, clock.Now().Add(DefaultRateLimitWindow), res.ResetAt)
}

func TestRateLimiterKeepsHistoryBounded(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	for i := 0; i < 10; i++ {
		l.Check("zerox", config.RateLimitConfig{MaxRequests: 10, WindowSeconds: 60})
	}
	l.Check("zerox", config.RateLimitConfig{MaxRequests: 4, WindowSeconds: 60})

	w := l.window("zerox")
	w.mu.Lock()
	defer w.mu.Unlock()
	assert.LessOrEqual(t, len(w.timestamps), 4)
}

func TestRateLimiterSourcesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	cfg := config.RateLimitConfig{MaxRequests: 1, WindowSeconds: 60}

	assert.True(t, l.Check("a", cfg).Allowed)
	assert.False(t, l.Check("a", cfg).Allowed)
	assert.True(t, l.Check("b", cfg).Allowed)

	statuses := l.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].SourceID)
	assert.Equal(t, "b", statuses[1].SourceID)
}

func TestRateLimiterConcurrentChecksNeverOverAdmit(t *testing.T) {
	l := NewRateLimiter()
	cfg := config.RateLimitConfig{MaxRequests: 25, WindowSeconds: 60}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed = map[string]int{}
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("src-%d", i%4)
			if l.Check(id, cfg).Allowed {
				mu.Lock()
				allowed[id]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for id, n := range allowed {
		assert.Equal(t, 25, n, id)
	}
}
