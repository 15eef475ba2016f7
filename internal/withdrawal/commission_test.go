package withdrawal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuoter struct {
	mu    sync.Mutex
	fees  map[float64]float64
	errs  map[float64]error
	gates map[float64]chan struct{}
}

func (s *stubQuoter) CommissionQuote(ctx context.Context, amount float64) (float64, error) {
	s.mu.Lock()
	gate := s.gates[amount]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errs[amount]; err != nil {
		return 0, err
	}
	return s.fees[amount], nil
}

type mapCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]string)}
}

func (c *mapCache) Get(key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, found := c.items[key]
	return value, found, nil
}

func (c *mapCache) Set(key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func TestQuoteReturnsFee(t *testing.T) {
	quoter := &stubQuoter{fees: map[float64]float64{100: 2.5}}
	resolver := NewCommissionResolver(quoter, newMapCache())

	fee, known := resolver.Quote(context.Background(), 100)

	require.True(t, known)
	assert.Equal(t, 2.5, fee)

	latest, ok := resolver.Latest()
	require.True(t, ok)
	assert.Equal(t, 100.0, latest.Amount)
	assert.Equal(t, 2.5, latest.Commission)
}

func TestQuoteFailureIsNonFatal(t *testing.T) {
	quoter := &stubQuoter{errs: map[float64]error{100: errors.New("rail unavailable")}}
	resolver := NewCommissionResolver(quoter, newMapCache())

	_, known := resolver.Quote(context.Background(), 100)

	assert.False(t, known)

	_, ok := resolver.Latest()
	assert.False(t, ok)
}

func TestQuoteUsesCache(t *testing.T) {
	cache := newMapCache()
	cache.items["commission:100.00"] = "1.25"

	// the quoter would fail, proving the cache short-circuits the lookup
	quoter := &stubQuoter{errs: map[float64]error{100: errors.New("must not be called")}}
	resolver := NewCommissionResolver(quoter, cache)

	fee, known := resolver.Quote(context.Background(), 100)

	require.True(t, known)
	assert.Equal(t, 1.25, fee)
}

func TestStaleQuoteNeverOverwritesNewer(t *testing.T) {
	gate := make(chan struct{})
	quoter := &stubQuoter{
		fees:  map[float64]float64{100: 2.5, 200: 5.0},
		gates: map[float64]chan struct{}{100: gate},
	}
	resolver := NewCommissionResolver(quoter, newMapCache())

	done := make(chan struct{})
	go func() {
		// slow lookup for the first amount
		resolver.Quote(context.Background(), 100)
		close(done)
	}()

	// give the slow lookup a moment to claim its generation
	time.Sleep(20 * time.Millisecond)

	// the user has changed the amount; this lookup supersedes the first
	fee, known := resolver.Quote(context.Background(), 200)
	require.True(t, known)
	assert.Equal(t, 5.0, fee)

	// now let the stale lookup finish
	close(gate)
	<-done

	latest, ok := resolver.Latest()
	require.True(t, ok)
	assert.Equal(t, 200.0, latest.Amount)
	assert.Equal(t, 5.0, latest.Commission)
}
