package withdrawal

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

const commissionCacheTTL = 5 * time.Minute

// Quoter answers commission lookups; satisfied by processor.Client.
type Quoter interface {
	CommissionQuote(ctx context.Context, amount float64) (float64, error)
}

// QuoteCache is the subset of the redis cache the resolver needs.
type QuoteCache interface {
	Get(key string) (string, bool, error)
	Set(key string, value string, expiration time.Duration) error
}

type CommissionQuote struct {
	Amount     float64
	Commission float64
}

// CommissionResolver quotes the payout fee for an amount before the user
// confirms. A lookup failure is non-fatal: the flow proceeds with the fee
// undisclosed. Rapid successive lookups follow last-request-wins: a slow
// response for a superseded amount is returned to its own caller but never
// recorded as the latest quote.
type CommissionResolver struct {
	quoter Quoter
	cache  QuoteCache

	mu     sync.Mutex
	gen    uint64
	latest *CommissionQuote
}

func NewCommissionResolver(quoter Quoter, cache QuoteCache) *CommissionResolver {
	return &CommissionResolver{
		quoter: quoter,
		cache:  cache,
	}
}

// Quote resolves the commission for the amount. The boolean result reports
// whether the fee is known; callers must treat false as "fee undisclosed",
// not as a blocking error.
func (r *CommissionResolver) Quote(ctx context.Context, amount float64) (float64, bool) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	fee, err := r.lookup(ctx, amount)
	if err != nil {
		log.Printf("Commission lookup failed for amount %.2f: %v", amount, err)
		return 0, false
	}

	r.mu.Lock()
	if gen == r.gen {
		r.latest = &CommissionQuote{Amount: amount, Commission: fee}
	}
	r.mu.Unlock()

	return fee, true
}

// Latest returns the most recent quote that was not superseded while in
// flight. The orchestrator snapshots it at submit time when the amounts match.
func (r *CommissionResolver) Latest() (CommissionQuote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.latest == nil {
		return CommissionQuote{}, false
	}

	return *r.latest, true
}

func (r *CommissionResolver) lookup(ctx context.Context, amount float64) (float64, error) {
	key := fmt.Sprintf("commission:%.2f", amount)

	if r.cache != nil {
		if cached, found, err := r.cache.Get(key); err == nil && found {
			if fee, err := strconv.ParseFloat(cached, 64); err == nil {
				return fee, nil
			}
		}
	}

	fee, err := r.quoter.CommissionQuote(ctx, amount)
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.Set(key, strconv.FormatFloat(fee, 'f', 2, 64), commissionCacheTTL); err != nil {
			log.Printf("Error caching commission quote: %v", err)
		}
	}

	return fee, nil
}
