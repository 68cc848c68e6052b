package fetch

import (
	"errors"
	"sync/atomic"
)

// DefaultRequestBudget is the hard per-search ceiling on outbound
// requests for one adapter. A circuit breaker against runaway
// pagination, not a rate limiter.
const DefaultRequestBudget = 50

var ErrBudgetExhausted = errors.New("request budget exhausted")

// Budget counts requests issued during one search. A nil Budget never
// limits, which keeps ad hoc clients usable.
type Budget struct {
	limit int64
	used  atomic.Int64
}

func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultRequestBudget
	}
	return &Budget{limit: int64(limit)}
}

// Use consumes one request slot. Once the ceiling is exceeded every
// further call fails fast with ErrBudgetExhausted.
func (b *Budget) Use() error {
	if b == nil {
		return nil
	}
	if b.used.Add(1) > b.limit {
		return ErrBudgetExhausted
	}
	return nil
}

func (b *Budget) Used() int {
	if b == nil {
		return 0
	}
	used := b.used.Load()
	if used > b.limit {
		used = b.limit
	}
	return int(used)
}

func (b *Budget) Limit() int {
	if b == nil {
		return 0
	}
	return int(b.limit)
}
