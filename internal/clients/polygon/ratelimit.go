package polygon

import (
	"context"

	"golang.org/x/time/rate"
)

// Plan request budgets in requests per minute.
var planRPM = map[string]int{
	"free":      5,
	"starter":   200,
	"developer": 1000,
	"advanced":  2000,
}

// PlanRPM returns the requests-per-minute budget for a plan.
// Unknown plans get the free budget.
func PlanRPM(plan string) int {
	if rpm, ok := planRPM[plan]; ok {
		return rpm
	}
	return planRPM["free"]
}

// BurstForRPM returns the token bucket capacity for a request budget:
// a tenth of the per-minute budget, at least one token.
func BurstForRPM(rpm int) int {
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Limiter is a token bucket sized from the plan's request budget. The
// bucket holds rpm/10 tokens (minimum one) and refills at rpm/60 tokens
// per second, so short bursts are absorbed without ever exceeding the
// per-minute budget.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter creates a limiter for the given plan.
func NewLimiter(plan string) *Limiter {
	rpm := PlanRPM(plan)
	return &Limiter{
		bucket: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), BurstForRPM(rpm)),
	}
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.bucket.Burst()
}

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return float64(l.bucket.Limit())
}
