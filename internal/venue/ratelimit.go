// ratelimit.go paces outbound REST calls to each venue using a token
// bucket per endpoint category. The teacher's internal/exchange/ratelimit.go
// hand-rolled a TokenBucket type for this; here the same shape is
// expressed with golang.org/x/time/rate, which the wider example pack
// (AlejandroRuiz99-polybot, other_examples/fd1az-arbitrage-bot) already
// depends on for exactly this purpose.
package venue

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter groups per-category limiters for one venue's REST surface.
type RateLimiter struct {
	Order  *rate.Limiter // place order
	Cancel *rate.Limiter // cancel order
	Query  *rate.Limiter // balance / position reads
}

// NewRateLimiter builds conservative per-category limiters. Burst allows
// a short spike (e.g. a chase-ladder's rapid-fire cancel+replace) without
// throttling the very call path that is racing an order_timeout deadline.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:  rate.NewLimiter(rate.Limit(20), 10),
		Cancel: rate.NewLimiter(rate.Limit(20), 10),
		Query:  rate.NewLimiter(rate.Limit(10), 5),
	}
}

// waitLimiter blocks on l the same way the teacher's TokenBucket.Wait did.
func waitLimiter(ctx context.Context, l *rate.Limiter) error {
	return l.Wait(ctx)
}
