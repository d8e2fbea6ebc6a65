package llm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// limitedClient spaces out calls to the wrapped client
type limitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// WithRateLimit allows at most perMinute calls per minute through to next.
// A non-positive perMinute disables limiting.
func WithRateLimit(next Client, perMinute int) Client {
	if perMinute <= 0 {
		return next
	}
	return &limitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (l *limitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limit wait")
	}
	return l.next.Complete(ctx, prompt)
}

func (l *limitedClient) Close() error {
	return l.next.Close()
}
