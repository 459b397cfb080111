package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/automation-engine/common/ratelimit"
)

// ThrottledProvider wraps a CompletionProvider with a fixed-window rate
// limit. When the window is exhausted it waits for the window to roll
// over instead of failing, unless the context expires first.
type ThrottledProvider struct {
	inner   CompletionProvider
	limiter *ratelimit.Limiter
	scope   string
	limit   int64
	window  time.Duration
	logger  Logger
}

// NewThrottledProvider creates a rate-limited wrapper around a provider
func NewThrottledProvider(inner CompletionProvider, limiter *ratelimit.Limiter, scope string, limit int64, window time.Duration, logger Logger) *ThrottledProvider {
	return &ThrottledProvider{
		inner:   inner,
		limiter: limiter,
		scope:   scope,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

// Complete waits for rate limit clearance, then delegates. Calls made
// on behalf of a plan carry a tier in the context; those draw from the
// tier's window instead of the default one, so heavy plans can't starve
// the rest of the pipeline.
func (p *ThrottledProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	key := fmt.Sprintf("rate_limit:llm:%s", p.scope)
	limit, window := p.limit, p.window

	if tier, ok := ratelimit.TierFromContext(ctx); ok {
		cfg := ratelimit.ConfigForTier(tier)
		key = fmt.Sprintf("rate_limit:llm:%s:%s", p.scope, tier)
		limit, window = cfg.Limit, cfg.Window
	}

	for {
		res := p.limiter.Check(key, limit, window)
		if res.Allowed {
			break
		}

		p.logger.Warn("completion call throttled",
			"key", key,
			"retry_after", res.RetryAfter)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: rate limit wait cancelled: %v", ErrProvider, ctx.Err())
		case <-time.After(res.RetryAfter):
		}
	}

	return p.inner.Complete(ctx, prompt, opts)
}
