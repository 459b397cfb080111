package ratelimit

import "context"

type contextKey string

const tierKey contextKey = "rate-tier"

// WithTier tags the context with the call tier derived from the plan
// being generated. Downstream throttles pick it up per call.
func WithTier(ctx context.Context, tier Tier) context.Context {
	return context.WithValue(ctx, tierKey, tier)
}

// TierFromContext retrieves the call tier from context
func TierFromContext(ctx context.Context) (Tier, bool) {
	tier, ok := ctx.Value(tierKey).(Tier)
	return tier, ok && tier != ""
}
