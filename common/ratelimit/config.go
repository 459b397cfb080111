package ratelimit

import "time"

// TierConfig defines rate limits for each call tier
type TierConfig struct {
	Tier        Tier
	Limit       int64         // Requests allowed per window
	Window      time.Duration // Time window
	Description string        // Human-readable description
}

// Default tier configurations
var DefaultTierConfigs = map[Tier]TierConfig{
	TierSimple: {
		Tier:        TierSimple,
		Limit:       100,
		Window:      time.Minute,
		Description: "Simple plans (no AI steps) - 100 calls/minute",
	},
	TierStandard: {
		Tier:        TierStandard,
		Limit:       20,
		Window:      time.Minute,
		Description: "Standard plans (1-2 AI steps) - 20 calls/minute",
	},
	TierHeavy: {
		Tier:        TierHeavy,
		Limit:       5,
		Window:      time.Minute,
		Description: "Heavy plans (3+ AI steps) - 5 calls/minute",
	},
}

// ConfigForTier returns the limit configuration for a given tier.
// Unknown tiers fall back to the most restrictive configuration.
func ConfigForTier(tier Tier) TierConfig {
	if cfg, exists := DefaultTierConfigs[tier]; exists {
		return cfg
	}
	return DefaultTierConfigs[TierHeavy]
}

// AllTiers returns all configured tiers for documentation/API responses
func AllTiers() []TierConfig {
	return []TierConfig{
		DefaultTierConfigs[TierSimple],
		DefaultTierConfigs[TierStandard],
		DefaultTierConfigs[TierHeavy],
	}
}
