package ratelimit

import (
	"strings"

	"github.com/auditflow/automation-engine/common/models"
)

// Tier represents the rate limit tier based on plan weight
type Tier string

const (
	TierSimple   Tier = "simple"   // No AI steps
	TierStandard Tier = "standard" // 1-2 AI steps
	TierHeavy    Tier = "heavy"    // 3+ AI steps
)

// PlanProfile contains analysis of an orchestration plan's call weight
type PlanProfile struct {
	Tier       Tier // Determined tier
	AICount    int  // Number of AI steps
	HasAISteps bool // Whether the plan has any AI steps
	TotalSteps int  // Total step count
}

// aiStepTypes are plan step types that translate into model calls when the
// generated workflow runs. Planner output uses the catalog kind "openai";
// the generic labels cover hand-written inputs.
var aiStepTypes = map[string]bool{
	"openai":         true,
	"ai":             true,
	"llm":            true,
	"classification": true,
}

// InspectPlan analyzes an orchestration plan and determines the tier used
// to throttle downstream model calls on its behalf
func InspectPlan(plan *models.OrchestrationPlan) PlanProfile {
	profile := PlanProfile{
		Tier: TierSimple,
	}

	if plan == nil {
		return profile
	}

	profile.TotalSteps = len(plan.Steps)

	for _, step := range plan.Steps {
		if aiStepTypes[strings.ToLower(step.Type)] {
			profile.AICount++
			profile.HasAISteps = true
		}
	}

	profile.Tier = determineTier(profile.AICount)

	return profile
}

// determineTier returns the appropriate tier based on AI step count
func determineTier(aiCount int) Tier {
	switch {
	case aiCount == 0:
		return TierSimple
	case aiCount <= 2:
		return TierStandard
	default: // 3+
		return TierHeavy
	}
}

// String returns the tier name
func (t Tier) String() string {
	return string(t)
}
