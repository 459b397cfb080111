package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

// ErrMalformedPlan marks plan-stage failures caused by model output
// that could not be decoded or failed the acceptance checks. Provider
// failures carry clients.ErrProvider instead.
var ErrMalformedPlan = errors.New("malformed plan output")

// planTemperature keeps plan generation close to deterministic
const planTemperature = 0.2

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// PlannerOpts carries the planner's dependencies
type PlannerOpts struct {
	Provider   clients.CompletionProvider
	Assessor   *complexity.Assessor
	Analyzer   *knowledge.Analyzer
	Schemas    *validation.SchemaValidator
	Structural *validation.StructuralValidator
	Registry   *registry.Registry
	Logger     Logger
}

// Planner turns a job input into a schema-conformant orchestration
// plan using a two-tier prompt strategy: a constrained prompt anchored
// on the audit's opportunity list first, then a general prompt with a
// larger completion budget if the constrained result is rejected.
type Planner struct {
	provider   clients.CompletionProvider
	assessor   *complexity.Assessor
	analyzer   *knowledge.Analyzer
	schemas    *validation.SchemaValidator
	structural *validation.StructuralValidator
	registry   *registry.Registry
	logger     Logger
}

// NewPlanner creates a planner
func NewPlanner(opts PlannerOpts) *Planner {
	return &Planner{
		provider:   opts.Provider,
		assessor:   opts.Assessor,
		analyzer:   opts.Analyzer,
		schemas:    opts.Schemas,
		structural: opts.Structural,
		registry:   opts.Registry,
		logger:     opts.Logger,
	}
}

// Plan produces an accepted orchestration plan or fails the stage.
// There is no silent default plan: if both prompt tiers are rejected,
// the error describes both rejections, keeping the last one unwrapped
// for the caller's taxonomy checks.
func (p *Planner) Plan(ctx context.Context, input models.JobInput) (*models.OrchestrationPlan, error) {
	assessment := p.assessor.Assess(input, nil)
	budget := assessment.Budget

	similar := p.analyzer.FindSimilar(input.ProcessData.ProcessDescription, similarLimit)

	prompt := buildConstrainedPrompt(input, similar, p.registry)
	p.warnIfOverBudget(prompt, budget.MaxInput)

	plan, cerr := p.attempt(ctx, prompt, assessment.ModelTier, budget.MaxOutput)
	if cerr == nil {
		p.logger.Info("plan accepted",
			"prompt", "constrained",
			"steps", len(plan.Steps),
			"tier", assessment.ModelTier)
		return plan, nil
	}
	p.logger.Warn("constrained plan rejected, retrying with general prompt", "error", cerr)

	// The general prompt has a wider output space, so it gets a larger
	// completion budget.
	general := buildGeneralPrompt(input, p.registry)
	p.warnIfOverBudget(general, budget.MaxInput)

	plan, gerr := p.attempt(ctx, general, assessment.ModelTier, budget.MaxOutput*3/2)
	if gerr == nil {
		p.logger.Info("plan accepted",
			"prompt", "general",
			"steps", len(plan.Steps),
			"tier", assessment.ModelTier)
		return plan, nil
	}

	p.logger.Error("plan generation failed on both prompt tiers",
		"constrained_error", cerr,
		"general_error", gerr)
	return nil, fmt.Errorf("plan generation failed (constrained attempt: %v): %w", cerr, gerr)
}

// attempt runs one completion and pushes the output through the strict
// accept path.
func (p *Planner) attempt(ctx context.Context, prompt, tier string, maxTokens int) (*models.OrchestrationPlan, error) {
	raw, err := p.provider.Complete(ctx, prompt, clients.CompletionOpts{
		Tier:        tier,
		MaxTokens:   maxTokens,
		Temperature: planTemperature,
	})
	if err != nil {
		return nil, err
	}
	return p.decodePlan(raw)
}

// decodePlan strictly parses a completion into a typed plan. The text
// must be a bare JSON document: no fence stripping, no brace scanning.
// Anything else is a malformed-output error feeding the fallback.
func (p *Planner) decodePlan(raw string) (*models.OrchestrationPlan, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrMalformedPlan)
	}

	if err := p.schemas.ValidatePlanDocument([]byte(trimmed)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	var plan models.OrchestrationPlan
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	if result := p.structural.ValidatePlan(&plan); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPlan, strings.Join(result.Errors, "; "))
	}

	// The generator resolves step kinds through the registry, so an
	// unknown kind must be rejected here, not there.
	for _, t := range plan.Triggers {
		if _, ok := p.registry.Lookup(t.Type); !ok {
			return nil, fmt.Errorf("%w: trigger uses unknown kind %q", ErrMalformedPlan, t.Type)
		}
	}
	for _, s := range plan.Steps {
		if _, ok := p.registry.Lookup(s.Type); !ok {
			return nil, fmt.Errorf("%w: step %q uses unknown kind %q", ErrMalformedPlan, s.ID, s.Type)
		}
	}

	return &plan, nil
}

// warnIfOverBudget flags prompts whose rough token estimate exceeds the
// assessed input ceiling. The prompt is still sent; the ceiling guides
// construction rather than truncating context mid-sentence.
func (p *Planner) warnIfOverBudget(prompt string, maxInput int) {
	est := len(prompt) / 4
	if maxInput > 0 && est > maxInput {
		p.logger.Warn("prompt estimate exceeds input budget",
			"estimated_tokens", est,
			"max_input", maxInput)
	}
}
