package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

// CapabilityStrategy delegates graph construction to the builder
// service, then runs the local enhancement pass over the returned
// draft. Connection failures surface as ErrBuilderUnavailable so the
// chain can fall through to direct generation.
type CapabilityStrategy struct {
	builder    clients.BuilderClient
	enhancer   *Enhancer
	structural *validation.StructuralValidator
	optimizer  *contextopt.Optimizer
	platform   string
	logger     Logger
}

// NewCapabilityStrategy creates the builder-backed strategy
func NewCapabilityStrategy(builder clients.BuilderClient, enhancer *Enhancer, structural *validation.StructuralValidator, optimizer *contextopt.Optimizer, platform string, logger Logger) *CapabilityStrategy {
	return &CapabilityStrategy{
		builder:    builder,
		enhancer:   enhancer,
		structural: structural,
		optimizer:  optimizer,
		platform:   platform,
		logger:     logger,
	}
}

func (s *CapabilityStrategy) Name() string { return "capability" }

// Generate builds the workflow through a builder session. The builder's
// own verdict gates acceptance; drafts without a verdict are validated
// explicitly before the session closes.
func (s *CapabilityStrategy) Generate(ctx context.Context, job GenerationJob) (*models.GeneratedWorkflow, error) {
	req := clients.BuildRequirements{
		Name:        job.Plan.WorkflowName,
		Description: job.Plan.Description,
		Platform:    s.platform,
		Plan:        job.Plan,
		Context:     s.optimizer.ContextDocs(job.Profile),
	}

	var draft *models.GeneratedWorkflow
	err := clients.WithSession(ctx, s.builder, func(ctx context.Context) error {
		result, err := s.builder.BuildWorkflow(ctx, req)
		if err != nil {
			return err
		}

		verdict := result.Validation
		if !verdict.Valid && len(verdict.Errors) == 0 {
			// Builder omitted its verdict; ask for one while the
			// session is still open.
			v, err := s.builder.ValidateWorkflow(ctx, result.Workflow)
			if err != nil {
				return fmt.Errorf("builder validation: %w", err)
			}
			verdict = *v
		}
		if !verdict.Valid {
			return fmt.Errorf("builder rejected its draft: %w: %s", ErrInvalidWorkflow, strings.Join(verdict.Errors, "; "))
		}

		draft = result.Workflow
		return nil
	})
	if err != nil {
		return nil, err
	}

	enhanced, applied, err := s.enhancer.Enhance(draft)
	if err != nil {
		return nil, fmt.Errorf("enhancing builder draft: %w", err)
	}

	if result := s.structural.ValidateWorkflow(enhanced); !result.Valid {
		return nil, fmt.Errorf("enhanced draft: %w: %s", ErrInvalidWorkflow, strings.Join(result.Errors, "; "))
	}

	if len(applied) > 0 {
		if enhanced.Meta == nil {
			enhanced.Meta = &models.GenerationMeta{}
		}
		enhanced.Meta.Enhancements = applied
	}
	return enhanced, nil
}
