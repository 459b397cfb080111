package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

// ErrInvalidWorkflow marks workflow output that decoded but failed
// schema or structural checks. Distinguished from provider errors so
// callers can tell bad output from unreachable services.
var ErrInvalidWorkflow = errors.New("invalid workflow output")

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// GenerationJob bundles everything a strategy may consult: the raw job
// input, the accepted plan, the complexity assessment computed over
// that plan, the context-retrieval profile, and the knowledge analysis.
type GenerationJob struct {
	Input      models.JobInput
	Plan       *models.OrchestrationPlan
	Assessment complexity.Assessment
	Profile    contextopt.Profile
	Analysis   *knowledge.Analysis
}

// Strategy is one interchangeable generation approach. Generate either
// returns a workflow it already validated internally or an error; the
// chain re-checks the postconditions regardless.
type Strategy interface {
	Name() string
	Generate(ctx context.Context, job GenerationJob) (*models.GeneratedWorkflow, error)
}

// Chain tries strategies in order and returns the first accepted
// workflow. A strategy result is accepted only if it passes structural
// validation and every node type resolves in the registry; otherwise
// the chain records the rejection and moves on. When every strategy
// fails, the last error is preserved.
type Chain struct {
	strategies []Strategy
	structural *validation.StructuralValidator
	registry   *registry.Registry
	logger     Logger
}

// NewChain creates a generation chain over the given strategies
func NewChain(structural *validation.StructuralValidator, reg *registry.Registry, logger Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		structural: structural,
		registry:   reg,
		logger:     logger,
	}
}

// Generate folds over the strategies in order
func (c *Chain) Generate(ctx context.Context, job GenerationJob) (*models.GeneratedWorkflow, error) {
	var lastErr error

	for _, s := range c.strategies {
		wf, err := s.Generate(ctx, job)
		if err != nil {
			c.logger.Warn("generation strategy failed",
				"strategy", s.Name(),
				"error", err)
			lastErr = err
			continue
		}

		if err := c.accept(wf); err != nil {
			c.logger.Warn("generation strategy produced unacceptable workflow",
				"strategy", s.Name(),
				"error", err)
			lastErr = fmt.Errorf("strategy %s: %w", s.Name(), err)
			continue
		}

		if wf.Meta == nil {
			wf.Meta = &models.GenerationMeta{}
		}
		wf.Meta.Strategy = s.Name()
		wf.Meta.Validation = "passed"

		c.logger.Info("workflow generated",
			"strategy", s.Name(),
			"nodes", len(wf.Nodes))
		return wf, nil
	}

	if lastErr == nil {
		return nil, errors.New("no generation strategies configured")
	}
	return nil, fmt.Errorf("all generation strategies failed: %w", lastErr)
}

// accept enforces the chain's postconditions on any strategy result:
// structural consistency and catalog-known node types.
func (c *Chain) accept(wf *models.GeneratedWorkflow) error {
	if result := c.structural.ValidateWorkflow(wf); !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidWorkflow, strings.Join(result.Errors, "; "))
	}
	for _, n := range wf.Nodes {
		if !c.registry.KnownType(n.Type) {
			return fmt.Errorf("%w: node %q uses uncataloged type %q", ErrInvalidWorkflow, n.Name, n.Type)
		}
	}
	return nil
}
