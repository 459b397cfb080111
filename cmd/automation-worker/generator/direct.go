package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

// directTemperature trades a little determinism for graph variety;
// validation catches what the extra freedom breaks
const directTemperature = 0.3

// DirectStrategy is the last-resort generator: one completion emits the
// whole workflow document. The output must be bare JSON; fenced or
// prose-wrapped completions are rejected rather than scavenged for
// brace-balanced fragments. Under-specified documents get a name and a
// minimal skeleton back-filled from the plan before validation.
type DirectStrategy struct {
	provider   clients.CompletionProvider
	schemas    *validation.SchemaValidator
	structural *validation.StructuralValidator
	registry   *registry.Registry
	optimizer  *contextopt.Optimizer
	logger     Logger
}

// NewDirectStrategy creates the one-shot LLM strategy
func NewDirectStrategy(provider clients.CompletionProvider, schemas *validation.SchemaValidator, structural *validation.StructuralValidator, reg *registry.Registry, optimizer *contextopt.Optimizer, logger Logger) *DirectStrategy {
	return &DirectStrategy{
		provider:   provider,
		schemas:    schemas,
		structural: structural,
		registry:   reg,
		optimizer:  optimizer,
		logger:     logger,
	}
}

func (s *DirectStrategy) Name() string { return "direct" }

// Generate renders the plan into a full workflow with one completion at
// the orchestrator budget, then decodes, back-fills, and validates.
func (s *DirectStrategy) Generate(ctx context.Context, job GenerationJob) (*models.GeneratedWorkflow, error) {
	prompt := buildDirectPrompt(job, s.optimizer.ContextDocs(job.Profile))
	budget := job.Assessment.BudgetFor(complexity.RoleOrchestrator)

	raw, err := s.provider.Complete(ctx, prompt, clients.CompletionOpts{
		Tier:        job.Assessment.ModelTier,
		MaxTokens:   budget.MaxOutput,
		Temperature: directTemperature,
	})
	if err != nil {
		return nil, err
	}

	return s.decodeWorkflow(raw, job.Plan)
}

// decodeWorkflow parses the completion strictly, repairs what the plan
// can repair, and validates the finished document against both the
// schema and the structural rules.
func (s *DirectStrategy) decodeWorkflow(raw string, plan *models.OrchestrationPlan) (*models.GeneratedWorkflow, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty completion")
	}

	wf := &models.GeneratedWorkflow{}
	if err := json.Unmarshal([]byte(trimmed), wf); err != nil {
		return nil, fmt.Errorf("%w: output is not valid JSON: %v", ErrInvalidWorkflow, err)
	}

	wf, err := s.backfill(wf, plan)
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("re-encode workflow: %w", err)
	}
	if err := s.schemas.ValidateWorkflowDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrInvalidWorkflow, err)
	}
	if result := s.structural.ValidateWorkflow(wf); !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWorkflow, strings.Join(result.Errors, "; "))
	}
	return wf, nil
}

// backfill fixes the under-specification modes models actually exhibit:
// a missing name, an empty node list (replaced by the plan skeleton),
// absent connections on a multi-node graph, and nodes lacking ids,
// positions, or a type version the catalog knows.
func (s *DirectStrategy) backfill(wf *models.GeneratedWorkflow, plan *models.OrchestrationPlan) (*models.GeneratedWorkflow, error) {
	if wf.Name == "" {
		wf.Name = plan.WorkflowName
	}

	if len(wf.Nodes) == 0 {
		s.logger.Warn("completion carried no nodes, assembling skeleton from plan")
		skeleton, err := assemblePlanSkeleton(s.registry, plan)
		if err != nil {
			return nil, fmt.Errorf("assembling fallback skeleton: %w", err)
		}
		skeleton.Name = wf.Name
		return skeleton, nil
	}

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
		if node.Name == "" {
			node.Name = fmt.Sprintf("Step %d", i+1)
		}
		if len(node.Position) != 2 {
			node.Position = []float64{250 + float64(i)*220, 300}
		}
		if node.TypeVersion == 0 {
			if desc, ok := s.registry.LookupType(node.Type); ok {
				node.TypeVersion = desc.TypeVersion
			}
		}
	}

	if len(wf.Connections) == 0 && len(wf.Nodes) > 1 {
		wf.Connections = make(map[string]models.NodePorts, len(wf.Nodes)-1)
		for i := 0; i < len(wf.Nodes)-1; i++ {
			wf.Connections[wf.Nodes[i].Name] = models.NodePorts{
				"main": [][]models.ConnectionTarget{
					{{Node: wf.Nodes[i+1].Name, Port: "main", Index: 0}},
				},
			}
		}
	}
	if wf.Connections == nil {
		wf.Connections = map[string]models.NodePorts{}
	}

	return wf, nil
}
