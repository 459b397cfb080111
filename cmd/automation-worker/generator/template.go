package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

// fillTemperature keeps parameter fills near-deterministic
const fillTemperature = 0.1

// workflowShape is one known archetype template: a linear sequence of
// node categories the plan's steps must match exactly.
type workflowShape struct {
	name       string
	categories []string
}

// shapes is the fixed template set. A plan that matches none of these
// falls through to the next strategy.
var shapes = []workflowShape{
	{name: "classify_and_route", categories: []string{"ai", "logic", "notification"}},
	{name: "transform_classify_notify", categories: []string{"transform", "ai", "notification"}},
	{name: "extract_classify_store", categories: []string{"document", "ai", "integration"}},
	{name: "fetch_transform_store", categories: []string{"integration", "transform", "integration"}},
	{name: "fetch_transform_notify", categories: []string{"integration", "transform", "notification"}},
	{name: "transform_store", categories: []string{"transform", "integration"}},
	{name: "fetch_notify", categories: []string{"integration", "notification"}},
	{name: "classify_notify", categories: []string{"ai", "notification"}},
	{name: "transform_notify", categories: []string{"transform", "notification"}},
}

// TemplateStrategy assembles the node graph deterministically from the
// plan and a matched archetype shape; the model only fills per-node
// parameters inside that fixed structure.
type TemplateStrategy struct {
	provider   clients.CompletionProvider
	registry   *registry.Registry
	structural *validation.StructuralValidator
	logger     Logger
}

// NewTemplateStrategy creates the template-driven strategy
func NewTemplateStrategy(provider clients.CompletionProvider, reg *registry.Registry, structural *validation.StructuralValidator, logger Logger) *TemplateStrategy {
	return &TemplateStrategy{
		provider:   provider,
		registry:   reg,
		structural: structural,
		logger:     logger,
	}
}

func (s *TemplateStrategy) Name() string { return "template" }

// Generate matches the plan to a shape, assembles the skeleton, asks
// the model to fill node parameters, and validates the result.
func (s *TemplateStrategy) Generate(ctx context.Context, job GenerationJob) (*models.GeneratedWorkflow, error) {
	plan := job.Plan

	shape, err := s.matchShape(plan)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("plan matched template shape", "shape", shape.name)

	wf, err := s.assemble(plan)
	if err != nil {
		return nil, err
	}

	fill, err := s.fillParameters(ctx, wf, job)
	if err != nil {
		return nil, fmt.Errorf("parameter fill: %w", err)
	}
	s.applyFill(wf, fill)

	if result := s.structural.ValidateWorkflow(wf); !result.Valid {
		return nil, fmt.Errorf("assembled workflow: %w: %s", ErrInvalidWorkflow, strings.Join(result.Errors, "; "))
	}

	return wf, nil
}

// matchShape finds the template whose category sequence equals the
// plan's step categories. Only single-trigger, linearly connected plans
// are eligible.
func (s *TemplateStrategy) matchShape(plan *models.OrchestrationPlan) (workflowShape, error) {
	if len(plan.Triggers) != 1 {
		return workflowShape{}, fmt.Errorf("template shapes cover single-trigger plans, got %d triggers", len(plan.Triggers))
	}
	if !connectionsAreLinear(plan) {
		return workflowShape{}, fmt.Errorf("plan connections are not a linear chain")
	}

	categories := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		desc, ok := s.registry.Lookup(step.Type)
		if !ok {
			return workflowShape{}, fmt.Errorf("step %q uses unknown kind %q", step.ID, step.Type)
		}
		categories = append(categories, desc.Category)
	}

	for _, shape := range shapes {
		if equalStrings(shape.categories, categories) {
			return shape, nil
		}
	}
	return workflowShape{}, fmt.Errorf("no template shape matches step categories %v", categories)
}

// assemble builds the full node graph from the plan: one trigger node,
// one node per step, linear connections, deterministic layout.
func (s *TemplateStrategy) assemble(plan *models.OrchestrationPlan) (*models.GeneratedWorkflow, error) {
	return assemblePlanSkeleton(s.registry, plan)
}

// assemblePlanSkeleton renders a plan's declared order as a linear node
// graph. The template strategy builds its whole structure this way; the
// direct strategy falls back to it when the model returns no nodes.
func assemblePlanSkeleton(reg *registry.Registry, plan *models.OrchestrationPlan) (*models.GeneratedWorkflow, error) {
	if len(plan.Triggers) == 0 {
		return nil, fmt.Errorf("plan declares no trigger")
	}
	trigger := plan.Triggers[0]
	trigDesc, ok := reg.Lookup(trigger.Type)
	if !ok {
		return nil, fmt.Errorf("unknown trigger kind %q", trigger.Type)
	}

	nodes := make([]models.WorkflowNode, 0, len(plan.Steps)+1)
	nodes = append(nodes, buildNode(trigDesc, triggerName(trigger.Type), 0, trigger.Config))

	seen := map[string]int{nodes[0].Name: 1}
	for i, step := range plan.Steps {
		desc, ok := reg.Lookup(step.Type)
		if !ok {
			return nil, fmt.Errorf("unknown step kind %q", step.Type)
		}
		name := uniqueName(step.Name, seen)
		nodes = append(nodes, buildNode(desc, name, i+1, step.Config))
	}

	connections := make(map[string]models.NodePorts, len(nodes)-1)
	for i := 0; i < len(nodes)-1; i++ {
		connections[nodes[i].Name] = models.NodePorts{
			"main": [][]models.ConnectionTarget{
				{{Node: nodes[i+1].Name, Port: "main", Index: 0}},
			},
		}
	}

	return &models.GeneratedWorkflow{
		Name:        plan.WorkflowName,
		Nodes:       nodes,
		Connections: connections,
		Settings:    map[string]interface{}{"executionOrder": "v1"},
	}, nil
}

// fillParameters runs the single agent-role completion that fills node
// parameters within the fixed structure.
func (s *TemplateStrategy) fillParameters(ctx context.Context, wf *models.GeneratedWorkflow, job GenerationJob) (map[string]map[string]interface{}, error) {
	prompt := buildFillPrompt(wf, job, s.registry)
	budget := job.Assessment.BudgetFor(complexity.RoleAgent)

	raw, err := s.provider.Complete(ctx, prompt, clients.CompletionOpts{
		Tier:        job.Assessment.ModelTier,
		MaxTokens:   budget.MaxOutput,
		Temperature: fillTemperature,
	})
	if err != nil {
		return nil, err
	}

	var fill map[string]map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fill); err != nil {
		return nil, fmt.Errorf("fill output is not a JSON parameter map: %w", err)
	}
	return fill, nil
}

// applyFill merges model-provided parameters over each node's defaults.
// Fills for names not in the workflow are dropped.
func (s *TemplateStrategy) applyFill(wf *models.GeneratedWorkflow, fill map[string]map[string]interface{}) {
	for name, params := range fill {
		node := wf.NodeByName(name)
		if node == nil {
			s.logger.Debug("fill references unknown node, dropping", "node", name)
			continue
		}
		if node.Parameters == nil {
			node.Parameters = map[string]interface{}{}
		}
		for k, v := range params {
			node.Parameters[k] = v
		}
	}
}

// buildNode constructs one workflow node from a registry descriptor,
// seeding parameters with the catalog defaults plus any plan config and
// placeholder credentials for every required credential class.
func buildNode(desc registry.NodeTypeDescriptor, name string, index int, config map[string]interface{}) models.WorkflowNode {
	params := deepCopyMap(desc.Defaults)
	for k, v := range config {
		params[k] = v
	}

	node := models.WorkflowNode{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        desc.Type,
		TypeVersion: desc.TypeVersion,
		Position:    []float64{250 + float64(index)*220, 300},
		Parameters:  params,
	}

	if len(desc.CredentialKinds) > 0 {
		node.Credentials = make(map[string]models.CredentialRef, len(desc.CredentialKinds))
		for _, kind := range desc.CredentialKinds {
			node.Credentials[kind] = models.CredentialRef{Name: placeholderCredName(kind)}
		}
	}
	return node
}

// connectionsAreLinear reports whether the plan's connections form the
// chain implied by declared step order. An empty connection list counts
// as linear; the chain is then assumed.
func connectionsAreLinear(plan *models.OrchestrationPlan) bool {
	if len(plan.Connections) == 0 {
		return true
	}
	if len(plan.Connections) != len(plan.Steps)-1 {
		return false
	}

	edges := make(map[string]string, len(plan.Connections))
	for _, c := range plan.Connections {
		if _, dup := edges[c.From]; dup {
			return false
		}
		edges[c.From] = c.To
	}
	for i := 0; i < len(plan.Steps)-1; i++ {
		if edges[plan.Steps[i].ID] != plan.Steps[i+1].ID {
			return false
		}
	}
	return true
}

// triggerName renders a display name for a trigger kind, e.g.
// "webhook" -> "Webhook Trigger", "email_trigger" -> "Email Trigger".
func triggerName(kind string) string {
	name := titleCase(strings.ReplaceAll(kind, "_", " "))
	if !strings.Contains(strings.ToLower(name), "trigger") {
		name += " Trigger"
	}
	return name
}

// uniqueName disambiguates duplicate display names by suffixing a
// counter, since the platform keys connections by node name.
func uniqueName(name string, seen map[string]int) string {
	if name == "" {
		name = "Step"
	}
	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}
	return fmt.Sprintf("%s %d", name, count+1)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// deepCopyMap copies a parameter map including nested maps and slices,
// so catalog defaults are never shared into mutable node state.
func deepCopyMap(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
