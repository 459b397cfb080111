package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

func newTemplateStrategy(provider *fakeProvider) *TemplateStrategy {
	return NewTemplateStrategy(provider, registry.New(), validation.NewStructuralValidator(), testLogger{})
}

func TestTemplateStrategy_GeneratesTriageWorkflow(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"Classify Ticket": {"resource": "chat", "prompt": "Classify this ticket"}, "Notify Channel": {"channel": "#support"}}`,
	}}
	strategy := newTemplateStrategy(provider)

	wf, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)

	assert.Equal(t, "Support Ticket Triage", wf.Name)
	require.Len(t, wf.Nodes, 4)
	assert.Equal(t, "Webhook Trigger", wf.Nodes[0].Name)
	assert.Equal(t, "n8n-nodes-base.openAi", wf.Nodes[1].Type)
	assert.Equal(t, "n8n-nodes-base.switch", wf.Nodes[2].Type)
	assert.Equal(t, "n8n-nodes-base.slack", wf.Nodes[3].Type)

	// Model fill merged over catalog defaults
	classify := wf.NodeByName("Classify Ticket")
	require.NotNil(t, classify)
	assert.Equal(t, "Classify this ticket", classify.Parameters["prompt"])
	assert.Equal(t, models.CredentialRef{Name: "openAiApi placeholder"}, classify.Credentials["openAiApi"])

	// Linear chain in plan order
	next := wf.Connections["Webhook Trigger"]["main"][0][0]
	assert.Equal(t, "Classify Ticket", next.Node)
	assert.True(t, validation.NewStructuralValidator().ValidateWorkflow(wf).Valid)

	// One completion at the agent budget
	require.Len(t, provider.opts, 1)
	job := newJob(triagePlan())
	assert.Equal(t, job.Assessment.ModelTier, provider.opts[0].Tier)
}

func TestTemplateStrategy_NoShapeMatch(t *testing.T) {
	plan := triagePlan()
	// logic -> logic -> logic matches no known archetype
	for i := range plan.Steps {
		plan.Steps[i].Type = "if"
	}

	strategy := newTemplateStrategy(&fakeProvider{})
	_, err := strategy.Generate(context.Background(), newJob(plan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no template shape matches")
}

func TestTemplateStrategy_BranchingPlanRejected(t *testing.T) {
	plan := triagePlan()
	plan.Connections = []models.PlanConnection{
		{From: "classify", To: "route"},
		{From: "classify", To: "notify"},
	}

	strategy := newTemplateStrategy(&fakeProvider{})
	_, err := strategy.Generate(context.Background(), newJob(plan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a linear chain")
}

func TestTemplateStrategy_MultiTriggerPlanRejected(t *testing.T) {
	plan := triagePlan()
	plan.Triggers = append(plan.Triggers, models.PlanTrigger{Type: "schedule"})

	strategy := newTemplateStrategy(&fakeProvider{})
	_, err := strategy.Generate(context.Background(), newJob(plan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single-trigger")
}

func TestTemplateStrategy_FencedFillRejected(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"```json\n{\"Classify Ticket\": {\"prompt\": \"x\"}}\n```",
	}}
	strategy := newTemplateStrategy(provider)

	_, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter fill")
}

func TestTemplateStrategy_FillForUnknownNodeDropped(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"Ghost Node": {"prompt": "x"}}`,
	}}
	strategy := newTemplateStrategy(provider)

	wf, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)
	assert.Nil(t, wf.NodeByName("Ghost Node"))
}

func TestTemplateStrategy_EmptyConnectionsAssumesDeclaredOrder(t *testing.T) {
	plan := triagePlan()
	plan.Connections = nil

	provider := &fakeProvider{responses: []string{`{}`}}
	strategy := newTemplateStrategy(provider)

	wf, err := strategy.Generate(context.Background(), newJob(plan))
	require.NoError(t, err)
	assert.Equal(t, "Route By Class", wf.Connections["Classify Ticket"]["main"][0][0].Node)
}

func TestTemplateStrategy_DuplicateStepNamesDisambiguated(t *testing.T) {
	plan := triagePlan()
	plan.Steps[2].Name = "Classify Ticket" // same display name as step one

	provider := &fakeProvider{responses: []string{`{}`}}
	strategy := newTemplateStrategy(provider)

	wf, err := strategy.Generate(context.Background(), newJob(plan))
	require.NoError(t, err)
	assert.NotNil(t, wf.NodeByName("Classify Ticket"))
	assert.NotNil(t, wf.NodeByName("Classify Ticket 2"))
}

func TestTemplateStrategy_FillCannotMutateCatalogDefaults(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"Webhook Trigger": {"httpMethod": "GET"}}`,
	}}
	strategy := newTemplateStrategy(provider)

	_, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)

	desc, ok := registry.New().Lookup("webhook")
	require.True(t, ok)
	assert.Equal(t, "POST", desc.Defaults["httpMethod"])
}
