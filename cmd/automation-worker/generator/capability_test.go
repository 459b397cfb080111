package generator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

func newCapabilityStrategy(builder *fakeBuilder) *CapabilityStrategy {
	reg := registry.New()
	return NewCapabilityStrategy(
		builder,
		NewEnhancer(reg, testLogger{}),
		validation.NewStructuralValidator(),
		contextopt.NewOptimizer(reg, 0),
		"n8n",
		testLogger{},
	)
}

// builderDraft is a structurally sound draft the way the builder
// service returns one: right graph, none of the hardening applied.
func builderDraft() *models.GeneratedWorkflow {
	return &models.GeneratedWorkflow{
		Name: "Order Exception Alerting",
		Nodes: []models.WorkflowNode{
			{
				ID: "b1", Name: "Webhook", Type: "n8n-nodes-base.webhook",
				TypeVersion: 1, Position: []float64{250, 300},
				Parameters: map[string]interface{}{"httpMethod": "POST", "path": ""},
			},
			{
				ID: "b2", Name: "Check Order", Type: "n8n-nodes-base.httpRequest",
				TypeVersion: 4.1, Position: []float64{470, 300},
				Parameters: map[string]interface{}{"method": "GET"},
			},
			{
				ID: "b3", Name: "Alert Ops", Type: "n8n-nodes-base.slack",
				TypeVersion: 2.1, Position: []float64{690, 300},
			},
		},
		Connections: map[string]models.NodePorts{
			"Webhook":     {"main": [][]models.ConnectionTarget{{{Node: "Check Order", Port: "main", Index: 0}}}},
			"Check Order": {"main": [][]models.ConnectionTarget{{{Node: "Alert Ops", Port: "main", Index: 0}}}},
		},
	}
}

func TestCapabilityStrategy_EnhancesBuilderDraft(t *testing.T) {
	builder := &fakeBuilder{
		buildResult: &clients.BuildResult{
			Workflow:   builderDraft(),
			Validation: clients.BuilderValidation{Valid: true},
		},
	}
	strategy := newCapabilityStrategy(builder)

	wf, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)

	httpNode := wf.NodeByName("Check Order")
	require.NotNil(t, httpNode)
	assert.True(t, httpNode.RetryOnFail)
	assert.Equal(t, 3, httpNode.MaxTries)
	assert.Equal(t, 1000, httpNode.WaitBetweenTries)
	assert.Equal(t, models.CredentialRef{Name: "httpHeaderAuth placeholder"}, httpNode.Credentials["httpHeaderAuth"])

	webhook := wf.NodeByName("Webhook")
	require.NotNil(t, webhook)
	assert.Equal(t, "order-exception-alerting", webhook.Parameters["path"])
	assert.Equal(t, "onReceived", webhook.Parameters["responseMode"])

	alert := wf.NodeByName("Alert Ops")
	require.NotNil(t, alert)
	assert.Equal(t, "Terminal notification step", alert.Notes)
	assert.Equal(t, models.CredentialRef{Name: "slackApi placeholder"}, alert.Credentials["slackApi"])

	require.NotNil(t, wf.Meta)
	assert.Equal(t, []string{
		"http_retry_policy",
		"placeholder_credentials",
		"webhook_contract",
		"terminal_notification_markers",
	}, wf.Meta.Enhancements)

	assert.Equal(t, 1, builder.connects)
	assert.Equal(t, 1, builder.disconnects)
}

func TestCapabilityStrategy_UnreachableServiceSurfacesSentinel(t *testing.T) {
	builder := &fakeBuilder{
		connectErr: fmt.Errorf("%w: dial tcp: connection refused", clients.ErrBuilderUnavailable),
	}
	strategy := newCapabilityStrategy(builder)

	_, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.Error(t, err)
	assert.ErrorIs(t, err, clients.ErrBuilderUnavailable)
	assert.Equal(t, 0, builder.disconnects, "no session to close when connect fails")
}

func TestCapabilityStrategy_BuilderRejectsOwnDraft(t *testing.T) {
	builder := &fakeBuilder{
		buildResult: &clients.BuildResult{
			Workflow:   builderDraft(),
			Validation: clients.BuilderValidation{Valid: false, Errors: []string{"node Check Order: unsupported operation"}},
		},
	}
	strategy := newCapabilityStrategy(builder)

	_, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operation")
	assert.Equal(t, 1, builder.disconnects, "session closes on every exit path")
}

func TestCapabilityStrategy_MissingVerdictValidatesExplicitly(t *testing.T) {
	builder := &fakeBuilder{
		buildResult: &clients.BuildResult{Workflow: builderDraft()},
		verdict:     &clients.BuilderValidation{Valid: true},
	}
	strategy := newCapabilityStrategy(builder)

	wf, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)
	assert.True(t, builder.validated, "draft without a verdict must be validated in-session")
	assert.NotNil(t, wf)
}

func TestCapabilityStrategy_RespondNodeFlipsResponseMode(t *testing.T) {
	draft := builderDraft()
	draft.Nodes = append(draft.Nodes, models.WorkflowNode{
		ID: "b4", Name: "Reply", Type: "n8n-nodes-base.respondToWebhook",
		TypeVersion: 1, Position: []float64{910, 300},
	})
	draft.Connections["Alert Ops"] = models.NodePorts{
		"main": [][]models.ConnectionTarget{{{Node: "Reply", Port: "main", Index: 0}}},
	}

	builder := &fakeBuilder{
		buildResult: &clients.BuildResult{
			Workflow:   draft,
			Validation: clients.BuilderValidation{Valid: true},
		},
	}
	strategy := newCapabilityStrategy(builder)

	wf, err := strategy.Generate(context.Background(), newJob(triagePlan()))
	require.NoError(t, err)

	webhook := wf.NodeByName("Webhook")
	require.NotNil(t, webhook)
	assert.Equal(t, "responseNode", webhook.Parameters["responseMode"])

	// Alert Ops now has an outgoing edge, so it is not terminal
	assert.Empty(t, wf.NodeByName("Alert Ops").Notes)
}
