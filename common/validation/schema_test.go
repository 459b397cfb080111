package validation

import (
	"strings"
	"testing"
)

func newValidator(t *testing.T) *SchemaValidator {
	t.Helper()
	v, err := NewSchemaValidator()
	if err != nil {
		t.Fatalf("embedded schemas do not compile: %v", err)
	}
	return v
}

func TestValidatePlanDocument(t *testing.T) {
	v := newValidator(t)

	good := `{
		"workflow_name": "Ticket Triage",
		"triggers": [{"type": "webhook"}],
		"steps": [{"id": "step1", "name": "Classify", "type": "openai"}]
	}`
	if err := v.ValidatePlanDocument([]byte(good)); err != nil {
		t.Errorf("valid plan rejected: %v", err)
	}

	missingName := `{
		"triggers": [{"type": "webhook"}],
		"steps": [{"id": "step1", "name": "Classify", "type": "openai"}]
	}`
	if err := v.ValidatePlanDocument([]byte(missingName)); err == nil {
		t.Error("plan without workflow_name accepted")
	}

	emptySteps := `{
		"workflow_name": "Ticket Triage",
		"triggers": [{"type": "webhook"}],
		"steps": []
	}`
	if err := v.ValidatePlanDocument([]byte(emptySteps)); err == nil {
		t.Error("plan with empty steps accepted")
	}
}

func TestValidateWorkflowDocument(t *testing.T) {
	v := newValidator(t)

	good := `{
		"name": "Ticket Triage",
		"nodes": [{"id": "n1", "name": "Webhook", "type": "n8n-nodes-base.webhook", "typeVersion": 1, "position": [250, 300]}],
		"connections": {}
	}`
	if err := v.ValidateWorkflowDocument([]byte(good)); err != nil {
		t.Errorf("valid workflow rejected: %v", err)
	}

	zeroVersion := `{
		"name": "Ticket Triage",
		"nodes": [{"id": "n1", "name": "Webhook", "type": "n8n-nodes-base.webhook", "typeVersion": 0, "position": [250, 300]}],
		"connections": {}
	}`
	if err := v.ValidateWorkflowDocument([]byte(zeroVersion)); err == nil {
		t.Error("zero typeVersion accepted")
	}

	shortPosition := `{
		"name": "Ticket Triage",
		"nodes": [{"id": "n1", "name": "Webhook", "type": "n8n-nodes-base.webhook", "typeVersion": 1, "position": [250]}],
		"connections": {}
	}`
	if err := v.ValidateWorkflowDocument([]byte(shortPosition)); err == nil {
		t.Error("one-element position accepted")
	}
}

func TestValidateDocument_MalformedJSON(t *testing.T) {
	v := newValidator(t)

	err := v.ValidatePlanDocument([]byte("not a document"))
	if err == nil || !strings.Contains(err.Error(), "not well-formed") {
		t.Errorf("malformed JSON error = %v", err)
	}
}

func TestSchemaSource(t *testing.T) {
	for _, kind := range []string{"plan", "workflow"} {
		src, err := SchemaSource(kind)
		if err != nil {
			t.Fatalf("SchemaSource(%q): %v", kind, err)
		}
		if !strings.Contains(string(src), "$schema") {
			t.Errorf("%s schema source looks wrong: %.40q", kind, string(src))
		}
	}

	if _, err := SchemaSource("intent"); err == nil {
		t.Error("unknown schema kind accepted")
	}
}
