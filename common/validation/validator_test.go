package validation

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/auditflow/automation-engine/common/models"
)

func validPlan() *models.OrchestrationPlan {
	return &models.OrchestrationPlan{
		WorkflowName: "Invoice Intake",
		Description:  "Route incoming invoices to approval",
		Triggers: []models.PlanTrigger{
			{Type: "webhook", Config: map[string]interface{}{"path": "invoice-intake"}},
		},
		Steps: []models.PlanStep{
			{ID: "step1", Name: "Extract Fields", Type: "extract_file"},
			{ID: "step2", Name: "Approve", Type: "if"},
			{ID: "step3", Name: "Notify", Type: "slack"},
		},
		Connections: []models.PlanConnection{
			{From: "step1", To: "step2"},
			{From: "step2", To: "step3"},
		},
	}
}

func validWorkflow() *models.GeneratedWorkflow {
	return &models.GeneratedWorkflow{
		Name: "Invoice Intake",
		Nodes: []models.WorkflowNode{
			{ID: "n1", Name: "Webhook", Type: "n8n-nodes-base.webhook", TypeVersion: 1, Position: []float64{250, 300}},
			{ID: "n2", Name: "Notify", Type: "n8n-nodes-base.slack", TypeVersion: 2.1, Position: []float64{500, 300}},
		},
		Connections: map[string]models.NodePorts{
			"Webhook": {
				"main": [][]models.ConnectionTarget{
					{{Node: "Notify", Port: "main", Index: 0}},
				},
			},
		},
	}
}

func TestValidatePlan_Valid(t *testing.T) {
	res := NewStructuralValidator().ValidatePlan(validPlan())

	if !res.Valid {
		t.Fatalf("valid plan rejected: %v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("valid result carries errors: %v", res.Errors)
	}
}

func TestValidatePlan_DanglingConnectionNamesStep(t *testing.T) {
	plan := validPlan()
	plan.Connections = append(plan.Connections, models.PlanConnection{From: "step3", To: "stepY"})

	res := NewStructuralValidator().ValidatePlan(plan)

	if res.Valid {
		t.Fatal("plan with dangling connection accepted")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, `"stepY"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("no error names the dangling step, got %v", res.Errors)
	}
}

func TestValidatePlan_MissingFields(t *testing.T) {
	res := NewStructuralValidator().ValidatePlan(&models.OrchestrationPlan{})

	if res.Valid {
		t.Fatal("empty plan accepted")
	}
	wantFragments := []string{"workflow name", "description", "trigger", "step"}
	for _, frag := range wantFragments {
		found := false
		for _, e := range res.Errors {
			if strings.Contains(e, frag) {
				found = true
			}
		}
		if !found {
			t.Errorf("no error mentions %q, got %v", frag, res.Errors)
		}
	}
}

func TestValidatePlan_DuplicateStepIDs(t *testing.T) {
	plan := validPlan()
	plan.Steps = append(plan.Steps, models.PlanStep{ID: "step1", Name: "Shadow", Type: "set"})

	res := NewStructuralValidator().ValidatePlan(plan)

	if res.Valid {
		t.Fatal("duplicate step ids accepted")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "duplicate step id") && strings.Contains(e, `"step1"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("duplicate not reported, got %v", res.Errors)
	}
}

func TestValidatePlan_MissingStepIDSkipsReferenceCheck(t *testing.T) {
	// A step without an id is reported once; connections to it are
	// reported as unknown rather than panicking on the empty key.
	plan := validPlan()
	plan.Steps[1].ID = ""

	res := NewStructuralValidator().ValidatePlan(plan)

	if res.Valid {
		t.Fatal("step without id accepted")
	}
}

func TestValidatePlan_Nil(t *testing.T) {
	res := NewStructuralValidator().ValidatePlan(nil)

	if res.Valid || len(res.Errors) != 1 {
		t.Errorf("nil plan: %+v", res)
	}
}

func TestValidateWorkflow_Valid(t *testing.T) {
	res := NewStructuralValidator().ValidateWorkflow(validWorkflow())

	if !res.Valid {
		t.Fatalf("valid workflow rejected: %v", res.Errors)
	}
}

func TestValidateWorkflow_NestedBranchTargets(t *testing.T) {
	wf := validWorkflow()
	wf.Nodes = append(wf.Nodes, models.WorkflowNode{
		ID: "n3", Name: "Route", Type: "n8n-nodes-base.if", TypeVersion: 2, Position: []float64{750, 300},
	})
	// Second branch of the IF points at a node that is not in the list.
	wf.Connections["Route"] = models.NodePorts{
		"main": [][]models.ConnectionTarget{
			{{Node: "Notify", Port: "main", Index: 0}},
			{{Node: "Escalate", Port: "main", Index: 0}},
		},
	}

	res := NewStructuralValidator().ValidateWorkflow(wf)

	if res.Valid {
		t.Fatal("workflow with dangling branch target accepted")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, `"Escalate"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("branch target not reported, got %v", res.Errors)
	}
}

func TestValidateWorkflow_UnknownConnectionSource(t *testing.T) {
	wf := validWorkflow()
	wf.Connections["Ghost"] = models.NodePorts{
		"main": [][]models.ConnectionTarget{{{Node: "Notify"}}},
	}

	res := NewStructuralValidator().ValidateWorkflow(wf)

	if res.Valid {
		t.Fatal("unknown connection source accepted")
	}
}

func TestValidateWorkflow_NodeFieldChecks(t *testing.T) {
	wf := validWorkflow()
	wf.Nodes[1].TypeVersion = 0
	wf.Nodes[1].Position = []float64{500}

	res := NewStructuralValidator().ValidateWorkflow(wf)

	if res.Valid {
		t.Fatal("workflow with broken node accepted")
	}
	wantFragments := []string{"type version", "position"}
	for _, frag := range wantFragments {
		found := false
		for _, e := range res.Errors {
			if strings.Contains(e, frag) {
				found = true
			}
		}
		if !found {
			t.Errorf("no error mentions %q, got %v", frag, res.Errors)
		}
	}
}

func TestValidateWorkflow_Nil(t *testing.T) {
	res := NewStructuralValidator().ValidateWorkflow(nil)

	if res.Valid || len(res.Errors) != 1 {
		t.Errorf("nil workflow: %+v", res)
	}
}

func TestValidation_Idempotent(t *testing.T) {
	// Same input, same verdict, and the input is not mutated.
	v := NewStructuralValidator()

	plan := validPlan()
	plan.Connections = append(plan.Connections, models.PlanConnection{From: "step3", To: "stepY"})
	before, _ := json.Marshal(plan)

	first := v.ValidatePlan(plan)
	second := v.ValidatePlan(plan)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("plan verdicts differ: %+v vs %+v", first, second)
	}

	after, _ := json.Marshal(plan)
	if string(before) != string(after) {
		t.Error("ValidatePlan mutated its input")
	}

	wf := validWorkflow()
	wf.Nodes[0].Position = nil
	wfBefore, _ := json.Marshal(wf)

	firstWF := v.ValidateWorkflow(wf)
	secondWF := v.ValidateWorkflow(wf)
	if !reflect.DeepEqual(firstWF, secondWF) {
		t.Errorf("workflow verdicts differ: %+v vs %+v", firstWF, secondWF)
	}

	wfAfter, _ := json.Marshal(wf)
	if string(wfBefore) != string(wfAfter) {
		t.Error("ValidateWorkflow mutated its input")
	}
}
