package validation

import (
	"fmt"

	"github.com/auditflow/automation-engine/common/models"
)

// Result is the outcome of a structural check. Valid is true exactly
// when Errors is empty.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// StructuralValidator checks referential consistency of orchestration
// plans and generated workflows. Pure checks, no I/O, never panics.
type StructuralValidator struct{}

// NewStructuralValidator creates a new structural validator
func NewStructuralValidator() *StructuralValidator {
	return &StructuralValidator{}
}

// ValidatePlan checks that a plan names itself, declares at least one
// trigger and step, and that every connection references declared step ids
func (v *StructuralValidator) ValidatePlan(plan *models.OrchestrationPlan) Result {
	errs := []string{}

	if plan == nil {
		return Result{Valid: false, Errors: []string{"plan is nil"}}
	}

	if plan.WorkflowName == "" {
		errs = append(errs, "plan must have a workflow name")
	}
	if plan.Description == "" {
		errs = append(errs, "plan must have a description")
	}
	if len(plan.Triggers) == 0 {
		errs = append(errs, "plan must have at least one trigger")
	}
	if len(plan.Steps) == 0 {
		errs = append(errs, "plan must have at least one step")
	}

	declared := make(map[string]bool, len(plan.Steps))
	for i, step := range plan.Steps {
		if step.ID == "" {
			errs = append(errs, fmt.Sprintf("step %d: missing id", i))
			continue
		}
		if declared[step.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step id: %q", step.ID))
		}
		declared[step.ID] = true
	}

	for _, conn := range plan.Connections {
		if !declared[conn.From] {
			errs = append(errs, fmt.Sprintf("connection references unknown step: %q", conn.From))
		}
		if !declared[conn.To] {
			errs = append(errs, fmt.Sprintf("connection references unknown step: %q", conn.To))
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// ValidateWorkflow checks that every node carries the fields the
// platform requires and that every connection endpoint, including
// nested branch targets, names a node present in the node list
func (v *StructuralValidator) ValidateWorkflow(wf *models.GeneratedWorkflow) Result {
	errs := []string{}

	if wf == nil {
		return Result{Valid: false, Errors: []string{"workflow is nil"}}
	}

	if wf.Name == "" {
		errs = append(errs, "workflow must have a name")
	}
	if len(wf.Nodes) == 0 {
		errs = append(errs, "workflow must have at least one node")
	}

	names := make(map[string]bool, len(wf.Nodes))
	for i, node := range wf.Nodes {
		if node.ID == "" {
			errs = append(errs, fmt.Sprintf("node %d: missing id", i))
		}
		if node.Name == "" {
			errs = append(errs, fmt.Sprintf("node %d: missing name", i))
		} else {
			names[node.Name] = true
		}
		if node.Type == "" {
			errs = append(errs, fmt.Sprintf("node %q: missing type", node.Name))
		}
		if node.TypeVersion <= 0 {
			errs = append(errs, fmt.Sprintf("node %q: missing type version", node.Name))
		}
		if len(node.Position) != 2 {
			errs = append(errs, fmt.Sprintf("node %q: position must have exactly 2 elements", node.Name))
		}
	}

	for source, ports := range wf.Connections {
		if !names[source] {
			errs = append(errs, fmt.Sprintf("connection source references unknown node: %q", source))
		}
		for port, branches := range ports {
			for _, targets := range branches {
				for _, target := range targets {
					if !names[target.Node] {
						errs = append(errs, fmt.Sprintf("connection %q (port %s) references unknown node: %q", source, port, target.Node))
					}
				}
			}
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
