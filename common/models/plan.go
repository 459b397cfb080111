package models

// OrchestrationPlan is the intermediate representation between the
// process description and the platform-specific workflow graph. It is
// produced by the planner, consumed by the generator, and embedded in
// the job payload rather than persisted on its own.
type OrchestrationPlan struct {
	WorkflowName  string           `json:"workflow_name"`
	Description   string           `json:"description"`
	Triggers      []PlanTrigger    `json:"triggers"`
	Steps         []PlanStep       `json:"steps"`
	Connections   []PlanConnection `json:"connections"`
	ErrorHandling ErrorHandling    `json:"error_handling"`
}

// PlanTrigger describes how the workflow starts
type PlanTrigger struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// PlanStep is one unit of work in the plan
type PlanStep struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Inputs      []string               `json:"inputs,omitempty"`
	Outputs     []string               `json:"outputs,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"`
}

// PlanConnection is a directed edge between two step ids
type PlanConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ErrorHandling is the plan-level failure policy
type ErrorHandling struct {
	Strategy      string   `json:"strategy,omitempty"`
	NotifyTargets []string `json:"notify_targets,omitempty"`
}

// StepByID returns the step with the given id, or nil
func (p *OrchestrationPlan) StepByID(id string) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepIDs returns the declared step ids in order
func (p *OrchestrationPlan) StepIDs() []string {
	ids := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		ids = append(ids, s.ID)
	}
	return ids
}
