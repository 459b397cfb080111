package complexity

// Role scopes a token budget to the kind of completion call being made.
// Orchestrator calls carry the full planning or generation prompt;
// agent calls are the smaller secondary completions (parameter fills,
// refinements) made on a plan's behalf.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleAgent        Role = "agent"
)

// TokenBudget is the input/output token ceiling for one completion call
type TokenBudget struct {
	MaxInput  int `json:"max_input"`
	MaxOutput int `json:"max_output"`
}

// budgets maps class and role to hard token ceilings. Agent budgets are
// roughly two-thirds of the orchestrator budgets for the same class.
var budgets = map[Class]map[Role]TokenBudget{
	ClassSimple: {
		RoleOrchestrator: {MaxInput: 8000, MaxOutput: 3000},
		RoleAgent:        {MaxInput: 5000, MaxOutput: 2000},
	},
	ClassComplex: {
		RoleOrchestrator: {MaxInput: 15000, MaxOutput: 5000},
		RoleAgent:        {MaxInput: 10000, MaxOutput: 3500},
	},
}

// budgetFor returns the ceilings for a class and role. Unknown inputs
// fall back to the simple orchestrator budget rather than zero, so a
// miswired caller degrades instead of sending unbounded prompts.
func budgetFor(class Class, role Role) TokenBudget {
	if byRole, ok := budgets[class]; ok {
		if b, ok := byRole[role]; ok {
			return b
		}
	}
	return budgets[ClassSimple][RoleOrchestrator]
}
