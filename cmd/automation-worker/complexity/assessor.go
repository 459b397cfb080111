package complexity

import (
	"fmt"
	"strings"

	"github.com/auditflow/automation-engine/common/models"
)

// Class buckets a job by how much model capacity it deserves
type Class string

const (
	ClassSimple  Class = "simple"
	ClassComplex Class = "complex"
)

// complexThreshold is the score at which a job is classed complex
const complexThreshold = 4

// Assessment is the scored classification of one job. Computed per job,
// consumed by the planner and generator, never persisted.
type Assessment struct {
	Score     int         `json:"score"`
	Class     Class       `json:"class"`
	Reasons   []string    `json:"reasons"`
	ModelTier string      `json:"model_tier"`
	Budget    TokenBudget `json:"budget"` // orchestrator-role ceilings
}

// BudgetFor returns the token ceilings for a call role under this
// assessment's class
func (a Assessment) BudgetFor(role Role) TokenBudget {
	return budgetFor(a.Class, role)
}

// Assessor scores structural and business complexity signals. The same
// assessor serves both pipeline stages: the planner calls it with a nil
// plan (only job signals contribute), the generator calls it again once
// a plan exists so step-level signals count too.
type Assessor struct{}

// NewAssessor creates a complexity assessor
func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess computes the weighted complexity score for a job. plan may be
// nil before the planning stage has produced one.
//
// The score is monotonic: adding steps, integrations, or volume
// indicators never lowers it.
func (a *Assessor) Assess(input models.JobInput, plan *models.OrchestrationPlan) Assessment {
	score := 0
	var reasons []string

	text := jobText(input)

	steps := 0
	integrations := countIntegrations(text, plan)
	if plan != nil {
		steps = len(plan.Steps)
	}

	switch {
	case steps >= 5:
		score += 3
		reasons = append(reasons, fmt.Sprintf("%d steps", steps))
	case steps >= 3:
		score += 1
		reasons = append(reasons, fmt.Sprintf("%d steps", steps))
	}

	if integrations >= 2 {
		score += 2
		reasons = append(reasons, fmt.Sprintf("%d external integrations", integrations))
	}

	if hasAISignals(input, plan, text) {
		score += 2
		reasons = append(reasons, "AI/analysis/classification work")
	}

	if industry := matchIndustry(text); industry != "" {
		score += 1
		reasons = append(reasons, fmt.Sprintf("high-compliance industry (%s)", industry))
	}

	if hasVolumeSignals(input, text) {
		score += 1
		reasons = append(reasons, "high declared volume")
	}

	if plan != nil && hasBranchingSteps(plan) {
		score += 1
		reasons = append(reasons, "conditional branching")
	}

	if integrations > 2 || hasParallelLanguage(text, plan) {
		score += 2
		reasons = append(reasons, "parallel processing indicators")
	}

	class := ClassSimple
	if score >= complexThreshold {
		class = ClassComplex
	}

	return Assessment{
		Score:     score,
		Class:     class,
		Reasons:   reasons,
		ModelTier: tierFor(class),
		Budget:    budgetFor(class, RoleOrchestrator),
	}
}

// jobText concatenates every free-text surface of the job input,
// lower-cased for keyword matching
func jobText(input models.JobInput) string {
	var b strings.Builder
	b.WriteString(input.ProcessData.ProcessDescription)
	for _, answer := range input.ProcessData.Answers {
		b.WriteString(" ")
		b.WriteString(answer)
	}
	for _, opp := range input.Opportunities {
		b.WriteString(" ")
		b.WriteString(opp.Title)
		b.WriteString(" ")
		b.WriteString(opp.Description)
	}
	return strings.ToLower(b.String())
}

// integrationStepTypes are plan step types that call out to external
// systems. Both the registry kinds and the generic names models tend to
// produce are recognized.
var integrationStepTypes = map[string]bool{
	"integration":   true,
	"http":          true,
	"http_request":  true,
	"api":           true,
	"database":      true,
	"postgres":      true,
	"google_sheets": true,
	"gmail":         true,
	"slack":         true,
	"crm":           true,
	"erp":           true,
	"webhook":       true,
}

// integrationKeywords mark external systems mentioned in free text
var integrationKeywords = []string{
	"salesforce", "hubspot", "slack", "gmail", "google sheets",
	"stripe", "quickbooks", "jira", "zendesk", "sap", "shopify",
}

// countIntegrations counts external integration touchpoints. Plan steps
// are authoritative when a plan exists; distinct named systems in the
// job text are counted either way.
func countIntegrations(text string, plan *models.OrchestrationPlan) int {
	count := 0

	if plan != nil {
		for _, step := range plan.Steps {
			if integrationStepTypes[strings.ToLower(step.Type)] {
				count++
			}
		}
	}

	for _, kw := range integrationKeywords {
		if strings.Contains(text, kw) {
			count++
		}
	}

	return count
}

// aiKeywords flag AI, analysis, and classification work
var aiKeywords = []string{
	"ai ", " ai", "artificial intelligence", "machine learning", "llm",
	"classif", "analy", "categoriz", "sentiment", "extract", "summariz",
	"intelligent",
}

// hasAISignals reports AI-flavored work in the job text, opportunity
// tags, or plan step types
func hasAISignals(input models.JobInput, plan *models.OrchestrationPlan, text string) bool {
	for _, kw := range aiKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	for _, opp := range input.Opportunities {
		for _, tag := range opp.Tags {
			if strings.EqualFold(tag, "ai") {
				return true
			}
		}
	}
	if plan != nil {
		for _, step := range plan.Steps {
			switch strings.ToLower(step.Type) {
			case "ai", "llm", "openai", "classification", "analysis":
				return true
			}
		}
	}
	return false
}

// complianceIndustries maps industry keyword stems to display labels
var complianceIndustries = []struct {
	stem  string
	label string
}{
	{"financ", "finance"},
	{"banking", "finance"},
	{"insurance", "insurance"},
	{"healthcare", "healthcare"},
	{"health care", "healthcare"},
	{"medical", "healthcare"},
	{"clinical", "healthcare"},
	{"patient", "healthcare"},
}

// matchIndustry returns the first high-compliance industry found in the
// text, or ""
func matchIndustry(text string) string {
	for _, ind := range complianceIndustries {
		if strings.Contains(text, ind.stem) {
			return ind.label
		}
	}
	return ""
}

// volumeMarkers flag declared high throughput
var volumeMarkers = []string{"100+", "200+", "high volume", "high-volume"}

// hasVolumeSignals reports declared high volume in the questionnaire
// answers or the description
func hasVolumeSignals(input models.JobInput, text string) bool {
	for _, marker := range volumeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	// A bare "high" only counts inside a volume answer, not anywhere
	// in the description
	for key, answer := range input.ProcessData.Answers {
		if strings.Contains(strings.ToLower(key), "volume") &&
			strings.Contains(strings.ToLower(answer), "high") {
			return true
		}
	}
	return false
}

// branchingStepTypes are plan step types that fork control flow
var branchingStepTypes = map[string]bool{
	"condition": true,
	"if":        true,
	"switch":    true,
	"branch":    true,
	"filter":    true,
	"router":    true,
}

// hasBranchingSteps reports whether the plan forks control flow
func hasBranchingSteps(plan *models.OrchestrationPlan) bool {
	for _, step := range plan.Steps {
		if branchingStepTypes[strings.ToLower(step.Type)] {
			return true
		}
		desc := strings.ToLower(step.Description)
		if strings.Contains(desc, "if ") || strings.Contains(desc, "condition") {
			return true
		}
	}
	return false
}

// hasParallelLanguage reports explicit parallel-processing language
func hasParallelLanguage(text string, plan *models.OrchestrationPlan) bool {
	if strings.Contains(text, "parallel") || strings.Contains(text, "simultaneous") {
		return true
	}
	if plan != nil {
		for _, step := range plan.Steps {
			desc := strings.ToLower(step.Description + " " + step.Name)
			if strings.Contains(desc, "parallel") || strings.Contains(desc, "simultaneous") {
				return true
			}
		}
	}
	return false
}

// tierFor maps a class to the completion provider tier
func tierFor(class Class) string {
	if class == ClassComplex {
		return "premium"
	}
	return "standard"
}
