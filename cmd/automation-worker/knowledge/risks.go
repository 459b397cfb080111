package knowledge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/auditflow/automation-engine/common/models"
)

// Risk is one triggered anti-pattern rule.
type Risk struct {
	Name       string `json:"name"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Mitigation string `json:"mitigation"`
}

// RiskEngine evaluates the corpus anti-pattern rules against a plan
// feature map using CEL. Compiled programs are cached per expression.
type RiskEngine struct {
	rules []RiskRule
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewRiskEngine creates a risk engine over the given rule set
func NewRiskEngine(rules []RiskRule) *RiskEngine {
	return &RiskEngine{
		rules: rules,
		cache: make(map[string]cel.Program),
	}
}

// Evaluate runs every rule against the feature map and returns the
// risks whose expressions hold, in rule order.
func (e *RiskEngine) Evaluate(features map[string]interface{}) ([]Risk, error) {
	var risks []Risk
	for _, rule := range e.rules {
		hit, err := e.evaluateRule(rule.Expression, features)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if hit {
			risks = append(risks, Risk{
				Name:       rule.Name,
				Severity:   rule.Severity,
				Message:    rule.Message,
				Mitigation: rule.Mitigation,
			})
		}
	}
	return risks, nil
}

func (e *RiskEngine) evaluateRule(expr string, features map[string]interface{}) (bool, error) {
	// Check cache first
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = compileRule(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"features": features,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

func compileRule(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("features", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// CacheSize returns the number of cached compiled rules
func (e *RiskEngine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// externalStepTypes call out of the platform at runtime.
var externalStepTypes = map[string]bool{
	"http_request":  true,
	"gmail":         true,
	"slack":         true,
	"openai":        true,
	"google_sheets": true,
	"postgres":      true,
	"email_send":    true,
}

var inboundTriggerTypes = map[string]bool{
	"webhook":       true,
	"email_trigger": true,
}

var errorHandlingMarkers = []string{"retry", "retries", "fallback", "on failure", "on error", "dead letter"}

var validationMarkers = []string{"validat", "verif", "sanitize"}

// PlanFeatures derives the feature map the risk rules evaluate over.
// Features combine plan structure with the language used in step names
// and descriptions.
func PlanFeatures(plan *models.OrchestrationPlan) map[string]interface{} {
	text := strings.ToLower(planText(plan))

	features := map[string]interface{}{
		"step_count":           len(plan.Steps),
		"has_external_calls":   false,
		"has_error_handling":   plan.ErrorHandling.Strategy != "" || len(plan.ErrorHandling.NotifyTargets) > 0,
		"has_inbound_data":     false,
		"has_validation":       containsAny(text, validationMarkers),
		"has_hardcoded_values": false,
	}

	if containsAny(text, errorHandlingMarkers) {
		features["has_error_handling"] = true
	}

	for _, t := range plan.Triggers {
		if inboundTriggerTypes[t.Type] {
			features["has_inbound_data"] = true
		}
	}

	for _, s := range plan.Steps {
		if externalStepTypes[s.Type] {
			features["has_external_calls"] = true
		}
		if s.Type == "extract_file" {
			features["has_inbound_data"] = true
		}
		if hasLiteralSecret(s.Config) {
			features["has_hardcoded_values"] = true
		}
	}

	return features
}

func planText(plan *models.OrchestrationPlan) string {
	var b strings.Builder
	b.WriteString(plan.WorkflowName)
	b.WriteString(" ")
	b.WriteString(plan.Description)
	for _, s := range plan.Steps {
		b.WriteString(" ")
		b.WriteString(s.Name)
		b.WriteString(" ")
		b.WriteString(s.Description)
	}
	return b.String()
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var secretKeyMarkers = []string{"password", "api_key", "apikey", "token", "secret"}

// hasLiteralSecret reports whether a step config carries a
// credential-like key with a literal value rather than a template or
// credential reference.
func hasLiteralSecret(config map[string]interface{}) bool {
	for key, value := range config {
		lower := strings.ToLower(key)
		for _, marker := range secretKeyMarkers {
			if !strings.Contains(lower, marker) {
				continue
			}
			str, ok := value.(string)
			if ok && str != "" && !strings.Contains(str, "{{") && !strings.HasPrefix(str, "$") {
				return true
			}
		}
	}
	return false
}
