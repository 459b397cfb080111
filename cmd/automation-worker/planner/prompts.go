package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
)

// similarLimit caps the reference patterns folded into the constrained
// prompt.
const similarLimit = 3

// maxDescriptionChars bounds the verbatim process description so a very
// long audit cannot blow the prompt past its input budget on its own.
const maxDescriptionChars = 6000

// buildConstrainedPrompt anchors the plan on the audit's opportunity
// list: the model fills in a narrow structure instead of inventing one.
func buildConstrainedPrompt(input models.JobInput, similar []knowledge.Match, reg *registry.Registry) string {
	var b strings.Builder

	b.WriteString("## Task\n\n")
	b.WriteString("Design an orchestration plan for the business process below. ")
	b.WriteString("Anchor each plan step on one of the listed automation opportunities; do not invent work the process does not describe.\n\n")

	writeProcessSection(&b, input)

	b.WriteString("## Automation Opportunities\n\n")
	for i, opp := range input.Opportunities {
		b.WriteString(fmt.Sprintf("%d. **%s**", i+1, opp.Title))
		if opp.Impact != "" {
			b.WriteString(fmt.Sprintf(" (impact: %s)", opp.Impact))
		}
		b.WriteString("\n")
		if opp.Description != "" {
			b.WriteString(fmt.Sprintf("   %s\n", opp.Description))
		}
		if len(opp.Tags) > 0 {
			b.WriteString(fmt.Sprintf("   Tags: %s\n", strings.Join(opp.Tags, ", ")))
		}
	}
	b.WriteString("\n")

	if len(similar) > 0 {
		b.WriteString("## Proven Reference Patterns\n\n")
		for _, m := range similar {
			e := m.Entry
			b.WriteString(fmt.Sprintf("**%s** (success rate %.0f%%)\n", e.Name, e.Metrics.SuccessRate*100))
			b.WriteString(fmt.Sprintf("  %s\n", e.Description))
			b.WriteString(fmt.Sprintf("  Shape: %s -> %s\n\n", e.Template.Trigger, strings.Join(e.Template.Steps, " -> ")))
		}
	}

	writeContractSection(&b, reg)

	return b.String()
}

// buildGeneralPrompt drops the opportunity anchoring and lets the model
// structure the plan freely. Used when the constrained attempt is
// rejected.
func buildGeneralPrompt(input models.JobInput, reg *registry.Registry) string {
	var b strings.Builder

	b.WriteString("## Task\n\n")
	b.WriteString("Design a complete orchestration plan for the business process below. ")
	b.WriteString("Decide the trigger, the steps, and their ordering yourself.\n\n")

	writeProcessSection(&b, input)
	writeContractSection(&b, reg)

	return b.String()
}

func writeProcessSection(b *strings.Builder, input models.JobInput) {
	b.WriteString("## Business Process\n\n")
	b.WriteString(truncate(input.ProcessData.ProcessDescription, maxDescriptionChars))
	b.WriteString("\n\n")

	if input.AutomationType != "" {
		b.WriteString(fmt.Sprintf("Requested automation type: %s\n\n", input.AutomationType))
	}

	if len(input.ProcessData.Answers) > 0 {
		b.WriteString("### Questionnaire Answers\n\n")
		for _, key := range sortedKeys(input.ProcessData.Answers) {
			b.WriteString(fmt.Sprintf("- %s: %s\n", key, input.ProcessData.Answers[key]))
		}
		b.WriteString("\n")
	}
}

// writeContractSection pins the output contract: a bare JSON document
// using declared kinds only.
func writeContractSection(b *strings.Builder, reg *registry.Registry) {
	b.WriteString("## Output Contract\n\n")
	b.WriteString("Respond with a single bare JSON document and nothing else: no prose, no markdown fences.\n\n")
	b.WriteString("Schema:\n")
	b.WriteString(`{
  "workflow_name": "short name",
  "description": "what the workflow does",
  "triggers": [{"type": "<kind>", "config": {}}],
  "steps": [{"id": "snake_case_id", "name": "Step Name", "type": "<kind>", "description": "", "config": {}}],
  "connections": [{"from": "step_id", "to": "step_id"}],
  "error_handling": {"strategy": "retry|notify|ignore", "notify_targets": []}
}`)
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Allowed kinds: %s.\n", strings.Join(reg.Kinds(), ", ")))

	triggers := reg.ByCategory("trigger")
	names := make([]string, 0, len(triggers))
	for _, d := range triggers {
		names = append(names, d.Kind)
	}
	b.WriteString(fmt.Sprintf("Trigger kinds: %s. Use the remaining kinds for steps.\n", strings.Join(names, ", ")))
	b.WriteString("Every connection endpoint must reference a declared step id.\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
