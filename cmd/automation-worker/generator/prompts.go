package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
)

// buildFillPrompt asks the model to fill per-node parameters inside a
// structure it is not allowed to change.
func buildFillPrompt(wf *models.GeneratedWorkflow, job GenerationJob, reg *registry.Registry) string {
	var b strings.Builder

	b.WriteString("## Task\n")
	b.WriteString("The workflow structure below is fixed. Fill in realistic parameter values for each node so the workflow implements the plan. ")
	b.WriteString("Do not add, remove, or rename nodes, and do not touch connections.\n\n")

	b.WriteString("## Plan\n")
	b.WriteString(fmt.Sprintf("Workflow: %s\n", job.Plan.WorkflowName))
	if job.Plan.Description != "" {
		b.WriteString(job.Plan.Description + "\n")
	}
	for _, step := range job.Plan.Steps {
		line := fmt.Sprintf("- %s (%s)", step.Name, step.Type)
		if step.Description != "" {
			line += ": " + step.Description
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("## Nodes\n")
	for _, node := range wf.Nodes {
		b.WriteString(fmt.Sprintf("### %s\n", node.Name))
		b.WriteString(fmt.Sprintf("Type: %s\n", node.Type))
		b.WriteString("Current parameters: " + compactJSON(node.Parameters) + "\n")
	}
	b.WriteString("\n")

	kinds := make([]string, 0, len(wf.Nodes))
	for _, node := range wf.Nodes {
		if desc, ok := reg.LookupType(node.Type); ok {
			kinds = append(kinds, desc.Kind)
		}
	}
	if docs := reg.DocsFor(kinds, job.Profile.NodeDocs, job.Profile.CharsPerDoc); len(docs) > 0 {
		b.WriteString("## Node Reference\n")
		for _, doc := range docs {
			b.WriteString("- " + doc + "\n")
		}
		b.WriteString("\n")
	}

	writeAdvisorySection(&b, job.Profile.Priority, job.Analysis)

	b.WriteString("## Output Contract\n")
	b.WriteString("Respond with a single JSON object and nothing else: no markdown fences, no commentary.\n")
	b.WriteString("Keys are node names from the Nodes section; values are objects holding only the parameters to set or override.\n")
	b.WriteString("Reference credentials as {{credentials.<name>}} placeholders, never literal secrets.\n")
	b.WriteString("Example: {\"Classify Ticket\": {\"model\": \"gpt-4o-mini\", \"prompt\": \"...\"}}\n")

	return b.String()
}

// buildDirectPrompt asks the model for the complete workflow document in
// one shot, anchored on the plan and the retrieved node docs.
func buildDirectPrompt(job GenerationJob, docs []string) string {
	var b strings.Builder

	b.WriteString("## Task\n")
	b.WriteString("Translate the orchestration plan below into a complete, importable workflow definition for the target automation platform.\n\n")

	b.WriteString("## Plan\n")
	b.WriteString(compactJSON(job.Plan) + "\n\n")

	if len(docs) > 0 {
		b.WriteString("## Node Reference\n")
		for _, doc := range docs {
			b.WriteString("- " + doc + "\n")
		}
		b.WriteString("\n")
	}

	writeAdvisorySection(&b, job.Profile.Priority, job.Analysis)

	b.WriteString("## Output Contract\n")
	b.WriteString("Respond with a single JSON object and nothing else: no markdown fences, no commentary, no leading prose.\n")
	b.WriteString("The object must follow this shape:\n")
	b.WriteString(`{"name": "...", "nodes": [{"id": "...", "name": "...", "type": "n8n-nodes-base...", "typeVersion": 1, "position": [250, 300], "parameters": {}}], "connections": {"Node Name": {"main": [[{"node": "Next Node", "type": "main", "index": 0}]]}}, "settings": {"executionOrder": "v1"}}` + "\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Node names must be unique; connections are keyed by node name.\n")
	b.WriteString("- Use only node types from the Node Reference section.\n")
	b.WriteString("- Every non-terminal node needs an outgoing main connection.\n")
	b.WriteString("- Reference credentials as {{credentials.<name>}} placeholders, never literal secrets.\n")

	return b.String()
}

// writeAdvisorySection renders the soft guidance shared by both
// generation prompts: archetype priority, detected risks with their
// mitigations, and corpus practices. Purely advisory; validation is
// what actually gates acceptance.
func writeAdvisorySection(b *strings.Builder, priority string, analysis *knowledge.Analysis) {
	b.WriteString("## Guidance\n")
	if priority != "" {
		b.WriteString(priority + "\n")
	}
	if analysis != nil {
		for _, risk := range analysis.Risks {
			b.WriteString(fmt.Sprintf("- Risk (%s): %s %s\n", risk.Severity, risk.Message, risk.Mitigation))
		}
		for _, practice := range analysis.Practices {
			b.WriteString("- " + practice + "\n")
		}
		for _, opt := range analysis.Optimizations {
			b.WriteString("- " + opt + "\n")
		}
	}
	b.WriteString("\n")
}

func compactJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
