package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/generator"
	"github.com/auditflow/automation-engine/common/models"
)

// BuildInstructions renders the markdown setup guide stored alongside
// the artifact: import steps, credential placeholders to rebind, and
// the webhook endpoint when the workflow is webhook-triggered.
func BuildInstructions(platform models.ArtifactPlatform, wf *models.GeneratedWorkflow) string {
	var b strings.Builder

	switch platform {
	case models.PlatformN8N:
		writeN8NImportSteps(&b, wf)
	default:
		b.WriteString("## Import\n\n")
		b.WriteString("Import the attached workflow JSON into your automation platform and review each node's configuration before activating.\n")
	}

	writeCredentialSection(&b, wf)
	writeWebhookSection(&b, wf)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeN8NImportSteps(b *strings.Builder, wf *models.GeneratedWorkflow) {
	b.WriteString(fmt.Sprintf("## Import %q into n8n\n\n", wf.Name))
	b.WriteString("1. Open n8n and go to **Workflows → Add workflow → Import from File**.\n")
	b.WriteString("2. Paste or upload the workflow JSON from this artifact.\n")
	b.WriteString("3. Review each node's parameters; generated values are starting points, not production settings.\n")
	b.WriteString("4. Activate the workflow once credentials are bound and a test run succeeds.\n\n")
}

// writeCredentialSection lists every placeholder credential that must
// be replaced with a real one, grouped by credential class.
func writeCredentialSection(b *strings.Builder, wf *models.GeneratedWorkflow) {
	byClass := map[string][]string{}
	for _, node := range wf.Nodes {
		for class, ref := range node.Credentials {
			if generator.IsPlaceholderCredential(ref) {
				byClass[class] = append(byClass[class], node.Name)
			}
		}
	}
	if len(byClass) == 0 {
		return
	}

	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	b.WriteString("## Credentials to configure\n\n")
	for _, class := range classes {
		nodes := byClass[class]
		sort.Strings(nodes)
		b.WriteString(fmt.Sprintf("- Create a **%s** credential and bind it to: %s.\n", class, strings.Join(nodes, ", ")))
	}
	b.WriteString("\n")
}

// writeWebhookSection documents the inbound endpoint for
// webhook-triggered workflows.
func writeWebhookSection(b *strings.Builder, wf *models.GeneratedWorkflow) {
	for _, node := range wf.Nodes {
		if node.Type != "n8n-nodes-base.webhook" {
			continue
		}
		path, _ := node.Parameters["path"].(string)
		if path == "" {
			continue
		}
		b.WriteString("## Inbound endpoint\n\n")
		b.WriteString(fmt.Sprintf("After activation the workflow listens at `https://<your-n8n-host>/webhook/%s`.\n", path))
		b.WriteString("Send a test request before pointing production traffic at it.\n\n")
		return
	}
}
