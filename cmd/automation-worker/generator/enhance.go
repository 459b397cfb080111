package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
)

// Retry policy stamped onto outbound HTTP nodes
const (
	httpRetryCount  = 3
	httpRetryWaitMS = 1000
)

// terminalNote marks notification nodes that end a branch
const terminalNote = "Terminal notification step"

// patchOp is one RFC 6902 operation. Rules emit these and the enhancer
// applies them through the same patch machinery used everywhere else,
// so every enhancement stays replayable and inspectable.
type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// enhancementRule computes the patch ops for one hardening concern
// against the current workflow state. Returning no ops skips the rule.
type enhancementRule struct {
	name string
	ops  func(wf *models.GeneratedWorkflow) []patchOp
}

// Enhancer applies the post-generation hardening rules: HTTP retry
// policy, placeholder credentials, webhook request/response contract,
// and terminal-notification markers. Rules only ever adjust node
// attributes in place; the graph shape is never changed.
type Enhancer struct {
	registry *registry.Registry
	logger   Logger
}

// NewEnhancer creates the enhancement pass
func NewEnhancer(reg *registry.Registry, logger Logger) *Enhancer {
	return &Enhancer{registry: reg, logger: logger}
}

// Enhance runs every rule in order against the workflow and returns the
// patched result plus the names of the rules that changed anything.
// Each rule's ops are computed from the state left by the previous rule.
func (e *Enhancer) Enhance(wf *models.GeneratedWorkflow) (*models.GeneratedWorkflow, []string, error) {
	doc, err := json.Marshal(wf)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal workflow: %w", err)
	}

	current := wf
	var applied []string
	for _, rule := range e.rules() {
		ops := rule.ops(current)
		if len(ops) == 0 {
			continue
		}

		doc, err = applyOps(doc, ops)
		if err != nil {
			return nil, nil, fmt.Errorf("enhancement %s: %w", rule.name, err)
		}

		next := &models.GeneratedWorkflow{}
		if err := json.Unmarshal(doc, next); err != nil {
			return nil, nil, fmt.Errorf("enhancement %s left invalid document: %w", rule.name, err)
		}
		current = next
		applied = append(applied, rule.name)
		e.logger.Debug("enhancement applied", "rule", rule.name, "ops", len(ops))
	}

	return current, applied, nil
}

func (e *Enhancer) rules() []enhancementRule {
	return []enhancementRule{
		{name: "http_retry_policy", ops: e.httpRetryOps},
		{name: "placeholder_credentials", ops: e.placeholderCredentialOps},
		{name: "webhook_contract", ops: e.webhookContractOps},
		{name: "terminal_notification_markers", ops: e.terminalNoteOps},
	}
}

// httpRetryOps gives every outbound HTTP node a bounded retry policy
// unless one is already configured.
func (e *Enhancer) httpRetryOps(wf *models.GeneratedWorkflow) []patchOp {
	var ops []patchOp
	for i, node := range wf.Nodes {
		if e.kindOf(node.Type) != "http_request" || node.RetryOnFail {
			continue
		}
		ops = append(ops,
			patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/retryOnFail", i), Value: true},
			patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/maxTries", i), Value: httpRetryCount},
			patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/waitBetweenTries", i), Value: httpRetryWaitMS},
		)
	}
	return ops
}

// placeholderCredentialOps attaches a named placeholder for every
// credential class the catalog requires and the node does not carry.
// Credential kinds come from the catalog, so the pointer paths need no
// escaping.
func (e *Enhancer) placeholderCredentialOps(wf *models.GeneratedWorkflow) []patchOp {
	var ops []patchOp
	for i, node := range wf.Nodes {
		desc, ok := e.registry.LookupType(node.Type)
		if !ok || len(desc.CredentialKinds) == 0 {
			continue
		}

		missing := map[string]models.CredentialRef{}
		for _, kind := range desc.CredentialKinds {
			if _, present := node.Credentials[kind]; !present {
				missing[kind] = models.CredentialRef{Name: placeholderCredName(kind)}
			}
		}
		if len(missing) == 0 {
			continue
		}

		if node.Credentials == nil {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/credentials", i), Value: missing})
			continue
		}
		for kind, ref := range missing {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/credentials/%s", i, kind), Value: ref})
		}
	}
	return ops
}

// webhookContractOps pins the inbound contract of webhook triggers: a
// deterministic path derived from the workflow name, and a response
// mode that matches whether the graph replies through respond_webhook.
func (e *Enhancer) webhookContractOps(wf *models.GeneratedWorkflow) []patchOp {
	responseMode := "onReceived"
	for _, node := range wf.Nodes {
		if e.kindOf(node.Type) == "respond_webhook" {
			responseMode = "responseNode"
			break
		}
	}

	var ops []patchOp
	for i, node := range wf.Nodes {
		if e.kindOf(node.Type) != "webhook" {
			continue
		}
		if node.Parameters == nil {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/parameters", i), Value: map[string]interface{}{
				"path":         slugify(wf.Name),
				"responseMode": responseMode,
			}})
			continue
		}
		if path, _ := node.Parameters["path"].(string); path == "" {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/parameters/path", i), Value: slugify(wf.Name)})
		}
		if mode, _ := node.Parameters["responseMode"].(string); mode != responseMode {
			ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/parameters/responseMode", i), Value: responseMode})
		}
	}
	return ops
}

// terminalNoteOps marks notification nodes that end a branch, so a
// reviewer importing the workflow can tell intentional endpoints from
// forgotten connections.
func (e *Enhancer) terminalNoteOps(wf *models.GeneratedWorkflow) []patchOp {
	var ops []patchOp
	for i, node := range wf.Nodes {
		desc, ok := e.registry.LookupType(node.Type)
		if !ok || desc.Category != "notification" {
			continue
		}
		if wf.HasOutgoing(node.Name) || node.Notes != "" {
			continue
		}
		ops = append(ops, patchOp{Op: "add", Path: fmt.Sprintf("/nodes/%d/notes", i), Value: terminalNote})
	}
	return ops
}

func (e *Enhancer) kindOf(nodeType string) string {
	desc, ok := e.registry.LookupType(nodeType)
	if !ok {
		return ""
	}
	return desc.Kind
}

// applyOps encodes the ops and applies them as an RFC 6902 patch
func applyOps(doc []byte, ops []patchOp) ([]byte, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	return patched, nil
}

// placeholderCredName is the display name given to generated credential
// placeholders; operators replace these after import.
func placeholderCredName(kind string) string {
	return kind + " placeholder"
}

// IsPlaceholderCredential reports whether a credential reference is one
// of the generated placeholders that must be rebound after import.
func IsPlaceholderCredential(ref models.CredentialRef) bool {
	return ref.ID == "" && strings.HasSuffix(ref.Name, " placeholder")
}

// slugify turns a workflow name into a URL-safe webhook path segment
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "workflow"
	}
	return slug
}
