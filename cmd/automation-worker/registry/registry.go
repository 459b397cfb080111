package registry

import (
	"fmt"
	"sort"
)

// NodeTypeDescriptor is one entry in the static node catalog: the
// canonical platform type behind an abstract kind, its version, default
// parameters, and the credential classes an import needs to bind.
type NodeTypeDescriptor struct {
	Kind            string                 // abstract kind, e.g. "http_request"
	Type            string                 // canonical platform type, e.g. "n8n-nodes-base.httpRequest"
	TypeVersion     float64                // platform type version
	Category        string                 // trigger, action, transform, logic, ai, notification, integration, document
	Defaults        map[string]interface{} // default node parameters
	CredentialKinds []string               // credential classes required at import time
	Doc             string                 // one-line usage doc, surfaced into generation prompts
}

// catalog is the full static node catalog. Read-only; consulted, never
// mutated, by the generator strategies.
var catalog = []NodeTypeDescriptor{
	{
		Kind:        "webhook",
		Type:        "n8n-nodes-base.webhook",
		TypeVersion: 1,
		Category:    "trigger",
		Defaults:    map[string]interface{}{"httpMethod": "POST", "path": ""},
		Doc:         "Webhook receives HTTP calls and starts the workflow; pair with respond_webhook for synchronous replies.",
	},
	{
		Kind:        "schedule",
		Type:        "n8n-nodes-base.scheduleTrigger",
		TypeVersion: 1.1,
		Category:    "trigger",
		Defaults: map[string]interface{}{
			"rule": map[string]interface{}{
				"interval": []interface{}{map[string]interface{}{"field": "hours", "hoursInterval": 1}},
			},
		},
		Doc: "Schedule trigger fires on a fixed interval or cron rule; use for polling and recurring jobs.",
	},
	{
		Kind:        "manual",
		Type:        "n8n-nodes-base.manualTrigger",
		TypeVersion: 1,
		Category:    "trigger",
		Defaults:    map[string]interface{}{},
		Doc:         "Manual trigger starts the workflow from the editor; useful as a placeholder during setup.",
	},
	{
		Kind:            "email_trigger",
		Type:            "n8n-nodes-base.emailReadImap",
		TypeVersion:     2,
		Category:        "trigger",
		Defaults:        map[string]interface{}{"mailbox": "INBOX", "options": map[string]interface{}{}},
		CredentialKinds: []string{"imap"},
		Doc:             "IMAP trigger polls a mailbox and emits one item per new message.",
	},
	{
		Kind:            "http_request",
		Type:            "n8n-nodes-base.httpRequest",
		TypeVersion:     4.1,
		Category:        "integration",
		Defaults:        map[string]interface{}{"method": "GET", "url": "", "options": map[string]interface{}{}},
		CredentialKinds: []string{"httpHeaderAuth"},
		Doc:             "HTTP Request calls external APIs; configure retries and auth for production use.",
	},
	{
		Kind:        "set",
		Type:        "n8n-nodes-base.set",
		TypeVersion: 3.2,
		Category:    "transform",
		Defaults:    map[string]interface{}{"assignments": map[string]interface{}{"assignments": []interface{}{}}},
		Doc:         "Set reshapes items by assigning, renaming, or dropping fields.",
	},
	{
		Kind:        "code",
		Type:        "n8n-nodes-base.code",
		TypeVersion: 2,
		Category:    "transform",
		Defaults:    map[string]interface{}{"mode": "runOnceForAllItems", "jsCode": ""},
		Doc:         "Code runs a JavaScript snippet over the items for transforms the Set node cannot express.",
	},
	{
		Kind:        "if",
		Type:        "n8n-nodes-base.if",
		TypeVersion: 2,
		Category:    "logic",
		Defaults:    map[string]interface{}{"conditions": map[string]interface{}{"conditions": []interface{}{}}},
		Doc:         "IF routes items down a true or false branch based on field conditions.",
	},
	{
		Kind:        "switch",
		Type:        "n8n-nodes-base.switch",
		TypeVersion: 2,
		Category:    "logic",
		Defaults:    map[string]interface{}{"rules": map[string]interface{}{"rules": []interface{}{}}},
		Doc:         "Switch routes items across multiple named branches; prefer over chained IFs.",
	},
	{
		Kind:        "merge",
		Type:        "n8n-nodes-base.merge",
		TypeVersion: 2.1,
		Category:    "logic",
		Defaults:    map[string]interface{}{"mode": "combine"},
		Doc:         "Merge joins two branches back together by position or key.",
	},
	{
		Kind:            "email_send",
		Type:            "n8n-nodes-base.emailSend",
		TypeVersion:     2.1,
		Category:        "notification",
		Defaults:        map[string]interface{}{"fromEmail": "", "toEmail": "", "subject": "", "emailFormat": "text"},
		CredentialKinds: []string{"smtp"},
		Doc:             "Email Send delivers SMTP mail; add delivery confirmation for critical notifications.",
	},
	{
		Kind:            "gmail",
		Type:            "n8n-nodes-base.gmail",
		TypeVersion:     2.1,
		Category:        "integration",
		Defaults:        map[string]interface{}{"resource": "message", "operation": "send"},
		CredentialKinds: []string{"gmailOAuth2"},
		Doc:             "Gmail reads and sends mail through the Gmail API with OAuth2 credentials.",
	},
	{
		Kind:            "slack",
		Type:            "n8n-nodes-base.slack",
		TypeVersion:     2.1,
		Category:        "notification",
		Defaults:        map[string]interface{}{"resource": "message", "operation": "post", "channel": ""},
		CredentialKinds: []string{"slackApi"},
		Doc:             "Slack posts messages to channels; mark terminal notification nodes explicitly.",
	},
	{
		Kind:            "openai",
		Type:            "n8n-nodes-base.openAi",
		TypeVersion:     1.3,
		Category:        "ai",
		Defaults:        map[string]interface{}{"resource": "chat", "operation": "message", "options": map[string]interface{}{}},
		CredentialKinds: []string{"openAiApi"},
		Doc:             "OpenAI runs classification, extraction, and drafting steps over item content.",
	},
	{
		Kind:            "google_sheets",
		Type:            "n8n-nodes-base.googleSheets",
		TypeVersion:     4.2,
		Category:        "integration",
		Defaults:        map[string]interface{}{"resource": "sheet", "operation": "append"},
		CredentialKinds: []string{"googleSheetsOAuth2Api"},
		Doc:             "Google Sheets reads and appends rows; batch writes for high-volume data.",
	},
	{
		Kind:            "postgres",
		Type:            "n8n-nodes-base.postgres",
		TypeVersion:     2.4,
		Category:        "integration",
		Defaults:        map[string]interface{}{"operation": "insert"},
		CredentialKinds: []string{"postgres"},
		Doc:             "Postgres runs queries and inserts; validate inputs before writing.",
	},
	{
		Kind:        "extract_file",
		Type:        "n8n-nodes-base.extractFromFile",
		TypeVersion: 1,
		Category:    "document",
		Defaults:    map[string]interface{}{"operation": "pdf"},
		Doc:         "Extract From File pulls text out of PDFs and office documents for downstream processing.",
	},
	{
		Kind:        "respond_webhook",
		Type:        "n8n-nodes-base.respondToWebhook",
		TypeVersion: 1,
		Category:    "action",
		Defaults:    map[string]interface{}{"respondWith": "json", "responseBody": "={{ $json }}"},
		Doc:         "Respond To Webhook returns the reply for a webhook-triggered workflow.",
	},
	{
		Kind:        "wait",
		Type:        "n8n-nodes-base.wait",
		TypeVersion: 1.1,
		Category:    "logic",
		Defaults:    map[string]interface{}{"resume": "timeInterval", "amount": 1, "unit": "minutes"},
		Doc:         "Wait pauses the workflow for an interval or until a webhook resumes it.",
	},
	{
		Kind:        "noop",
		Type:        "n8n-nodes-base.noOp",
		TypeVersion: 1,
		Category:    "action",
		Defaults:    map[string]interface{}{},
		Doc:         "No Operation passes items through; useful as an explicit terminal marker.",
	},
}

// Registry is the read-only catalog index
type Registry struct {
	byKind map[string]NodeTypeDescriptor
	byType map[string]NodeTypeDescriptor
}

// New builds the registry index from the static catalog
func New() *Registry {
	r := &Registry{
		byKind: make(map[string]NodeTypeDescriptor, len(catalog)),
		byType: make(map[string]NodeTypeDescriptor, len(catalog)),
	}
	for _, d := range catalog {
		r.byKind[d.Kind] = d
		r.byType[d.Type] = d
	}
	return r
}

// Lookup returns the descriptor for an abstract kind
func (r *Registry) Lookup(kind string) (NodeTypeDescriptor, bool) {
	d, ok := r.byKind[kind]
	return d, ok
}

// MustLookup returns the descriptor for a kind or panics. Only for
// static wiring where the kind is a compile-time constant.
func (r *Registry) MustLookup(kind string) NodeTypeDescriptor {
	d, ok := r.byKind[kind]
	if !ok {
		panic(fmt.Sprintf("registry: unknown node kind %q", kind))
	}
	return d
}

// LookupType returns the descriptor for a canonical platform type
func (r *Registry) LookupType(nodeType string) (NodeTypeDescriptor, bool) {
	d, ok := r.byType[nodeType]
	return d, ok
}

// KnownType reports whether a canonical platform type is in the catalog
func (r *Registry) KnownType(nodeType string) bool {
	_, ok := r.byType[nodeType]
	return ok
}

// Kinds returns all abstract kinds, sorted
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ByCategory returns all descriptors in a category, sorted by kind
func (r *Registry) ByCategory(category string) []NodeTypeDescriptor {
	var out []NodeTypeDescriptor
	for _, d := range catalog {
		if d.Category == category {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// DocsFor returns usage docs for the given kinds, truncated to
// charsPerDoc and capped at maxDocs entries. Unknown kinds are skipped.
func (r *Registry) DocsFor(kinds []string, maxDocs, charsPerDoc int) []string {
	docs := make([]string, 0, maxDocs)
	for _, kind := range kinds {
		if len(docs) >= maxDocs {
			break
		}
		d, ok := r.byKind[kind]
		if !ok {
			continue
		}
		doc := fmt.Sprintf("%s (%s v%g): %s", d.Kind, d.Type, d.TypeVersion, d.Doc)
		if charsPerDoc > 0 && len(doc) > charsPerDoc {
			doc = doc[:charsPerDoc]
		}
		docs = append(docs, doc)
	}
	return docs
}
