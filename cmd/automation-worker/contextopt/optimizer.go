package contextopt

import (
	"strings"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
)

// Archetype is the workflow family a job is generated as. The archetype
// decides which node docs are pulled into generation prompts and what
// the prompt tells the model to prioritize.
type Archetype string

const (
	ArchetypeEmailAutomation    Archetype = "email_automation"
	ArchetypeDataSync           Archetype = "data_sync"
	ArchetypeAIClassification   Archetype = "ai_classification"
	ArchetypeDocumentProcessing Archetype = "document_processing"
	ArchetypeAPIIntegration     Archetype = "api_integration"
	ArchetypeGeneral            Archetype = "general"
)

// maxNodeDocs is the hard ceiling on retrieved node docs regardless of
// complexity scaling
const maxNodeDocs = 10

// Profile is the context-retrieval recipe for one job: which node kinds
// to document in prompts, how many docs, how long each doc may be, and
// the narrative the prompt should push.
type Profile struct {
	Archetype   Archetype
	FocusKinds  []string // registry kinds whose docs anchor the prompts
	Priority    string   // narrative priority statement for the prompt
	NodeDocs    int      // number of node docs to retrieve, post-scaling
	CharsPerDoc int      // truncation length per doc, post-scaling
}

// archetypeSpec is the static per-archetype base configuration
type archetypeSpec struct {
	keywords    []string
	focusKinds  []string
	priority    string
	baseDocs    int
	baseChars   int
}

// specs holds the archetype table. Order matters: when keyword scores
// tie, the earlier archetype wins, so the more specific families sit
// first and general last.
var specs = []struct {
	archetype Archetype
	spec      archetypeSpec
}{
	{
		ArchetypeAIClassification,
		archetypeSpec{
			keywords:   []string{"classif", "triage", "categoriz", "sentiment", "route", "prioritiz", "intelligent", "llm", " ai ", "machine learning"},
			focusKinds: []string{"webhook", "openai", "switch", "slack", "set", "noop"},
			priority:   "Prioritize a reliable classification path: normalize the input, classify with the AI step, then route each class to its own branch with an explicit default.",
			baseDocs:   6,
			baseChars:  1500,
		},
	},
	{
		ArchetypeDocumentProcessing,
		archetypeSpec{
			keywords:   []string{"pdf", "document", "invoice", "receipt", "contract", "scan", "ocr", "attachment", "extract"},
			focusKinds: []string{"webhook", "extract_file", "openai", "set", "email_send", "postgres"},
			priority:   "Prioritize faithful extraction: pull text out of the document first, validate the extracted fields, and keep the original reference alongside derived data.",
			baseDocs:   5,
			baseChars:  1400,
		},
	},
	{
		ArchetypeEmailAutomation,
		archetypeSpec{
			keywords:   []string{"email", "inbox", "gmail", "outlook", "smtp", "imap", "newsletter", "reply"},
			focusKinds: []string{"email_trigger", "gmail", "openai", "set", "email_send", "if"},
			priority:   "Prioritize delivery semantics: deduplicate inbound mail, keep reply threading intact, and confirm outbound delivery for anything user-facing.",
			baseDocs:   5,
			baseChars:  1200,
		},
	},
	{
		ArchetypeDataSync,
		archetypeSpec{
			keywords:   []string{"sync", "synchroniz", "etl", "migrat", "spreadsheet", "sheet", "database", "crm", "export", "import", "record"},
			focusKinds: []string{"schedule", "http_request", "set", "google_sheets", "postgres", "merge"},
			priority:   "Prioritize consistency: batch reads and writes, make each sync run idempotent, and surface per-record failures instead of aborting the whole batch.",
			baseDocs:   6,
			baseChars:  1500,
		},
	},
	{
		ArchetypeAPIIntegration,
		archetypeSpec{
			keywords:   []string{"api", "rest", "endpoint", "integration", "http", "service call"},
			focusKinds: []string{"webhook", "http_request", "set", "if", "respond_webhook"},
			priority:   "Prioritize robustness at the integration boundary: authenticate every call, retry transient failures, and validate responses before acting on them.",
			baseDocs:   6,
			baseChars:  1300,
		},
	},
	{
		ArchetypeGeneral,
		archetypeSpec{
			keywords:   nil, // fallback, never keyword-matched
			focusKinds: []string{"webhook", "schedule", "set", "http_request", "if", "email_send"},
			priority:   "Prioritize a simple linear flow with one clear trigger, explicit data shaping, and a visible completion notification.",
			baseDocs:   4,
			baseChars:  1000,
		},
	},
}

// Optimizer classifies jobs into archetypes and produces scaled
// retrieval profiles
type Optimizer struct {
	registry *registry.Registry
	docCap   int
}

// NewOptimizer creates a context optimizer. docCap bounds retrieved
// node docs below the built-in ceiling when configured lower.
func NewOptimizer(reg *registry.Registry, docCap int) *Optimizer {
	if docCap <= 0 || docCap > maxNodeDocs {
		docCap = maxNodeDocs
	}
	return &Optimizer{registry: reg, docCap: docCap}
}

// Classify picks the archetype whose keywords best match the job text
// and plan step types. Ties break toward the more specific archetype.
func (o *Optimizer) Classify(input models.JobInput, plan *models.OrchestrationPlan) Archetype {
	text := classificationText(input, plan)

	best := ArchetypeGeneral
	bestScore := 0
	for _, entry := range specs {
		score := 0
		for _, kw := range entry.spec.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = entry.archetype
			bestScore = score
		}
	}
	return best
}

// Optimize builds the retrieval profile for a job: archetype bases
// scaled by complexity class. Simple jobs shrink doc size to ×0.8 and
// keep the doc count; complex jobs scale docs ×1.3 and count ×1.5,
// capped at the doc ceiling.
func (o *Optimizer) Optimize(input models.JobInput, plan *models.OrchestrationPlan, class complexity.Class) Profile {
	archetype := o.Classify(input, plan)
	spec := specFor(archetype)

	docs := spec.baseDocs
	chars := spec.baseChars

	switch class {
	case complexity.ClassComplex:
		docs = docs * 3 / 2
		chars = chars * 13 / 10
	default:
		chars = chars * 8 / 10
	}

	if docs > o.docCap {
		docs = o.docCap
	}

	return Profile{
		Archetype:   archetype,
		FocusKinds:  spec.focusKinds,
		Priority:    spec.priority,
		NodeDocs:    docs,
		CharsPerDoc: chars,
	}
}

// ContextDocs renders the node documentation snippets for a profile
// from the registry
func (o *Optimizer) ContextDocs(profile Profile) []string {
	return o.registry.DocsFor(profile.FocusKinds, profile.NodeDocs, profile.CharsPerDoc)
}

// specFor returns the archetype's static spec
func specFor(archetype Archetype) archetypeSpec {
	for _, entry := range specs {
		if entry.archetype == archetype {
			return entry.spec
		}
	}
	return specs[len(specs)-1].spec
}

// classificationText flattens the job and optional plan into one
// lower-cased string for keyword matching
func classificationText(input models.JobInput, plan *models.OrchestrationPlan) string {
	var b strings.Builder
	b.WriteString(input.ProcessData.ProcessDescription)
	for _, opp := range input.Opportunities {
		b.WriteString(" ")
		b.WriteString(opp.Title)
		b.WriteString(" ")
		b.WriteString(opp.Description)
	}
	if plan != nil {
		b.WriteString(" ")
		b.WriteString(plan.Description)
		for _, step := range plan.Steps {
			b.WriteString(" ")
			b.WriteString(step.Type)
			b.WriteString(" ")
			b.WriteString(step.Name)
		}
	}
	return strings.ToLower(b.String())
}
