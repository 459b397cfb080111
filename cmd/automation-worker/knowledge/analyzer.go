package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/auditflow/automation-engine/common/models"
)

// Match is a corpus entry scored against a job or plan.
type Match struct {
	Entry *Entry  `json:"entry"`
	Score float64 `json:"score"`
}

// Analysis is the knowledge layer's read on a plan. Everything in it
// is advisory text for generator prompts, never a hard constraint.
type Analysis struct {
	WorkflowType  string   `json:"workflow_type"`
	Similar       []Match  `json:"similar"`
	Risks         []Risk   `json:"risks"`
	Practices     []string `json:"practices"`
	Optimizations []string `json:"optimizations"`
}

// Analyzer scores jobs and plans against the curated corpus.
type Analyzer struct {
	corpus *Corpus
	engine *RiskEngine
	topN   int
}

// NewAnalyzer creates an analyzer over a validated corpus
func NewAnalyzer(corpus *Corpus) *Analyzer {
	return &Analyzer{
		corpus: corpus,
		engine: NewRiskEngine(corpus.Rules),
		topN:   3,
	}
}

const (
	tagWeight      = 0.3
	keywordWeight  = 0.2
	successBonus   = 0.1
	scoreThreshold = 0.3
	highSuccess    = 0.9
)

// Analyze runs the full advisory pass over a plan: prior art, risks,
// applicable practices, and optimization suggestions.
func (a *Analyzer) Analyze(plan *models.OrchestrationPlan) (*Analysis, error) {
	if plan == nil {
		return nil, fmt.Errorf("nil plan")
	}

	text := planText(plan)
	keywords := ExtractKeywords(text)

	risks, err := a.engine.Evaluate(PlanFeatures(plan))
	if err != nil {
		return nil, fmt.Errorf("risk evaluation: %w", err)
	}

	similar := a.FindSimilar(text, a.topN)

	return &Analysis{
		WorkflowType:  classifyWorkflowType(keywords),
		Similar:       similar,
		Risks:         risks,
		Practices:     a.practicesFor(plan, similar),
		Optimizations: optimizationsFor(plan),
	}, nil
}

// FindSimilar returns the corpus entries most similar to the given
// text, highest score first, at most topN. Entries scoring at or below
// the relevance threshold are dropped.
func (a *Analyzer) FindSimilar(text string, topN int) []Match {
	keywords := keywordSet(ExtractKeywords(text))

	var matches []Match
	for i := range a.corpus.Entries {
		entry := &a.corpus.Entries[i]
		score := scoreEntry(entry, keywords)
		if score > scoreThreshold {
			matches = append(matches, Match{Entry: entry, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}

// scoreEntry weighs tag hits over free-text keyword hits, with a small
// bonus for entries with a proven track record.
func scoreEntry(entry *Entry, keywords map[string]bool) float64 {
	score := 0.0
	for _, tag := range entry.Tags {
		if keywords[strings.ToLower(tag)] {
			score += tagWeight
		}
	}
	entryWords := keywordSet(ExtractKeywords(entry.Name + " " + entry.Description))
	for kw := range keywords {
		if entryWords[kw] {
			score += keywordWeight
		}
	}
	if entry.Metrics.SuccessRate > highSuccess {
		score += successBonus
	}
	return score
}

// practicesFor gathers the corpus practices whose feature the plan
// exhibits, plus practices inherited from high-success similar entries.
func (a *Analyzer) practicesFor(plan *models.OrchestrationPlan, similar []Match) []string {
	var practices []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			practices = append(practices, p)
		}
	}

	features := map[string]bool{}
	for _, tag := range planFeatureTags(plan) {
		features[tag] = true
	}
	for _, p := range a.corpus.Practices {
		if features[p.Feature] {
			add(p.Text)
		}
	}

	for _, m := range similar {
		if m.Entry.Metrics.SuccessRate > highSuccess {
			for _, p := range m.Entry.BestPractices {
				add(p)
			}
		}
	}
	return practices
}

var bulkMarkers = []string{"batch", "bulk", "all records", "every record", "rows", "entire"}

// planFeatureTags lists the practice features a plan exhibits, in
// first-seen order.
func planFeatureTags(plan *models.OrchestrationPlan) []string {
	var tags []string
	seen := map[string]bool{}
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, t := range plan.Triggers {
		switch t.Type {
		case "webhook":
			add("webhook")
		case "email_trigger":
			add("email")
		}
	}
	for _, s := range plan.Steps {
		switch s.Type {
		case "http_request":
			add("http")
		case "email_send", "gmail":
			add("email")
		case "google_sheets", "postgres":
			add("bulk_data")
		case "respond_webhook":
			add("webhook")
		case "openai":
			add("ai")
		case "if", "switch":
			add("branching")
		}
	}
	if containsAny(strings.ToLower(planText(plan)), bulkMarkers) {
		add("bulk_data")
	}
	return tags
}

// optimizationsFor proposes structural improvements. Each suggestion
// fires at most once per plan.
func optimizationsFor(plan *models.OrchestrationPlan) []string {
	var out []string
	text := strings.ToLower(planText(plan))

	if hasBulkDataSteps(plan, text) && !strings.Contains(text, "batch") {
		out = append(out, "Batch the bulk data steps: process records in bounded batches instead of per-record calls")
	}
	if first, second, ok := independentExternalPair(plan); ok {
		out = append(out, fmt.Sprintf("Parallelize %q and %q: neither depends on the other's output", first, second))
	}
	if hasEmailSendStep(plan) && !strings.Contains(text, "confirmation") {
		out = append(out, "Use a delivery-confirming send for the email steps so bounces surface as failures")
	}
	if hasUnauthenticatedWebhook(plan) {
		out = append(out, "Harden the webhook trigger with authentication; it currently accepts unauthenticated calls")
	}
	return out
}

func hasBulkDataSteps(plan *models.OrchestrationPlan, text string) bool {
	for _, s := range plan.Steps {
		if s.Type == "google_sheets" || s.Type == "postgres" {
			return true
		}
	}
	if !containsAny(text, bulkMarkers) {
		return false
	}
	for _, s := range plan.Steps {
		if externalStepTypes[s.Type] {
			return true
		}
	}
	return false
}

func hasEmailSendStep(plan *models.OrchestrationPlan) bool {
	for _, s := range plan.Steps {
		if s.Type == "email_send" || s.Type == "gmail" {
			return true
		}
	}
	return false
}

func hasUnauthenticatedWebhook(plan *models.OrchestrationPlan) bool {
	for _, t := range plan.Triggers {
		if t.Type != "webhook" {
			continue
		}
		if _, ok := t.Config["authentication"]; ok {
			continue
		}
		if _, ok := t.Config["auth"]; ok {
			continue
		}
		return true
	}
	return false
}

// independentExternalPair finds two external-call steps where neither
// is reachable from the other along plan connections.
func independentExternalPair(plan *models.OrchestrationPlan) (string, string, bool) {
	adj := map[string][]string{}
	for _, c := range plan.Connections {
		adj[c.From] = append(adj[c.From], c.To)
	}

	var external []models.PlanStep
	for _, s := range plan.Steps {
		if externalStepTypes[s.Type] {
			external = append(external, s)
		}
	}

	for i := 0; i < len(external); i++ {
		for j := i + 1; j < len(external); j++ {
			a, b := external[i], external[j]
			if !reaches(adj, a.ID, b.ID) && !reaches(adj, b.ID, a.ID) {
				return a.Name, b.Name, true
			}
		}
	}
	return "", "", false
}

func reaches(adj map[string][]string, from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "were": true,
	"will": true, "when": true, "then": true, "them": true, "they": true,
	"their": true, "there": true, "each": true, "every": true, "all": true,
	"any": true, "our": true, "your": true, "has": true, "have": true,
	"had": true, "into": true, "onto": true, "about": true, "after": true,
	"before": true, "should": true, "would": true, "could": true,
	"been": true, "being": true, "its": true, "also": true, "than": true,
	"over": true, "under": true, "per": true, "via": true, "out": true,
	"not": true, "but": true, "you": true, "can": true, "who": true,
	"what": true, "which": true, "where": true, "how": true, "why": true,
	"does": true, "did": true, "done": true, "once": true, "only": true,
	"such": true, "some": true, "more": true, "most": true, "other": true,
	"these": true, "those": true, "while": true, "during": true,
}

// ExtractKeywords lower-cases the text, strips punctuation, and drops
// stop words and tokens shorter than three characters. First-seen
// order is kept.
func ExtractKeywords(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var keywords []string
	seen := map[string]bool{}
	for _, word := range strings.Fields(cleaned) {
		if len(word) < 3 || stopwords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}
	return keywords
}

// workflowFamilies is checked in order; ties go to the earlier family.
var workflowFamilies = []struct {
	name     string
	keywords []string
}{
	{"ai_processing", []string{"classify", "classification", "categorize", "summarize", "sentiment", "extract", "llm", "gpt", "model"}},
	{"document_handling", []string{"document", "documents", "pdf", "invoice", "invoices", "contract", "file", "attachment"}},
	{"communication", []string{"email", "emails", "notify", "notification", "slack", "alert", "message", "digest"}},
	{"data_movement", []string{"sync", "spreadsheet", "database", "export", "import", "records", "migrate"}},
	{"api_orchestration", []string{"api", "webhook", "endpoint", "crm", "integration", "service"}},
}

// classifyWorkflowType gives a coarse family label for reporting. The
// context optimizer does the finer archetype classification.
func classifyWorkflowType(keywords []string) string {
	set := keywordSet(keywords)
	best, bestScore := "general", 0
	for _, family := range workflowFamilies {
		score := 0
		for _, kw := range family.keywords {
			if set[kw] {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = family.name, score
		}
	}
	return best
}

func keywordSet(keywords []string) map[string]bool {
	set := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		set[kw] = true
	}
	return set
}
