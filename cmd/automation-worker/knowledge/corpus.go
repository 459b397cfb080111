package knowledge

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed corpus/*.yaml
var corpusFS embed.FS

// Metrics are the historical execution outcomes of a reference workflow
type Metrics struct {
	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
	AvgExecMS   int     `yaml:"avg_execution_ms" json:"avg_execution_ms"`
	ErrorRate   float64 `yaml:"error_rate" json:"error_rate"`
}

// Template sketches the reference workflow's shape in registry kinds
type Template struct {
	Trigger string   `yaml:"trigger" json:"trigger"`
	Steps   []string `yaml:"steps" json:"steps"`
}

// Entry is one curated reference workflow with its track record
type Entry struct {
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description" json:"description"`
	Tags          []string `yaml:"tags" json:"tags"`
	Industries    []string `yaml:"industries" json:"industries"`
	Complexity    string   `yaml:"complexity" json:"complexity"`
	Metrics       Metrics  `yaml:"metrics" json:"metrics"`
	Template      Template `yaml:"template" json:"template"`
	BestPractices []string `yaml:"best_practices" json:"best_practices"`
	AntiPatterns  []string `yaml:"anti_patterns" json:"anti_patterns"`
}

// Practice is one feature-conditioned best practice. The feature names
// a plan trait (http, email, bulk_data, webhook) that activates it.
type Practice struct {
	Feature string `yaml:"feature" json:"feature"`
	Text    string `yaml:"text" json:"text"`
}

// RiskRule is one curated anti-pattern detector. The expression is CEL
// over the extracted plan features; a true result flags the risk.
type RiskRule struct {
	Name       string `yaml:"name" json:"name"`
	Severity   string `yaml:"severity" json:"severity"`
	Expression string `yaml:"expression" json:"expression"`
	Message    string `yaml:"message" json:"message"`
	Mitigation string `yaml:"mitigation" json:"mitigation"`
}

// Corpus is the full curated knowledge base, loaded once at startup and
// injected read-only everywhere it is consulted.
type Corpus struct {
	Entries   []Entry    `yaml:"entries"`
	Practices []Practice `yaml:"practices"`
	Rules     []RiskRule `yaml:"rules"`
}

// LoadCorpus parses the embedded corpus files
func LoadCorpus() (*Corpus, error) {
	corpus := &Corpus{}

	files := []string{
		"corpus/entries.yaml",
		"corpus/practices.yaml",
		"corpus/antipatterns.yaml",
	}

	for _, path := range files {
		data, err := corpusFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus file %s: %w", path, err)
		}

		var part Corpus
		if err := yaml.Unmarshal(data, &part); err != nil {
			return nil, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
		}

		corpus.Entries = append(corpus.Entries, part.Entries...)
		corpus.Practices = append(corpus.Practices, part.Practices...)
		corpus.Rules = append(corpus.Rules, part.Rules...)
	}

	if err := corpus.Validate(); err != nil {
		return nil, err
	}

	return corpus, nil
}

// Validate checks corpus integrity at load time so a bad edit fails the
// process start instead of degrading analysis silently
func (c *Corpus) Validate() error {
	if len(c.Entries) == 0 {
		return fmt.Errorf("corpus has no entries")
	}

	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		if e.Name == "" {
			return fmt.Errorf("entry %d: missing name", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate entry name: %q", e.Name)
		}
		seen[e.Name] = true
		if e.Metrics.SuccessRate < 0 || e.Metrics.SuccessRate > 1 {
			return fmt.Errorf("entry %q: success rate %v out of range", e.Name, e.Metrics.SuccessRate)
		}
		if len(e.Tags) == 0 {
			return fmt.Errorf("entry %q: needs at least one tag", e.Name)
		}
	}

	for i, p := range c.Practices {
		if p.Feature == "" || p.Text == "" {
			return fmt.Errorf("practice %d: feature and text are required", i)
		}
	}

	for i, r := range c.Rules {
		if r.Name == "" || r.Expression == "" {
			return fmt.Errorf("rule %d: name and expression are required", i)
		}
		switch r.Severity {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("rule %q: invalid severity %q", r.Name, r.Severity)
		}
	}

	return nil
}
