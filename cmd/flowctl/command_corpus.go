package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/models"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Inspect the embedded knowledge corpus",
}

var corpusListCmd = &cobra.Command{
	Use:   "list [entry]",
	Short: "List corpus entries",
	Long:  "List the curated reference workflows. Use 'flowctl corpus list <name>' for one entry's full record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCorpus(args)
	},
}

var corpusValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate corpus integrity",
	Long:  "Check the embedded corpus: entry structure, template kinds against the node catalog, and anti-pattern rule expressions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateCorpus()
	},
}

func registerCorpusCommand(root *cobra.Command) {
	root.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusListCmd)
	corpusCmd.AddCommand(corpusValidateCmd)

	corpusListCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show full entry records")
}

func listCorpus(args []string) error {
	corpus, err := knowledge.LoadCorpus()
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}

	if len(args) > 0 {
		name := args[0]
		for _, entry := range corpus.Entries {
			if entry.Name == name {
				printEntryDetails(entry)
				return nil
			}
		}
		return fmt.Errorf("corpus entry not found: %s", name)
	}

	entries := make([]knowledge.Entry, len(corpus.Entries))
	copy(entries, corpus.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	fmt.Printf("Corpus: %d entries, %d practices, %d rules\n\n", len(corpus.Entries), len(corpus.Practices), len(corpus.Rules))

	for _, entry := range entries {
		if longFormat {
			printEntryDetails(entry)
		} else {
			fmt.Printf("  %-32s %-8s %s\n", entry.Name, entry.Complexity, strings.Join(entry.Tags, ", "))
		}
	}

	if !longFormat {
		fmt.Println("\nRun 'flowctl corpus list <name>' for the full record")
	}

	return nil
}

func printEntryDetails(entry knowledge.Entry) {
	fmt.Printf("\n[Entry] %s\n", entry.Name)
	fmt.Printf("  Description: %s\n", entry.Description)
	fmt.Printf("  Complexity:  %s\n", entry.Complexity)
	fmt.Printf("  Tags:        %s\n", strings.Join(entry.Tags, ", "))
	if len(entry.Industries) > 0 {
		fmt.Printf("  Industries:  %s\n", strings.Join(entry.Industries, ", "))
	}
	fmt.Printf("  Metrics:     success=%.2f avg=%dms errors=%.2f\n",
		entry.Metrics.SuccessRate, entry.Metrics.AvgExecMS, entry.Metrics.ErrorRate)
	fmt.Printf("  Template:    %s -> %s\n", entry.Template.Trigger, strings.Join(entry.Template.Steps, " -> "))

	if len(entry.BestPractices) > 0 {
		fmt.Println("  Best practices:")
		for _, p := range entry.BestPractices {
			fmt.Printf("    - %s\n", p)
		}
	}
	if len(entry.AntiPatterns) > 0 {
		fmt.Println("  Anti-patterns:")
		for _, a := range entry.AntiPatterns {
			fmt.Printf("    - %s\n", a)
		}
	}
}

func validateCorpus() error {
	fmt.Println("□ Loading corpus...")
	corpus, err := knowledge.LoadCorpus()
	if err != nil {
		return fmt.Errorf("corpus validation failed: %w", err)
	}
	fmt.Printf("✓ %d entries, %d practices, %d rules\n", len(corpus.Entries), len(corpus.Practices), len(corpus.Rules))

	fmt.Println("□ Checking template kinds against the node catalog...")
	reg := registry.New()
	var unknown []string
	for _, entry := range corpus.Entries {
		if _, ok := reg.Lookup(entry.Template.Trigger); !ok {
			unknown = append(unknown, fmt.Sprintf("%s: trigger %q", entry.Name, entry.Template.Trigger))
		}
		for _, step := range entry.Template.Steps {
			if _, ok := reg.Lookup(step); !ok {
				unknown = append(unknown, fmt.Sprintf("%s: step %q", entry.Name, step))
			}
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("templates reference unknown node kinds:\n  %s", strings.Join(unknown, "\n  "))
	}
	fmt.Println("✓ All template kinds are in the catalog")

	fmt.Println("□ Compiling anti-pattern rules...")
	// Evaluating against an empty plan's feature map exercises every
	// expression over the canonical feature keys, so compile errors and
	// non-boolean results surface here instead of at analysis time.
	engine := knowledge.NewRiskEngine(corpus.Rules)
	features := knowledge.PlanFeatures(&models.OrchestrationPlan{})
	if _, err := engine.Evaluate(features); err != nil {
		return fmt.Errorf("rule check failed: %w", err)
	}
	fmt.Printf("✓ %d rules compile and evaluate\n", len(corpus.Rules))

	fmt.Println("✓ All validation passed")
	return nil
}
