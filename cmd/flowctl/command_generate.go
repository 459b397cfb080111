package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/generator"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/planner"
	"github.com/auditflow/automation-engine/cmd/automation-worker/processor"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/config"
	"github.com/auditflow/automation-engine/common/logger"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/validation"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the generation pipeline once on a job input file",
	Long:  "Plan and generate a workflow for one job input, without the queue or the database. The provider comes from the same configuration the worker reads.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate()
	},
}

func registerGenerateCommand(root *cobra.Command) {
	root.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&inputFile, "input", "i", "job.json", "Job input file (- for stdin)")
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "workflow.json", "Output workflow file (- for stdout)")
	generateCmd.Flags().StringVar(&platformOverride, "platform", "", "Target platform (defaults to generation.platform)")
	generateCmd.Flags().DurationVar(&generateTimeout, "timeout", 5*time.Minute, "Overall pipeline timeout")
	generateCmd.Flags().BoolVar(&showInstructions, "instructions", false, "Print the import guide after generating")
}

// pipeline is the worker's generation stack without its persistence and
// event sides.
type pipeline struct {
	planner   *planner.Planner
	chain     *generator.Chain
	assessor  *complexity.Assessor
	analyzer  *knowledge.Analyzer
	optimizer *contextopt.Optimizer
}

func runGenerate() error {
	cfg, err := config.Load("flowctl")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	platform := cfg.Generation.Platform
	if platformOverride != "" {
		platform = platformOverride
	}

	input, err := readJobInput(inputFile)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(cfg, platform, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	defer cancel()

	fmt.Println("□ Planning...")
	plan, err := pipe.planner.Plan(ctx, input)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	fmt.Printf("✓ Plan accepted: %q (%d steps, %d triggers)\n", plan.WorkflowName, len(plan.Steps), len(plan.Triggers))

	fmt.Println("□ Generating...")
	assessment := pipe.assessor.Assess(input, plan)
	analysis, err := pipe.analyzer.Analyze(plan)
	if err != nil {
		log.Warn("knowledge analysis failed, continuing without it", "error", err)
		analysis = nil
	}
	profile := pipe.optimizer.Optimize(input, plan, assessment.Class)

	wf, err := pipe.chain.Generate(ctx, generator.GenerationJob{
		Input:      input,
		Plan:       plan,
		Assessment: assessment,
		Profile:    profile,
		Analysis:   analysis,
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	if wf.Meta == nil {
		wf.Meta = &models.GenerationMeta{}
	}
	fmt.Printf("✓ Workflow generated: %d nodes (strategy: %s)\n", len(wf.Nodes), wf.Meta.Strategy)

	raw, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow: %w", err)
	}
	raw = append(raw, '\n')

	if outputFile == "-" {
		if _, err := os.Stdout.Write(raw); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(outputFile, raw, 0o644); err != nil {
			return fmt.Errorf("failed to write workflow: %w", err)
		}
		fmt.Printf("✓ Saved to: %s\n", outputFile)
	}

	if showInstructions {
		fmt.Println("\n" + processor.BuildInstructions(models.ArtifactPlatform(platform), wf))
	}

	return nil
}

// buildPipeline assembles the same stack the worker runs, minus
// persistence: plain provider, planner, and the strategy chain.
func buildPipeline(cfg *config.Config, platform string, log *logger.Logger) (*pipeline, error) {
	reg := registry.New()
	assessor := complexity.NewAssessor()
	optimizer := contextopt.NewOptimizer(reg, cfg.Generation.MaxContextDocs)

	corpus, err := knowledge.LoadCorpus()
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	analyzer := knowledge.NewAnalyzer(corpus)

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schemas: %w", err)
	}
	structural := validation.NewStructuralValidator()

	// One invocation, one job: the worker's throttle and completion
	// cache have nothing to do here.
	provider := clients.NewOpenAIProvider(cfg.LLM, log)
	builder := clients.NewHTTPBuilderClient(cfg.Builder, log)

	plans := planner.NewPlanner(planner.PlannerOpts{
		Provider:   provider,
		Assessor:   assessor,
		Analyzer:   analyzer,
		Schemas:    schemas,
		Structural: structural,
		Registry:   reg,
		Logger:     log,
	})

	chain := generator.NewChain(structural, reg, log,
		generator.NewTemplateStrategy(provider, reg, structural, log),
		generator.NewCapabilityStrategy(builder, generator.NewEnhancer(reg, log), structural, optimizer, platform, log),
		generator.NewDirectStrategy(provider, schemas, structural, reg, optimizer, log),
	)

	return &pipeline{
		planner:   plans,
		chain:     chain,
		assessor:  assessor,
		analyzer:  analyzer,
		optimizer: optimizer,
	}, nil
}

// readJobInput decodes a job input file, or stdin when path is "-"
func readJobInput(path string) (models.JobInput, error) {
	var input models.JobInput

	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return input, fmt.Errorf("failed to read job input: %w", err)
	}

	if err := json.Unmarshal(raw, &input); err != nil {
		return input, fmt.Errorf("failed to parse job input: %w", err)
	}
	if strings.TrimSpace(input.ProcessData.ProcessDescription) == "" {
		return input, fmt.Errorf("job input has no process description")
	}
	if input.AutomationType == "" {
		input.AutomationType = "workflow"
	}

	return input, nil
}
