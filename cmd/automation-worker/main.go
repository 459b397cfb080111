package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/auditflow/automation-engine/cmd/automation-worker/complexity"
	"github.com/auditflow/automation-engine/cmd/automation-worker/contextopt"
	"github.com/auditflow/automation-engine/cmd/automation-worker/generator"
	"github.com/auditflow/automation-engine/cmd/automation-worker/knowledge"
	"github.com/auditflow/automation-engine/cmd/automation-worker/planner"
	"github.com/auditflow/automation-engine/cmd/automation-worker/processor"
	"github.com/auditflow/automation-engine/cmd/automation-worker/registry"
	"github.com/auditflow/automation-engine/common/bootstrap"
	"github.com/auditflow/automation-engine/common/clients"
	"github.com/auditflow/automation-engine/common/db"
	"github.com/auditflow/automation-engine/common/metrics"
	"github.com/auditflow/automation-engine/common/models"
	"github.com/auditflow/automation-engine/common/ratelimit"
	"github.com/auditflow/automation-engine/common/repository"
	"github.com/auditflow/automation-engine/common/validation"
	"github.com/auditflow/automation-engine/common/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap service components
	components, err := bootstrap.Setup(ctx, "automation-worker",
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return database.Migrate(ctx)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("automation-worker starting", metrics.GetSystemInfo().Fields()...)

	proc, err := buildProcessor(components)
	if err != nil {
		components.Logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// Consume the job stream until cancelled
	errChan := make(chan error, 1)
	go func() {
		stream := components.Config.Queue.Stream
		components.Logger.Info("consuming job stream", "stream", stream)
		if err := components.Queue.Subscribe(ctx, stream, proc.HandleMessage); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("job consumer error: %w", err)
		}
	}()

	waitForShutdown(ctx, cancel, errChan, components)

	components.Logger.Info("automation-worker shutting down gracefully")
}

// buildProcessor assembles the generation pipeline: planner, strategy
// chain, persistence, and lifecycle events.
func buildProcessor(components *bootstrap.Components) (*processor.Processor, error) {
	cfg := components.Config
	log := components.Logger

	reg := registry.New()
	assessor := complexity.NewAssessor()
	optimizer := contextopt.NewOptimizer(reg, cfg.Generation.MaxContextDocs)

	corpus, err := knowledge.LoadCorpus()
	if err != nil {
		return nil, fmt.Errorf("load knowledge corpus: %w", err)
	}
	analyzer := knowledge.NewAnalyzer(corpus)

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}
	structural := validation.NewStructuralValidator()

	provider := buildProvider(components)
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

	// Strategy order is cheapest-first; the chain falls through on failure
	chain := generator.NewChain(structural, reg, log,
		generator.NewTemplateStrategy(provider, reg, structural, log),
		generator.NewCapabilityStrategy(builder, generator.NewEnhancer(reg, log), structural, optimizer, cfg.Generation.Platform, log),
		generator.NewDirectStrategy(provider, schemas, structural, reg, optimizer, log),
	)

	return processor.NewProcessor(processor.ProcessorOpts{
		Planner:   plans,
		Generator: chain,
		Assessor:  assessor,
		Analyzer:  analyzer,
		Optimizer: optimizer,
		Jobs:      repository.NewJobRepository(components.DB),
		Artifacts: repository.NewArtifactRepository(components.DB),
		Events:    worker.NewEventPublisher(components.Redis, cfg.Queue.EventsChannel, log),
		Leases:    worker.NewJobLeaser(components.Redis, cfg.Queue.LeaseTTL, log),
		Platform:  models.ArtifactPlatform(cfg.Generation.Platform),
		Logger:    log,
	}), nil
}

// buildProvider stacks the completion provider: throttling against the
// upstream quota, then a digest-keyed cache so redelivered jobs replay
// finished stages for free.
func buildProvider(components *bootstrap.Components) clients.CompletionProvider {
	cfg := components.Config
	log := components.Logger

	var provider clients.CompletionProvider = clients.NewOpenAIProvider(cfg.LLM, log)

	if cfg.Limits.LLMRequests > 0 {
		limiter := ratelimit.NewLimiter(ratelimit.SystemClock(), log)
		provider = clients.NewThrottledProvider(provider, limiter, cfg.Service.Name,
			int64(cfg.Limits.LLMRequests), cfg.Limits.LLMWindow, log)
	}

	if components.Cache != nil && cfg.LLM.CacheTTL > 0 {
		provider = clients.NewCachingProvider(provider, components.Cache, cfg.LLM.CacheTTL, log)
	}

	return provider
}

// waitForShutdown waits for either a component error or a signal
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, errChan chan error, components *bootstrap.Components) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("component failed", "error", err)
		cancel()
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}
}
