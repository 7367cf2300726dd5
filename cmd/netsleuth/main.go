package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"netsleuth/internal/assessor"
	"netsleuth/internal/cli"
	"netsleuth/internal/config"
	"netsleuth/internal/fanout"
	"netsleuth/internal/investigator"
	"netsleuth/internal/learning"
	"netsleuth/internal/llmclient"
	"netsleuth/internal/logging"
	"netsleuth/internal/oracle"
	"netsleuth/internal/orchestrator"
	"netsleuth/internal/plan"
	"netsleuth/internal/reporter"
	"netsleuth/internal/tool"
	"netsleuth/internal/validator"
)

func main() {
	// .env carries API keys; absence is fine, config has defaults.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("NETSLEUTH_CONFIG"))
	if err != nil {
		log.Fatalf("Fatal Error: Could not load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogFile); err != nil {
		log.Fatalf("Fatal Error: Could not initialize logger: %v", err)
	}
	defer logging.Sync()

	if err := llmclient.Init(llmclient.Config{
		Backend:    cfg.LLMBackend,
		Model:      cfg.LLMModel,
		OllamaHost: cfg.OllamaHost,
	}); err != nil {
		log.Fatalf("Fatal Error: Could not initialize LLM client: %v", err)
	}

	registry, err := tool.LoadRegistry(cfg.ToolsFile)
	if err != nil {
		log.Fatalf("Fatal Error: Could not load tool registry: %v", err)
	}

	store, err := learning.Open(cfg.LearningDB)
	if err != nil {
		log.Fatalf("Fatal Error: Could not open learning store: %v", err)
	}
	defer store.Close()

	orc := oracle.NewClient(registry, cfg.LLMModel)
	repo := plan.NewRepository(cfg.PlansDir)
	executor := tool.NewHTTPExecutor(registry, cfg.DeviceScheme)

	engine := &orchestrator.Engine{
		MaxRetries:  cfg.MaxRetries,
		Validator:   validator.New(cfg.Devices, orc),
		Planner:     plan.NewPlanner(repo, orc, cfg.DefaultIntent),
		Coordinator: fanout.New(cfg.FanoutLimit, investigator.New(orc, executor)),
		Assessor:    assessor.New(orc),
		Reporter:    reporter.New(llmclient.Generate, cfg.LLMModel),
		Learning:    store,
	}

	cli.Execute(&cli.App{
		Cfg:        cfg,
		Engine:     engine,
		Dispatcher: orchestrator.NewDispatcher(engine, cfg.SessionTimeout),
		Repo:       repo,
	})
}
