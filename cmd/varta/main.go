package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rahul/varta/internal/agent"
	"github.com/rahul/varta/internal/gateway"
	"github.com/rahul/varta/internal/governance"
	"github.com/rahul/varta/internal/observability"
	"github.com/rahul/varta/internal/providers"
	"github.com/rahul/varta/internal/store"
	"github.com/rahul/varta/internal/tools"
	"github.com/rahul/varta/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the status line's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	tgCfg, ok := cfg.GetTelegramConfig()
	if !ok {
		log.Fatal("Telegram gateway is not enabled or token is missing")
	}

	db, err := store.NewStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}

	mediaDir := filepath.Join(cfg.App.Workspace, "media")

	// Tool registry
	registry := tools.NewRegistry()

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}
	registry.Register(tools.NewReaderTool())
	registry.Register(tools.NewSnapshotTool(mediaDir))
	registry.Register(tools.NewReminderTool(db))

	if cfg.Media.Enabled {
		registry.Register(tools.NewImageTool(providers.NewRestGenerator(
			cfg.Media.BaseURL, "/v1/images/generations", cfg.Media.APIKey, cfg.Media.ImageModel)))
		registry.Register(tools.NewVideoTool(providers.NewRestGenerator(
			cfg.Media.BaseURL, "/v1/videos/generations", cfg.Media.APIKey, cfg.Media.VideoModel)))
		registry.Register(tools.NewMusicTool(providers.NewRestGenerator(
			cfg.Media.BaseURL, "/v1/music/generations", cfg.Media.APIKey, cfg.Media.MusicModel)))
		registry.Register(tools.NewSpeechTool(providers.NewSpeechClient(
			cfg.Media.BaseURL, cfg.Media.APIKey, cfg.Media.VoiceModel, mediaDir)))
		registry.Register(tools.NewTranscribeTool(providers.NewTranscribeClient(
			cfg.Media.BaseURL, cfg.Media.APIKey, cfg.Media.TranscribeModel)))
	}

	prompts := agent.NewPromptManager("./prompts")

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: block destructive argument patterns.
	_ = gov.DenyArguments(`rm\s+-rf`)
	_ = gov.DenyArguments(`mkfs`)

	logger := observability.NewLogger()

	// LLM client (default enabled provider), constructed once and
	// injected everywhere.
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Agent core
	loop := agent.NewLoop(llm, registry, db, prompts, gov, logger)
	planner := agent.NewPlanner(llm, cfg.Agent.PlannerModel, registry, prompts, logger)
	planner.MaxSteps = cfg.Agent.MaxPlanSteps
	executor := agent.NewExecutor(loop, registry, gov, logger)
	contexts := agent.NewContextManager(db, cfg.Agent.ContextMemory, logger)

	core := agent.NewAgent(planner, loop, executor, contexts, db, db, logger, agent.Options{
		MaxIterations:  cfg.Agent.MaxIterations,
		Timeout:        time.Duration(cfg.Agent.TimeoutMS) * time.Millisecond,
		PlanTimeout:    time.Duration(cfg.Agent.PlanTimeoutMS) * time.Millisecond,
		IncludeHistory: cfg.Agent.IncludeHistory,
		HistoryLimit:   cfg.Agent.HistoryLimit,
		LanguageHint:   cfg.Agent.LanguageHint,
	})

	tg, err := gateway.NewTelegramGateway(tgCfg.Token, core)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := agent.NewScheduler(core, db, tg)
	go scheduler.Start(ctx)

	// Live status line (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	go func() {
		if err := tg.Start(); err != nil {
			log.Printf("GATEWAY CRITICAL ERROR: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("Varta stopped. Goodbye.")
}
