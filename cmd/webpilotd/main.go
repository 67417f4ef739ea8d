// Command webpilotd is the webpilot server daemon. It wires the planner
// provider, the browser executor, the task runtime, and the HTTP/WebSocket
// surface from the YAML config file and the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoCodeAlone/webpilot/agent"
	"github.com/GoCodeAlone/webpilot/config"
	"github.com/GoCodeAlone/webpilot/events"
	"github.com/GoCodeAlone/webpilot/executor"
	"github.com/GoCodeAlone/webpilot/internal/version"
	"github.com/GoCodeAlone/webpilot/metrics"
	"github.com/GoCodeAlone/webpilot/planner"
	"github.com/GoCodeAlone/webpilot/provider"
	"github.com/GoCodeAlone/webpilot/server"
)

var (
	configPath = flag.String("config", "", "path to YAML config file (optional)")
	headed     = flag.Bool("headed", false, "run the browser with a visible window")
)

func main() {
	flag.Parse()

	cfg := config.FromEnv()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	logger.Info("starting webpilotd",
		"version", version.Version,
		"commit", version.Commit,
		"provider", cfg.Provider.Name,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	var rt *agent.Runtime
	hub := events.NewHub(func() events.Snapshot { return rt.Snapshot() }, logger)

	var pl planner.Planner
	if p := buildProvider(cfg.Provider); p != nil {
		pl = planner.NewLLMPlanner(p, cfg.Policy)
	} else {
		logger.Warn("no API key found for provider; task creation is disabled",
			"provider", cfg.Provider.Name)
	}

	rt = agent.NewRuntime(ctx, hub, agent.Options{
		Policy:  cfg.Policy,
		Planner: pl,
		Logger:  logger,
		Metrics: m,
	})

	browser := executor.NewBrowser(!*headed, cfg.Policy)
	rt.RegisterExecutor(browser)

	srv := server.New(*cfg, rt, hub, m, version.Version, logger)
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	fmt.Printf("webpilot running on http://%s\n", srv.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}
	if err := browser.Shutdown(); err != nil {
		logger.Error("browser shutdown error", "error", err)
	}
	fmt.Println("Shutdown complete")
}

// buildProvider constructs the configured model backend, or nil when no
// credential is available.
func buildProvider(cfg config.ProviderConfig) provider.Provider {
	if cfg.APIKey == "" {
		return nil
	}
	switch cfg.Name {
	case "anthropic":
		return provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	case "gemini":
		return provider.NewGeminiProvider(provider.GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	default:
		return provider.NewOpenAIProvider(provider.OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
