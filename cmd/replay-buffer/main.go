// Command replay-buffer serves the ring-buffer memory over HTTP. Its capacity
// comes from the agent document's memory_spec when buffer.agent_config is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/buffer"
	"github.com/YARL-project/YARL/internal/config"
	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/logging"
	"github.com/YARL-project/YARL/internal/metrics"
	"github.com/YARL-project/YARL/internal/server"
	"github.com/YARL-project/YARL/internal/spec"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env: YARL_*)")
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.Log).With(zap.String("service", "replay-buffer"))
	defer func() { _ = logger.Sync() }()

	memory := agent.MemorySpec{Type: "ring-buffer", Capacity: spec.CountOf(cfg.Buffer.Capacity)}
	if path := cfg.Buffer.AgentConfig; path != "" {
		a, err := loadAgent(path)
		if err != nil {
			logger.Fatal("load agent config", zap.String("path", path), zap.Error(err))
		}
		memory = *a.MemorySpec
	}

	rb, err := buffer.FromSpec(memory, cfg.Buffer.Policy, cfg.Buffer.Seed)
	if err != nil {
		logger.Fatal("create ring buffer", zap.Error(err))
	}

	m := metrics.NewCollector("yarl", logger)
	h := server.NewBufferHandler(rb, m, logger, cfg.Server.MaxBodyBytes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("replay buffer starting",
		zap.Int("capacity", rb.Capacity()),
		zap.String("policy", rb.Policy()))
	if err := server.Serve(ctx, cfg.Buffer.Addr, h, cfg.Server, logger); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

// loadAgent reads and validates an agent document.
func loadAgent(path string) (*agent.Config, error) {
	doc, err := document.Load(path, document.KindAgent, false)
	if err != nil {
		return nil, err
	}
	if err := doc.Agent.Validate(); err != nil {
		return nil, err
	}
	if err := doc.Agent.Normalize(); err != nil {
		return nil, err
	}
	return doc.Agent, nil
}
