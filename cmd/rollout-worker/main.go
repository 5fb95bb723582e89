// Command rollout-worker plays cart-pole with a policy shaped by an agent
// document and ships observe-buffer batches to the replay buffer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/config"
	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/logging"
	"github.com/YARL-project/YARL/internal/metrics"
	"github.com/YARL-project/YARL/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env: YARL_*)")
	flag.Parse()

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	wc := cfg.Worker
	if wc.ID == "" {
		wc.ID = "worker-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	if wc.Seed == 0 {
		wc.Seed = time.Now().UnixNano()
	}
	logger := logging.Must(cfg.Log).With(zap.String("service", "rollout-worker"))
	defer func() { _ = logger.Sync() }()

	agentCfg := agent.Default()
	if wc.AgentConfig != "" {
		doc, err := document.Load(wc.AgentConfig, document.KindAgent, false)
		if err != nil {
			logger.Fatal("load agent config", zap.Error(err))
		}
		if err := doc.Agent.Validate(); err != nil {
			logger.Fatal("invalid agent config", zap.Error(err))
		}
		if err := doc.Agent.Normalize(); err != nil {
			logger.Fatal("normalize agent config", zap.Error(err))
		}
		agentCfg = doc.Agent
	} else {
		logger.Warn("no worker.agent_config given, using a linear policy with default observe_spec")
	}

	runner := &worker.Runner{
		WorkerID:          wc.ID,
		BufferURL:         wc.BufferURL,
		Agent:             agentCfg,
		NumEnvs:           wc.NumEnvs,
		BatchesPerRequest: wc.BatchesPerRequest,
		Seed:              wc.Seed,
		Backoff:           wc.Backoff,
		Recorder:          metrics.NewCollector("yarl", logger),
		Logger:            logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("rollout", zap.Error(err))
	}
}
