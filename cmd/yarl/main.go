// Command yarl validates agent and topology documents, evaluates schedules,
// prints resolved network graphs and serves the validation API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/YARL-project/YARL/internal/config"
	"github.com/YARL-project/YARL/internal/logging"
)

type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "yarl",
		Short: "Validate and inspect PPO agent and network topology documents",
		Long: `yarl checks the declarative documents that describe a PPO agent
(hyperparameters, schedules, memory, networks, optimizers) and multi-stream
network topologies (call steps wired by variable names).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().WithConfigPath(a.configPath).Load()
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Log.Level = zapcore.DebugLevel.String()
			}
			a.cfg = cfg
			a.logger, err = logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (env: YARL_*)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newValidateCmd(a),
		newScheduleCmd(a),
		newGraphCmd(a),
		newServeCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
