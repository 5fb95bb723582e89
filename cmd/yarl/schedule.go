package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/schedule"
	"github.com/YARL-project/YARL/internal/spec"
)

type scheduleOptions struct {
	field    string
	progress float64
	timestep int
	steps    int
}

func newScheduleCmd(a *app) *cobra.Command {
	opts := &scheduleOptions{}
	cmd := &cobra.Command{
		Use:   "schedule FILE",
		Short: "Evaluate a schedule-valued field of an agent document",
		Long: `Prints the value of a schedule at a training progress in [0, 1]
(--progress), at an absolute timestep (--timestep, needs num_timesteps), or as
a table of --steps evenly spaced points.

Fields: ` + strings.Join(scheduleFieldNames(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.field, "field", "clip_ratio", "schedule field")
	f.Float64Var(&opts.progress, "progress", -1, "training progress in [0, 1]")
	f.IntVar(&opts.timestep, "timestep", -1, "absolute timestep")
	f.IntVar(&opts.steps, "steps", 0, "print a table with this many points")
	cmd.MarkFlagsMutuallyExclusive("progress", "timestep", "steps")
	return cmd
}

var scheduleFields = map[string]func(*agent.Config) *schedule.Schedule{
	"clip_ratio":     func(c *agent.Config) *schedule.Schedule { return &c.ClipRatio },
	"weight_entropy": func(c *agent.Config) *schedule.Schedule { return &c.WeightEntropy },
	"optimizer_spec.learning_rate": func(c *agent.Config) *schedule.Schedule {
		if c.OptimizerSpec == nil {
			return nil
		}
		return &c.OptimizerSpec.LearningRate
	},
	"value_function_optimizer_spec.learning_rate": func(c *agent.Config) *schedule.Schedule {
		if c.ValueFunctionOptimizerSpec == nil {
			return nil
		}
		return &c.ValueFunctionOptimizerSpec.LearningRate
	},
}

func scheduleFieldNames() []string {
	names := make([]string, 0, len(scheduleFields))
	for name := range scheduleFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSchedule(cmd *cobra.Command, opts *scheduleOptions, path string) error {
	get, ok := scheduleFields[opts.field]
	if !ok {
		return fmt.Errorf("%w: schedule field %q", spec.ErrUnknownType, opts.field)
	}
	doc, err := document.Load(path, document.KindAgent, false)
	if err != nil {
		return err
	}
	if err := doc.Agent.Validate(); err != nil {
		return errors.Join(append([]error{fmt.Errorf("%s is invalid", path)}, spec.Errors(err)...)...)
	}
	if err := doc.Agent.Normalize(); err != nil {
		return err
	}

	s := get(doc.Agent)
	if s == nil || !s.IsSet() {
		return fmt.Errorf("%s: %s is not set", path, opts.field)
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.timestep >= 0:
		if s.NumTimesteps == 0 {
			return fmt.Errorf("%s: %s has no num_timesteps; use --progress", path, opts.field)
		}
		fmt.Fprintf(out, "%g\n", s.ValueAt(opts.timestep))
	case opts.steps > 1:
		fmt.Fprintf(out, "# %s = %s\n", opts.field, s)
		for i := 0; i < opts.steps; i++ {
			p := float64(i) / float64(opts.steps-1)
			fmt.Fprintf(out, "%.4f\t%g\n", p, s.Value(p))
		}
	case opts.progress >= 0:
		if opts.progress > 1 {
			return fmt.Errorf("--progress must be in [0, 1], got %g", opts.progress)
		}
		fmt.Fprintf(out, "%g\n", s.Value(opts.progress))
	default:
		from, to := s.Bounds()
		fmt.Fprintf(out, "%s: %s (from %g to %g)\n", opts.field, s, from, to)
	}
	return nil
}
