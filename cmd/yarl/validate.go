package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/registry"
)

const defaultStorePath = "yarl-reports.db"

type validateOptions struct {
	kind         string
	strict       bool
	sharedScopes bool
	watch        bool
	store        bool
	output       string
	parallelism  int
}

func newValidateCmd(a *app) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Validate agent and topology documents",
		Long: `Validates JSON or YAML documents. The document kind is detected from its
top-level keys unless --kind is given. Exits non-zero when any document is
invalid. Globs are expanded when the shell did not.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, a, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.kind, "kind", "", "document kind: agent or topology (default: detect)")
	f.BoolVar(&opts.strict, "strict", false, "reject unknown fields")
	f.BoolVar(&opts.sharedScopes, "shared-scopes", false, "require scopes to be unique across all given documents")
	f.BoolVarP(&opts.watch, "watch", "w", false, "revalidate files when they change")
	f.BoolVar(&opts.store, "store", false, "persist reports to the registry database (registry.path)")
	f.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	f.IntVar(&opts.parallelism, "parallel", 4, "documents validated concurrently")
	return cmd
}

func runValidate(cmd *cobra.Command, a *app, opts *validateOptions, args []string) error {
	kind, err := document.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	paths, err := expandArgs(args)
	if err != nil {
		return err
	}

	v := document.NewValidator(a.logger)
	v.Strict = opts.strict
	v.SharedScopes = opts.sharedScopes
	v.Parallelism = opts.parallelism

	var store *registry.Store
	if opts.store {
		path := a.cfg.Registry.Path
		if path == "" {
			path = defaultStorePath
		}
		if store, err = registry.Open(path); err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	check := func(paths []string) (int, error) {
		reports, err := v.CheckFiles(ctx, paths, kind)
		if err != nil {
			return 0, err
		}
		if store != nil {
			for i := range reports {
				if reports[i], err = store.Save(ctx, reports[i]); err != nil {
					return 0, err
				}
			}
		}
		return printReports(cmd.OutOrStdout(), opts.output, reports)
	}

	invalid, err := check(paths)
	if err != nil {
		return err
	}
	if !opts.watch {
		if invalid > 0 {
			return fmt.Errorf("%d of %d documents invalid", invalid, len(paths))
		}
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "watching %d file(s), press Ctrl+C to stop\n", len(paths))
	return document.Watch(ctx, paths, 200*time.Millisecond, a.logger, func(changed []string) {
		if opts.sharedScopes {
			// cross-document checks need the full set
			changed = paths
		}
		if _, err := check(changed); err != nil && ctx.Err() == nil {
			a.logger.Error("revalidation failed", zap.Error(err))
		}
	})
}

// expandArgs resolves globs the shell did not expand; plain paths are kept
// as given so that missing files are reported per document.
func expandArgs(args []string) ([]string, error) {
	var out []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		out = append(out, matches...)
	}
	return out, nil
}

func printReports(w io.Writer, format string, reports []document.Report) (int, error) {
	invalid := 0
	for _, r := range reports {
		if !r.Valid {
			invalid++
		}
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return invalid, enc.Encode(reports)
	}

	for _, r := range reports {
		status := "OK"
		if !r.Valid {
			status = "FAIL"
		}
		line := fmt.Sprintf("%s: %s", status, r.Path)
		if r.Kind != "" {
			line += fmt.Sprintf(" (%s)", r.Kind)
		}
		if r.ID != "" {
			line += " report=" + r.ID
		}
		fmt.Fprintln(w, line)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  error: %s\n", e)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  warning: %s\n", warn)
		}
	}
	return invalid, nil
}
