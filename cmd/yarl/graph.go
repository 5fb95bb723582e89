package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/spec"
	"github.com/YARL-project/YARL/internal/topology"
)

func newGraphCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Resolve a topology document and print its steps with inferred spaces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := document.Load(args[0], document.KindTopology, strict)
			if err != nil {
				return err
			}
			g, err := topology.Resolve(doc.Topology)
			if g != nil {
				printGraph(cmd, g)
			}
			if err != nil {
				for _, msg := range spec.Messages(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
				}
				return fmt.Errorf("%s: topology does not resolve", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject unknown fields")
	return cmd
}

func printGraph(cmd *cobra.Command, g *topology.Graph) {
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCOPE\tTYPE\tINPUTS\tOUTPUTS")
	for _, n := range g.Nodes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", n.Index, n.Scope, n.Type, vars(g, n.Inputs), vars(g, n.Outputs))
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "outputs: %s\n", vars(g, g.Outputs))
	for _, w := range g.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}

func vars(g *topology.Graph, names []string) string {
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + g.Spaces[name].String()
	}
	return strings.Join(parts, ", ")
}
