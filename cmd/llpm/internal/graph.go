package internal

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
)

var (
	graphOpts graphFlags
	graphFormat   string
	graphBinaries bool
)

var graphCmd = &cobra.Command{
	Use:   "graph [recipe]",
	Short: "Print the dependency graph of a recipe",
	Long: `Graph expands the dependency graph without installing anything. With
--binaries, it also computes package ids and tells where each binary
would come from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphOpts.register(graphCmd)
	graphOpts.registerInstall(graphCmd)
	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "text", `Output format: "text" or "json"`)
	graphCmd.Flags().BoolVar(&graphBinaries, "binaries", false, "Classify the binaries of the graph")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	if graphFormat != "text" && graphFormat != "json" {
		return errs.New(errs.InvalidConfig, "", "unknown format %q", graphFormat)
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	req, err := graphOpts.request(e, args)
	if err != nil {
		return err
	}
	var g *graph.Graph
	if graphBinaries {
		g, err = e.Analyze(cmd.Context(), req)
	} else {
		g, err = e.Graph(cmd.Context(), req)
	}
	if g == nil {
		return err
	}

	w := cmd.OutOrStdout()
	if graphFormat == "json" {
		data, jerr := json.MarshalIndent(g, "", "  ")
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(w, string(data))
		return err
	}
	if graphBinaries {
		printBinaries(w, g)
		return err
	}
	for _, n := range g.Order() {
		fmt.Fprintln(w, n)
		for _, d := range n.Deps {
			fmt.Fprintf(w, "    %s [%s]\n", d.Dst, d.Traits)
		}
	}
	return err
}
