package internal

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/graph"
)

var installFlags graphFlags

var installCmd = &cobra.Command{
	Use:   "install [recipe]",
	Short: "Install the dependencies of a recipe",
	Long: `Install expands the dependency graph of a consumer recipe, or of the
references given with --requires, then brings every needed binary into
the local cache: from the cache itself, a remote, or a build.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

func init() {
	installFlags.register(installCmd)
	installFlags.registerInstall(installCmd)
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	req, err := installFlags.request(e, args)
	if err != nil {
		return err
	}
	res, err := e.Install(cmd.Context(), req)
	if res != nil && res.Graph != nil {
		printBinaries(cmd.OutOrStdout(), res.Graph)
	}
	return err
}

// printBinaries lists the packages of g, leaves first, with where their
// binary came from.
func printBinaries(w io.Writer, g *graph.Graph) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range g.Order() {
		if n.IsRoot() {
			continue
		}
		from := string(n.Binary)
		if n.BinaryRemote != "" {
			from += " (" + n.BinaryRemote + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Ref.Key(), n.Context, from, n.Ref)
	}
	tw.Flush()
}
