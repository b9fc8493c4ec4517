package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	exportUser    string
	exportChannel string
)

var exportCmd = &cobra.Command{
	Use:   "export <recipe>",
	Short: "Copy a recipe into the local cache",
	Long: `Export copies a recipe file and the sources it exports into the local
cache and prints the resulting reference with its recipe revision.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "User of the exported reference")
	exportCmd.Flags().StringVar(&exportChannel, "channel", "", "Channel of the exported reference")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	r, err := e.Export(args[0], exportUser, exportChannel)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), r)
	return nil
}
