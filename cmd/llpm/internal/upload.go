package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/pkgs/ref"
)

var (
	uploadRemote     string
	uploadOnlyRecipe bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <reference>",
	Short: "Upload a recipe and its packages to a remote",
	Long: `Upload publishes a recipe revision of the local cache, the latest one
unless the reference names a revision, together with its cached package
revisions.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadRemote, "remote", "R", "", "Remote to upload to")
	uploadCmd.Flags().BoolVar(&uploadOnlyRecipe, "only-recipe", false, "Upload the recipe without its packages")
	uploadCmd.MarkFlagRequired("remote")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	r, err := ref.Parse(args[0])
	if err != nil {
		return errs.Wrap(errs.Parse, args[0], err)
	}
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	return e.Upload(cmd.Context(), r, uploadRemote, !uploadOnlyRecipe)
}
