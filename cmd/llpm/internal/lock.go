package internal

import (
	"github.com/spf13/cobra"
)

var (
	lockOpts graphFlags
	lockOut  string
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Manage lockfiles",
}

var lockCreateCmd = &cobra.Command{
	Use:   "create [recipe]",
	Short: "Write the lockfile of a dependency graph",
	Long: `Create expands the dependency graph and pins the recipe revision of
every package in a lockfile. Pins of the lockfile given with --lockfile
are kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLockCreate,
}

func init() {
	lockOpts.register(lockCreateCmd)
	lockCreateCmd.Flags().StringVarP(&lockOut, "lockfile-out", "o", "llpm.lock", "Path of the lockfile to write")
	lockCmd.AddCommand(lockCreateCmd)
	rootCmd.AddCommand(lockCmd)
}

func runLockCreate(cmd *cobra.Command, args []string) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	req, err := lockOpts.request(e, args)
	if err != nil {
		return err
	}
	_, err = e.Lock(cmd.Context(), req, lockOut)
	return err
}
