package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/config"
	"github.com/goplus/llpm/internal/engine"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/logging"
)

var (
	verbosity  int
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "llpm",
	Short: "llpm is a C/C++ package manager",
	Long: `llpm resolves the dependency graph of C/C++ recipes, computes the
package id of every package and downloads or builds the binaries missing
from the local cache.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default $XDG_CONFIG_HOME/llpm/config.toml)")
}

// newEngine loads the configuration and opens the engine. Recipe output
// is shown from -v on.
func newEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	var opts []engine.Option
	if verbosity > 0 {
		opts = append(opts, engine.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()))
	}
	return engine.New(cfg, opts...)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
	}
	os.Exit(errs.ExitCode(err))
}
