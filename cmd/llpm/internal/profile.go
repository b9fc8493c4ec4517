package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/env"
	"github.com/goplus/llpm/internal/profile"
)

var (
	profileSave  bool
	profileForce bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and create profiles",
}

var profileDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the profile of this machine",
	Args:  cobra.NoArgs,
	RunE:  runProfileDetect,
}

var profileShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a profile after includes are applied",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileShow,
}

func init() {
	profileDetectCmd.Flags().BoolVar(&profileSave, "save", false, "Save as the default profile")
	profileDetectCmd.Flags().BoolVar(&profileForce, "force", false, "Overwrite an existing default profile")
	profileCmd.AddCommand(profileDetectCmd, profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileDetect(cmd *cobra.Command, args []string) error {
	data, err := profile.Detect().Marshal()
	if err != nil {
		return err
	}
	if !profileSave {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	path := env.ProfilePath("default")
	if _, err := os.Stat(path); err == nil && !profileForce {
		return fmt.Errorf("profile %s already exists, use --force to overwrite it", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Saved", path)
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	e, err := newEngine(cmd)
	if err != nil {
		return err
	}
	name := "default"
	if len(args) > 0 {
		name = args[0]
	}
	p, err := e.Profile(name)
	if err != nil {
		return err
	}
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
