package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/llpm/internal/engine"
	"github.com/goplus/llpm/internal/lockfile"
)

// graphFlags are the flags of the commands that expand a graph.
type graphFlags struct {
	requires     []string
	toolRequires []string
	hostProfile  string
	buildProfile string
	lockfile     string
	update       bool
	build        []string
	editables    map[string]string
}

func (f *graphFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&f.requires, "requires", "r", nil, "Require a reference instead of loading a recipe")
	fs.StringArrayVar(&f.toolRequires, "tool-requires", nil, "Tool-require a reference")
	fs.StringVarP(&f.hostProfile, "profile", "p", "default", "Host profile: a path or a name in the profiles folder")
	fs.StringVar(&f.buildProfile, "profile-build", "", "Build profile (default the host profile)")
	fs.StringVarP(&f.lockfile, "lockfile", "l", "", "Restrict resolution to the revisions of a lockfile")
	fs.BoolVarP(&f.update, "update", "u", false, "Look for newer revisions in every remote")
}

func (f *graphFlags) registerInstall(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVarP(&f.build, "build", "b", nil, `Build policy: "missing", "never", a pattern, "missing:PATTERN" or "~PATTERN"`)
	fs.StringToStringVar(&f.editables, "editable", nil, "Build REF=FOLDER in a user folder instead of the cache")
}

// request turns the flags and the optional recipe argument into an
// engine request.
func (f *graphFlags) request(e *engine.Engine, args []string) (*engine.Request, error) {
	req := &engine.Request{
		Requires:     f.requires,
		ToolRequires: f.toolRequires,
		Update:       f.update,
		BuildPolicy:  f.build,
		Editables:    f.editables,
	}
	if len(args) > 0 {
		req.Path = args[0]
	}
	host, err := e.Profile(f.hostProfile)
	if err != nil {
		return nil, fmt.Errorf("host profile: %w", err)
	}
	req.Host = host
	if f.buildProfile != "" {
		if req.Build, err = e.Profile(f.buildProfile); err != nil {
			return nil, fmt.Errorf("build profile: %w", err)
		}
	}
	if f.lockfile != "" {
		if req.Lockfile, err = lockfile.Load(f.lockfile); err != nil {
			return nil, err
		}
	}
	return req, nil
}
