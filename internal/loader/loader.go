// Package loader turns recipe files into recipe values and graph roots.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goplus/llpm/internal/cache"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	llpmixgo "github.com/goplus/llpm/internal/ixgo"
	"github.com/goplus/llpm/internal/logging"
	"github.com/goplus/llpm/internal/profile"
	"github.com/goplus/llpm/internal/vcs"
	"github.com/goplus/llpm/pkgs/ref"
	"github.com/goplus/llpm/recipe"
)

// Evaluator runs recipe code.
type Evaluator interface {
	// Evaluate loads the definition of the recipe file at path.
	Evaluate(path string) (*recipe.Definition, error)
	// Call invokes lifecycle method m of a definition returned by
	// Evaluate.
	Call(def *recipe.Definition, m recipe.Method, ctx *recipe.Context) error
}

// Revision modes.
const (
	RevisionHash = "hash"
	RevisionSCM  = "scm"
)

// Loader loads recipes through an Evaluator. Definitions are evaluated
// once per file.
type Loader struct {
	eval   Evaluator
	schema *profile.Schema
	vcs    vcs.VCS
	logger zerolog.Logger

	mu   sync.Mutex
	defs map[string]*recipe.Definition
}

// Option configures a Loader.
type Option func(*Loader)

// WithSchema sets the settings schema; the default is
// profile.DefaultSchema.
func WithSchema(s *profile.Schema) Option {
	return func(l *Loader) {
		l.schema = s
	}
}

// WithVCS sets the version control used by "scm" revision mode.
func WithVCS(v vcs.VCS) Option {
	return func(l *Loader) {
		l.vcs = v
	}
}

// New returns a loader evaluating recipes with eval.
func New(eval Evaluator, opts ...Option) *Loader {
	l := &Loader{
		eval:   eval,
		schema: profile.DefaultSchema(),
		vcs:    vcs.NewGitVCS(),
		logger: logging.Get("loader"),
		defs:   make(map[string]*recipe.Definition),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Schema returns the settings schema recipes are validated against.
func (l *Loader) Schema() *profile.Schema {
	return l.schema
}

// LoadRecipe evaluates the recipe at path. The returned recipe carries
// the reference the recipe declares, without revision. Failures are
// errs.LoadError.
func (l *Loader) LoadRecipe(path string) (*recipe.Recipe, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.LoadError, path, err)
	}
	l.mu.Lock()
	def, ok := l.defs[abs]
	l.mu.Unlock()
	if !ok {
		l.logger.Debug().Str("path", abs).Msg("Evaluating recipe")
		def, err = l.eval.Evaluate(abs)
		if err != nil {
			return nil, errs.Wrap(errs.LoadError, path, err)
		}
		if def.PackageType == "" {
			def.PackageType = recipe.Unknown
		}
		l.mu.Lock()
		l.defs[abs] = def
		l.mu.Unlock()
	}
	return &recipe.Recipe{
		Ref:        ref.Reference{Name: def.Name, Version: def.Version, User: def.User, Channel: def.Channel},
		Path:       abs,
		Definition: def,
	}, nil
}

// LoadReference loads the recipe at path as revision r. The reference
// the recipe declares must not contradict r.
func (l *Loader) LoadReference(path string, r ref.Reference) (*recipe.Recipe, error) {
	rec, err := l.LoadRecipe(path)
	if err != nil {
		return nil, err
	}
	if rec.Definition.Name != "" && rec.Definition.Name != r.Name {
		return nil, errs.New(errs.LoadError, r.String(), "recipe declares name %q", rec.Definition.Name)
	}
	rec.Ref = r
	return rec, nil
}

// LoadConsumer loads the user recipe at path as the root of a graph.
func (l *Loader) LoadConsumer(path string, host *profile.Profile) (*graph.Node, error) {
	rec, err := l.LoadRecipe(path)
	if err != nil {
		return nil, err
	}
	n := graph.NewNode(graph.Consumer, rec.Ref, rec, graph.Host)
	n.Settings, err = l.ProjectSettings(rec, host, rec.Ref, true)
	if err != nil {
		return nil, err
	}
	n.Conf = host.Conf
	return n, nil
}

// LoadVirtual returns a synthetic root requiring requires and tool
// requiring toolRequires.
func (l *Loader) LoadVirtual(requires, toolRequires []string, host *profile.Profile) (*graph.Node, error) {
	var app recipe.RecipeApp
	app.Requires(requires...)
	app.ToolRequires(toolRequires...)
	for _, r := range app.Definition().Requires {
		if _, err := ref.Parse(r.Ref); err != nil {
			return nil, errs.Wrap(errs.Parse, r.Ref, err)
		}
	}
	rec := &recipe.Recipe{Definition: app.Definition()}
	n := graph.NewNode(graph.Virtual, ref.Reference{}, rec, graph.Host)
	n.Conf = host.Conf
	return n, nil
}

// ProjectSettings computes the settings of the recipe rec reached as r:
// the profile settings applying to r, constrained to the settings the
// recipe declares, with derived settings filled in. Failures are
// errs.InvalidConfig.
func (l *Loader) ProjectSettings(rec *recipe.Recipe, p *profile.Profile, r ref.Reference, isConsumer bool) (*recipe.Values, error) {
	settings := profile.Constrain(p.SettingsFor(r, isConsumer), rec.Settings)
	profile.Preprocess(settings)
	if err := l.schema.Validate(settings); err != nil {
		return nil, errs.Wrap(errs.InvalidConfig, r.String(), err)
	}
	return recipe.NewValues(settings), nil
}

// Call runs lifecycle method m of rec.
func (l *Loader) Call(rec *recipe.Recipe, m recipe.Method, ctx *recipe.Context) error {
	if !rec.Has(m) {
		return nil
	}
	return l.eval.Call(rec.Definition, m, ctx)
}

// Export copies the recipe file of rec into exportDir and the sources it
// declares into sourcesDir, then returns the recipe revision.
func (l *Loader) Export(rec *recipe.Recipe, exportDir, sourcesDir string) (string, error) {
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}
	if err := os.MkdirAll(sourcesDir, 0755); err != nil {
		return "", err
	}
	dir, base := filepath.Split(rec.Path)
	if _, err := recipe.CopyFiles(base, dir, exportDir); err != nil {
		return "", fmt.Errorf("export %s: %w", rec.Path, err)
	}
	for _, pattern := range rec.ExportSources {
		files, err := recipe.CopyFiles(pattern, dir, sourcesDir)
		if err != nil {
			return "", fmt.Errorf("export %s: %s: %w", rec.Path, pattern, err)
		}
		l.logger.Debug().Str("pattern", pattern).Int("files", len(files)).Msg("Exported sources")
	}
	return l.Revision(rec, exportDir, sourcesDir)
}

// Revision returns the revision of rec exported into exportDir and
// sourcesDir: the manifest summary of both folders, or the commit of
// the recipe's repository in "scm" mode.
func (l *Loader) Revision(rec *recipe.Recipe, exportDir, sourcesDir string) (string, error) {
	switch rec.RevisionMode {
	case "", RevisionHash:
		m, err := cache.ManifestOfTree(map[string]string{"export": exportDir, "export_sources": sourcesDir})
		if err != nil {
			return "", err
		}
		return m.Summary(), nil
	case RevisionSCM:
		rev, err := vcs.Revision(l.vcs, filepath.Dir(rec.Path))
		if err != nil {
			return "", errs.Wrap(errs.InvalidConfig, rec.Ref.String(), err)
		}
		return rev, nil
	}
	return "", errs.New(errs.InvalidConfig, rec.Ref.String(), "unknown revision mode %q", rec.RevisionMode)
}

// RecipeFile returns the name of the recipe file within an export
// folder: the one "*_recipe.gox" file, or the only file present.
func RecipeFile(exportDir string) (string, error) {
	entries, err := os.ReadDir(exportDir)
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), llpmixgo.Ext) {
			return e.Name(), nil
		}
		files = append(files, e.Name())
	}
	if len(files) == 1 {
		return files[0], nil
	}
	return "", fmt.Errorf("no recipe file in %s", exportDir)
}
