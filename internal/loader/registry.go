package loader

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goplus/llpm/recipe"
)

// Registry is an Evaluator over recipes defined in Go. A recipe file
// evaluated by a Registry holds nothing but the key its definition was
// registered under, usually "name/version".
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*recipe.Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*recipe.Definition)}
}

// Add registers the definition built by decl under key. decl receives a
// fresh RecipeApp, the same value recipe classfiles embed.
func (r *Registry) Add(key string, decl func(app *recipe.RecipeApp)) *recipe.Definition {
	app := new(recipe.RecipeApp)
	decl(app)
	def := app.Definition()
	r.mu.Lock()
	r.defs[key] = def
	r.mu.Unlock()
	return def
}

// Evaluate returns the definition named by the contents of path.
func (r *Registry) Evaluate(path string) (*recipe.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(string(data))
	r.mu.RLock()
	def, ok := r.defs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: no recipe registered as %q", path, key)
	}
	return def, nil
}

func (r *Registry) Call(def *recipe.Definition, m recipe.Method, ctx *recipe.Context) error {
	return def.Call(m, ctx)
}
