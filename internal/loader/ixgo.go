package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/goplus/ixgo"
	"github.com/goplus/ixgo/xgobuild"

	llpmixgo "github.com/goplus/llpm/internal/ixgo"
	"github.com/goplus/llpm/recipe"
)

// Interpreter evaluates "<struct>_recipe.gox" classfiles with ixgo.
// Each recipe runs in an interpreter of its own.
type Interpreter struct {
	mu      sync.Mutex
	classes map[*recipe.Definition]*class
}

// class is an evaluated recipe object. Hooks of one object share its
// output streams and are not run concurrently.
type class struct {
	mu   sync.Mutex
	elem reflect.Value
}

// NewInterpreter returns an evaluator for recipe classfiles.
func NewInterpreter() *Interpreter {
	return &Interpreter{classes: make(map[*recipe.Definition]*class)}
}

// Evaluate runs the top-level statements of the recipe at path. Alias
// recipes are only parsed.
func (p *Interpreter) Evaluate(path string) (*recipe.Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	hdr, err := Peek(path, content)
	if err != nil {
		return nil, err
	}
	if hdr.Alias != "" {
		return &recipe.Definition{Name: hdr.Name, Version: hdr.Version, User: hdr.User, Channel: hdr.Channel, Alias: hdr.Alias}, nil
	}

	structName, ok := strings.CutSuffix(filepath.Base(path), llpmixgo.Ext)
	if !ok || structName == "" {
		return nil, fmt.Errorf("recipe file name must end with %s: %s", llpmixgo.Ext, path)
	}

	ctx := ixgo.NewContext(0)
	source, err := xgobuild.BuildFile(ctx, path, content)
	if err != nil {
		return nil, err
	}
	pkgs, err := ctx.LoadFile("main.go", source)
	if err != nil {
		return nil, err
	}
	interp, err := ctx.NewInterp(pkgs)
	if err != nil {
		return nil, err
	}
	if err = interp.RunInit(); err != nil {
		return nil, err
	}
	typ, ok := interp.GetType(structName)
	if !ok {
		return nil, fmt.Errorf("recipe class %s not found in %s", structName, path)
	}
	val := reflect.New(typ)
	elem := val.Elem()
	if err := runMain(val); err != nil {
		return nil, err
	}

	def, ok := field(elem, "def").Addr().Interface().(*recipe.Definition)
	if !ok {
		return nil, fmt.Errorf("%s does not embed RecipeApp", path)
	}
	p.mu.Lock()
	p.classes[def] = &class{elem: elem}
	p.mu.Unlock()
	return def, nil
}

func runMain(val reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recipe panicked: %v", r)
		}
	}()
	val.Interface().(interface{ Main() }).Main()
	return nil
}

// Call runs hook m. The shell helpers of build and package write to the
// streams of the build context.
func (p *Interpreter) Call(def *recipe.Definition, m recipe.Method, ctx *recipe.Context) error {
	p.mu.Lock()
	c := p.classes[def]
	p.mu.Unlock()
	if c == nil {
		return def.Call(m, ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b := ctx.Build; b != nil && (m == recipe.Build || m == recipe.Package) {
		if b.Stdout != nil {
			setField(c.elem, "fout", b.Stdout)
			defer setField(c.elem, "fout", os.Stdout)
		}
		if b.Stderr != nil {
			setField(c.elem, "ferr", b.Stderr)
			defer setField(c.elem, "ferr", os.Stderr)
		}
	}
	return def.Call(m, ctx)
}
