package loader

import (
	"fmt"
	"strconv"

	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/xgo/ast"
	"github.com/goplus/xgo/parser"
	"github.com/goplus/xgo/token"
)

// Header is what a recipe file declares about itself through literal
// calls, read without running the recipe.
type Header struct {
	Name         string
	Version      string
	User         string
	Channel      string
	Alias        string
	RevisionMode string
}

// Peek parses the recipe at path and extracts its header.
func Peek(path string, src []byte) (*Header, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseEntry(fset, path, src, parser.Config{
		ClassKind: xgobuild.ClassKind,
	})
	if err != nil {
		return nil, err
	}
	return headerOf(f)
}

func headerOf(f *ast.File) (*Header, error) {
	h := new(Header)
	fields := map[string]*string{
		"name":         &h.Name,
		"version":      &h.Version,
		"user":         &h.User,
		"channel":      &h.Channel,
		"alias":        &h.Alias,
		"revisionMode": &h.RevisionMode,
	}
	var err error
	ast.Inspect(f, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		c, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fn, ok := c.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		if dst, ok := fields[fn.Name]; ok {
			*dst, err = stringArg(c, fn.Name)
			return false
		}
		return true
	})
	return h, err
}

// stringArg returns the first argument of c when it is a string literal.
// Non-literal arguments yield "".
func stringArg(c *ast.CallExpr, fnName string) (string, error) {
	if len(c.Args) == 0 {
		return "", fmt.Errorf("%s: missing argument", fnName)
	}
	lit, ok := c.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", nil
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", fnName, err)
	}
	return s, nil
}
