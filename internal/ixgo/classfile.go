// Copyright 2024 The llpm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ixgo registers the recipe classfile and the packages recipes
// may import with the interpreter.
package ixgo

import (
	"github.com/goplus/ixgo/xgobuild"
	"github.com/goplus/mod/modfile"

	_ "github.com/goplus/llpm/internal/ixgo/pkg/github.com/goplus/llpm/recipe"
	_ "github.com/goplus/llpm/internal/ixgo/pkg/github.com/qiniu/x/gsh"
	_ "github.com/goplus/llpm/internal/ixgo/pkg/golang.org/x/mod/semver"
)

// Ext is the suffix of recipe files: "<struct>_recipe.gox".
const Ext = "_recipe.gox"

func init() {
	xgobuild.RegisterProject(&modfile.Project{
		Ext:   Ext,
		Class: "RecipeApp",
		PkgPaths: []string{
			"github.com/goplus/llpm/recipe",
		},
		Import: []*modfile.Import{
			{
				Name: "semver",
				Path: "golang.org/x/mod/semver",
			},
		},
	})
}
