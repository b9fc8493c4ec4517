// export by github.com/goplus/ixgo/cmd/qexp

package recipe

import (
	q "github.com/goplus/llpm/recipe"

	"go/constant"
	"reflect"

	"github.com/goplus/ixgo"
)

func init() {
	ixgo.RegisterPackage(&ixgo.Package{
		Name: "recipe",
		Path: "github.com/goplus/llpm/recipe",
		Deps: map[string]string{
			"errors":                          "errors",
			"fmt":                             "fmt",
			"github.com/bmatcuk/doublestar":   "doublestar",
			"github.com/goplus/llpm/pkgs/ref": "ref",
			"github.com/qiniu/x/gsh":          "gsh",
			"io":                              "io",
			"maps":                            "maps",
			"os":                              "os",
			"path/filepath":                   "filepath",
			"slices":                          "slices",
			"strings":                         "strings",
			"time":                            "time",
		},
		Interfaces: map[string]reflect.Type{},
		NamedTypes: map[string]reflect.Type{
			"BuildContext": reflect.TypeOf((*q.BuildContext)(nil)).Elem(),
			"Config":       reflect.TypeOf((*q.Config)(nil)).Elem(),
			"Context":      reflect.TypeOf((*q.Context)(nil)).Elem(),
			"CppInfo":      reflect.TypeOf((*q.CppInfo)(nil)).Elem(),
			"Definition":   reflect.TypeOf((*q.Definition)(nil)).Elem(),
			"Dependency":   reflect.TypeOf((*q.Dependency)(nil)).Elem(),
			"Deps":         reflect.TypeOf((*q.Deps)(nil)).Elem(),
			"Info":         reflect.TypeOf((*q.Info)(nil)).Elem(),
			"Method":       reflect.TypeOf((*q.Method)(nil)).Elem(),
			"Mode":         reflect.TypeOf((*q.Mode)(nil)).Elem(),
			"Recipe":       reflect.TypeOf((*q.Recipe)(nil)).Elem(),
			"RecipeApp":    reflect.TypeOf((*q.RecipeApp)(nil)).Elem(),
			"RequireInfo":  reflect.TypeOf((*q.RequireInfo)(nil)).Elem(),
			"Requirement":  reflect.TypeOf((*q.Requirement)(nil)).Elem(),
			"Traits":       reflect.TypeOf((*q.Traits)(nil)).Elem(),
			"Type":         reflect.TypeOf((*q.Type)(nil)).Elem(),
			"Values":       reflect.TypeOf((*q.Values)(nil)).Elem(),
		},
		AliasTypes: map[string]reflect.Type{},
		Vars: map[string]reflect.Value{
			"ErrInvalidOption": reflect.ValueOf(&q.ErrInvalidOption),
			"Modes":            reflect.ValueOf(&q.Modes),
		},
		Funcs: map[string]reflect.Value{
			"CopyFiles":           reflect.ValueOf(q.CopyFiles),
			"Gopt_RecipeApp_Main": reflect.ValueOf(q.Gopt_RecipeApp_Main),
			"NewCppInfo":          reflect.ValueOf(q.NewCppInfo),
			"NewOptions":          reflect.ValueOf(q.NewOptions),
			"NewValues":           reflect.ValueOf(q.NewValues),
			"ResolveType":         reflect.ValueOf(q.ResolveType),
		},
		TypedConsts: map[string]ixgo.TypedConst{
			"Application":         {reflect.TypeOf(q.Application), constant.MakeString(string(q.Application))},
			"Build":               {reflect.TypeOf(q.Build), constant.MakeString(string(q.Build))},
			"BuildScripts":        {reflect.TypeOf(q.BuildScripts), constant.MakeString(string(q.BuildScripts))},
			"Configure":           {reflect.TypeOf(q.Configure), constant.MakeString(string(q.Configure))},
			"FullPackageMode":     {reflect.TypeOf(q.FullPackageMode), constant.MakeString(string(q.FullPackageMode))},
			"FullRecipeMode":      {reflect.TypeOf(q.FullRecipeMode), constant.MakeString(string(q.FullRecipeMode))},
			"FullVersionMode":     {reflect.TypeOf(q.FullVersionMode), constant.MakeString(string(q.FullVersionMode))},
			"HeaderLibrary":       {reflect.TypeOf(q.HeaderLibrary), constant.MakeString(string(q.HeaderLibrary))},
			"Library":             {reflect.TypeOf(q.Library), constant.MakeString(string(q.Library))},
			"MinorMode":           {reflect.TypeOf(q.MinorMode), constant.MakeString(string(q.MinorMode))},
			"Package":             {reflect.TypeOf(q.Package), constant.MakeString(string(q.Package))},
			"PackageID":           {reflect.TypeOf(q.PackageID), constant.MakeString(string(q.PackageID))},
			"PackageInfo":         {reflect.TypeOf(q.PackageInfo), constant.MakeString(string(q.PackageInfo))},
			"PackageRevisionMode": {reflect.TypeOf(q.PackageRevisionMode), constant.MakeString(string(q.PackageRevisionMode))},
			"PatchMode":           {reflect.TypeOf(q.PatchMode), constant.MakeString(string(q.PatchMode))},
			"RecipeRevisionMode":  {reflect.TypeOf(q.RecipeRevisionMode), constant.MakeString(string(q.RecipeRevisionMode))},
			"Requirements":        {reflect.TypeOf(q.Requirements), constant.MakeString(string(q.Requirements))},
			"SemverMode":          {reflect.TypeOf(q.SemverMode), constant.MakeString(string(q.SemverMode))},
			"SharedLibrary":       {reflect.TypeOf(q.SharedLibrary), constant.MakeString(string(q.SharedLibrary))},
			"StaticLibrary":       {reflect.TypeOf(q.StaticLibrary), constant.MakeString(string(q.StaticLibrary))},
			"UnrelatedMode":       {reflect.TypeOf(q.UnrelatedMode), constant.MakeString(string(q.UnrelatedMode))},
			"Unknown":             {reflect.TypeOf(q.Unknown), constant.MakeString(string(q.Unknown))},
			"Validate":            {reflect.TypeOf(q.Validate), constant.MakeString(string(q.Validate))},
		},
		UntypedConsts: map[string]ixgo.UntypedConst{
			"AnyValue":   {"untyped string", constant.MakeString(string(q.AnyValue))},
			"GopPackage": {"untyped bool", constant.MakeBool(bool(q.GopPackage))},
		},
	})
}
