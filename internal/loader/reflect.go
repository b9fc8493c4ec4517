package loader

import (
	"go/ast"
	"reflect"
	"unsafe"
)

// field returns the named field of a recipe class, promoted fields of
// the embedded RecipeApp included. Unexported fields are made settable
// through their address.
func field(class reflect.Value, name string) reflect.Value {
	f := class.FieldByName(name)
	if !f.IsValid() || ast.IsExported(name) {
		return f
	}
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
}

// setField assigns value to the named field. A nil value stores the
// zero value of the field type.
func setField(class reflect.Value, name string, value any) bool {
	f := field(class, name)
	if !f.IsValid() {
		return false
	}
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return true
	}
	f.Set(reflect.ValueOf(value))
	return true
}
