package recipe

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// AnyValue admits any option value.
const AnyValue = "ANY"

// ErrInvalidOption is wrapped when an option is unknown or set to a
// value outside its declared set.
var ErrInvalidOption = errors.New("invalid option")

// Values is an ordered-by-key string map used for settings and options.
// When a schema is attached, Set rejects unknown keys and values outside
// the admissible set.
type Values struct {
	m      map[string]string
	schema map[string][]string
	err    error
}

// NewValues returns Values holding a copy of m.
func NewValues(m map[string]string) *Values {
	v := &Values{m: make(map[string]string, len(m))}
	maps.Copy(v.m, m)
	return v
}

// NewOptions returns empty Values restricted to the declared options.
func NewOptions(schema map[string][]string) *Values {
	return &Values{m: make(map[string]string), schema: schema}
}

// Get returns the value of key, or "".
func (v *Values) Get(key string) string {
	return v.m[key]
}

// Lookup returns the value of key and whether it is set.
func (v *Values) Lookup(key string) (string, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Has reports whether key is set.
func (v *Values) Has(key string) bool {
	_, ok := v.m[key]
	return ok
}

// Declared reports whether key is part of the schema. Values without a
// schema declare every key.
func (v *Values) Declared(key string) bool {
	if v.schema == nil {
		return true
	}
	_, ok := v.schema[key]
	return ok
}

// Check reports whether value is admissible for key.
func (v *Values) Check(key, value string) error {
	if v.schema == nil {
		return nil
	}
	allowed, ok := v.schema[key]
	if !ok {
		return fmt.Errorf("%w: %q does not exist", ErrInvalidOption, key)
	}
	if slices.Contains(allowed, AnyValue) || slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%w: %q is not a valid value for %s, possible values are %v", ErrInvalidOption, value, key, allowed)
}

// Set assigns value to key. An inadmissible value is rejected and also
// remembered, see Err.
func (v *Values) Set(key, value string) error {
	if err := v.Check(key, value); err != nil {
		if v.err == nil {
			v.err = err
		}
		return err
	}
	v.m[key] = value
	return nil
}

// Del removes key and every "key.sub" entry below it.
func (v *Values) Del(key string) {
	for k := range v.m {
		if k == key || strings.HasPrefix(k, key+".") {
			delete(v.m, k)
		}
	}
}

// Keys returns the keys in sorted order.
func (v *Values) Keys() []string {
	return slices.Sorted(maps.Keys(v.m))
}

// Map returns a copy of the entries.
func (v *Values) Map() map[string]string {
	return maps.Clone(v.m)
}

// Len returns the number of entries.
func (v *Values) Len() int {
	return len(v.m)
}

// Clone returns an independent copy sharing the schema.
func (v *Values) Clone() *Values {
	return &Values{m: maps.Clone(v.m), schema: v.schema}
}

// Err returns the first rejected Set.
func (v *Values) Err() error {
	return v.err
}

// String renders "k=v" pairs in key order.
func (v *Values) String() string {
	var b strings.Builder
	for i, k := range v.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v.m[k])
	}
	return b.String()
}
