package version

import (
	"fmt"
	"strings"
)

type condition struct {
	op string
	v  Version
}

func (c condition) valid(v Version) bool {
	cmp := v.Compare(c.v)
	switch c.op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return cmp == 0
}

func (c condition) String() string {
	return c.op + c.v.String()
}

// conditionSet is a conjunction of conditions.
type conditionSet struct {
	conds      []condition
	prerelease bool
}

func (s conditionSet) valid(v Version, prerelease bool) bool {
	if _, pre := v.Prerelease(); pre && !prerelease && !s.prerelease {
		return false
	}
	for _, c := range s.conds {
		if !c.valid(v) {
			return false
		}
	}
	return true
}

// Range is a disjunction of condition sets such as
// ">=1.2 <2 || ^3.1", plus the include_prerelease and loose flags.
type Range struct {
	raw  string
	sets []conditionSet

	// IncludePrerelease admits prerelease versions.
	IncludePrerelease bool
	// Strict is set by "loose=False": only valid semantic versions match.
	Strict bool
}

// ParseRange parses the body of a range expression, without the brackets.
func ParseRange(s string) (*Range, error) {
	r := &Range{raw: s}
	tokens := strings.Split(s, ",")
	for _, flag := range tokens[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(flag), "=")
		val = strings.ToLower(strings.TrimSpace(val))
		switch strings.TrimSpace(key) {
		case "include_prerelease":
			r.IncludePrerelease = val == "" || val == "true"
		case "loose":
			r.Strict = val == "false"
		case "":
		default:
			return nil, fmt.Errorf("%w: unknown range flag %q in [%s]", ErrInvalid, key, s)
		}
	}
	for _, alt := range strings.Split(tokens[0], "||") {
		set, err := parseConditionSet(alt)
		if err != nil {
			return nil, fmt.Errorf("%w in [%s]", err, s)
		}
		r.sets = append(r.sets, set)
	}
	return r, nil
}

func parseConditionSet(s string) (conditionSet, error) {
	var set conditionSet
	fields := strings.Fields(s)
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	for _, f := range fields {
		conds, err := parseCondition(f)
		if err != nil {
			return set, err
		}
		for _, c := range conds {
			if pre, ok := c.v.Prerelease(); ok && pre != "" {
				set.prerelease = true
			}
		}
		set.conds = append(set.conds, conds...)
	}
	return set, nil
}

func parseCondition(expr string) ([]condition, error) {
	if expr == "*" {
		return []condition{{">=", New("0.0.0-")}}, nil
	}
	switch expr[0] {
	case '~':
		v, err := Parse(expr[1:])
		if err != nil {
			return nil, err
		}
		index := 0
		if len(v.main) > 1 {
			index = 1
		}
		upper, err := v.upperBound(index)
		if err != nil {
			return nil, err
		}
		return []condition{{">=", v}, {"<", upper}}, nil
	case '^':
		v, err := Parse(expr[1:])
		if err != nil {
			return nil, err
		}
		index := len(v.main) - 1
		for i, it := range v.main {
			if strings.TrimLeft(it, "0") != "" {
				index = i
				break
			}
		}
		upper, err := v.upperBound(index)
		if err != nil {
			return nil, err
		}
		return []condition{{">=", v}, {"<", upper}}, nil
	}
	op := "="
	for _, prefix := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(expr, prefix) {
			op, expr = prefix, expr[len(prefix):]
			break
		}
	}
	if op == "<" && !strings.Contains(expr, "-") {
		expr += "-"
	}
	v, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return []condition{{op, v}}, nil
}

// Contains reports whether v satisfies the range.
func (r *Range) Contains(v Version) bool {
	return r.contains(v, r.IncludePrerelease)
}

func (r *Range) contains(v Version, prerelease bool) bool {
	if r.Strict && !v.IsSemver() {
		return false
	}
	for _, s := range r.sets {
		if s.valid(v, prerelease) {
			return true
		}
	}
	return false
}

// WithPrerelease returns a copy of r that admits prerelease versions.
func (r *Range) WithPrerelease() *Range {
	c := *r
	c.IncludePrerelease = true
	return &c
}

func (r *Range) String() string {
	return "[" + r.raw + "]"
}

// Expr is a version expression: either a literal version or a bracketed
// range.
type Expr struct {
	raw string
	rng *Range
}

// ParseExpr parses a literal version or a "[...]" range.
func ParseExpr(s string) (Expr, error) {
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return Expr{}, fmt.Errorf("%w: unterminated range %q", ErrInvalid, s)
		}
		r, err := ParseRange(s[1 : len(s)-1])
		if err != nil {
			return Expr{}, err
		}
		return Expr{raw: s, rng: r}, nil
	}
	if _, err := Parse(s); err != nil {
		return Expr{}, err
	}
	return Expr{raw: s}, nil
}

// IsRange reports whether e is a range rather than a literal.
func (e Expr) IsRange() bool {
	return e.rng != nil
}

// Range returns the parsed range, or nil for literals.
func (e Expr) Range() *Range {
	return e.rng
}

func (e Expr) String() string {
	return e.raw
}

// Contains reports whether v satisfies e. A literal is satisfied by any
// version comparing equal to it.
func (e Expr) Contains(v Version) bool {
	if e.rng != nil {
		return e.rng.Contains(v)
	}
	return New(e.raw).Compare(v) == 0
}

// Select returns the highest candidate satisfying e. Among equal
// versions the first candidate wins.
func (e Expr) Select(candidates []Version) (best Version, ok bool) {
	for _, v := range candidates {
		if !e.Contains(v) {
			continue
		}
		if !ok || v.Compare(best) > 0 {
			best, ok = v, true
		}
	}
	return
}
