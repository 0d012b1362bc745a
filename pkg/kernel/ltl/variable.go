package ltl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TypeKind distinguishes the basic types a variable can take.
type TypeKind int

const (
	Boolean TypeKind = iota
	BoundedInt
)

// BasicType is the value domain of a variable: boolean or an inclusive
// integer range lo..hi.
type BasicType struct {
	Kind TypeKind
	Lo   int
	Hi   int
}

// Bool returns the boolean type.
func Bool() BasicType { return BasicType{Kind: Boolean} }

// Int returns the bounded integer type lo..hi.
func Int(lo, hi int) BasicType {
	if lo > hi {
		lo, hi = hi, lo
	}
	return BasicType{Kind: BoundedInt, Lo: lo, Hi: hi}
}

// Size is the number of values in the domain.
func (t BasicType) Size() int {
	if t.Kind == Boolean {
		return 2
	}
	return t.Hi - t.Lo + 1
}

// String renders the type the way the model checker declares it.
func (t BasicType) String() string {
	if t.Kind == Boolean {
		return "boolean"
	}
	return fmt.Sprintf("%d..%d", t.Lo, t.Hi)
}

// ParseType accepts "boolean" or "lo..hi".
func ParseType(s string) (BasicType, error) {
	s = strings.TrimSpace(s)
	if s == "boolean" || s == "bool" {
		return Bool(), nil
	}
	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return BasicType{}, fmt.Errorf("unknown type %q: expected boolean or lo..hi", s)
	}
	l, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return BasicType{}, fmt.Errorf("type %q: lower bound: %w", s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return BasicType{}, fmt.Errorf("type %q: upper bound: %w", s, err)
	}
	if l > h {
		return BasicType{}, fmt.Errorf("type %q: empty range", s)
	}
	return Int(l, h), nil
}

// Variable is a named, typed symbol. Port is the generic "port type" used by
// component selection; it does not affect satisfiability.
type Variable struct {
	Name string
	Type BasicType
	Port string
}

// BoolVar declares a boolean variable.
func BoolVar(name string) Variable { return Variable{Name: name, Type: Bool()} }

// IntVar declares a bounded integer variable.
func IntVar(name string, lo, hi int) Variable { return Variable{Name: name, Type: Int(lo, hi)} }

// WithPort returns a copy of v carrying the given port type.
func (v Variable) WithPort(port string) Variable {
	v.Port = port
	return v
}

func (v Variable) String() string {
	if v.Port != "" {
		return fmt.Sprintf("%s: %s [%s]", v.Name, v.Type, v.Port)
	}
	return fmt.Sprintf("%s: %s", v.Name, v.Type)
}

// TypeClashError reports two declarations of the same name with different types.
type TypeClashError struct {
	Name  string
	Left  Variable
	Right Variable
}

func (e *TypeClashError) Error() string {
	return fmt.Sprintf("variable %q declared twice with different types: %s vs %s", e.Name, e.Left, e.Right)
}

// VariableSet is an immutable set of variables keyed by name. The zero value
// is the empty set.
type VariableSet struct {
	vars map[string]Variable
}

// NewVariableSet builds a set, rejecting clashing declarations.
func NewVariableSet(vs ...Variable) (VariableSet, error) {
	out := VariableSet{vars: make(map[string]Variable, len(vs))}
	for _, v := range vs {
		if prev, ok := out.vars[v.Name]; ok && prev != v {
			return VariableSet{}, &TypeClashError{Name: v.Name, Left: prev, Right: v}
		}
		out.vars[v.Name] = v
	}
	return out, nil
}

// Vars is NewVariableSet for literal declarations; it panics on a clash.
func Vars(vs ...Variable) VariableSet {
	s, err := NewVariableSet(vs...)
	if err != nil {
		panic(err)
	}
	return s
}

// Bools declares a set of boolean variables.
func Bools(names ...string) VariableSet {
	vs := make([]Variable, len(names))
	for i, n := range names {
		vs[i] = BoolVar(n)
	}
	return Vars(vs...)
}

// Len returns the number of variables.
func (s VariableSet) Len() int { return len(s.vars) }

// Lookup finds a variable by name.
func (s VariableSet) Lookup(name string) (Variable, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Union merges two sets; identical declarations collapse, differing types clash.
func (s VariableSet) Union(other VariableSet) (VariableSet, error) {
	if len(other.vars) == 0 {
		return s, nil
	}
	if len(s.vars) == 0 {
		return other, nil
	}
	out := VariableSet{vars: make(map[string]Variable, len(s.vars)+len(other.vars))}
	for k, v := range s.vars {
		out.vars[k] = v
	}
	for k, v := range other.vars {
		if prev, ok := out.vars[k]; ok {
			if prev.Type != v.Type {
				return VariableSet{}, &TypeClashError{Name: k, Left: prev, Right: v}
			}
			continue
		}
		out.vars[k] = v
	}
	return out, nil
}

// Restrict keeps only the named variables that are present in s.
func (s VariableSet) Restrict(names []string) VariableSet {
	out := VariableSet{vars: make(map[string]Variable, len(names))}
	for _, n := range names {
		if v, ok := s.vars[n]; ok {
			out.vars[n] = v
		}
	}
	return out
}

// Sorted returns the variables ordered by name.
func (s VariableSet) Sorted() []Variable {
	out := make([]Variable, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted variable names.
func (s VariableSet) Names() []string {
	out := make([]string, 0, len(s.vars))
	for n := range s.vars {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Key is a canonical rendering of the declarations, used for memoization.
func (s VariableSet) Key() string {
	var b strings.Builder
	for _, v := range s.Sorted() {
		b.WriteString(v.Name)
		b.WriteByte(':')
		b.WriteString(v.Type.String())
		b.WriteByte(';')
	}
	return b.String()
}
