// Package ltl is the formula layer of the kernel: typed variables, the tagged
// LTL Formula value, its combinators, and the Checker that answers
// satisfiability and refinement questions through an injected Oracle.
package ltl

import (
	"strings"
)

// Kind tags a formula with the role it plays inside a contract.
type Kind int

const (
	KindPlain Kind = iota
	KindAssumed
	KindContext
	KindDomain
	KindExpectation
	KindGuarantee
)

var kindNames = map[Kind]string{
	KindPlain:       "plain",
	KindAssumed:     "assumed",
	KindContext:     "context",
	KindDomain:      "domain",
	KindExpectation: "expectation",
	KindGuarantee:   "guarantee",
}

func (k Kind) String() string { return kindNames[k] }

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, n := range kindNames {
		if n == s {
			return k, true
		}
	}
	return KindPlain, false
}

// IsAssumption reports whether the kind belongs on the assumption side.
func (k Kind) IsAssumption() bool {
	return k == KindAssumed || k == KindContext || k == KindDomain || k == KindExpectation
}

// Formula is an immutable LTL expression over a typed variable universe.
// Guarantees additionally carry their saturated text (A -> G).
type Formula struct {
	text      string
	saturated string
	vars      VariableSet
	kind      Kind
}

const (
	textTrue  = "TRUE"
	textFalse = "FALSE"
)

// New builds a formula without consulting the oracle. Use Checker.NewFormula
// when the satisfiability invariant must be enforced at construction.
func New(text string, vars VariableSet, kind Kind) Formula {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || text == "true" {
		text = textTrue
	}
	if text == "false" {
		text = textFalse
	}
	return Formula{text: text, vars: vars, kind: kind}
}

// True is the formula TRUE with no variables.
func True() Formula { return Formula{text: textTrue} }

// False is the formula FALSE with no variables.
func False() Formula { return Formula{text: textFalse} }

func (f Formula) Text() string { return f.text }
func (f Formula) Vars() VariableSet { return f.vars }
func (f Formula) Kind() Kind { return f.kind }
func (f Formula) String() string { return f.text }
func (f Formula) IsTrue() bool { return f.text == textTrue || f.text == "" }
func (f Formula) IsFalse() bool { return f.text == textFalse }
func (f Formula) IsSaturated() bool { return f.saturated != "" }
func (f Formula) Unsaturated() string { return f.text }

// Saturated returns "A -> G" for a saturated guarantee and the plain text
// otherwise.
func (f Formula) Saturated() string {
	if f.saturated != "" {
		return f.saturated
	}
	return f.text
}

// WithKind returns a copy retagged with k. Retagging away from guarantee
// drops the saturation.
func (f Formula) WithKind(k Kind) Formula {
	f.kind = k
	if k != KindGuarantee {
		f.saturated = ""
	}
	return f
}

// Saturate rewrites a guarantee G as A -> G. Saturation always starts from
// the authored text, so saturating twice with the same A is idempotent.
// Formulas that are not guarantees are returned unchanged.
func (f Formula) Saturate(a Formula) (Formula, error) {
	if f.kind != KindGuarantee {
		return f, nil
	}
	if a.IsTrue() || f.IsTrue() {
		f.saturated = ""
		return f, nil
	}
	vars, err := f.vars.Union(a.vars)
	if err != nil {
		return Formula{}, err
	}
	f.vars = vars
	f.saturated = paren(a.text) + " -> " + paren(f.text)
	return f, nil
}

// Equal is syntactic equality of the authored text.
func (f Formula) Equal(g Formula) bool { return f.text == g.text }

// And conjoins formulas. TRUE operands vanish; the result takes the kind of
// the first operand.
func And(fs ...Formula) (Formula, error) {
	return join(" & ", fs, func(f Formula) bool { return f.IsTrue() }, True)
}

// Or disjoins formulas. A TRUE operand makes the result TRUE; FALSE
// operands vanish.
func Or(fs ...Formula) (Formula, error) {
	for _, f := range fs {
		if f.IsTrue() {
			return True().WithKind(kindOf(fs)), nil
		}
	}
	return join(" | ", fs, func(f Formula) bool { return f.IsFalse() }, False)
}

// Not negates a formula, keeping its kind and variables.
func Not(f Formula) Formula {
	switch {
	case f.IsTrue():
		return Formula{text: textFalse, vars: f.vars, kind: f.kind}
	case f.IsFalse():
		return Formula{text: textTrue, vars: f.vars, kind: f.kind}
	}
	return Formula{text: "!" + paren(f.text), vars: f.vars, kind: f.kind}
}

// Implies builds a -> b, taking the kind of b.
func Implies(a, b Formula) (Formula, error) {
	if a.IsTrue() {
		return b, nil
	}
	vars, err := a.vars.Union(b.vars)
	if err != nil {
		return Formula{}, err
	}
	if b.IsTrue() {
		return Formula{text: textTrue, vars: vars, kind: b.kind}, nil
	}
	return Formula{text: paren(a.text) + " -> " + paren(b.text), vars: vars, kind: b.kind}, nil
}

func join(sep string, fs []Formula, skip func(Formula) bool, empty func() Formula) (Formula, error) {
	var (
		parts []string
		vars  VariableSet
		seen  = make(map[string]struct{})
		err   error
	)
	for _, f := range fs {
		vars, err = vars.Union(f.vars)
		if err != nil {
			return Formula{}, err
		}
		if skip(f) {
			continue
		}
		if _, dup := seen[f.text]; dup {
			continue
		}
		seen[f.text] = struct{}{}
		parts = append(parts, f.text)
	}
	kind := kindOf(fs)
	switch len(parts) {
	case 0:
		e := empty()
		e.vars, e.kind = vars, kind
		return e, nil
	case 1:
		return Formula{text: parts[0], vars: vars, kind: kind}, nil
	}
	for i, p := range parts {
		parts[i] = paren(p)
	}
	return Formula{text: strings.Join(parts, sep), vars: vars, kind: kind}, nil
}

func kindOf(fs []Formula) Kind {
	if len(fs) == 0 {
		return KindPlain
	}
	return fs[0].kind
}

// paren wraps text in parentheses unless it is a single identifier,
// constant, a prefix operator applied to an enclosed operand, or already
// fully enclosed.
func paren(text string) string {
	if isAtomicText(text) || enclosed(text) || isPrefixed(text) {
		return text
	}
	return "(" + text + ")"
}

// Group is paren for callers composing formula text by hand.
func Group(text string) string { return paren(strings.TrimSpace(text)) }

// isPrefixed matches "G(...)", "F(...)", "X(...)", "!(...)" and "!ident".
func isPrefixed(s string) bool {
	if len(s) > 1 && s[0] == '!' && isAtomicText(s[1:]) {
		return true
	}
	return len(s) > 2 && strings.IndexByte("GFX!", s[0]) >= 0 && enclosed(s[1:])
}

func isAtomicText(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return true
}

func enclosed(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}
