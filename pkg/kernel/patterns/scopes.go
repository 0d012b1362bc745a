package patterns

import (
	"fmt"
	"sort"

	"github.com/ormasoftchile/cgt/pkg/kernel/eval"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// Scope templates restrict where a property P must hold, relative to the
// delimiting events Q (start) and R (end).
var scopes = map[string]struct {
	args int
	tmpl string
}{
	"globally":     {1, `G({{ .P }})`},
	"beforer":      {2, `F({{ .R }}) -> ({{ p .P }} U {{ p .R }})`},
	"afterq":       {2, `G({{ p .Q }} -> G({{ .P }}))`},
	"betweenqandr": {3, `G(({{ p .Q }} & !{{ p .R }} & F({{ .R }})) -> ({{ p .P }} U {{ p .R }}))`},
	"afterquntilr": {3, `G(({{ p .Q }} & !{{ p .R }}) -> ({{ p .P }} W {{ p .R }}))`},
	"untilr":       {2, `{{ p .P }} U {{ p .R }}`},
	"weakuntilr":   {2, `{{ p .P }} W {{ p .R }}`},
	"releaser":     {2, `{{ p .R }} R {{ p .P }}`},
}

// ScopeNames lists the available scope templates.
func ScopeNames() []string {
	out := make([]string, 0, len(scopes))
	for k := range scopes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Scope renders a scope template. Arguments are P, then Q and/or R in the
// order the scope name mentions them.
func Scope(name string, args ...string) (string, error) {
	s, ok := scopes[normalize(name)]
	if !ok {
		return "", fmt.Errorf("unknown scope %q", name)
	}
	if len(args) != s.args {
		return "", fmt.Errorf("scope %s: needs %d arguments, got %d", name, s.args, len(args))
	}
	data := map[string]any{"P": args[0]}
	switch normalize(name) {
	case "afterq":
		data["Q"] = args[1]
	case "betweenqandr", "afterquntilr":
		data["Q"], data["R"] = args[1], args[2]
	case "beforer", "untilr", "weakuntilr", "releaser":
		data["R"] = args[1]
	}
	return eval.Resolve(s.tmpl, data)
}

func Globally(p string) string { return mustScope("Globally", p) }

func BeforeR(p, r string) string { return mustScope("BeforeR", p, r) }

func AfterQ(p, q string) string { return mustScope("AfterQ", p, q) }

func BetweenQandR(p, q, r string) string { return mustScope("BetweenQandR", p, q, r) }

func AfterQUntilR(p, q, r string) string { return mustScope("AfterQUntilR", p, q, r) }

func UntilR(p, r string) string { return mustScope("UntilR", p, r) }

func WeakUntilR(p, r string) string { return mustScope("WeakUntilR", p, r) }

func ReleaseR(p, r string) string { return mustScope("ReleaseR", p, r) }

func mustScope(name string, args ...string) string {
	s, err := Scope(name, args...)
	if err != nil {
		panic(err)
	}
	return s
}

// Context wraps a scope formula as a context assumption.
func Context(text string, vars ltl.VariableSet) (ltl.Formula, error) {
	return formula(text, vars, ltl.KindContext)
}
