// Package eval renders LTL pattern templates. Templates are Go text/template
// strings over a pattern's arguments with helpers for building conjunctions,
// orderings and nested eventualities.
package eval

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// Compile parses a named template with the LTL helper functions installed.
func Compile(name, tmpl string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(builtinFuncs()).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("template parse: %w", err)
	}
	return t, nil
}

// Resolve evaluates a template string against data and normalizes the
// whitespace of the result.
// Example: Resolve("G(F {{ .P }})", map[string]any{"P": "home"}) → "G(F home)"
func Resolve(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return strings.Join(strings.Fields(tmpl), " "), nil
	}
	t, err := Compile("", tmpl)
	if err != nil {
		return "", err
	}
	return Execute(t, data)
}

// Execute runs a compiled template.
func Execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template eval: %w", err)
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}

// Pair is two consecutive items of an ordering.
type Pair struct {
	First, Second string
}

func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		"p":    ltl.Group,
		"conj": func(parts ...any) string { return join(" & ", parts) },
		"disj": func(parts ...any) string { return join(" | ", parts) },
		// each formats every item with %s (items are grouped first).
		"each": func(format string, items []string) []string {
			out := make([]string, len(items))
			for i, it := range items {
				out[i] = fmt.Sprintf(format, ltl.Group(it))
			}
			return out
		},
		// each2 formats pairs with %[1]s and %[2]s.
		"each2": func(format string, pairs []Pair) []string {
			out := make([]string, len(pairs))
			for i, pr := range pairs {
				out[i] = fmt.Sprintf(format, ltl.Group(pr.First), ltl.Group(pr.Second))
			}
			return out
		},
		"pairs": pairs,
		"cycle": cycle,
		"nestF": nestF,
		// mutex is "no two of items at once".
		"mutex": func(items []string) string {
			var parts []any
			for _, pr := range allPairs(items) {
				parts = append(parts, fmt.Sprintf("!(%s & %s)", ltl.Group(pr.First), ltl.Group(pr.Second)))
			}
			return join(" & ", parts)
		},
	}
}

// join flattens strings and string slices, drops empties and TRUE, and
// groups every operand.
func join(sep string, parts []any) string {
	var flat []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || s == "TRUE" {
			return
		}
		flat = append(flat, s)
	}
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			add(v)
		case []string:
			for _, s := range v {
				add(s)
			}
		default:
			add(fmt.Sprint(v))
		}
	}
	switch len(flat) {
	case 0:
		return "TRUE"
	case 1:
		return flat[0]
	}
	for i, s := range flat {
		flat[i] = ltl.Group(s)
	}
	return strings.Join(flat, sep)
}

// pairs returns (l1,l2), (l2,l3), ..., (ln-1,ln).
func pairs(items []string) []Pair {
	var out []Pair
	for i := 0; i+1 < len(items); i++ {
		out = append(out, Pair{items[i], items[i+1]})
	}
	return out
}

// cycle is pairs plus the wrap-around (ln,l1).
func cycle(items []string) []Pair {
	if len(items) < 2 {
		return nil
	}
	return append(pairs(items), Pair{items[len(items)-1], items[0]})
}

func allPairs(items []string) []Pair {
	var out []Pair
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			out = append(out, Pair{items[i], items[j]})
		}
	}
	return out
}

// nestF builds F(l1 & F(l2 & ... F(ln))).
func nestF(items []string) string {
	if len(items) == 0 {
		return "TRUE"
	}
	s := "F(" + items[len(items)-1] + ")"
	for i := len(items) - 2; i >= 0; i-- {
		s = "F(" + ltl.Group(items[i]) + " & " + s + ")"
	}
	return s
}
