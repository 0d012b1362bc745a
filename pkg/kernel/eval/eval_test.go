package eval

import (
	"testing"
)

func TestResolve_Literal(t *testing.T) {
	result, err := Resolve("G(F   home)", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result != "G(F home)" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_SimpleVar(t *testing.T) {
	result, err := Resolve("G({{ p .P }} -> F {{ p .Q }})", map[string]any{"P": "a & b", "Q": "c"})
	if err != nil {
		t.Fatal(err)
	}
	if result != "G((a & b) -> F c)" {
		t.Errorf("got %q", result)
	}
}

func TestResolve_MissingKey(t *testing.T) {
	if _, err := Resolve("G({{ .Missing }})", map[string]any{}); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestResolve_Helpers(t *testing.T) {
	locs := map[string]any{"L": []string{"l1", "l2", "l3"}}
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"each conj", `{{ conj (each "F(%s)" .L) }}`, "F(l1) & F(l2) & F(l3)"},
		{"disj", `{{ disj .L }}`, "l1 | l2 | l3"},
		{"nestF", `{{ nestF .L }}`, "F(l1 & F(l2 & F(l3)))"},
		{"pairs", `{{ conj (each2 "(!%[2]s) U %[1]s" (pairs .L)) }}`, "((!l2) U l1) & ((!l3) U l2)"},
		{"cycle", `{{ conj (each2 "G(%[1]s -> X(%[2]s))" (cycle .L)) }}`, "G(l1 -> X(l2)) & G(l2 -> X(l3)) & G(l3 -> X(l1))"},
		{"mutex", `G({{ mutex .L }})`, "G(!(l1 & l2) & !(l1 & l3) & !(l2 & l3))"},
		{"empty conj", `{{ conj }}`, "TRUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.tmpl, locs)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%s) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}
