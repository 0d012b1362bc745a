package library

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
	"github.com/ormasoftchile/cgt/pkg/oracle"
)

var universe = ltl.Vars(
	ltl.BoolVar("a"), ltl.BoolVar("b"), ltl.BoolVar("l"), ltl.BoolVar("o"), ltl.BoolVar("p"),
	ltl.IntVar("x", 0, 20), ltl.IntVar("y", 0, 50),
)

func component(t *testing.T, ck *ltl.Checker, id string, as, gs []string) *Component {
	t.Helper()
	c, err := NewComponent(context.Background(), ck, id, "", universe, as, gs)
	if err != nil {
		t.Fatalf("NewComponent(%s): %v", id, err)
	}
	return c
}

// robotLibrary is the six-component catalogue used across these tests.
func robotLibrary(t *testing.T, ck *ltl.Checker) *Library {
	return New("robots",
		component(t, ck, "c0", []string{"a"}, []string{"b"}),
		component(t, ck, "c9", []string{"l"}, []string{"p"}),
		component(t, ck, "c10", []string{"o"}, []string{"a"}),
		component(t, ck, "c1", []string{"a", "p"}, []string{"b", "x > 5"}),
		component(t, ck, "c2", []string{"b", "x > 10"}, []string{"y > 20"}),
		component(t, ck, "c3", []string{"b", "x > 3"}, []string{"y > 40"}),
	)
}

func TestSelect_Recursive(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := robotLibrary(t, ck)
	spec, err := contract.FromText(ctx, ck, universe, nil, []string{"y > 10"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	tw := trace.NewWriter(&buf, "test")
	sel, err := NewSelector(ck, WithTrace(tw)).Select(ctx, lib, spec)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	want := []string{"c3", "c1", "c10", "c9"}
	if got := sel.IDs(); !reflect.DeepEqual(got, want) {
		t.Errorf("IDs() = %v, want %v", got, want)
	}
	if got := sel.Provenance["c3"]; !reflect.DeepEqual(got, []string{"c1"}) {
		t.Errorf("Provenance[c3] = %v, want [c1]", got)
	}
	if got := sel.Provenance["c1"]; !reflect.DeepEqual(got, []string{"c10", "c9"}) {
		t.Errorf("Provenance[c1] = %v, want [c10 c9]", got)
	}

	env := make([]string, len(sel.Environment))
	for i, f := range sel.Environment {
		env[i] = f.Text()
	}
	if !reflect.DeepEqual(env, []string{"o", "l"}) {
		t.Errorf("Environment = %v, want [o l]", env)
	}

	events, err := trace.ReadAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("trace events = %d, want 3", len(events))
	}
	for _, e := range events {
		if e.Type != trace.EventSelection {
			t.Errorf("event type = %s, want %s", e.Type, trace.EventSelection)
		}
	}
}

func TestExtractSelection(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := robotLibrary(t, ck)
	s := NewSelector(ck)

	target := func(text string) []ltl.Formula {
		return []ltl.Formula{ltl.New(text, universe.Restrict([]string{"b", "x", "y"}), ltl.KindGuarantee)}
	}

	tests := []struct {
		name    string
		targets []ltl.Formula
		want    [][]string
	}{
		{"two refining components", target("y > 10"), [][]string{{"c2"}, {"c3"}}},
		{"stronger target", target("y > 30"), [][]string{{"c3"}}},
		{"shared component deduplicated", append(target("b"), target("x > 3")...), [][]string{{"c0", "c1"}, {"c1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands, err := s.ExtractSelection(ctx, lib, nil, tt.targets)
			if err != nil {
				t.Fatal(err)
			}
			var got [][]string
			for _, c := range cands {
				got = append(got, c.IDs())
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractSelection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractSelection_NoCandidate(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := robotLibrary(t, ck)

	_, err := NewSelector(ck).ExtractSelection(ctx, lib, nil,
		[]ltl.Formula{ltl.New("o", ltl.Bools("o"), ltl.KindGuarantee)})
	var nc *NoCandidateError
	if !errors.As(err, &nc) {
		t.Fatalf("error = %v, want NoCandidateError", err)
	}
	if nc.Proposition.Text() != "o" {
		t.Errorf("Proposition = %q, want %q", nc.Proposition.Text(), "o")
	}
}

func TestExtractSelection_AssumptionsFilter(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := robotLibrary(t, ck)

	// x <= 10 rules out c2, whose assumption needs x > 10.
	as := []ltl.Formula{ltl.New("x <= 10", universe.Restrict([]string{"x"}), ltl.KindAssumed)}
	cands, err := NewSelector(ck).ExtractSelection(ctx, lib, as,
		[]ltl.Formula{ltl.New("y > 10", universe.Restrict([]string{"y"}), ltl.KindGuarantee)})
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].IDs()[0] != "c3" {
		t.Errorf("candidates = %v, want [[c3]]", cands)
	}
}

func TestExtractSelection_DropsIncomposable(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := New("clash",
		component(t, ck, "on", nil, []string{"a", "b"}),
		component(t, ck, "off", nil, []string{"!a", "l"}),
		component(t, ck, "both", nil, []string{"b", "l"}),
	)
	targets := []ltl.Formula{
		ltl.New("b", ltl.Bools("b"), ltl.KindGuarantee),
		ltl.New("l", ltl.Bools("l"), ltl.KindGuarantee),
	}
	cands, err := NewSelector(ck).ExtractSelection(ctx, lib, nil, targets)
	if err != nil {
		t.Fatal(err)
	}
	var got [][]string
	for _, c := range cands {
		got = append(got, c.IDs())
	}
	// on and off disagree on a, so that pair never makes it through.
	want := [][]string{{"on", "both"}, {"both", "off"}, {"both"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("candidates = %v, want %v", got, want)
	}
}

func TestGreedy(t *testing.T) {
	ctx := context.Background()
	ck := ltl.NewChecker(oracle.NewBMC())
	lib := robotLibrary(t, ck)
	get := func(id string) *Component {
		c, ok := lib.Get(id)
		if !ok {
			t.Fatalf("missing component %s", id)
		}
		return c
	}
	s := NewSelector(ck)

	tests := []struct {
		name  string
		cands []Candidate
		want  []string
	}{
		{"lowest cost", []Candidate{{get("c0"), get("c1")}, {get("c1")}}, []string{"c1"}},
		{"tie broken by refinement", []Candidate{{get("c2")}, {get("c3")}}, []string{"c3"}},
		{"single candidate", []Candidate{{get("c9")}}, []string{"c9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Greedy(ctx, tt.cands)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got.IDs(), tt.want) {
				t.Errorf("Greedy() = %v, want %v", got.IDs(), tt.want)
			}
		})
	}

	if _, err := s.Greedy(ctx, nil); err == nil {
		t.Error("Greedy(nil) should fail")
	}
}

func TestIsGeneric(t *testing.T) {
	tests := []struct {
		name string
		f    ltl.Formula
		want bool
	}{
		{"plain proposition", ltl.New("a", ltl.Bools("a"), ltl.KindPlain), false},
		{"port-named variable", ltl.New("in_port", ltl.Bools("in_port"), ltl.KindPlain), true},
		{"typed port", ltl.New("v", ltl.Vars(ltl.BoolVar("v").WithPort("power")), ltl.KindPlain), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsGeneric(tt.f); got != tt.want {
				t.Errorf("IsGeneric() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameCost(t *testing.T) {
	tests := []struct {
		name  string
		parts []float64
		other float64
		want  bool
	}{
		{"rounded sum", []float64{0.1, 0.2}, 0.3, true},
		{"thirds", []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 1, true},
		{"distinct", []float64{0.5, 0.5}, 1.5, false},
		{"close but distinct", []float64{0.25}, 0.2500001, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sum float64
			for _, p := range tt.parts {
				sum += p
			}
			if got := sameCost(sum, tt.other); got != tt.want {
				t.Errorf("sameCost(%v, %v) = %v, want %v", sum, tt.other, got, tt.want)
			}
		})
	}
}
