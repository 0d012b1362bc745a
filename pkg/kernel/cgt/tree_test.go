package cgt

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/library"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
	"github.com/ormasoftchile/cgt/pkg/oracle"
)

var universe = ltl.Vars(
	ltl.BoolVar("a"), ltl.BoolVar("b"), ltl.BoolVar("c"), ltl.BoolVar("d"), ltl.BoolVar("e"), ltl.BoolVar("f"),
	ltl.BoolVar("l"), ltl.BoolVar("o"), ltl.BoolVar("p"),
	ltl.BoolVar("day"), ltl.BoolVar("alarm"), ltl.BoolVar("home"), ltl.BoolVar("clean"), ltl.BoolVar("siren"),
	ltl.BoolVar("coop"), ltl.BoolVar("picked"), ltl.BoolVar("delivered"), ltl.BoolVar("arm"),
	ltl.IntVar("weight_power", 0, 20), ltl.IntVar("x", 0, 20), ltl.IntVar("y", 0, 50),
)

func newTree(cfg Config) *Tree {
	if cfg.Checker == nil {
		cfg.Checker = ltl.NewChecker(oracle.NewBMC())
	}
	return New(cfg)
}

func mustContract(t *testing.T, tr *Tree, as, gs []string) *contract.Contract {
	t.Helper()
	c, err := contract.FromText(context.Background(), tr.Checker(), universe, as, gs)
	if err != nil {
		t.Fatalf("FromText(%v, %v): %v", as, gs, err)
	}
	return c
}

func addGoal(t *testing.T, tr *Tree, name string, as, gs []string) NodeID {
	t.Helper()
	id, err := tr.AddGoal(context.Background(), name, "", ltl.True(), mustContract(t, tr, as, gs))
	if err != nil {
		t.Fatalf("AddGoal(%s): %v", name, err)
	}
	return id
}

func contextGoal(t *testing.T, tr *Tree, name, goalCtx string, gs []string) NodeID {
	t.Helper()
	n, err := ltl.Parse(goalCtx)
	if err != nil {
		t.Fatal(err)
	}
	c := ltl.New(goalCtx, universe.Restrict(n.Vars()), ltl.KindContext)
	id, err := tr.AddGoal(context.Background(), name, "", c, mustContract(t, tr, nil, gs))
	if err != nil {
		t.Fatalf("AddGoal(%s): %v", name, err)
	}
	return id
}

func TestComposition_Assumption(t *testing.T) {
	tests := []struct {
		name  string
		goals [][2][]string
		want  string
	}{
		{"independent", [][2][]string{{{"a"}, {"b"}}, {{"c"}, {"d"}}}, "a & c"},
		{"chained assumption discharged", [][2][]string{{{"a"}, {"b"}}, {{"b"}, {"c"}}}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTree(Config{})
			var ids []NodeID
			for i, g := range tt.goals {
				ids = append(ids, addGoal(t, tr, string(rune('1'+i)), g[0], g[1]))
			}
			id, err := tr.Composition(context.Background(), "", ids...)
			if err != nil {
				t.Fatalf("Composition() error: %v", err)
			}
			if got := tr.Assumption(id).Text(); got != tt.want {
				t.Errorf("Assumption() = %q, want %q", got, tt.want)
			}
			n, _ := tr.Node(id)
			if n.Operation != Composition || n.Name != "1||2" {
				t.Errorf("node = %s %q, want composition %q", n.Operation, n.Name, "1||2")
			}
			for _, c := range n.Children {
				if child, _ := tr.Node(c); child.Parent != id {
					t.Errorf("child %s parent = %d, want %d", child.Name, child.Parent, id)
				}
			}
		})
	}
}

func TestComposition_Associative(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", []string{"b"}, []string{"c"})
	g3 := addGoal(t, tr, "g3", []string{"d"}, []string{"e"})

	flat, err := tr.Composition(ctx, "flat", g1, g2, g3)
	if err != nil {
		t.Fatal(err)
	}
	inner, err := tr.Composition(ctx, "inner", g2, g3)
	if err != nil {
		t.Fatal(err)
	}
	nested, err := tr.Composition(ctx, "nested", g1, inner)
	if err != nil {
		t.Fatal(err)
	}

	eq, err := tr.Checker().Equivalent(ctx, tr.Assumption(flat), tr.Assumption(nested))
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Errorf("assumptions differ: %q vs %q", tr.Assumption(flat).Text(), tr.Assumption(nested).Text())
	}
}

func TestComposition_Infeasible(t *testing.T) {
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", []string{"c"}, []string{"!b"})
	before := tr.Len()

	_, err := tr.Composition(context.Background(), "", g1, g2)
	var ce *ComposeError
	if !errors.As(err, &ce) {
		t.Fatalf("Composition() error = %v, want ComposeError", err)
	}
	var inc *contract.InconsistentError
	if !errors.As(err, &inc) {
		t.Errorf("ComposeError does not wrap InconsistentError: %v", err)
	}
	if !reflect.DeepEqual(ce.Goals, []string{"g1", "g2"}) {
		t.Errorf("Goals = %v", ce.Goals)
	}
	if tr.Len() != before {
		t.Errorf("Len() = %d after failure, want %d", tr.Len(), before)
	}
}

func TestComposition_Alternatives(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	alt, err := tr.AddGoal(ctx, "alt", "", ltl.True(),
		mustContract(t, tr, []string{"a"}, []string{"b"}),
		mustContract(t, tr, []string{"c"}, []string{"!b"}))
	if err != nil {
		t.Fatal(err)
	}
	other := addGoal(t, tr, "other", []string{"d"}, []string{"b"})

	id, err := tr.Composition(ctx, "", alt, other)
	if err != nil {
		t.Fatalf("Composition() error: %v", err)
	}
	n, _ := tr.Node(id)
	if len(n.Contracts) != 1 {
		t.Fatalf("contracts = %d, want 1 (the !b tuple is infeasible)", len(n.Contracts))
	}
	if got := n.Contracts[0].Assumption().Text(); got != "a & d" {
		t.Errorf("Assumption() = %q, want %q", got, "a & d")
	}
}

func TestConjunction_Assumption(t *testing.T) {
	tr := newTree(Config{})
	ids := []NodeID{
		addGoal(t, tr, "g1", []string{"a"}, []string{"b"}),
		addGoal(t, tr, "g2", []string{"c"}, []string{"d"}),
		addGoal(t, tr, "g3", []string{"e"}, []string{"f"}),
	}
	id, err := tr.Conjunction(context.Background(), "", ids...)
	if err != nil {
		t.Fatalf("Conjunction() error: %v", err)
	}
	if got := tr.Assumption(id).Text(); got != "a | c | e" {
		t.Errorf("Assumption() = %q, want %q", got, "a | c | e")
	}
	if got := tr.Name(id); got != "g1&&g2&&g3" {
		t.Errorf("Name() = %q", got)
	}
	n, _ := tr.Node(id)
	if len(n.Contracts) != 3 {
		t.Errorf("contracts = %d, want 3", len(n.Contracts))
	}
}

func TestConjunction_Commutative(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", []string{"c"}, []string{"d"})

	ab, err := tr.Conjunction(ctx, "ab", g1, g2)
	if err != nil {
		t.Fatal(err)
	}
	ba, err := tr.Conjunction(ctx, "ba", g2, g1)
	if err != nil {
		t.Fatal(err)
	}
	ck := tr.Checker()
	for _, side := range []struct {
		name string
		l, r ltl.Formula
	}{
		{"assumption", tr.Assumption(ab), tr.Assumption(ba)},
		{"guarantee", tr.Guarantee(ab), tr.Guarantee(ba)},
	} {
		eq, err := ck.Equivalent(ctx, side.l, side.r)
		if err != nil {
			t.Fatal(err)
		}
		if !eq {
			t.Errorf("%s differs: %q vs %q", side.name, side.l.Text(), side.r.Text())
		}
	}
}

func TestConjunction_Conflict(t *testing.T) {
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "lights_on", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "lights_off", []string{"c"}, []string{"!b"})
	before := tr.Len()

	_, err := tr.Conjunction(context.Background(), "", g1, g2)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Conjunction() error = %v, want ConflictError", err)
	}
	if ce.Left != "lights_on" || ce.Right != "lights_off" {
		t.Errorf("conflict = %s/%s", ce.Left, ce.Right)
	}
	pretty := ce.Pretty()
	for _, want := range []string{"lights_on", "lights_off", "G: !b", "A: c"} {
		if !strings.Contains(pretty, want) {
			t.Errorf("Pretty() missing %q:\n%s", want, pretty)
		}
	}
	if tr.Len() != before {
		t.Errorf("Len() = %d after failure, want %d", tr.Len(), before)
	}
}

func TestConjunction_ExclusiveAssumptions(t *testing.T) {
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", []string{"!a"}, []string{"!b"})
	if _, err := tr.Conjunction(context.Background(), "", g1, g2); err != nil {
		t.Errorf("Conjunction() error: %v", err)
	}
}

func TestAddGoal_DuplicateName(t *testing.T) {
	tr := newTree(Config{})
	addGoal(t, tr, "g", nil, []string{"a"})
	_, err := tr.AddGoal(context.Background(), "g", "", ltl.True(), mustContract(t, tr, nil, []string{"b"}))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("AddGoal() error = %v, want ErrDuplicateName", err)
	}
	if _, err := tr.Lookup("missing"); !errors.Is(err, ErrUnknownGoal) {
		t.Errorf("Lookup() error = %v, want ErrUnknownGoal", err)
	}
}

func TestSetContext_Propagates(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", nil, []string{"c"})
	id, err := tr.Composition(ctx, "", g1, g2)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.SetContext(ctx, id, ltl.New("day", ltl.Bools("day"), ltl.KindContext)); err != nil {
		t.Fatal(err)
	}
	err = tr.Walk(id, func(n *Node, _ int) error {
		for _, c := range n.Contracts {
			if got := c.AssumptionsOf(ltl.KindContext); len(got) != 1 || got[0].Text() != "day" {
				t.Errorf("%s context assumptions = %v, want [day]", n.Name, got)
			}
		}
		if n.Context.Text() != "day" {
			t.Errorf("%s Context = %q, want day", n.Name, n.Context.Text())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// A context contradicting an assumption leaves every contract unchanged.
	err = tr.SetContext(ctx, id, ltl.New("!a", ltl.Bools("a"), ltl.KindContext))
	var inc *contract.IncompatibleError
	if !errors.As(err, &inc) {
		t.Fatalf("SetContext(!a) error = %v, want IncompatibleError", err)
	}
	n, _ := tr.Node(g1)
	if got := n.Contracts[0].Assumption().Text(); got != "a & day" {
		t.Errorf("g1 assumption = %q, want %q", got, "a & day")
	}
}

func TestClone(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", nil, []string{"c"})
	id, err := tr.Composition(ctx, "pair", g1, g2)
	if err != nil {
		t.Fatal(err)
	}
	cp, err := tr.Clone(id)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	_ = tr.Walk(cp, func(n *Node, _ int) error {
		names = append(names, n.Name)
		return nil
	})
	if want := []string{"pair_1", "g1_1", "g2_1"}; !reflect.DeepEqual(names, want) {
		t.Errorf("clone names = %v, want %v", names, want)
	}
	n, _ := tr.Node(cp)
	if !n.IsRoot() {
		t.Error("clone is attached")
	}
	if err := tr.SetContext(ctx, cp, ltl.New("day", ltl.Bools("day"), ltl.KindContext)); err != nil {
		t.Fatal(err)
	}
	if got := tr.Assumption(id).Text(); got != "a" {
		t.Errorf("original assumption = %q after changing the clone", got)
	}
}

func TestComposition_ClonesAttachedGoals(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", []string{"a"}, []string{"b"})
	g2 := addGoal(t, tr, "g2", nil, []string{"c"})
	g3 := addGoal(t, tr, "g3", nil, []string{"d"})
	if _, err := tr.Composition(ctx, "", g1, g2); err != nil {
		t.Fatal(err)
	}
	id, err := tr.Composition(ctx, "", g1, g3)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Name(id); got != "g1_1||g3" {
		t.Errorf("Name() = %q, want %q", got, "g1_1||g3")
	}
	n, _ := tr.Node(g1)
	if n.Parent == id {
		t.Error("original goal moved to the second composition")
	}
}

func TestSubstituteWith_RelaxesAncestors(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	deliver := addGoal(t, tr, "deliver", []string{"weight_power > 10"}, []string{"F(delivered)"})
	pickup := addGoal(t, tr, "a->pickup", nil, []string{"F(picked)"})
	root, err := tr.Composition(ctx, "mission", deliver, pickup)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Assumption(root).Text(); got != "weight_power > 10" {
		t.Fatalf("root assumption = %q, want %q", got, "weight_power > 10")
	}

	team, err := tr.Composition(ctx, "",
		addGoal(t, tr, "collaborate", nil, []string{"G(coop)"}),
		addGoal(t, tr, "pick_up_item", []string{"G(coop)"}, []string{"F(picked)"}),
		addGoal(t, tr, "robot_2", nil, []string{"G(weight_power > 10)"}),
		addGoal(t, tr, "robot_3", nil, []string{"G(arm)"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Name(team); got != "collaborate||pick_up_item||robot_2||robot_3" {
		t.Fatalf("team name = %q", got)
	}

	if err := tr.SubstituteWith(ctx, "a->pickup", "collaborate||pick_up_item||robot_2||robot_3"); err != nil {
		t.Fatalf("SubstituteWith() error: %v", err)
	}
	if a := tr.Assumption(root); !a.IsTrue() {
		t.Errorf("root assumption = %q, want TRUE", a.Text())
	}
	n, _ := tr.Node(root)
	if !reflect.DeepEqual(n.Children, []NodeID{deliver, team}) {
		t.Errorf("root children = %v, want %v", n.Children, []NodeID{deliver, team})
	}
	if old, _ := tr.Node(pickup); !old.IsRoot() {
		t.Error("replaced goal still attached")
	}
}

func TestSubstitute_RollsBackOnConflict(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	deliver := addGoal(t, tr, "deliver", []string{"a"}, []string{"F(delivered)"})
	pickup := addGoal(t, tr, "pickup", nil, []string{"F(picked)"})
	root, err := tr.Composition(ctx, "mission", deliver, pickup)
	if err != nil {
		t.Fatal(err)
	}
	saboteur := addGoal(t, tr, "saboteur", nil, []string{"G(!delivered)"})

	err = tr.Substitute(ctx, pickup, saboteur)
	var ce *ComposeError
	if !errors.As(err, &ce) {
		t.Fatalf("Substitute() error = %v, want ComposeError", err)
	}
	n, _ := tr.Node(root)
	if !reflect.DeepEqual(n.Children, []NodeID{deliver, pickup}) {
		t.Errorf("root children = %v after failure", n.Children)
	}
	if s, _ := tr.Node(saboteur); !s.IsRoot() {
		t.Error("replacement left attached after failure")
	}
	if p, _ := tr.Node(pickup); p.Parent != root {
		t.Error("target detached after failure")
	}
	if err := tr.Substitute(ctx, root, pickup); err == nil {
		t.Error("substituting a root should fail")
	}
}

func TestAbstractGuaranteesOf(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	g1 := addGoal(t, tr, "g1", nil, []string{"b", "c", "e"})
	g2 := addGoal(t, tr, "g2", []string{"b"}, []string{"d"})
	root, err := tr.Composition(ctx, "", g1, g2)
	if err != nil {
		t.Fatal(err)
	}

	weaker := []ltl.Formula{ltl.New("c", ltl.Bools("c"), ltl.KindGuarantee)}
	if err := tr.AbstractGuaranteesOf(ctx, "g1", weaker, "g1_abstract"); err != nil {
		t.Fatalf("AbstractGuaranteesOf() error: %v", err)
	}
	n, _ := tr.Node(g1)
	// b stays because g2 assumes it; e is dropped.
	if got := n.Contracts[0].UnsaturatedGuarantee().Text(); got != "c & b" {
		t.Errorf("guarantee = %q, want %q", got, "c & b")
	}
	if n.Name != "g1_abstract" {
		t.Errorf("Name = %q", n.Name)
	}
	if _, err := tr.Lookup("g1"); !errors.Is(err, ErrUnknownGoal) {
		t.Errorf("old name still resolves: %v", err)
	}
	if a := tr.Assumption(root); !a.IsTrue() {
		t.Errorf("root assumption = %q, want TRUE", a.Text())
	}

	stronger := []ltl.Formula{ltl.New("f", ltl.Bools("f"), ltl.KindGuarantee)}
	if err := tr.AbstractGuaranteesOf(ctx, "g1_abstract", stronger, ""); err == nil {
		t.Error("abstracting to an unrelated guarantee should fail")
	}
}

func TestMapping(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	comp := func(id string, as, gs []string) *library.Component {
		c, err := library.NewComponent(ctx, tr.Checker(), id, "", universe, as, gs)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	lib := library.New("robots",
		comp("c0", []string{"a"}, []string{"b"}),
		comp("c9", []string{"l"}, []string{"p"}),
		comp("c10", []string{"o"}, []string{"a"}),
		comp("c1", []string{"a", "p"}, []string{"b", "x > 5"}),
		comp("c2", []string{"b", "x > 10"}, []string{"y > 20"}),
		comp("c3", []string{"b", "x > 3"}, []string{"y > 40"}),
	)
	goal := addGoal(t, tr, "fetch", nil, []string{"y > 10"})

	sels, err := tr.Mapping(ctx, goal, lib)
	if err != nil {
		t.Fatalf("Mapping() error: %v", err)
	}
	if got := sels[0].IDs(); !reflect.DeepEqual(got, []string{"c3", "c1", "c10", "c9"}) {
		t.Errorf("selection = %v", got)
	}

	var shape []string
	_ = tr.Walk(goal, func(n *Node, _ int) error {
		shape = append(shape, n.Operation.String()+":"+n.Name)
		return nil
	})
	want := []string{
		"mapping:fetch",
		"refinement:fetch_refined",
		"composition:c3||c1||c10||c9",
		"leaf:c3", "leaf:c1", "leaf:c10", "leaf:c9",
	}
	if !reflect.DeepEqual(shape, want) {
		t.Errorf("shape = %v, want %v", shape, want)
	}

	composed, err := tr.Lookup("c3||c1||c10||c9")
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.Assumption(composed).Text(); got != "o & l" {
		t.Errorf("components assumption = %q, want %q", got, "o & l")
	}

	if _, err := tr.Mapping(ctx, goal, lib); err == nil {
		t.Error("mapping an already refined goal should fail")
	}
}

func TestCreateCGT(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	tr := newTree(Config{ComposeWithContext: true, Trace: trace.NewWriter(&buf, "test")})
	goals := []NodeID{
		contextGoal(t, tr, "patrol", "TRUE", []string{"G(F(home))"}),
		contextGoal(t, tr, "clean", "day", []string{"F(clean)"}),
		contextGoal(t, tr, "guard", "day & alarm", []string{"F(siren)"}),
	}

	root, p, err := tr.CreateCGT(ctx, goals, nil)
	if err != nil {
		t.Fatalf("CreateCGT() error: %v", err)
	}
	if !p.Covered() {
		t.Errorf("uncovered goals: %v", p.Uncovered)
	}
	n, _ := tr.Node(root)
	if n.Operation != Conjunction || len(n.Children) != 3 {
		t.Fatalf("root = %s with %d children, want conjunction of 3", n.Operation, len(n.Children))
	}

	sizes := map[string]int{}
	for _, c := range n.Children {
		child, _ := tr.Node(c)
		if child.Operation != Composition {
			t.Errorf("bucket %s is a %s", child.Name, child.Operation)
		}
		sizes[child.Context.Text()] = len(child.Children)
		for _, k := range child.Contracts {
			if len(k.AssumptionsOf(ltl.KindContext)) == 0 {
				t.Errorf("bucket %s does not assume its context", child.Name)
			}
		}
	}
	want := map[string]int{"!day": 1, "day & !(day & alarm)": 2, "day & alarm": 3}
	if !reflect.DeepEqual(sizes, want) {
		t.Errorf("bucket sizes = %v, want %v", sizes, want)
	}

	events, err := trace.ReadAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 4 {
		t.Errorf("trace events = %d, want 4 (three compositions and the conjunction)", len(events))
	}
}

func TestCreateCGT_SubstituteKeepsBucketAssumptions(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{ComposeWithContext: true})
	patrol := contextGoal(t, tr, "patrol", "!day", []string{"G(F(home))"})
	clean := contextGoal(t, tr, "clean", "day", []string{"F(clean)"})
	rule := ltl.New("G(!(day & alarm))", universe.Restrict([]string{"day", "alarm"}), ltl.KindDomain)

	root, _, err := tr.CreateCGT(ctx, []NodeID{patrol, clean}, []ltl.Formula{rule})
	if err != nil {
		t.Fatalf("CreateCGT() error: %v", err)
	}
	r, _ := tr.Node(root)
	bucket := NoNode
	for _, c := range r.Children {
		if n, _ := tr.Node(c); n.Context.Text() == "!day" {
			bucket = c
		}
	}
	if bucket == NoNode {
		t.Fatal("no !day bucket")
	}
	b, _ := tr.Node(bucket)
	leaf := b.Children[0]

	check := func(when string) {
		t.Helper()
		got := tr.Assumption(bucket).Text()
		for _, want := range []string{"G(!(day & alarm))", "!day"} {
			if !strings.Contains(got, want) {
				t.Errorf("%s: bucket assumption = %q, missing %q", when, got, want)
			}
		}
	}
	check("after CreateCGT")

	rover := addGoal(t, tr, "rover", nil, []string{"G(F(home))"})
	if err := tr.Substitute(ctx, leaf, rover); err != nil {
		t.Fatalf("Substitute() error: %v", err)
	}
	check("after Substitute")

	weaker := []ltl.Formula{ltl.New("F(home)", ltl.Bools("home"), ltl.KindGuarantee)}
	if err := tr.AbstractGuaranteesOf(ctx, "rover", weaker, ""); err != nil {
		t.Fatalf("AbstractGuaranteesOf() error: %v", err)
	}
	check("after AbstractGuaranteesOf")
}

func TestCreateContextualClusters(t *testing.T) {
	ctx := context.Background()
	tr := newTree(Config{})
	kitchen := contextGoal(t, tr, "cook", "day", []string{"F(clean)"})
	anywhere := contextGoal(t, tr, "patrol", "TRUE", []string{"G(F(home))"})

	clusters, _, err := tr.CreateContextualClusters(ctx, []NodeID{kitchen, anywhere}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string][]NodeID{}
	for _, c := range clusters {
		got[c.Context.Text()] = c.Goals
	}
	want := map[string][]NodeID{"day": {kitchen, anywhere}, "!day": {anywhere}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}
