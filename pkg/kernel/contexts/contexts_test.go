package contexts

import (
	"context"
	"reflect"
	"testing"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/oracle"
)

func newChecker() *ltl.Checker {
	return ltl.NewChecker(oracle.NewMemo(oracle.NewBMC()))
}

func ctxf(text string) ltl.Formula {
	if text == "" {
		return ltl.True()
	}
	n, err := ltl.Parse(text)
	if err != nil {
		panic(err)
	}
	return ltl.New(text, ltl.Bools(n.Vars()...), ltl.KindContext)
}

func TestRules_Derive(t *testing.T) {
	r := Rules{
		Mutex:     [][]string{{"day", "night"}, {"a", "b", "c"}},
		Inclusion: [][]string{{"kitchen", "house", "city"}},
		Dependent: [][]string{{"charging", "dock", "station"}},
	}
	fs, err := r.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"G(!(day & night))",
		"G(!(a & b) & !(a & c) & !(b & c))",
		"G((kitchen -> house) & (house -> city))",
		"G(charging -> (dock | station))",
	}
	var got []string
	for _, f := range fs {
		got = append(got, f.Text())
		if f.Kind() != ltl.KindDomain {
			t.Errorf("%s kind = %v, want domain", f.Text(), f.Kind())
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Derive() = %v, want %v", got, want)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("MINIMAL"); err != nil || m != Minimal {
		t.Errorf("ParseMode(MINIMAL) = %v, %v", m, err)
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("ParseMode(fuzzy) succeeded")
	}
}

func clusterMap(p *Partition) map[string][]string {
	out := make(map[string][]string)
	for _, c := range p.Clusters {
		out[c.Context.Text()] = c.Goals
	}
	return out
}

func TestPartition_MutexCarving(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newChecker())
	items := []Item{
		{ID: "patrol", Context: ctxf("")},
		{ID: "clean", Context: ctxf("day")},
		{ID: "guard", Context: ctxf("day & alarm")},
	}
	p, err := e.Partition(ctx, items, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := clusterMap(p)
	want := map[string][]string{
		"!day":                 {"patrol"},
		"day & !(day & alarm)": {"patrol", "clean"},
		"day & alarm":          {"patrol", "clean", "guard"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
	if !p.Covered() {
		t.Errorf("Uncovered = %v", p.Uncovered)
	}
}

func TestPartition_MutuallyExclusiveLocations(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(newChecker(), WithVerifyDisjoint(true))
	rules, err := Rules{Mutex: [][]string{{"locC", "home"}}}.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	items := []Item{
		{ID: "avoid_c", Context: ctxf("home")},
		{ID: "inspect_c", Context: ctxf("locC")},
	}
	p, err := e.Partition(ctx, items, rules)
	if err != nil {
		t.Fatal(err)
	}
	got := clusterMap(p)
	if g := got["home"]; !reflect.DeepEqual(g, []string{"avoid_c"}) {
		t.Errorf("home bucket = %v, want [avoid_c]", g)
	}
	if g := got["locC"]; !reflect.DeepEqual(g, []string{"inspect_c"}) {
		t.Errorf("locC bucket = %v, want [inspect_c]", g)
	}
	if len(p.Overlaps) != 0 {
		t.Errorf("Overlaps = %v, want none under the mutex rule", p.Overlaps)
	}
}

func TestPartition_Coverage(t *testing.T) {
	ctx := context.Background()
	rules, err := Rules{Inclusion: [][]string{{"kitchen", "house"}}}.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	cases := [][]Item{
		{{ID: "g1", Context: ctxf("kitchen")}, {ID: "g2", Context: ctxf("house")}},
		{{ID: "g1", Context: ctxf("a")}, {ID: "g2", Context: ctxf("b")}, {ID: "g3", Context: ctxf("a & b")}},
		{{ID: "g1", Context: ctxf("")}, {ID: "g2", Context: ctxf("x | y")}},
	}
	for _, mode := range []Mode{Mutex, Minimal} {
		for _, items := range cases {
			p, err := NewEngine(newChecker(), WithMode(mode)).Partition(ctx, items, rules)
			if err != nil {
				t.Fatal(err)
			}
			if !p.Covered() {
				t.Errorf("mode %s: Uncovered = %v", mode, p.Uncovered)
			}
		}
	}
}

func TestPartition_InclusionRule(t *testing.T) {
	ctx := context.Background()
	rules, err := Rules{Inclusion: [][]string{{"kitchen", "house"}}}.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	items := []Item{
		{ID: "cook", Context: ctxf("kitchen")},
		{ID: "lights", Context: ctxf("house")},
	}
	p, err := NewEngine(newChecker()).Partition(ctx, items, rules)
	if err != nil {
		t.Fatal(err)
	}
	got := clusterMap(p)
	want := map[string][]string{
		"kitchen":          {"cook", "lights"},
		"house & !kitchen": {"lights"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("clusters = %v, want %v", got, want)
	}
}

func TestPartition_Minimal(t *testing.T) {
	ctx := context.Background()
	items := []Item{
		{ID: "g1", Context: ctxf("a")},
		{ID: "g2", Context: ctxf("a & b")},
	}
	tests := []struct {
		name        string
		keepSmaller bool
		want        map[string][]string
	}{
		{"keep smaller", true, map[string][]string{"a": {"g1"}, "a & b": {"g1", "g2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(newChecker(), WithMode(Minimal), WithKeepSmallerContext(tt.keepSmaller))
			p, err := e.Partition(ctx, items, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := clusterMap(p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("clusters = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPartition_MinimalDuplicateGoalSets(t *testing.T) {
	ctx := context.Background()
	rules, err := Rules{Inclusion: [][]string{{"kitchen", "house"}}}.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	// Under the inclusion rule both contexts describe the same situation.
	items := []Item{
		{ID: "g1", Context: ctxf("kitchen")},
		{ID: "g2", Context: ctxf("kitchen & house")},
	}
	tests := []struct {
		keepSmaller bool
		want        string
	}{
		{true, "kitchen"},
		{false, "kitchen & house"},
	}
	for _, tt := range tests {
		e := NewEngine(newChecker(), WithMode(Minimal), WithKeepSmallerContext(tt.keepSmaller))
		p, err := e.Partition(ctx, items, rules)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Clusters) != 1 {
			t.Fatalf("keepSmaller=%v: clusters = %v, want 1", tt.keepSmaller, clusterMap(p))
		}
		c := p.Clusters[0]
		if c.Context.Text() != tt.want || !reflect.DeepEqual(c.Goals, []string{"g1", "g2"}) {
			t.Errorf("keepSmaller=%v: cluster = %s %v, want %s [g1 g2]", tt.keepSmaller, c.Context.Text(), c.Goals, tt.want)
		}
	}
}

func TestPartition_MinimalMergesEqualGoalSets(t *testing.T) {
	ctx := context.Background()
	rules, err := Rules{Inclusion: [][]string{{"dock", "charger"}, {"charger", "dock"}}}.Derive(ltl.VariableSet{})
	if err != nil {
		t.Fatal(err)
	}
	items := []Item{
		{ID: "patrol", Context: ctxf("")},
		{ID: "refuel", Context: ctxf("dock")},
		{ID: "plug_in", Context: ctxf("charger")},
	}

	tests := []struct {
		name        string
		keepSmaller bool
		want        map[string][]string
	}{
		{"keep smaller", true, map[string][]string{
			"TRUE": {"patrol"},
			"dock": {"patrol", "refuel", "plug_in"},
		}},
		{"keep larger", false, map[string][]string{
			"TRUE":    {"patrol"},
			"charger": {"patrol", "refuel", "plug_in"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(newChecker(), WithMode(Minimal), WithKeepSmallerContext(tt.keepSmaller))
			p, err := e.Partition(ctx, items, rules)
			if err != nil {
				t.Fatal(err)
			}
			if got := clusterMap(p); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("clusters = %v, want %v", got, tt.want)
			}
		})
	}
}
