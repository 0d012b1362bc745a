// Package patterns is the robotic mission pattern catalogue: named
// constructors that expand location and proposition names into canonical
// LTL guarantees, plus the temporal scope templates used to write contexts.
package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/eval"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// Pattern is the expansion of one pattern application.
type Pattern struct {
	Name      string
	Args      []string
	Guarantee string
	// Domain holds implicit domain assumptions, e.g. that the robot is in
	// at most one of the visited locations at a time.
	Domain []string
}

// Arity describes the arguments a pattern takes.
type Arity int

const (
	// Locations takes one or more location names.
	Locations Arity = iota
	// Binary takes a trigger P and a response Q.
	Binary
)

func (a Arity) String() string {
	if a == Binary {
		return "binary"
	}
	return "locations"
}

type definition struct {
	name     string
	arity    Arity
	tmpl     *template.Template
	doc      string
	locMutex bool
}

// Info describes a catalogue entry.
type Info struct {
	Name  string
	Arity Arity
	Doc   string
}

var catalogue = map[string]*definition{}

func define(name string, arity Arity, locMutex bool, doc, tmpl string) {
	t, err := eval.Compile(name, tmpl)
	if err != nil {
		panic(fmt.Sprintf("pattern %s: %v", name, err))
	}
	catalogue[normalize(name)] = &definition{name: name, arity: arity, tmpl: t, doc: doc, locMutex: locMutex}
}

func init() {
	// Core movement.
	define("Visit", Locations, true, "visit every location in any order",
		`{{ conj (each "F(%s)" .L) }}`)
	define("SequencedVisit", Locations, true, "visit the locations in sequence, other visits allowed in between",
		`{{ nestF .L }}`)
	define("OrderedVisit", Locations, true, "sequenced visit where a later location is not reached before an earlier one",
		`{{ conj (nestF .L) (each2 "(!%[2]s) U %[1]s" (pairs .L)) }}`)
	define("StrictOrderedVisit", Locations, true, "ordered visit where each location is visited exactly once before the next",
		`{{ conj (nestF .L) (each2 "(!%[2]s) U %[1]s" (pairs .L)) (each2 "(!%[1]s) U (%[1]s & X((!%[1]s) U %[2]s))" (pairs .L)) }}`)
	define("FairVisit", Locations, true, "visit every location, each no more often than the others",
		`{{ conj (each "F(%s)" .L) (each2 "G(%[1]s -> X((!%[1]s) W %[2]s))" (cycle .L)) }}`)
	define("Patrolling", Locations, true, "visit every location infinitely often",
		`{{ conj (each "G(F(%s))" .L) }}`)
	define("SequencedPatrolling", Locations, true, "visit the locations in sequence infinitely often",
		`G({{ nestF .L }})`)
	define("OrderedPatrolling", Locations, true, "sequenced patrolling that never skips ahead in the order",
		`{{ conj (printf "G(%s)" (nestF .L)) (each2 "(!%[2]s) U %[1]s" (pairs .L)) (each2 "G(%[2]s -> X((!%[2]s) U %[1]s))" (cycle .L)) }}`)
	define("StrictOrderedPatrolling", Locations, true, "ordered patrolling where each location is visited once per round",
		`{{ conj (printf "G(%s)" (nestF .L)) (each2 "(!%[2]s) U %[1]s" (pairs .L)) (each2 "G(%[2]s -> X((!%[2]s) U %[1]s))" (cycle .L)) (each2 "G(%[1]s -> X((!%[1]s) U %[2]s))" (cycle .L)) }}`)
	define("FairPatrolling", Locations, true, "patrol every location, each as often as the others",
		`{{ conj (each "G(F(%s))" .L) (each2 "G(%[1]s -> X((!%[1]s) W %[2]s))" (cycle .L)) }}`)

	// Avoidance.
	define("GlobalAvoidance", Locations, false, "never reach the locations",
		`{{ conj (each "G(!%s)" .L) }}`)
	define("FutureAvoidance", Binary, false, "once Q happens, never reach P",
		`G({{ p .Q }} -> X(G(!{{ p .P }})))`)
	define("PastAvoidance", Binary, false, "avoid P until Q has happened",
		`(!{{ p .P }}) U {{ p .Q }}`)
	define("Always", Locations, false, "the propositions hold at every step",
		`{{ conj (each "G(%s)" .L) }}`)

	// Triggers.
	define("InstantReaction", Binary, false, "whenever P holds, Q holds in the same step",
		`G({{ p .P }} -> {{ p .Q }})`)
	define("DelayedReaction", Binary, false, "whenever P holds, Q eventually holds",
		`G({{ p .P }} -> F({{ .Q }}))`)
	define("PromptReaction", Binary, false, "whenever P holds, Q holds in the next step",
		`G({{ p .P }} -> X({{ .Q }}))`)
	define("BoundReaction", Binary, false, "Q holds exactly when P holds",
		`G({{ p .P }} <-> {{ p .Q }})`)
	define("BoundDelay", Binary, false, "Q holds exactly one step after P",
		`G({{ p .P }} <-> X({{ .Q }}))`)
	define("Wait", Binary, false, "remain in P until Q happens",
		`{{ p .P }} U {{ p .Q }}`)
}

// normalize maps "OrderedVisit", "ordered_visit" and "ordered-visit" to one key.
func normalize(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

// Lookup returns the catalogue entry for name.
func Lookup(name string) (Info, bool) {
	d, ok := catalogue[normalize(name)]
	if !ok {
		return Info{}, false
	}
	return Info{Name: d.name, Arity: d.arity, Doc: d.doc}, true
}

// Catalogue lists every pattern sorted by name.
func Catalogue() []Info {
	out := make([]Info, 0, len(catalogue))
	for _, d := range catalogue {
		out = append(out, Info{Name: d.name, Arity: d.arity, Doc: d.doc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build expands the named pattern over args.
func Build(name string, args ...string) (Pattern, error) {
	d, ok := catalogue[normalize(name)]
	if !ok {
		return Pattern{}, fmt.Errorf("unknown pattern %q", name)
	}
	for _, a := range args {
		if strings.TrimSpace(a) == "" {
			return Pattern{}, fmt.Errorf("pattern %s: empty argument", d.name)
		}
	}
	data := map[string]any{"L": args}
	switch d.arity {
	case Locations:
		if len(args) == 0 {
			return Pattern{}, fmt.Errorf("pattern %s: needs at least one location", d.name)
		}
	case Binary:
		if len(args) != 2 {
			return Pattern{}, fmt.Errorf("pattern %s: needs 2 arguments, got %d", d.name, len(args))
		}
		data["P"], data["Q"] = args[0], args[1]
	}
	g, err := eval.Execute(d.tmpl, data)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", d.name, err)
	}
	p := Pattern{Name: d.name, Args: append([]string(nil), args...), Guarantee: g}
	if d.locMutex && len(args) > 1 {
		m, err := eval.Resolve(`G({{ mutex .L }})`, data)
		if err != nil {
			return Pattern{}, err
		}
		p.Domain = []string{m}
	}
	return p, nil
}

func must(name string, args ...string) Pattern {
	p, err := Build(name, args...)
	if err != nil {
		panic(err)
	}
	return p
}

// Visit: every location is eventually reached.
func Visit(locs ...string) Pattern { return must("Visit", locs...) }

func SequencedVisit(locs ...string) Pattern { return must("SequencedVisit", locs...) }

func OrderedVisit(locs ...string) Pattern { return must("OrderedVisit", locs...) }

func StrictOrderedVisit(locs ...string) Pattern { return must("StrictOrderedVisit", locs...) }

func FairVisit(locs ...string) Pattern { return must("FairVisit", locs...) }

// Patrolling: every location is reached infinitely often.
func Patrolling(locs ...string) Pattern { return must("Patrolling", locs...) }

func SequencedPatrolling(locs ...string) Pattern { return must("SequencedPatrolling", locs...) }

func OrderedPatrolling(locs ...string) Pattern { return must("OrderedPatrolling", locs...) }

func StrictOrderedPatrolling(locs ...string) Pattern {
	return must("StrictOrderedPatrolling", locs...)
}

func FairPatrolling(locs ...string) Pattern { return must("FairPatrolling", locs...) }

// GlobalAvoidance: the locations are never reached.
func GlobalAvoidance(locs ...string) Pattern { return must("GlobalAvoidance", locs...) }

func FutureAvoidance(p, q string) Pattern { return must("FutureAvoidance", p, q) }

func PastAvoidance(p, q string) Pattern { return must("PastAvoidance", p, q) }

// Always: the propositions hold at every step.
func Always(props ...string) Pattern { return must("Always", props...) }

func InstantReaction(p, q string) Pattern { return must("InstantReaction", p, q) }

// DelayedReaction: every p is eventually followed by q.
func DelayedReaction(p, q string) Pattern { return must("DelayedReaction", p, q) }

func PromptReaction(p, q string) Pattern { return must("PromptReaction", p, q) }

func BoundReaction(p, q string) Pattern { return must("BoundReaction", p, q) }

func BoundDelay(p, q string) Pattern { return must("BoundDelay", p, q) }

func Wait(p, q string) Pattern { return must("Wait", p, q) }

// Formula returns the guarantee over vars. Identifiers missing from vars
// are declared boolean.
func (p Pattern) Formula(vars ltl.VariableSet) (ltl.Formula, error) {
	return formula(p.Guarantee, vars, ltl.KindGuarantee)
}

// Contract builds the validated contract: domain assumptions plus the
// pattern guarantee.
func (p Pattern) Contract(ctx context.Context, ck *ltl.Checker, vars ltl.VariableSet) (*contract.Contract, error) {
	g, err := p.Formula(vars)
	if err != nil {
		return nil, err
	}
	var as []ltl.Formula
	for _, d := range p.Domain {
		f, err := formula(d, vars, ltl.KindDomain)
		if err != nil {
			return nil, err
		}
		as = append(as, f)
	}
	c, err := contract.New(ctx, ck, as, []ltl.Formula{g})
	if err != nil {
		return nil, fmt.Errorf("pattern %s%v: %w", p.Name, p.Args, err)
	}
	return c, nil
}

func formula(text string, vars ltl.VariableSet, kind ltl.Kind) (ltl.Formula, error) {
	n, err := ltl.Parse(text)
	if err != nil {
		return ltl.Formula{}, err
	}
	scope, err := Universe(vars, n.Vars())
	if err != nil {
		return ltl.Formula{}, err
	}
	return ltl.New(text, scope, kind), nil
}

// Universe restricts vars to names, declaring unknown names boolean.
func Universe(vars ltl.VariableSet, names []string) (ltl.VariableSet, error) {
	scope := vars.Restrict(names)
	var extra []ltl.Variable
	for _, n := range names {
		if _, ok := scope.Lookup(n); !ok {
			extra = append(extra, ltl.BoolVar(n))
		}
	}
	if len(extra) == 0 {
		return scope, nil
	}
	more, err := ltl.NewVariableSet(extra...)
	if err != nil {
		return ltl.VariableSet{}, err
	}
	return scope.Union(more)
}
