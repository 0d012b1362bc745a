// Package contexts partitions the goal space by operating context. Designer
// rules (mutex, inclusion, dependency) become domain assumptions; the
// distinct contexts goals are written against are carved into buckets and
// each goal is assigned to every bucket at least as specific as its own
// context.
package contexts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/kernel/eval"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/patterns"
)

// Mode selects the partitioning strategy.
type Mode int

const (
	// Mutex carves contained contexts out of their containers so that
	// comparable buckets are mutually exclusive.
	Mutex Mode = iota
	// Minimal keeps the designer's contexts and drops those whose goal set
	// duplicates another's.
	Minimal
)

func (m Mode) String() string {
	if m == Minimal {
		return "minimal"
	}
	return "mutex"
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "mutex":
		return Mutex, nil
	case "minimal":
		return Minimal, nil
	}
	return Mutex, fmt.Errorf("unknown context mode %q: expected mutex or minimal", s)
}

// Rules are the designer's context rules over sensor propositions.
type Rules struct {
	Mutex     [][]string `yaml:"mutex,omitempty" json:"mutex,omitempty"`
	Inclusion [][]string `yaml:"inclusion,omitempty" json:"inclusion,omitempty"`
	Dependent [][]string `yaml:"dependent,omitempty" json:"dependent,omitempty"`
}

// Empty reports whether no rule is declared.
func (r Rules) Empty() bool {
	return len(r.Mutex) == 0 && len(r.Inclusion) == 0 && len(r.Dependent) == 0
}

// Derive turns rules into domain formulas:
//
//	mutex [p q r]      G(!(p & q) & !(p & r) & !(q & r))
//	inclusion [p q r]  G((p -> q) & (q -> r))
//	dependent [p q r]  G(p -> (q | r))
func (r Rules) Derive(vars ltl.VariableSet) ([]ltl.Formula, error) {
	var out []ltl.Formula
	add := func(tmpl string, props []string) error {
		text, err := eval.Resolve(tmpl, map[string]any{"L": props, "Head": props[0], "Tail": props[1:]})
		if err != nil {
			return err
		}
		scope, err := patterns.Universe(vars, props)
		if err != nil {
			return err
		}
		out = append(out, ltl.New(text, scope, ltl.KindDomain))
		return nil
	}
	for _, g := range r.Mutex {
		if len(g) < 2 {
			continue
		}
		if err := add(`G({{ mutex .L }})`, g); err != nil {
			return nil, fmt.Errorf("mutex rule %v: %w", g, err)
		}
	}
	for _, g := range r.Inclusion {
		if len(g) < 2 {
			continue
		}
		if err := add(`G({{ conj (each2 "%[1]s -> %[2]s" (pairs .L)) }})`, g); err != nil {
			return nil, fmt.Errorf("inclusion rule %v: %w", g, err)
		}
	}
	for _, g := range r.Dependent {
		if len(g) < 2 {
			continue
		}
		if err := add(`G({{ p .Head }} -> {{ p (disj .Tail) }})`, g); err != nil {
			return nil, fmt.Errorf("dependent rule %v: %w", g, err)
		}
	}
	return out, nil
}

// Item is a goal as seen by the engine: an id and the context it requires.
// A TRUE context applies everywhere.
type Item struct {
	ID      string
	Context ltl.Formula
}

// Cluster is one bucket of the partition.
type Cluster struct {
	Context ltl.Formula
	Goals   []string
}

// Partition is the engine's output.
type Partition struct {
	Clusters []Cluster
	// Rules are the derived domain formulas every check was made under.
	Rules []ltl.Formula
	// Uncovered lists goals assigned to no bucket. Designer context rules
	// need not be exhaustive, so this is reported rather than failed.
	Uncovered []string
	// Overlaps lists bucket index pairs whose contexts can hold together.
	// Only filled when disjointness verification is on.
	Overlaps [][2]int
}

// Covered reports whether every goal landed in at least one bucket.
func (p *Partition) Covered() bool { return len(p.Uncovered) == 0 }

// Engine partitions contexts.
type Engine struct {
	ck             *ltl.Checker
	mode           Mode
	keepSmaller    bool
	verifyDisjoint bool
	log            *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode selects Mutex (default) or Minimal partitioning.
func WithMode(m Mode) Option { return func(e *Engine) { e.mode = m } }

// WithKeepSmallerContext decides which context survives when Minimal mode
// finds two with the same goal set: the smaller formula (default) or the
// larger one.
func WithKeepSmallerContext(on bool) Option { return func(e *Engine) { e.keepSmaller = on } }

// WithVerifyDisjoint reports overlapping buckets in Partition.Overlaps.
func WithVerifyDisjoint(on bool) Option { return func(e *Engine) { e.verifyDisjoint = on } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine creates a context engine.
func NewEngine(ck *ltl.Checker, opts ...Option) *Engine {
	e := &Engine{
		ck:          ck,
		keepSmaller: true,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Partition derives the buckets for items under rules.
func (e *Engine) Partition(ctx context.Context, items []Item, rules []ltl.Formula) (*Partition, error) {
	distinct := distinctContexts(items)
	e.log.Debug("partitioning contexts", "mode", e.mode.String(), "contexts", len(distinct), "goals", len(items))

	work := distinct
	if e.mode == Mutex {
		var err error
		work, err = e.carve(ctx, distinct, rules)
		if err != nil {
			return nil, err
		}
	}

	var clusters []Cluster
	for _, c := range work {
		goals, err := e.assign(ctx, c, items, rules)
		if err != nil {
			return nil, err
		}
		if len(goals) == 0 {
			e.log.Debug("dropping empty context", "context", c.Text())
			continue
		}
		clusters = append(clusters, Cluster{Context: c, Goals: goals})
	}

	if e.mode == Minimal {
		clusters = e.minimize(clusters)
	}

	p := &Partition{Clusters: clusters, Rules: rules, Uncovered: uncovered(items, clusters)}
	if len(p.Uncovered) > 0 {
		e.log.Warn("goals not covered by any context", "goals", p.Uncovered)
	}
	if e.verifyDisjoint {
		overlaps, err := e.overlaps(ctx, clusters, rules)
		if err != nil {
			return nil, err
		}
		p.Overlaps = overlaps
	}
	return p, nil
}

func distinctContexts(items []Item) []ltl.Formula {
	seen := make(map[string]bool)
	var out []ltl.Formula
	for _, it := range items {
		c := it.Context
		if c.IsTrue() {
			c = ltl.True().WithKind(ltl.KindContext)
		}
		if seen[c.Text()] {
			continue
		}
		seen[c.Text()] = true
		out = append(out, c.WithKind(ltl.KindContext))
	}
	return out
}

// refines decides a <= b under the rules.
func (e *Engine) refines(ctx context.Context, a, b ltl.Formula, rules []ltl.Formula) (bool, error) {
	if b.IsTrue() {
		return true, nil
	}
	premises := append(append([]ltl.Formula(nil), rules...), a.WithKind(ltl.KindPlain))
	return e.ck.Implied(ctx, premises, b.WithKind(ltl.KindPlain))
}

// carve replaces B by B & !A whenever A <= B, dropping B once nothing is
// left of it. Each carved pair is not compared again.
func (e *Engine) carve(ctx context.Context, contexts []ltl.Formula, rules []ltl.Formula) ([]ltl.Formula, error) {
	work := append([]ltl.Formula(nil), contexts...)
	n := len(work)
	dropped := make([]bool, n)
	done := make(map[[2]int]bool)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || dropped[i] || dropped[j] || done[[2]int{i, j}] {
				continue
			}
			a, b := work[i], work[j]
			if a.IsTrue() {
				continue
			}
			le, err := e.refines(ctx, a, b, rules)
			if err != nil {
				return nil, err
			}
			if !le {
				continue
			}
			carved, err := ltl.And(b, ltl.Not(a))
			if err != nil {
				return nil, err
			}
			carved = carved.WithKind(ltl.KindContext)
			ok, err := e.ck.Satisfiable(ctx, append(append([]ltl.Formula(nil), rules...), carved.WithKind(ltl.KindPlain))...)
			if err != nil {
				return nil, err
			}
			done[[2]int{i, j}], done[[2]int{j, i}] = true, true
			if !ok {
				e.log.Debug("context fully covered", "context", b.Text(), "by", a.Text())
				dropped[j] = true
				continue
			}
			e.log.Debug("carving context", "context", b.Text(), "minus", a.Text())
			work[j] = carved
		}
	}

	out := make([]ltl.Formula, 0, n)
	for i, c := range work {
		if !dropped[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

// assign returns the goals whose context is implied by c.
func (e *Engine) assign(ctx context.Context, c ltl.Formula, items []Item, rules []ltl.Formula) ([]string, error) {
	var goals []string
	for _, it := range items {
		ok, err := e.refines(ctx, c, it.Context, rules)
		if err != nil {
			return nil, err
		}
		if ok {
			goals = append(goals, it.ID)
		}
	}
	return goals, nil
}

// minimize keeps one context per distinct goal set. Only equal goal sets
// are merged; a bucket whose goals are a strict subset of another's stays.
// Every Minimal bucket is the own context of one of its goals, so equal
// goal sets mean each context refines the other under the rules. The
// survivor is chosen by size: the shorter text when keepSmaller is set,
// the longer one otherwise.
func (e *Engine) minimize(clusters []Cluster) []Cluster {
	var out []Cluster
	index := make(map[string]int)
	for _, c := range clusters {
		key := goalKey(c.Goals)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, c)
			continue
		}
		kept := out[i].Context
		if len(c.Context.Text()) == len(kept.Text()) {
			continue
		}
		if (len(c.Context.Text()) < len(kept.Text())) == e.keepSmaller {
			e.log.Debug("replacing duplicate context", "kept", c.Context.Text(), "dropped", kept.Text())
			out[i].Context = c.Context
		}
	}
	return out
}

func goalKey(goals []string) string {
	s := append([]string(nil), goals...)
	sort.Strings(s)
	return strings.Join(s, "\x00")
}

func (e *Engine) overlaps(ctx context.Context, clusters []Cluster, rules []ltl.Formula) ([][2]int, error) {
	var out [][2]int
	for i := range clusters {
		for j := i + 1; j < len(clusters); j++ {
			fs := append(append([]ltl.Formula(nil), rules...),
				clusters[i].Context.WithKind(ltl.KindPlain), clusters[j].Context.WithKind(ltl.KindPlain))
			ok, err := e.ck.Satisfiable(ctx, fs...)
			if err != nil {
				return nil, err
			}
			if ok {
				e.log.Warn("overlapping contexts", "left", clusters[i].Context.Text(), "right", clusters[j].Context.Text())
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out, nil
}

func uncovered(items []Item, clusters []Cluster) []string {
	in := make(map[string]bool)
	for _, c := range clusters {
		for _, g := range c.Goals {
			in[g] = true
		}
	}
	var out []string
	for _, it := range items {
		if !in[it.ID] {
			out = append(out, it.ID)
		}
	}
	return out
}
