// Package library holds component catalogues and the search that picks
// components whose guarantees refine a target specification.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
)

// Component is a named contract offered by the library.
type Component struct {
	ID          string
	Description string
	Contract    *contract.Contract
}

// NewComponent builds a component from formula texts.
func NewComponent(ctx context.Context, ck *ltl.Checker, id, description string, vars ltl.VariableSet, assumptions, guarantees []string) (*Component, error) {
	c, err := contract.FromText(ctx, ck, vars, assumptions, guarantees)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", id, err)
	}
	return &Component{ID: id, Description: description, Contract: c}, nil
}

// Cost is the component contract's cost.
func (c *Component) Cost() float64 { return c.Contract.Cost() }

// Library is a named catalogue of components. IDs are expected to be
// unique; the search treats repeated IDs as one component.
type Library struct {
	Name       string
	components []*Component
}

// New creates a library.
func New(name string, cs ...*Component) *Library {
	return &Library{Name: name, components: append([]*Component(nil), cs...)}
}

// Add appends components.
func (l *Library) Add(cs ...*Component) { l.components = append(l.components, cs...) }

// Components returns the catalogue in insertion order.
func (l *Library) Components() []*Component { return append([]*Component(nil), l.components...) }

// Get finds a component by id.
func (l *Library) Get(id string) (*Component, bool) {
	for _, c := range l.components {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// NoCandidateError reports a target proposition no component refines.
type NoCandidateError struct {
	Proposition ltl.Formula
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no candidate component refines %s", e.Proposition.Text())
}

// Candidate is one combination of components.
type Candidate []*Component

// IDs returns the component ids in order.
func (c Candidate) IDs() []string {
	out := make([]string, len(c))
	for i, comp := range c {
		out[i] = comp.ID
	}
	return out
}

// Cost is the sum of component costs.
func (c Candidate) Cost() float64 {
	var sum float64
	for _, comp := range c {
		sum += comp.Cost()
	}
	return sum
}

func (c Candidate) key() string {
	ids := c.IDs()
	sort.Strings(ids)
	return strings.Join(ids, "\x00")
}

// Selection is the outcome of a recursive component search.
type Selection struct {
	// Components is the flattened, deduplicated selection in discovery order.
	Components []*Component
	// Provenance maps a component id to the ids of the components chosen to
	// provide its assumptions.
	Provenance map[string][]string
	// Environment lists assumptions no component provides; they remain
	// obligations of the environment.
	Environment []ltl.Formula
}

// IDs returns the selected component ids.
func (s *Selection) IDs() []string { return Candidate(s.Components).IDs() }

// Selector runs component searches.
type Selector struct {
	ck  *ltl.Checker
	log *slog.Logger
	tw  *trace.Writer
}

// Option configures a Selector.
type Option func(*Selector)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTrace records every selection step.
func WithTrace(tw *trace.Writer) Option { return func(s *Selector) { s.tw = tw } }

// NewSelector creates a selector.
func NewSelector(ck *ltl.Checker, opts ...Option) *Selector {
	s := &Selector{ck: ck, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsGeneric reports whether a proposition talks about a generic port:
// one of its variables carries a port type or is named like a port.
func IsGeneric(f ltl.Formula) bool {
	for _, v := range f.Vars().Sorted() {
		if v.Port != "" || strings.Contains(v.Name, "port") {
			return true
		}
	}
	return false
}

// ExtractSelection finds every combination of components that refines all
// targets while staying consistent with assumptions. It fails with
// NoCandidateError when a target has no refining component.
func (s *Selector) ExtractSelection(ctx context.Context, lib *Library, assumptions, targets []ltl.Formula) ([]Candidate, error) {
	cands, missing, err := s.extract(ctx, lib, assumptions, targets)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &NoCandidateError{Proposition: missing[0]}
	}
	if len(cands) == 0 {
		all, _ := ltl.And(targets...)
		return nil, &NoCandidateError{Proposition: all}
	}
	return cands, nil
}

// extract returns the candidates for the targets that have refining
// components and the targets that have none.
func (s *Selector) extract(ctx context.Context, lib *Library, assumptions, targets []ltl.Formula) ([]Candidate, []ltl.Formula, error) {
	var specific, generic []ltl.Formula
	for _, t := range targets {
		if t.IsTrue() {
			continue
		}
		if IsGeneric(t) {
			generic = append(generic, t)
		} else {
			specific = append(specific, t)
		}
	}

	var (
		options [][]*Component
		missing []ltl.Formula
	)
	for _, t := range append(specific, generic...) {
		refining, err := s.refining(ctx, lib, assumptions, t)
		if err != nil {
			return nil, nil, err
		}
		if len(refining) == 0 {
			s.log.Debug("no component refines proposition", "proposition", t.Text())
			missing = append(missing, t)
			continue
		}
		options = append(options, refining)
	}
	if len(options) == 0 {
		return nil, missing, nil
	}

	var out []Candidate
	seen := make(map[string]bool)
	for _, tuple := range product(options) {
		cand := dedupe(tuple)
		if seen[cand.key()] {
			continue
		}
		seen[cand.key()] = true
		ok, err := s.composable(ctx, cand)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			s.log.Debug("dropping incomposable candidate", "components", cand.IDs())
			continue
		}
		out = append(out, cand)
	}
	return out, missing, nil
}

// refining lists the components whose guarantees refine target and whose
// assumptions are consistent with the accumulated assumptions.
func (s *Selector) refining(ctx context.Context, lib *Library, assumptions []ltl.Formula, target ltl.Formula) ([]*Component, error) {
	var out []*Component
	seen := make(map[string]bool)
	for _, c := range lib.components {
		if seen[c.ID] {
			continue
		}
		g := c.Contract.UnsaturatedGuarantee().WithKind(ltl.KindPlain)
		ok, err := s.ck.Refines(ctx, g, target.WithKind(ltl.KindPlain))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ok, err = s.ck.Satisfiable(ctx, append(append([]ltl.Formula(nil), assumptions...), c.Contract.Assumption())...)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out, nil
}

func (s *Selector) composable(ctx context.Context, cand Candidate) (bool, error) {
	_, err := merge(ctx, s.ck, cand)
	if err == nil {
		return true, nil
	}
	var incompatible *contract.IncompatibleError
	var inconsistent *contract.InconsistentError
	if errors.As(err, &incompatible) || errors.As(err, &inconsistent) {
		return false, nil
	}
	return false, err
}

func merge(ctx context.Context, ck *ltl.Checker, cand Candidate) (*contract.Contract, error) {
	cs := make([]*contract.Contract, len(cand))
	for i, c := range cand {
		cs[i] = c.Contract
	}
	return contract.Merge(ctx, ck, cs...)
}

func product(options [][]*Component) [][]*Component {
	out := [][]*Component{{}}
	for _, opts := range options {
		var next [][]*Component
		for _, prefix := range out {
			for _, o := range opts {
				tuple := append(append([]*Component(nil), prefix...), o)
				next = append(next, tuple)
			}
		}
		out = next
	}
	return out
}

func dedupe(tuple []*Component) Candidate {
	seen := make(map[string]bool)
	var out Candidate
	for _, c := range tuple {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// Greedy picks the lowest-cost candidate. Ties go to a tournament where a
// candidate scores a point for every tied rival its merged contract refines.
func (s *Selector) Greedy(ctx context.Context, cands []Candidate) (Candidate, error) {
	if len(cands) == 0 {
		return nil, errors.New("greedy selection: no candidates")
	}
	best := cands[0].Cost()
	for _, c := range cands[1:] {
		if cost := c.Cost(); cost < best {
			best = cost
		}
	}
	var tied []Candidate
	for _, c := range cands {
		if sameCost(c.Cost(), best) {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return tied[0], nil
	}

	merged := make([]*contract.Contract, len(tied))
	for i, c := range tied {
		m, err := merge(ctx, s.ck, c)
		if err != nil {
			return nil, err
		}
		merged[i] = m
	}
	score := make([]int, len(tied))
	for i := range tied {
		for j := range tied {
			if i == j {
				continue
			}
			ok, err := merged[i].Refines(ctx, s.ck, merged[j])
			if err != nil {
				return nil, err
			}
			if ok {
				score[i]++
			}
		}
	}
	win := 0
	for i := range score {
		if score[i] > score[win] {
			win = i
		}
	}
	s.log.Debug("tournament", "candidates", len(tied), "winner", tied[win].IDs(), "score", score[win])
	return tied[win], nil
}

// costEpsilon absorbs rounding in summed cost ratios.
const costEpsilon = 1e-9

// sameCost reports whether two candidate costs tie.
func sameCost(a, b float64) bool {
	return math.Abs(a-b) <= costEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// Select finds components refining spec's guarantees, then recursively
// components providing the chosen components' assumptions. Assumptions
// nothing provides are left to the environment.
func (s *Selector) Select(ctx context.Context, lib *Library, spec *contract.Contract) (*Selection, error) {
	cands, err := s.ExtractSelection(ctx, lib, spec.Assumptions(), spec.Guarantees())
	if err != nil {
		return nil, err
	}
	first, err := s.Greedy(ctx, cands)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Provenance: make(map[string][]string)}
	chosen := make(map[string]bool)
	searched := make(map[string]bool)
	for _, g := range spec.Guarantees() {
		searched[g.Unsaturated()] = true
	}
	queue := []*Component{}
	add := func(cs Candidate) {
		for _, c := range cs {
			if chosen[c.ID] {
				continue
			}
			chosen[c.ID] = true
			sel.Components = append(sel.Components, c)
			queue = append(queue, c)
		}
	}
	add(first)
	s.emit(spec.UnsaturatedGuarantee().Text(), first)

	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		var targets []ltl.Formula
		for _, a := range c.Contract.Assumptions() {
			if a.IsTrue() || searched[a.Text()] {
				continue
			}
			searched[a.Text()] = true
			targets = append(targets, a)
		}
		if len(targets) == 0 {
			continue
		}
		cands, missing, err := s.extract(ctx, lib, c.Contract.Assumptions(), targets)
		if err != nil {
			return nil, err
		}
		sel.Environment = append(sel.Environment, missing...)
		if len(cands) == 0 {
			continue
		}
		pick, err := s.Greedy(ctx, cands)
		if err != nil {
			return nil, err
		}
		sel.Provenance[c.ID] = pick.IDs()
		s.emit(c.ID, pick)
		add(pick)
	}
	s.log.Debug("component selection", "components", sel.IDs(), "environment", len(sel.Environment))
	return sel, nil
}

func (s *Selector) emit(target string, pick Candidate) {
	if s.tw == nil {
		return
	}
	_ = s.tw.Emit(trace.EventSelection, map[string]any{
		"target":     target,
		"components": pick.IDs(),
		"cost":       pick.Cost(),
	})
}
