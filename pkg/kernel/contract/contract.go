// Package contract defines assume/guarantee contracts, the primitive
// every goal, component and tree node is built from.
package contract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// Contract pairs a conjunction of assumptions with a conjunction of
// guarantees. Assumptions ∧ guarantees is satisfiable after every
// successful mutation; a failed mutation leaves the contract untouched.
type Contract struct {
	assumptions []ltl.Formula
	guarantees  []ltl.Formula
}

// IncompatibleError reports assumptions that cannot hold together with the
// contract they are added to.
type IncompatibleError struct {
	Existing  ltl.Formula
	Offending ltl.Formula
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("incompatible contracts: assumptions %s conflict with %s", e.Existing, e.Offending)
}

// InconsistentError reports guarantees that cannot hold together with the
// contract they are added to.
type InconsistentError struct {
	Existing  ltl.Formula
	Offending ltl.Formula
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("inconsistent contracts: guarantees %s conflict with %s", e.Existing, e.Offending)
}

// New builds a validated contract.
func New(ctx context.Context, ck *ltl.Checker, assumptions, guarantees []ltl.Formula) (*Contract, error) {
	c := &Contract{}
	if err := c.AddAssumptions(ctx, ck, assumptions...); err != nil {
		return nil, err
	}
	if err := c.AddGuarantees(ctx, ck, guarantees...); err != nil {
		return nil, err
	}
	return c, nil
}

// FromText builds a validated contract from formula texts over vars.
func FromText(ctx context.Context, ck *ltl.Checker, vars ltl.VariableSet, assumptions, guarantees []string) (*Contract, error) {
	as := make([]ltl.Formula, 0, len(assumptions))
	for _, a := range assumptions {
		as = append(as, ltl.New(a, vars.Restrict(namesIn(a)), ltl.KindAssumed))
	}
	gs := make([]ltl.Formula, 0, len(guarantees))
	for _, g := range guarantees {
		gs = append(gs, ltl.New(g, vars.Restrict(namesIn(g)), ltl.KindGuarantee))
	}
	return New(ctx, ck, as, gs)
}

func namesIn(text string) []string {
	n, err := ltl.Parse(text)
	if err != nil {
		return nil
	}
	return n.Vars()
}

// Assumptions returns the individual assumption formulas.
func (c *Contract) Assumptions() []ltl.Formula {
	return append([]ltl.Formula(nil), c.assumptions...)
}

// Guarantees returns the individual guarantees, saturated with the current
// assumptions.
func (c *Contract) Guarantees() []ltl.Formula {
	a := c.Assumption()
	out := make([]ltl.Formula, len(c.guarantees))
	for i, g := range c.guarantees {
		s, err := g.Saturate(a)
		if err != nil {
			s = g
		}
		out[i] = s
	}
	return out
}

// Assumption is the conjunction of all assumptions.
func (c *Contract) Assumption() ltl.Formula {
	a, err := ltl.And(c.assumptions...)
	if err != nil {
		return ltl.True()
	}
	return a.WithKind(ltl.KindAssumed)
}

// Guarantee is the conjunction of all guarantees, saturated with Assumption.
func (c *Contract) Guarantee() ltl.Formula {
	g := c.UnsaturatedGuarantee()
	s, err := g.Saturate(c.Assumption())
	if err != nil {
		return g
	}
	return s
}

// UnsaturatedGuarantee is the conjunction of guarantees as authored.
func (c *Contract) UnsaturatedGuarantee() ltl.Formula {
	g, err := ltl.And(c.guarantees...)
	if err != nil {
		return ltl.True().WithKind(ltl.KindGuarantee)
	}
	return g.WithKind(ltl.KindGuarantee)
}

// Vars is the union of every variable the contract mentions.
func (c *Contract) Vars() ltl.VariableSet {
	var vars ltl.VariableSet
	for _, f := range append(c.Assumptions(), c.guarantees...) {
		if u, err := vars.Union(f.Vars()); err == nil {
			vars = u
		}
	}
	return vars
}

// AddAssumptions conjoins new assumptions. Formulas not tagged as an
// assumption kind are tagged KindAssumed.
func (c *Contract) AddAssumptions(ctx context.Context, ck *ltl.Checker, fs ...ltl.Formula) error {
	added := make([]ltl.Formula, 0, len(fs))
	for _, f := range fs {
		if !f.Kind().IsAssumption() {
			f = f.WithKind(ltl.KindAssumed)
		}
		added = append(added, f)
	}
	next := appendUnique(c.assumptions, added...)
	if len(next) == len(c.assumptions) {
		return nil
	}
	offending, err := ltl.And(added...)
	if err != nil {
		return err
	}

	ok, err := ck.Satisfiable(ctx, next...)
	if err != nil {
		return err
	}
	if !ok {
		return &IncompatibleError{Existing: c.Assumption(), Offending: offending}
	}
	ok, err = ck.Satisfiable(ctx, append(append([]ltl.Formula(nil), next...), plain(c.guarantees)...)...)
	if err != nil {
		return err
	}
	if !ok {
		return &IncompatibleError{Existing: c.UnsaturatedGuarantee(), Offending: offending}
	}
	c.assumptions = next
	return nil
}

// AddGuarantees conjoins new guarantees.
func (c *Contract) AddGuarantees(ctx context.Context, ck *ltl.Checker, fs ...ltl.Formula) error {
	added := make([]ltl.Formula, 0, len(fs))
	for _, f := range fs {
		added = append(added, f.WithKind(ltl.KindGuarantee))
	}
	next := appendUnique(c.guarantees, added...)
	if len(next) == len(c.guarantees) {
		return nil
	}
	offending, err := ltl.And(added...)
	if err != nil {
		return err
	}

	ok, err := ck.Satisfiable(ctx, plain(next)...)
	if err != nil {
		return err
	}
	if !ok {
		return &InconsistentError{Existing: c.UnsaturatedGuarantee(), Offending: offending}
	}
	ok, err = ck.Satisfiable(ctx, append(append([]ltl.Formula(nil), c.assumptions...), plain(next)...)...)
	if err != nil {
		return err
	}
	if !ok {
		return &InconsistentError{Existing: c.Assumption(), Offending: offending}
	}
	c.guarantees = next
	return nil
}

// RemoveAssumptions drops every assumption of the given kind and returns them.
func (c *Contract) RemoveAssumptions(kind ltl.Kind) []ltl.Formula {
	var kept, removed []ltl.Formula
	for _, a := range c.assumptions {
		if a.Kind() == kind {
			removed = append(removed, a)
			continue
		}
		kept = append(kept, a)
	}
	c.assumptions = kept
	return removed
}

// AssumptionsOf returns the assumptions tagged with kind.
func (c *Contract) AssumptionsOf(kind ltl.Kind) []ltl.Formula {
	var out []ltl.Formula
	for _, a := range c.assumptions {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}

// ReplaceGuarantees swaps the guarantee set after checking it against the
// assumptions. The old set is kept if the check fails.
func (c *Contract) ReplaceGuarantees(ctx context.Context, ck *ltl.Checker, fs ...ltl.Formula) error {
	trial := &Contract{assumptions: c.assumptions}
	if err := trial.AddGuarantees(ctx, ck, fs...); err != nil {
		return err
	}
	c.guarantees = trial.guarantees
	return nil
}

// Copy returns a deep copy.
func (c *Contract) Copy() *Contract {
	return &Contract{
		assumptions: append([]ltl.Formula(nil), c.assumptions...),
		guarantees:  append([]ltl.Formula(nil), c.guarantees...),
	}
}

// Cost is |assumptions| / |guarantees|; lower means more guaranteed per
// assumed. A contract without guarantees costs +Inf.
func (c *Contract) Cost() float64 {
	if len(c.guarantees) == 0 {
		return math.Inf(1)
	}
	return float64(len(c.assumptions)) / float64(len(c.guarantees))
}

// Consistent reports whether assumptions ∧ guarantees is satisfiable.
func (c *Contract) Consistent(ctx context.Context, ck *ltl.Checker) (bool, error) {
	return ck.Satisfiable(ctx, append(append([]ltl.Formula(nil), c.assumptions...), plain(c.guarantees)...)...)
}

// Refines reports whether c refines other: c's guarantees are at least as
// strong and c's assumptions at least as weak.
func (c *Contract) Refines(ctx context.Context, ck *ltl.Checker, other *Contract) (bool, error) {
	ok, err := ck.Refines(ctx, c.Guarantee(), other.Guarantee())
	if err != nil || !ok {
		return false, err
	}
	if other.Assumption().IsTrue() {
		return c.Assumption().IsTrue(), nil
	}
	return ck.Refines(ctx, other.Assumption(), c.Assumption())
}

// String renders the contract on two lines.
func (c *Contract) String() string {
	var b strings.Builder
	b.WriteString("A: ")
	b.WriteString(c.Assumption().Text())
	b.WriteString("\nG: ")
	b.WriteString(c.UnsaturatedGuarantee().Text())
	return b.String()
}

// Merge unions assumptions and guarantees of cs into one validated contract.
func Merge(ctx context.Context, ck *ltl.Checker, cs ...*Contract) (*Contract, error) {
	out := &Contract{}
	var as, gs []ltl.Formula
	for _, c := range cs {
		as = appendUnique(as, c.assumptions...)
		gs = appendUnique(gs, c.guarantees...)
	}
	if err := out.AddAssumptions(ctx, ck, as...); err != nil {
		return nil, err
	}
	if err := out.AddGuarantees(ctx, ck, gs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Compose merges cs and then discharges every assumption already implied
// by the composed guarantees.
func Compose(ctx context.Context, ck *ltl.Checker, cs ...*Contract) (*Contract, error) {
	out, err := Merge(ctx, ck, cs...)
	if err != nil {
		return nil, err
	}
	g := out.UnsaturatedGuarantee().WithKind(ltl.KindPlain)
	kept := out.assumptions[:0:0]
	for _, a := range out.assumptions {
		implied, err := ck.Refines(ctx, g, a.WithKind(ltl.KindPlain))
		if err != nil {
			return nil, err
		}
		if !implied {
			kept = append(kept, a)
		}
	}
	out.assumptions = kept
	return out, nil
}

// plain retags guarantees so checks use their authored text.
func plain(fs []ltl.Formula) []ltl.Formula {
	out := make([]ltl.Formula, len(fs))
	for i, f := range fs {
		out[i] = f.WithKind(ltl.KindPlain)
	}
	return out
}

func appendUnique(base []ltl.Formula, fs ...ltl.Formula) []ltl.Formula {
	out := append([]ltl.Formula(nil), base...)
	seen := make(map[string]struct{}, len(out)+len(fs))
	for _, f := range out {
		seen[f.Text()] = struct{}{}
	}
	for _, f := range fs {
		if f.IsTrue() {
			continue
		}
		if _, ok := seen[f.Text()]; ok {
			continue
		}
		seen[f.Text()] = struct{}{}
		out = append(out, f)
	}
	return out
}
