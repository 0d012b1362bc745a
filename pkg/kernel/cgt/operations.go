package cgt

import (
	"context"
	"errors"
	"fmt"

	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/library"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

const (
	composeSep = "||"
	conjoinSep = "&&"
)

// staged holds contract lists computed during a rewrite and committed only
// once the whole ancestor chain validates.
type staged map[NodeID][]*contract.Contract

func (t *Tree) contractsOf(id NodeID, s staged) []*contract.Contract {
	if cs, ok := s[id]; ok {
		return cs
	}
	return t.nodes[id].Contracts
}

// Composition creates a node composing ids. Every tuple of the children's
// alternative contracts is composed; infeasible tuples are dropped and a
// ComposeError is returned when none is left. Children that already have a
// parent are cloned first. An empty name joins the children's names
// with "||".
func (t *Tree) Composition(ctx context.Context, name string, ids ...NodeID) (NodeID, error) {
	if len(ids) == 0 {
		return NoNode, &ComposeError{Err: errors.New("no goals")}
	}
	mark := len(t.nodes)
	children, err := t.detached(ids)
	if err != nil {
		return NoNode, err
	}
	name, err = t.claim(name, children, composeSep)
	if err != nil {
		t.truncate(mark)
		return NoNode, err
	}
	cs, err := t.compose(ctx, children, nil)
	if err != nil {
		t.truncate(mark)
		return NoNode, err
	}

	childCtx := make([]ltl.Formula, len(children))
	for i, c := range children {
		childCtx[i] = t.nodes[c].Context
	}
	nodeCtx, err := ltl.And(childCtx...)
	if err != nil {
		t.truncate(mark)
		return NoNode, err
	}

	id := t.add(&Node{Name: name, Contracts: cs, Context: nodeCtx.WithKind(ltl.KindContext), Operation: Composition})
	t.attach(id, children)
	t.log.Debug("composition", "goal", name, "children", len(children), "contracts", len(cs))
	t.emit(t.nodes[id])
	return id, nil
}

func (t *Tree) compose(ctx context.Context, children []NodeID, s staged) ([]*contract.Contract, error) {
	sets := make([][]*contract.Contract, len(children))
	names := make([]string, len(children))
	for i, c := range children {
		sets[i] = t.contractsOf(c, s)
		names[i] = t.nodes[c].Name
	}
	var (
		out  []*contract.Contract
		last error
	)
	for _, tuple := range product(sets) {
		c, err := contract.Compose(ctx, t.ck, tuple...)
		if err != nil {
			if !infeasible(err) {
				return nil, err
			}
			t.log.Debug("dropping infeasible tuple", "goals", names, "error", err)
			last = err
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, &ComposeError{Goals: names, Err: last}
	}
	return out, nil
}

func infeasible(err error) bool {
	var incompatible *contract.IncompatibleError
	var inconsistent *contract.InconsistentError
	return errors.As(err, &incompatible) || errors.As(err, &inconsistent)
}

func product(sets [][]*contract.Contract) [][]*contract.Contract {
	out := [][]*contract.Contract{{}}
	for _, set := range sets {
		var next [][]*contract.Contract
		for _, prefix := range out {
			for _, c := range set {
				next = append(next, append(append([]*contract.Contract(nil), prefix...), c))
			}
		}
		out = next
	}
	return out
}

// Conjunction creates a node holding copies of every child contract as
// alternatives. It fails with ConflictError when two goals can be assumed
// together but cannot guarantee together. An empty name joins the
// children's names with "&&".
func (t *Tree) Conjunction(ctx context.Context, name string, ids ...NodeID) (NodeID, error) {
	if len(ids) == 0 {
		return NoNode, errors.New("conjunction: no goals")
	}
	mark := len(t.nodes)
	children, err := t.detached(ids)
	if err != nil {
		return NoNode, err
	}
	name, err = t.claim(name, children, conjoinSep)
	if err != nil {
		t.truncate(mark)
		return NoNode, err
	}
	cs, err := t.conjoin(ctx, children, nil)
	if err != nil {
		t.truncate(mark)
		return NoNode, err
	}
	id := t.add(&Node{Name: name, Contracts: cs, Context: ltl.True(), Operation: Conjunction})
	t.attach(id, children)
	t.log.Debug("conjunction", "goal", name, "children", len(children), "contracts", len(cs))
	t.emit(t.nodes[id])
	return id, nil
}

func (t *Tree) conjoin(ctx context.Context, children []NodeID, s staged) ([]*contract.Contract, error) {
	for i := range children {
		for j := i + 1; j < len(children); j++ {
			if err := t.checkPair(ctx, children[i], children[j], s); err != nil {
				return nil, err
			}
		}
	}
	var out []*contract.Contract
	for _, c := range children {
		for _, k := range t.contractsOf(c, s) {
			out = append(out, k.Copy())
		}
	}
	return out, nil
}

func (t *Tree) checkPair(ctx context.Context, left, right NodeID, s staged) error {
	for _, l := range t.contractsOf(left, s) {
		for _, r := range t.contractsOf(right, s) {
			shared, err := t.ck.Satisfiable(ctx, l.Assumption(), r.Assumption())
			if err != nil {
				return err
			}
			if !shared {
				continue
			}
			ok, err := t.ck.Satisfiable(ctx, l.Assumption(), r.Assumption(), l.Guarantee(), r.Guarantee())
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			ce := &ConflictError{
				Left:        t.nodes[left].Name,
				Right:       t.nodes[right].Name,
				Assumptions: [2]ltl.Formula{l.Assumption(), r.Assumption()},
				Guarantees:  [2]ltl.Formula{l.UnsaturatedGuarantee(), r.UnsaturatedGuarantee()},
			}
			t.log.Warn("conflicting goals", "left", ce.Left, "right", ce.Right)
			if t.cfg.Trace != nil {
				_ = t.cfg.Trace.EmitConflict(ce.Left, ce.Right, ce.Error())
			}
			return ce
		}
	}
	return nil
}

// Refinement creates a node holding abstract contracts implemented by
// child. Every abstract guarantee must be refined by one of the child's
// guarantees.
func (t *Tree) Refinement(ctx context.Context, name string, abstract []*contract.Contract, child NodeID) (NodeID, error) {
	if len(abstract) == 0 {
		return NoNode, errors.New("refinement: no contracts")
	}
	mark := len(t.nodes)
	children, err := t.detached([]NodeID{child})
	if err != nil {
		return NoNode, err
	}
	if name == "" {
		name = t.uniqueName(t.nodes[children[0]].Name + "_refined")
	} else if _, taken := t.names[name]; taken {
		t.truncate(mark)
		return NoNode, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	cs := make([]*contract.Contract, len(abstract))
	for i, c := range abstract {
		cs[i] = c.Copy()
	}
	if err := t.checkRefinement(ctx, name, cs, children, nil); err != nil {
		t.truncate(mark)
		return NoNode, err
	}
	n := &Node{Name: name, Contracts: cs, Context: ltl.True(), Operation: Refinement}
	id := t.add(n)
	t.attach(id, children)
	t.emit(n)
	return id, nil
}

// checkRefinement verifies that every abstract guarantee is refined by
// the guarantee of some contract of children.
func (t *Tree) checkRefinement(ctx context.Context, name string, abstract []*contract.Contract, children []NodeID, s staged) error {
	var concrete []*contract.Contract
	for _, c := range children {
		concrete = append(concrete, t.contractsOf(c, s)...)
	}
	for _, a := range abstract {
		want := a.UnsaturatedGuarantee().WithKind(ltl.KindPlain)
		refined := false
		for _, c := range concrete {
			ok, err := t.ck.Refines(ctx, c.UnsaturatedGuarantee().WithKind(ltl.KindPlain), want)
			if err != nil {
				return err
			}
			if ok {
				refined = true
				break
			}
		}
		if !refined {
			child := ""
			if len(children) > 0 {
				child = t.nodes[children[0]].Name
			}
			return &RefinementError{Node: name, Child: child}
		}
	}
	return nil
}

// Mapping implements the leaf goal id with library components. For each of
// the goal's contracts the selected components are composed and placed
// under a refinement node holding that contract; the goal becomes a
// mapping node over those refinement nodes. The selections are returned in
// contract order.
func (t *Tree) Mapping(ctx context.Context, id NodeID, lib *library.Library) ([]*library.Selection, error) {
	n, ok := t.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
	}
	if len(n.Children) > 0 {
		return nil, fmt.Errorf("mapping %q: goal is already refined by %s", n.Name, n.Operation)
	}
	mark := len(t.nodes)
	var (
		refined []NodeID
		sels    []*library.Selection
	)
	for _, c := range n.Contracts {
		sel, err := t.cfg.Selector.Select(ctx, lib, c)
		if err != nil {
			t.truncate(mark)
			return nil, fmt.Errorf("mapping %q: %w", n.Name, err)
		}
		leaves := make([]NodeID, 0, len(sel.Components))
		for _, comp := range sel.Components {
			leaves = append(leaves, t.add(&Node{
				Name:        t.uniqueName(comp.ID),
				Description: comp.Description,
				Contracts:   []*contract.Contract{comp.Contract.Copy()},
				Context:     ltl.True(),
				Operation:   Leaf,
			}))
		}
		comp, err := t.Composition(ctx, "", leaves...)
		if err != nil {
			t.truncate(mark)
			return nil, fmt.Errorf("mapping %q: %w", n.Name, err)
		}
		ref, err := t.Refinement(ctx, t.uniqueName(n.Name+"_refined"), []*contract.Contract{c}, comp)
		if err != nil {
			t.truncate(mark)
			return nil, fmt.Errorf("mapping %q: %w", n.Name, err)
		}
		refined = append(refined, ref)
		sels = append(sels, sel)
	}
	n.Operation = Mapping
	t.attach(id, refined)
	t.log.Debug("mapping", "goal", n.Name, "alternatives", len(refined))
	t.emit(n)
	return sels, nil
}

// SubstituteWith replaces the subtree named name by the subtree named
// replacement and revalidates every ancestor.
func (t *Tree) SubstituteWith(ctx context.Context, name, replacement string) error {
	target, err := t.Lookup(name)
	if err != nil {
		return err
	}
	with, err := t.Lookup(replacement)
	if err != nil {
		return err
	}
	return t.Substitute(ctx, target, with)
}

// Substitute puts the subtree rooted at with in place of target. Ancestor
// compositions and conjunctions are recomputed, so assumptions the new
// subtree discharges disappear up the chain; refinement ancestors are
// checked. The tree is unchanged on error. The replaced subtree is left as
// a detached root; an attached replacement is cloned first.
func (t *Tree) Substitute(ctx context.Context, target, with NodeID) error {
	tn, ok := t.Node(target)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownGoal, target)
	}
	if _, ok := t.Node(with); !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownGoal, with)
	}
	if with == target {
		return nil
	}
	for _, a := range t.Ancestors(target) {
		if a == with {
			return fmt.Errorf("substitute %q: %q is one of its ancestors", tn.Name, t.nodes[with].Name)
		}
	}
	if tn.IsRoot() {
		return fmt.Errorf("substitute %q: a root has no parent to attach the replacement to", tn.Name)
	}

	mark := len(t.nodes)
	repl, err := t.detached([]NodeID{with})
	if err != nil {
		return err
	}
	with = repl[0]

	parent := t.nodes[tn.Parent]
	old := append([]NodeID(nil), parent.Children...)
	next := append([]NodeID(nil), old...)
	for i, c := range next {
		if c == target {
			next[i] = with
		}
	}
	parent.Children = next
	t.nodes[with].Parent = parent.ID
	tn.Parent = NoNode

	s := staged{}
	if err := t.revalidate(ctx, with, s); err != nil {
		parent.Children = old
		tn.Parent = parent.ID
		t.nodes[with].Parent = NoNode
		t.truncate(mark)
		return fmt.Errorf("substitute %q: %w", tn.Name, err)
	}
	t.commit(s)
	t.log.Debug("substitution", "goal", tn.Name, "with", t.nodes[with].Name)
	t.emit(parent)
	return nil
}

// revalidate recomputes the contracts of every ancestor of from into s.
func (t *Tree) revalidate(ctx context.Context, from NodeID, s staged) error {
	for id := t.nodes[from].Parent; id != NoNode; id = t.nodes[id].Parent {
		n := t.nodes[id]
		switch n.Operation {
		case Composition:
			cs, err := t.compose(ctx, n.Children, s)
			if err != nil {
				return err
			}
			if cs, err = t.withAssumes(ctx, n, cs); err != nil {
				return err
			}
			s[id] = cs
		case Conjunction:
			cs, err := t.conjoin(ctx, n.Children, s)
			if err != nil {
				return err
			}
			s[id] = cs
		case Refinement, Mapping:
			if err := t.checkRefinement(ctx, n.Name, t.contractsOf(id, s), n.Children, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Tree) commit(s staged) {
	for id, cs := range s {
		t.nodes[id].Contracts = cs
	}
}

// AbstractGuaranteesOf replaces the guarantees of the node named name with
// the weaker set guarantees, keeping the least set of original guarantees
// still needed for what the rest of the tree relies on: the assumptions of
// sibling goals in ancestor compositions and the guarantees of refinement
// ancestors. A non-empty newName renames the node.
func (t *Tree) AbstractGuaranteesOf(ctx context.Context, name string, guarantees []ltl.Formula, newName string) error {
	id, err := t.Lookup(name)
	if err != nil {
		return err
	}
	n := t.nodes[id]
	if newName != "" && newName != name {
		if _, taken := t.names[newName]; taken {
			return fmt.Errorf("%w: %q", ErrDuplicateName, newName)
		}
	}

	relied := t.relied(id)
	s := staged{}
	cs := make([]*contract.Contract, len(n.Contracts))
	for i, c := range n.Contracts {
		abstracted, err := t.abstract(ctx, c, guarantees, relied)
		if err != nil {
			return fmt.Errorf("abstract %q: %w", name, err)
		}
		cs[i] = abstracted
	}
	s[id] = cs
	if err := t.revalidate(ctx, id, s); err != nil {
		return fmt.Errorf("abstract %q: %w", name, err)
	}
	t.commit(s)
	if newName != "" && newName != name {
		delete(t.names, name)
		n.Name = newName
		t.names[newName] = id
	}
	t.log.Debug("abstraction", "goal", n.Name, "guarantees", len(guarantees))
	t.emit(n)
	return nil
}

// relied collects the formulas the rest of the tree expects id to help
// establish.
func (t *Tree) relied(id NodeID) []ltl.Formula {
	var out []ltl.Formula
	child := id
	for p := t.nodes[id].Parent; p != NoNode; child, p = p, t.nodes[p].Parent {
		pn := t.nodes[p]
		switch pn.Operation {
		case Composition:
			for _, sib := range pn.Children {
				if sib == child {
					continue
				}
				for _, c := range t.nodes[sib].Contracts {
					out = append(out, c.Assumptions()...)
				}
			}
		case Refinement, Mapping:
			for _, c := range pn.Contracts {
				out = append(out, c.UnsaturatedGuarantee())
			}
		}
	}
	return out
}

func (t *Tree) abstract(ctx context.Context, c *contract.Contract, guarantees []ltl.Formula, relied []ltl.Formula) (*contract.Contract, error) {
	original := plainAll(c.Guarantees())
	next := plainAll(guarantees)

	weaker, err := t.ck.Implied(ctx, original, conjunction(next))
	if err != nil {
		return nil, err
	}
	if !weaker {
		return nil, fmt.Errorf("guarantees %s are not implied by %s", conjunction(next).Text(), c.UnsaturatedGuarantee().Text())
	}

	kept := append([]ltl.Formula(nil), guarantees...)
	for _, r := range relied {
		r = r.WithKind(ltl.KindPlain)
		was, err := t.ck.Implied(ctx, original, r)
		if err != nil {
			return nil, err
		}
		if !was {
			continue
		}
		for _, g := range c.Guarantees() {
			still, err := t.ck.Implied(ctx, plainAll(kept), r)
			if err != nil {
				return nil, err
			}
			if still {
				break
			}
			kept = append(kept, ltl.New(g.Unsaturated(), g.Vars(), ltl.KindGuarantee))
		}
	}

	out := c.Copy()
	if err := out.ReplaceGuarantees(ctx, t.ck, kept...); err != nil {
		return nil, err
	}
	return out, nil
}

func plainAll(fs []ltl.Formula) []ltl.Formula {
	out := make([]ltl.Formula, len(fs))
	for i, f := range fs {
		out[i] = ltl.New(f.Unsaturated(), f.Vars(), ltl.KindPlain)
	}
	return out
}

func conjunction(fs []ltl.Formula) ltl.Formula {
	f, err := ltl.And(fs...)
	if err != nil {
		return ltl.True()
	}
	return f
}

// Cluster is one context bucket of goals.
type Cluster struct {
	Context ltl.Formula
	Goals   []NodeID
}

// CreateContextualClusters partitions goals by their contexts under rules.
func (t *Tree) CreateContextualClusters(ctx context.Context, goals []NodeID, rules []ltl.Formula) ([]Cluster, *contexts.Partition, error) {
	items := make([]contexts.Item, len(goals))
	byName := make(map[string]NodeID, len(goals))
	for i, id := range goals {
		n, ok := t.Node(id)
		if !ok {
			return nil, nil, fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
		}
		items[i] = contexts.Item{ID: n.Name, Context: n.Context}
		byName[n.Name] = id
	}
	p, err := t.cfg.Contexts.Partition(ctx, items, rules)
	if err != nil {
		return nil, nil, err
	}
	clusters := make([]Cluster, len(p.Clusters))
	for i, c := range p.Clusters {
		ids := make([]NodeID, len(c.Goals))
		for j, g := range c.Goals {
			ids[j] = byName[g]
		}
		clusters[i] = Cluster{Context: c.Context, Goals: ids}
	}
	return clusters, p, nil
}

// CreateCGT partitions goals by context, composes each bucket and conjoins
// the bucket compositions under one root. With ComposeWithContext each
// bucket composition also assumes its context and the rules. The tree is
// unchanged on error.
func (t *Tree) CreateCGT(ctx context.Context, goals []NodeID, rules []ltl.Formula) (NodeID, *contexts.Partition, error) {
	clusters, p, err := t.CreateContextualClusters(ctx, goals, rules)
	if err != nil {
		return NoNode, nil, err
	}
	if len(clusters) == 0 {
		return NoNode, p, errors.New("create cgt: no context holds any goal")
	}

	mark := len(t.nodes)
	fail := func(err error) (NodeID, *contexts.Partition, error) {
		t.truncate(mark)
		return NoNode, p, fmt.Errorf("create cgt: %w", err)
	}

	buckets := make([]NodeID, 0, len(clusters))
	for _, cl := range clusters {
		id, err := t.Composition(ctx, "", cl.Goals...)
		if err != nil {
			return fail(err)
		}
		if t.cfg.ComposeWithContext {
			if err := t.assumeContext(ctx, id, cl.Context, rules); err != nil {
				return fail(err)
			}
		}
		buckets = append(buckets, id)
	}
	if len(buckets) == 1 {
		return buckets[0], p, nil
	}
	root, err := t.Conjunction(ctx, "", buckets...)
	if err != nil {
		return fail(err)
	}
	return root, p, nil
}

// assumeContext adds the bucket context and the rules to the contracts of
// node id only; its children keep theirs. They are recorded in the node's
// Assumes so that revalidation re-applies them.
func (t *Tree) assumeContext(ctx context.Context, id NodeID, c ltl.Formula, rules []ltl.Formula) error {
	n := t.nodes[id]
	add := append([]ltl.Formula(nil), rules...)
	if !c.IsTrue() {
		add = append(add, c.WithKind(ltl.KindContext))
	}
	if len(add) == 0 {
		return nil
	}
	prev := n.Assumes
	n.Assumes = append(append([]ltl.Formula(nil), prev...), add...)
	cs, err := t.withAssumes(ctx, n, n.Contracts)
	if err != nil {
		n.Assumes = prev
		return fmt.Errorf("context %s: %w", c.Text(), err)
	}
	n.Contracts = cs
	if !c.IsTrue() {
		n.Context = c.WithKind(ltl.KindContext)
	}
	return nil
}

// withAssumes returns copies of cs carrying the node's Assumes.
func (t *Tree) withAssumes(ctx context.Context, n *Node, cs []*contract.Contract) ([]*contract.Contract, error) {
	if len(n.Assumes) == 0 {
		return cs, nil
	}
	out := make([]*contract.Contract, len(cs))
	for i, k := range cs {
		cp := k.Copy()
		if err := cp.AddAssumptions(ctx, t.ck, n.Assumes...); err != nil {
			return nil, fmt.Errorf("assumptions of %s: %w", n.Name, err)
		}
		out[i] = cp
	}
	return out, nil
}
