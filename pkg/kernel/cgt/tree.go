// Package cgt implements the Contract-based Goal Tree: an arena of goal
// nodes, each holding one or more alternative contracts, refined into
// children by composition, conjunction, refinement or component mapping.
package cgt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/library"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
)

// NodeID addresses a node inside its Tree.
type NodeID int

// NoNode is the parent of a root.
const NoNode NodeID = -1

// Operation is how a node is refined by its children.
type Operation int

const (
	Leaf Operation = iota
	Composition
	Conjunction
	Refinement
	Mapping
)

var operationNames = [...]string{"leaf", "composition", "conjunction", "refinement", "mapping"}

func (o Operation) String() string {
	if int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Node is a goal of the tree. Nodes returned by Tree accessors are owned by
// the tree and must not be modified.
type Node struct {
	ID          NodeID
	Name        string
	Description string
	// Contracts are alternatives: the goal holds if any of them does.
	Contracts []*contract.Contract
	Context   ltl.Formula
	// Assumes are assumptions added on top of what the children yield,
	// such as a bucket's context and the context rules. They are kept
	// when the node's contracts are recomputed.
	Assumes   []ltl.Formula
	Children  []NodeID
	Operation Operation
	Parent    NodeID
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.Parent == NoNode }

// Config configures a Tree.
type Config struct {
	Checker *ltl.Checker
	// Contexts partitions goals for CreateCGT. Nil uses a Mutex engine.
	Contexts *contexts.Engine
	// Selector searches component libraries for Mapping. Nil uses a
	// default selector.
	Selector *library.Selector
	// ComposeWithContext adds each bucket's context and the context rules
	// as assumptions of the bucket's composition in CreateCGT.
	ComposeWithContext bool
	Trace              *trace.Writer
	Logger             *slog.Logger
}

// Tree is a goal tree arena. It is not safe for concurrent mutation.
type Tree struct {
	cfg   Config
	ck    *ltl.Checker
	nodes []*Node
	names map[string]NodeID
	log   *slog.Logger
}

// New creates an empty tree.
func New(cfg Config) *Tree {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Contexts == nil {
		cfg.Contexts = contexts.NewEngine(cfg.Checker, contexts.WithLogger(log))
	}
	if cfg.Selector == nil {
		cfg.Selector = library.NewSelector(cfg.Checker, library.WithLogger(log), library.WithTrace(cfg.Trace))
	}
	return &Tree{
		cfg:   cfg,
		ck:    cfg.Checker,
		names: make(map[string]NodeID),
		log:   log,
	}
}

// Checker returns the checker every operation runs its queries through.
func (t *Tree) Checker() *ltl.Checker { return t.ck }

// Len is the number of nodes in the arena, detached subtrees included.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id.
func (t *Tree) Node(id NodeID) (*Node, bool) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// Lookup resolves a node name.
func (t *Tree) Lookup(name string) (NodeID, error) {
	id, ok := t.names[name]
	if !ok {
		return NoNode, fmt.Errorf("%w: %q", ErrUnknownGoal, name)
	}
	return id, nil
}

// Name returns the node's name, or "" for an unknown id.
func (t *Tree) Name(id NodeID) string {
	if n, ok := t.Node(id); ok {
		return n.Name
	}
	return ""
}

// Roots lists every parentless node in creation order.
func (t *Tree) Roots() []NodeID {
	var out []NodeID
	for _, n := range t.nodes {
		if n.IsRoot() {
			out = append(out, n.ID)
		}
	}
	return out
}

// Ancestors lists id's ancestors from its parent up to the root.
func (t *Tree) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	for p := t.nodes[id].Parent; p != NoNode; p = t.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Walk visits the subtree rooted at id depth first, parents before
// children. Returning an error stops the walk.
func (t *Tree) Walk(id NodeID, fn func(n *Node, depth int) error) error {
	n, ok := t.Node(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
	}
	return t.walk(n, 0, fn)
}

func (t *Tree) walk(n *Node, depth int, fn func(*Node, int) error) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := t.walk(t.nodes[c], depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Assumption aggregates the node's assumptions: the disjunction of its
// alternatives' assumptions.
func (t *Tree) Assumption(id NodeID) ltl.Formula {
	n := t.nodes[id]
	if len(n.Contracts) == 1 {
		return n.Contracts[0].Assumption()
	}
	as := make([]ltl.Formula, len(n.Contracts))
	for i, c := range n.Contracts {
		as[i] = c.Assumption()
	}
	a, err := ltl.Or(as...)
	if err != nil {
		return ltl.True()
	}
	return a.WithKind(ltl.KindAssumed)
}

// Guarantee aggregates the node's guarantees: the conjunction of its
// alternatives' saturated guarantees.
func (t *Tree) Guarantee(id NodeID) ltl.Formula {
	n := t.nodes[id]
	if len(n.Contracts) == 1 {
		return n.Contracts[0].Guarantee()
	}
	gs := make([]ltl.Formula, len(n.Contracts))
	for i, c := range n.Contracts {
		g := c.Guarantee()
		gs[i] = ltl.New(g.Saturated(), g.Vars(), ltl.KindGuarantee)
	}
	g, err := ltl.And(gs...)
	if err != nil {
		return ltl.True().WithKind(ltl.KindGuarantee)
	}
	return g.WithKind(ltl.KindGuarantee)
}

// Vars is the union of the variables of the node's contracts.
func (t *Tree) Vars(id NodeID) (ltl.VariableSet, error) {
	var vars ltl.VariableSet
	for _, c := range t.nodes[id].Contracts {
		u, err := vars.Union(c.Vars())
		if err != nil {
			return ltl.VariableSet{}, err
		}
		vars = u
	}
	return vars, nil
}

// AddGoal creates a leaf goal. An empty name is replaced by a generated
// one. A non-TRUE goalCtx is injected as a context assumption.
func (t *Tree) AddGoal(ctx context.Context, name, description string, goalCtx ltl.Formula, contracts ...*contract.Contract) (NodeID, error) {
	if len(contracts) == 0 {
		return NoNode, fmt.Errorf("goal %q: at least one contract is required", name)
	}
	if name == "" {
		name = t.uniqueName("goal")
	}
	if _, taken := t.names[name]; taken {
		return NoNode, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	cs := make([]*contract.Contract, len(contracts))
	for i, c := range contracts {
		cs[i] = c.Copy()
	}
	id := t.add(&Node{Name: name, Description: description, Contracts: cs, Context: ltl.True(), Operation: Leaf})
	if !goalCtx.IsTrue() {
		if err := t.SetContext(ctx, id, goalCtx); err != nil {
			t.truncate(int(id))
			return NoNode, fmt.Errorf("goal %q: %w", name, err)
		}
	}
	t.log.Debug("goal added", "goal", name, "contracts", len(cs))
	return id, nil
}

// SetContext injects c as a context assumption into every contract of the
// subtree rooted at id. The subtree is unchanged if any contract rejects it.
func (t *Tree) SetContext(ctx context.Context, id NodeID, c ltl.Formula) error {
	if _, ok := t.Node(id); !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
	}
	c = c.WithKind(ltl.KindContext)
	staged := make(map[NodeID][]*contract.Contract)
	err := t.Walk(id, func(n *Node, _ int) error {
		cs := make([]*contract.Contract, len(n.Contracts))
		for i, k := range n.Contracts {
			cp := k.Copy()
			if err := cp.AddAssumptions(ctx, t.ck, c); err != nil {
				return fmt.Errorf("context %s on %s: %w", c.Text(), n.Name, err)
			}
			cs[i] = cp
		}
		staged[n.ID] = cs
		return nil
	})
	if err != nil {
		return err
	}
	for nid, cs := range staged {
		n := t.nodes[nid]
		n.Contracts = cs
		merged, err := ltl.And(n.Context, c)
		if err != nil {
			return err
		}
		n.Context = merged.WithKind(ltl.KindContext)
	}
	return nil
}

func (t *Tree) add(n *Node) NodeID {
	n.ID = NodeID(len(t.nodes))
	n.Parent = NoNode
	t.nodes = append(t.nodes, n)
	t.names[n.Name] = n.ID
	return n.ID
}

// truncate drops every node created at or after mark and detaches older
// nodes that were attached to them.
func (t *Tree) truncate(mark int) {
	if mark >= len(t.nodes) {
		return
	}
	for _, n := range t.nodes[mark:] {
		delete(t.names, n.Name)
	}
	t.nodes = t.nodes[:mark]
	for _, n := range t.nodes {
		if int(n.Parent) >= mark {
			n.Parent = NoNode
		}
	}
}

func (t *Tree) uniqueName(base string) string {
	if _, taken := t.names[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if _, taken := t.names[name]; !taken {
			return name
		}
	}
}

// claim resolves the name for a new node: generated names are made unique,
// explicit ones must be free.
func (t *Tree) claim(name string, children []NodeID, sep string) (string, error) {
	if name == "" {
		parts := make([]string, len(children))
		for i, c := range children {
			parts[i] = t.nodes[c].Name
		}
		return t.uniqueName(strings.Join(parts, sep)), nil
	}
	if _, taken := t.names[name]; taken {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return name, nil
}

// Clone deep-copies the subtree rooted at id. Copies get fresh unique names
// derived from the originals and the copy is a new root.
func (t *Tree) Clone(id NodeID) (NodeID, error) {
	n, ok := t.Node(id)
	if !ok {
		return NoNode, fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
	}
	return t.clone(n), nil
}

func (t *Tree) clone(n *Node) NodeID {
	cs := make([]*contract.Contract, len(n.Contracts))
	for i, c := range n.Contracts {
		cs[i] = c.Copy()
	}
	cp := &Node{
		Name:        t.uniqueName(n.Name),
		Description: n.Description,
		Contracts:   cs,
		Context:     n.Context,
		Assumes:     append([]ltl.Formula(nil), n.Assumes...),
		Operation:   n.Operation,
	}
	id := t.add(cp)
	for _, c := range n.Children {
		child := t.clone(t.nodes[c])
		t.nodes[child].Parent = id
		cp.Children = append(cp.Children, child)
	}
	return id
}

// detached returns ids with every already attached node replaced by a
// clone, so a goal can take part in several operations.
func (t *Tree) detached(ids []NodeID) ([]NodeID, error) {
	out := make([]NodeID, 0, len(ids))
	seen := make(map[NodeID]bool)
	for _, id := range ids {
		n, ok := t.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnknownGoal, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("goal %q listed twice", n.Name)
		}
		seen[id] = true
		if !n.IsRoot() {
			c := t.clone(n)
			t.log.Debug("cloned attached goal", "goal", n.Name, "clone", t.nodes[c].Name)
			id = c
		}
		out = append(out, id)
	}
	return out, nil
}

func (t *Tree) attach(parent NodeID, children []NodeID) {
	for _, c := range children {
		t.nodes[c].Parent = parent
	}
	t.nodes[parent].Children = children
}

func (t *Tree) emit(n *Node) {
	if t.cfg.Trace == nil {
		return
	}
	names := make([]string, len(n.Children))
	for i, c := range n.Children {
		names[i] = t.nodes[c].Name
	}
	_ = t.cfg.Trace.EmitOperation(n.Operation.String(), n.Name, names, len(n.Contracts))
}
