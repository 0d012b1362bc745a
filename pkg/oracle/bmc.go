package oracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

const (
	satisfiable = 1

	// DefaultBound is the longest lasso the BMC oracle searches.
	DefaultBound = 4

	// maxAtomAssignments bounds the enumeration of an atom's variables.
	maxAtomAssignments = 1 << 16
)

// BMC decides LTL satisfiability in-process by searching for a lasso-shaped
// model of length at most Bound, encoded as a gini circuit. Satisfiable
// verdicts are exact; unsatisfiable (and therefore valid) verdicts are exact
// for propositional formulas and bounded for temporal ones.
type BMC struct {
	bound int
	log   *slog.Logger

	mu    sync.Mutex
	atoms map[string]*atomTable
}

// BMCOption configures a BMC oracle.
type BMCOption func(*BMC)

// WithBound sets the maximum lasso length.
func WithBound(k int) BMCOption {
	return func(b *BMC) {
		if k > 0 {
			b.bound = k
		}
	}
}

// WithBMCLogger sets the logger.
func WithBMCLogger(l *slog.Logger) BMCOption {
	return func(b *BMC) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBMC creates an in-process oracle.
func NewBMC(opts ...BMCOption) *BMC {
	b := &BMC{
		bound: DefaultBound,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		atoms: make(map[string]*atomTable),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Satisfiable implements ltl.Oracle.
func (b *BMC) Satisfiable(ctx context.Context, vars ltl.VariableSet, formulas ...string) (bool, error) {
	start := timeNow()
	root, err := parseConjunction(formulas)
	if err != nil {
		return false, err
	}
	ok, err := b.search(ctx, vars, root)
	observe("bmc", "satisfiable", ok, err, start)
	return ok, err
}

// Valid implements ltl.Oracle as unsatisfiability of the negation.
func (b *BMC) Valid(ctx context.Context, vars ltl.VariableSet, formula string) (bool, error) {
	start := timeNow()
	n, err := ltl.Parse(formula)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ltl.ErrUnsupported, err)
	}
	sat, err := b.search(ctx, vars, &ltl.Node{Op: ltl.OpNot, Args: []*ltl.Node{n}})
	observe("bmc", "valid", !sat, err, start)
	if err != nil {
		return false, err
	}
	return !sat, nil
}

func parseConjunction(formulas []string) (*ltl.Node, error) {
	var root *ltl.Node
	for _, f := range formulas {
		n, err := ltl.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ltl.ErrUnsupported, err)
		}
		if root == nil {
			root = n
			continue
		}
		root = &ltl.Node{Op: ltl.OpAnd, Args: []*ltl.Node{root, n}}
	}
	if root == nil {
		root = &ltl.Node{Op: ltl.OpTrue}
	}
	return root, nil
}

// search tries every lasso (k states, loop back to l) up to the bound.
func (b *BMC) search(ctx context.Context, vars ltl.VariableSet, root *ltl.Node) (bool, error) {
	for _, name := range root.Vars() {
		if _, ok := vars.Lookup(name); !ok {
			return false, fmt.Errorf("%w: undeclared variable %q", ltl.ErrUnsupported, name)
		}
	}
	maxK := b.bound
	if !root.Temporal() {
		maxK = 1
	}
	for k := 1; k <= maxK; k++ {
		for l := 0; l < k; l++ {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			ok, err := b.solveLasso(vars, root, k, l)
			if err != nil {
				return false, err
			}
			if ok {
				b.log.Debug("bmc model found", "k", k, "loop", l)
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *BMC) solveLasso(vars ltl.VariableSet, root *ltl.Node, k, loop int) (bool, error) {
	enc := &lasso{
		bmc:   b,
		c:     logic.NewC(),
		k:     k,
		loop:  loop,
		vars:  vars,
		bools: make(map[string][]z.Lit),
		ints:  make(map[string][][]z.Lit),
		memo:  make(map[*ltl.Node][]z.Lit),
	}
	lits, err := enc.encode(root)
	if err != nil {
		return false, err
	}
	constraints := append([]z.Lit{lits[0]}, enc.ranges...)
	goal := enc.ands(constraints)

	g := gini.New()
	enc.c.ToCnf(g)
	g.Assume(goal)
	return g.Solve() == satisfiable, nil
}

// lasso encodes a formula over states 0..k-1 where the successor of k-1 is loop.
type lasso struct {
	bmc    *BMC
	c      *logic.C
	k      int
	loop   int
	vars   ltl.VariableSet
	bools  map[string][]z.Lit
	ints   map[string][][]z.Lit // per state, the bit literals
	ranges []z.Lit
	memo   map[*ltl.Node][]z.Lit
}

func (e *lasso) succ(i int) int {
	if i < e.k-1 {
		return i + 1
	}
	return e.loop
}

// reach returns the states visited from i, in path order, without repetition.
func (e *lasso) reach(i int) []int {
	out := make([]int, 0, e.k)
	seen := make([]bool, e.k)
	for p := i; !seen[p]; p = e.succ(p) {
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func (e *lasso) ands(ms []z.Lit) z.Lit {
	if len(ms) == 0 {
		return e.c.T
	}
	return e.c.Ands(ms...)
}

func (e *lasso) ors(ms []z.Lit) z.Lit {
	if len(ms) == 0 {
		return e.c.F
	}
	return e.c.Ors(ms...)
}

func (e *lasso) constant(m z.Lit) []z.Lit {
	out := make([]z.Lit, e.k)
	for i := range out {
		out[i] = m
	}
	return out
}

func (e *lasso) encode(n *ltl.Node) ([]z.Lit, error) {
	if lits, ok := e.memo[n]; ok {
		return lits, nil
	}
	lits, err := e.encodeNode(n)
	if err != nil {
		return nil, err
	}
	e.memo[n] = lits
	return lits, nil
}

func (e *lasso) encodeNode(n *ltl.Node) ([]z.Lit, error) {
	switch n.Op {
	case ltl.OpTrue:
		return e.constant(e.c.T), nil
	case ltl.OpFalse:
		return e.constant(e.c.F), nil
	case ltl.OpVar:
		v, _ := e.vars.Lookup(n.Name)
		if v.Type.Kind != ltl.Boolean {
			return nil, fmt.Errorf("%w: integer variable %q used as a proposition", ltl.ErrUnsupported, n.Name)
		}
		return e.boolLits(n.Name), nil
	case ltl.OpCmp:
		return e.atom(n)
	case ltl.OpNum, ltl.OpArith, ltl.OpNeg:
		return nil, fmt.Errorf("%w: arithmetic %s used as a proposition", ltl.ErrUnsupported, n)
	}

	args := make([][]z.Lit, len(n.Args))
	for i, a := range n.Args {
		lits, err := e.encode(a)
		if err != nil {
			return nil, err
		}
		args[i] = lits
	}
	out := make([]z.Lit, e.k)
	for i := 0; i < e.k; i++ {
		switch n.Op {
		case ltl.OpNot:
			out[i] = args[0][i].Not()
		case ltl.OpAnd:
			out[i] = e.c.And(args[0][i], args[1][i])
		case ltl.OpOr:
			out[i] = e.c.Or(args[0][i], args[1][i])
		case ltl.OpImplies:
			out[i] = e.c.Or(args[0][i].Not(), args[1][i])
		case ltl.OpIff:
			out[i] = e.c.And(e.c.Or(args[0][i].Not(), args[1][i]), e.c.Or(args[1][i].Not(), args[0][i]))
		case ltl.OpNext:
			out[i] = args[0][e.succ(i)]
		case ltl.OpFinally:
			out[i] = e.ors(pick(args[0], e.reach(i)))
		case ltl.OpGlobally:
			out[i] = e.ands(pick(args[0], e.reach(i)))
		case ltl.OpUntil:
			out[i] = e.until(args[0], args[1], i)
		case ltl.OpWeakUntil:
			out[i] = e.c.Or(e.until(args[0], args[1], i), e.ands(pick(args[0], e.reach(i))))
		case ltl.OpRelease:
			out[i] = e.until(negate(args[0]), negate(args[1]), i).Not()
		default:
			return nil, fmt.Errorf("%w: operator %d", ltl.ErrUnsupported, n.Op)
		}
	}
	return out, nil
}

// until unrolls a U b from state i along the lasso; every reachable state is
// visited within k steps so the unrolling is exact.
func (e *lasso) until(a, b []z.Lit, i int) z.Lit {
	prefix := e.c.T
	var terms []z.Lit
	for _, p := range e.reach(i) {
		terms = append(terms, e.c.And(prefix, b[p]))
		prefix = e.c.And(prefix, a[p])
	}
	return e.ors(terms)
}

func pick(lits []z.Lit, idx []int) []z.Lit {
	out := make([]z.Lit, len(idx))
	for i, p := range idx {
		out[i] = lits[p]
	}
	return out
}

func negate(lits []z.Lit) []z.Lit {
	out := make([]z.Lit, len(lits))
	for i, m := range lits {
		out[i] = m.Not()
	}
	return out
}

func (e *lasso) boolLits(name string) []z.Lit {
	if lits, ok := e.bools[name]; ok {
		return lits
	}
	lits := make([]z.Lit, e.k)
	for i := range lits {
		lits[i] = e.c.Lit()
	}
	e.bools[name] = lits
	return lits
}

// intBits allocates the binary encoding of an integer variable and records
// its range constraint.
func (e *lasso) intBits(v ltl.Variable) [][]z.Lit {
	if b, ok := e.ints[v.Name]; ok {
		return b
	}
	width := bits.Len(uint(v.Type.Hi - v.Type.Lo))
	states := make([][]z.Lit, e.k)
	for i := range states {
		states[i] = make([]z.Lit, width)
		for j := range states[i] {
			states[i][j] = e.c.Lit()
		}
	}
	e.ints[v.Name] = states
	if size := v.Type.Size(); size != 1<<width {
		for i := 0; i < e.k; i++ {
			valid := make([]z.Lit, 0, size)
			for val := v.Type.Lo; val <= v.Type.Hi; val++ {
				valid = append(valid, e.intValue(v, i, val))
			}
			e.ranges = append(e.ranges, e.ors(valid))
		}
	}
	return states
}

// intValue is the gate "v == val" at state i.
func (e *lasso) intValue(v ltl.Variable, i, val int) z.Lit {
	bitsAt := e.intBits(v)[i]
	off := uint(val - v.Type.Lo)
	ms := make([]z.Lit, len(bitsAt))
	for j, m := range bitsAt {
		if off&(1<<uint(j)) != 0 {
			ms[j] = m
		} else {
			ms[j] = m.Not()
		}
	}
	return e.ands(ms)
}

// atom encodes a comparison by enumerating the satisfying assignments of its
// variables, evaluated with expr.
func (e *lasso) atom(n *ltl.Node) ([]z.Lit, error) {
	table, err := e.bmc.atomTable(e.vars, n)
	if err != nil {
		return nil, err
	}
	out := make([]z.Lit, e.k)
	for i := 0; i < e.k; i++ {
		terms := make([]z.Lit, 0, len(table.models))
		for _, model := range table.models {
			conj := make([]z.Lit, len(table.vars))
			for j, v := range table.vars {
				if v.Type.Kind == ltl.Boolean {
					m := e.boolLits(v.Name)[i]
					if model[j] == 0 {
						m = m.Not()
					}
					conj[j] = m
					continue
				}
				conj[j] = e.intValue(v, i, model[j])
			}
			terms = append(terms, e.ands(conj))
		}
		out[i] = e.ors(terms)
	}
	return out, nil
}

// atomTable caches the satisfying assignments of one atom.
type atomTable struct {
	vars   []ltl.Variable
	models [][]int
}

func (b *BMC) atomTable(vars ltl.VariableSet, n *ltl.Node) (*atomTable, error) {
	scope := vars.Restrict(n.Vars())
	key := scope.Key() + "|" + n.ExprString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.atoms[key]; ok {
		return t, nil
	}

	t := &atomTable{vars: scope.Sorted()}
	total := 1
	env := make(map[string]any, len(t.vars))
	for _, v := range t.vars {
		total *= v.Type.Size()
		if total > maxAtomAssignments {
			return nil, fmt.Errorf("%w: atom %s ranges over too many values", ltl.ErrUnsupported, n)
		}
		if v.Type.Kind == ltl.Boolean {
			env[v.Name] = false
		} else {
			env[v.Name] = v.Type.Lo
		}
	}
	program, err := expr.Compile(n.ExprString(), expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: atom %s: %v", ltl.ErrUnsupported, n, err)
	}
	enumerate(t, program, env, total)
	b.atoms[key] = t
	return t, nil
}

func enumerate(t *atomTable, program *vm.Program, env map[string]any, total int) {
	for idx := 0; idx < total; idx++ {
		model := make([]int, len(t.vars))
		rest := idx
		for j, v := range t.vars {
			size := v.Type.Size()
			off := rest % size
			rest /= size
			if v.Type.Kind == ltl.Boolean {
				model[j] = off
				env[v.Name] = off == 1
			} else {
				model[j] = v.Type.Lo + off
				env[v.Name] = model[j]
			}
		}
		out, err := expr.Run(program, env)
		if err != nil {
			// Division by zero and similar runtime faults make the atom false.
			continue
		}
		if ok, _ := out.(bool); ok {
			t.models = append(t.models, model)
		}
	}
}
