package ltl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ErrOracleUnavailable is returned (wrapped) when the decision procedure
// cannot be invoked at all. It must never be turned into a verdict.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// ErrUnsupported marks a formula an oracle backend cannot decide.
var ErrUnsupported = errors.New("unsupported formula")

// InconsistentFormulaError is returned when a formula is unsatisfiable over
// its own variable universe at construction.
type InconsistentFormulaError struct {
	Formula Formula
}

func (e *InconsistentFormulaError) Error() string {
	return fmt.Sprintf("inconsistent formula: %s is unsatisfiable", e.Formula.Text())
}

// Oracle decides satisfiability and validity of LTL text over a typed
// universe. Identical input must yield identical verdicts.
type Oracle interface {
	// Satisfiable reports whether the conjunction of formulas has a model.
	Satisfiable(ctx context.Context, vars VariableSet, formulas ...string) (bool, error)
	// Valid reports whether formula holds on every behaviour.
	Valid(ctx context.Context, vars VariableSet, formula string) (bool, error)
}

// Checker answers the kernel's logical questions through an Oracle. It
// carries the saturation policy that decides which guarantee text takes
// part in the checks.
type Checker struct {
	oracle    Oracle
	saturated bool
	log       *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithSaturatedGuarantees selects whether guarantees are checked in their
// saturated (A -> G) form. Default: true.
func WithSaturatedGuarantees(on bool) CheckerOption {
	return func(c *Checker) { c.saturated = on }
}

// WithLogger sets the logger used for debug tracing of queries.
func WithLogger(l *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

// NewChecker wraps an oracle.
func NewChecker(o Oracle, opts ...CheckerOption) *Checker {
	c := &Checker{
		oracle:    o,
		saturated: true,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseSaturated reports the saturation policy.
func (c *Checker) UseSaturated() bool { return c.saturated }

// Logger returns the checker's logger so callers share one sink.
func (c *Checker) Logger() *slog.Logger { return c.log }

// TextOf returns the text that participates in checks for f.
func (c *Checker) TextOf(f Formula) string {
	if c.saturated && f.kind == KindGuarantee {
		return f.Saturated()
	}
	return f.text
}

// Satisfiable reports whether the conjunction of fs has a model.
func (c *Checker) Satisfiable(ctx context.Context, fs ...Formula) (bool, error) {
	var (
		vars  VariableSet
		texts []string
		err   error
	)
	for _, f := range fs {
		if f.IsFalse() {
			return false, nil
		}
		vars, err = vars.Union(f.vars)
		if err != nil {
			return false, err
		}
		if f.IsTrue() {
			continue
		}
		texts = append(texts, c.TextOf(f))
	}
	if len(texts) == 0 {
		return true, nil
	}
	ok, err := c.oracle.Satisfiable(ctx, vars, texts...)
	if err != nil {
		return false, fmt.Errorf("satisfiable: %w", err)
	}
	c.log.Debug("satisfiability query", "formulas", texts, "sat", ok)
	return ok, nil
}

// Valid reports whether f holds on every behaviour.
func (c *Checker) Valid(ctx context.Context, f Formula) (bool, error) {
	if f.IsTrue() {
		return true, nil
	}
	if f.IsFalse() {
		return false, nil
	}
	ok, err := c.oracle.Valid(ctx, f.vars, c.TextOf(f))
	if err != nil {
		return false, fmt.Errorf("valid: %w", err)
	}
	c.log.Debug("validity query", "formula", c.TextOf(f), "valid", ok)
	return ok, nil
}

// Refines decides a <= b, i.e. a -> b is valid. TRUE refines only TRUE and
// is refined by everything.
func (c *Checker) Refines(ctx context.Context, a, b Formula) (bool, error) {
	if b.IsTrue() {
		return true, nil
	}
	if a.IsTrue() {
		return false, nil
	}
	if a.IsFalse() {
		return true, nil
	}
	if c.TextOf(a) == c.TextOf(b) {
		return true, nil
	}
	vars, err := a.vars.Union(b.vars)
	if err != nil {
		return false, err
	}
	imp := Formula{text: paren(c.TextOf(a)) + " -> " + paren(c.TextOf(b)), vars: vars}
	return c.Valid(ctx, imp)
}

// Equivalent decides a == b as mutual refinement.
func (c *Checker) Equivalent(ctx context.Context, a, b Formula) (bool, error) {
	ab, err := c.Refines(ctx, a, b)
	if err != nil || !ab {
		return false, err
	}
	return c.Refines(ctx, b, a)
}

// Implied reports whether the conjunction of premises refines f.
func (c *Checker) Implied(ctx context.Context, premises []Formula, f Formula) (bool, error) {
	p, err := c.conjoin(premises)
	if err != nil {
		return false, err
	}
	return c.Refines(ctx, p, f)
}

// Check enforces the construction invariant: f must be satisfiable.
func (c *Checker) Check(ctx context.Context, f Formula) error {
	ok, err := c.Satisfiable(ctx, f)
	if err != nil {
		return err
	}
	if !ok {
		return &InconsistentFormulaError{Formula: f}
	}
	return nil
}

// NewFormula builds a formula and verifies it is satisfiable.
func (c *Checker) NewFormula(ctx context.Context, text string, vars VariableSet, kind Kind) (Formula, error) {
	f := New(text, vars, kind)
	if err := c.Check(ctx, f); err != nil {
		return Formula{}, err
	}
	return f, nil
}

// conjoin builds the conjunction of the checked texts of fs.
func (c *Checker) conjoin(fs []Formula) (Formula, error) {
	plain := make([]Formula, len(fs))
	for i, f := range fs {
		plain[i] = Formula{text: c.TextOf(f), vars: f.vars}
	}
	return And(plain...)
}
