package oracle

import (
	"context"
	"time"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
)

// Traced records every query and its verdict to a JSONL trace.
type Traced struct {
	next ltl.Oracle
	tw   *trace.Writer
}

// NewTraced wraps an oracle with a trace writer.
func NewTraced(next ltl.Oracle, tw *trace.Writer) *Traced {
	return &Traced{next: next, tw: tw}
}

// Satisfiable implements ltl.Oracle.
func (t *Traced) Satisfiable(ctx context.Context, vars ltl.VariableSet, formulas ...string) (bool, error) {
	start := time.Now()
	ok, err := t.next.Satisfiable(ctx, vars, formulas...)
	_ = t.tw.EmitQuery("satisfiable", vars.Names(), formulas, ok, time.Since(start), err)
	return ok, err
}

// Valid implements ltl.Oracle.
func (t *Traced) Valid(ctx context.Context, vars ltl.VariableSet, formula string) (bool, error) {
	start := time.Now()
	ok, err := t.next.Valid(ctx, vars, formula)
	_ = t.tw.EmitQuery("valid", vars.Names(), []string{formula}, ok, time.Since(start), err)
	return ok, err
}
