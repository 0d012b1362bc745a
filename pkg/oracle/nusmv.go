package oracle

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/executor"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// NuSMV asks an external symbolic model checker (NuSMV / nuXmv) for each
// verdict by writing a one-property model to a temporary file.
type NuSMV struct {
	Binary string
	Exec   executor.CommandExecutor
	// Args are extra flags placed before the model path.
	Args []string
	Log  *slog.Logger
}

// NewNuSMV creates a subprocess oracle for the given binary.
func NewNuSMV(binary string, exec executor.CommandExecutor) *NuSMV {
	if exec == nil {
		exec = &executor.RealExecutor{}
	}
	return &NuSMV{
		Binary: binary,
		Exec:   exec,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Satisfiable checks "!(f1 & ... & fn)": the conjunction is satisfiable
// exactly when its negation is not valid.
func (o *NuSMV) Satisfiable(ctx context.Context, vars ltl.VariableSet, formulas ...string) (bool, error) {
	start := timeNow()
	root, err := parseConjunction(formulas)
	if err != nil {
		return false, err
	}
	neg := &ltl.Node{Op: ltl.OpNot, Args: []*ltl.Node{root}}
	holds, err := o.check(ctx, vars, smvText(neg))
	observe("nusmv", "satisfiable", !holds, err, start)
	if err != nil {
		return false, err
	}
	return !holds, nil
}

// Valid checks the formula directly.
func (o *NuSMV) Valid(ctx context.Context, vars ltl.VariableSet, formula string) (bool, error) {
	start := timeNow()
	n, err := ltl.Parse(formula)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ltl.ErrUnsupported, err)
	}
	holds, err := o.check(ctx, vars, smvText(n))
	observe("nusmv", "valid", holds, err, start)
	return holds, err
}

func (o *NuSMV) check(ctx context.Context, vars ltl.VariableSet, spec string) (bool, error) {
	f, err := os.CreateTemp("", "cgt-*.smv")
	if err != nil {
		return false, fmt.Errorf("create model file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := io.WriteString(f, Model(vars, spec)); err != nil {
		f.Close()
		return false, fmt.Errorf("write model file: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close model file: %w", err)
	}

	args := append(append([]string{}, o.Args...), f.Name())
	res, err := o.Exec.Execute(ctx, o.Binary, args)
	if err != nil {
		if errors.Is(err, executor.ErrNotFound) {
			return false, fmt.Errorf("%w: %v", ltl.ErrOracleUnavailable, err)
		}
		return false, err
	}
	if res.TimedOut {
		return false, fmt.Errorf("%s: %w", o.Binary, context.DeadlineExceeded)
	}
	verdict, err := ParseVerdict(res.Stdout)
	if err != nil {
		return false, fmt.Errorf("%s (exit %d): %w: %s", o.Binary, res.ExitCode, err, strings.TrimSpace(string(res.Stderr)))
	}
	o.Log.Debug("nusmv verdict", "spec", spec, "holds", verdict, "duration", res.Duration)
	return verdict, nil
}

// smvText renders n in NuSMV's LTL syntax, which has no weak until:
// a W b becomes (a U b) | G a.
func smvText(n *ltl.Node) string { return withoutWeakUntil(n).String() }

func withoutWeakUntil(n *ltl.Node) *ltl.Node {
	if len(n.Args) == 0 {
		return n
	}
	cp := *n
	cp.Args = make([]*ltl.Node, len(n.Args))
	for i, a := range n.Args {
		cp.Args[i] = withoutWeakUntil(a)
	}
	if cp.Op != ltl.OpWeakUntil {
		return &cp
	}
	a, b := cp.Args[0], cp.Args[1]
	return &ltl.Node{Op: ltl.OpOr, Args: []*ltl.Node{
		{Op: ltl.OpUntil, Args: []*ltl.Node{a, b}},
		{Op: ltl.OpGlobally, Args: []*ltl.Node{a}},
	}}
}

// Model renders the VAR block and a single LTLSPEC.
func Model(vars ltl.VariableSet, spec string) string {
	var b strings.Builder
	b.WriteString("MODULE main\n")
	if vars.Len() > 0 {
		b.WriteString("VAR\n")
		for _, v := range vars.Sorted() {
			fmt.Fprintf(&b, "  %s: %s;\n", v.Name, v.Type)
		}
	}
	b.WriteString("LTLSPEC ")
	b.WriteString(spec)
	b.WriteString("\n")
	return b.String()
}

// ParseVerdict scans model-checker output for the "-- specification" line.
func ParseVerdict(out []byte) (bool, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "-- specification") {
			continue
		}
		switch {
		case strings.Contains(line, "is true"):
			return true, nil
		case strings.Contains(line, "is false"):
			return false, nil
		}
	}
	return false, errors.New("no specification verdict in output")
}
