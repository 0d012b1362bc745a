package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ormasoftchile/cgt/pkg/executor"
	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// ErrInternalInvariant is returned when a tree root reaches export with
// unsatisfiable assumptions; the tree operations should have caught it.
var ErrInternalInvariant = errors.New("internal invariant violated")

// Result is the backend's answer. Unrealizability and timeouts are
// outcomes, not errors.
type Result struct {
	Realizable bool
	TimedOut   bool
	// Strategy is the Mealy machine as a DOT digraph, set when realizable.
	Strategy string
	Output   string
	Duration time.Duration
}

// Synthesizer drives a command-line synthesis backend taking
// -f "<A> -> <G>" --ins=<csv> --outs=<csv>.
type Synthesizer struct {
	Binary string
	Exec   executor.CommandExecutor
	Log    *slog.Logger
}

// New creates a synthesizer. A nil exec runs the binary for real.
func New(binary string, exec executor.CommandExecutor) *Synthesizer {
	if exec == nil {
		exec = &executor.RealExecutor{}
	}
	return &Synthesizer{
		Binary: binary,
		Exec:   exec,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Args builds the backend command line for spec.
func Args(spec *Spec) []string {
	return []string{
		"-f", spec.Formula(),
		"--ins=" + strings.Join(spec.Inputs, ","),
		"--outs=" + strings.Join(spec.Outputs, ","),
	}
}

// Realize asks the backend whether spec is realizable.
func (s *Synthesizer) Realize(ctx context.Context, spec *Spec) (*Result, error) {
	if len(spec.Outputs) == 0 {
		return nil, errors.New("realize: specification has no outputs")
	}
	res, err := s.Exec.Execute(ctx, s.Binary, Args(spec))
	if err != nil {
		return nil, fmt.Errorf("realize: %w", err)
	}
	if res.TimedOut {
		s.Log.Warn("synthesis timed out", "binary", s.Binary, "duration", res.Duration)
		return &Result{TimedOut: true, Duration: res.Duration, Output: string(res.Stdout)}, nil
	}
	out, err := ParseResult(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("realize (exit %d): %w: %s", res.ExitCode, err, strings.TrimSpace(string(res.Stderr)))
	}
	out.Duration = res.Duration
	s.Log.Debug("synthesis verdict", "realizable", out.Realizable, "duration", res.Duration)
	return out, nil
}

// ParseResult reads the verdict from the first token of out and, when
// realizable, the embedded digraph.
func ParseResult(out []byte) (*Result, error) {
	text := string(out)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, errors.New("empty synthesis output")
	}
	r := &Result{Output: text}
	switch fields[0] {
	case "REALIZABLE":
		r.Realizable = true
		r.Strategy = digraph(text)
	case "UNREALIZABLE":
	default:
		return nil, fmt.Errorf("unexpected synthesis verdict %q", fields[0])
	}
	return r, nil
}

// digraph extracts the first balanced "digraph ... { ... }" block.
func digraph(text string) string {
	start := strings.Index(text, "digraph")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// Export builds the synthesis problem of the subtree rooted at id.
// Variables the assumptions mention are inputs; the other guarantee
// variables are outputs.
func Export(ctx context.Context, tr *cgt.Tree, id cgt.NodeID) (*Spec, error) {
	n, ok := tr.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", cgt.ErrUnknownGoal, id)
	}
	a := tr.Assumption(id)
	ok, err := tr.Checker().Satisfiable(ctx, a)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: assumptions of %q are unsatisfiable: %s", ErrInternalInvariant, n.Name, a.Text())
	}

	spec := &Spec{}
	if len(n.Contracts) == 1 {
		c := n.Contracts[0]
		for _, f := range c.Assumptions() {
			spec.Assumptions = append(spec.Assumptions, f.Text())
		}
		g := c.UnsaturatedGuarantee()
		if !g.IsTrue() {
			for _, f := range c.Guarantees() {
				spec.Guarantees = append(spec.Guarantees, f.Unsaturated())
			}
		}
	} else {
		if !a.IsTrue() {
			spec.Assumptions = []string{a.Text()}
		}
		spec.Guarantees = []string{tr.Guarantee(id).Text()}
	}

	vars, err := tr.Vars(id)
	if err != nil {
		return nil, err
	}
	for _, v := range vars.Sorted() {
		if v.Type.Kind != ltl.Boolean {
			return nil, fmt.Errorf("export %q: variable %s is %s; synthesis takes boolean variables only", n.Name, v.Name, v.Type)
		}
	}
	spec.Inputs, spec.Outputs = partition(spec)
	return spec, nil
}

func partition(spec *Spec) (inputs, outputs []string) {
	env := namesOf(append(append([]string(nil), spec.Assumptions...), spec.Constraints...))
	sys := namesOf(spec.Guarantees)
	for name := range env {
		inputs = append(inputs, name)
	}
	for name := range sys {
		if !env[name] {
			outputs = append(outputs, name)
		}
	}
	sort.Strings(inputs)
	sort.Strings(outputs)
	return inputs, outputs
}

func namesOf(texts []string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range texts {
		n, err := ltl.Parse(t)
		if err != nil {
			continue
		}
		for _, name := range n.Vars() {
			out[name] = true
		}
	}
	return out
}
