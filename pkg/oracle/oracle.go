// Package oracle provides the decision procedures behind ltl.Oracle: an
// external NuSMV/nuXmv subprocess, an in-process bounded gini search, and
// the memoizing and tracing wrappers placed in front of either.
package oracle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ormasoftchile/cgt/pkg/executor"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
)

const (
	BackendBMC   = "bmc"
	BackendNuSMV = "nusmv"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Binary  string
	Bound   int
	Timeout time.Duration
	Cache   bool
	Trace   *trace.Writer
	Logger  *slog.Logger
}

// New assembles the oracle stack: backend, then trace, then memo.
func New(opts Options) (ltl.Oracle, error) {
	var o ltl.Oracle
	switch opts.Backend {
	case "", BackendBMC:
		o = NewBMC(WithBound(opts.Bound), WithBMCLogger(opts.Logger))
	case BackendNuSMV:
		n := NewNuSMV(opts.Binary, &executor.RealExecutor{Timeout: opts.Timeout})
		if opts.Logger != nil {
			n.Log = opts.Logger
		}
		o = n
	default:
		return nil, fmt.Errorf("unknown oracle backend %q: expected %q or %q", opts.Backend, BackendBMC, BackendNuSMV)
	}
	if opts.Trace != nil {
		o = NewTraced(o, opts.Trace)
	}
	if opts.Cache {
		o = NewMemo(o)
	}
	return o, nil
}
