// Package config loads the cgt configuration file: the oracle backend, the
// synthesis backend and the policy switches every engine is built with.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/library"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
	"github.com/ormasoftchile/cgt/pkg/oracle"
)

// Config is the top-level configuration document.
type Config struct {
	Oracle    Oracle    `yaml:"oracle"    json:"oracle"`
	Synthesis Synthesis `yaml:"synthesis" json:"synthesis"`
	Policy    Policy    `yaml:"policy"    json:"policy"`
}

// Oracle selects the decision procedure behind every logical query.
type Oracle struct {
	Backend string        `yaml:"backend" json:"backend"`
	Binary  string        `yaml:"binary"  json:"binary"`
	Bound   int           `yaml:"bound"   json:"bound"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Cache   bool          `yaml:"cache"   json:"cache"`
	// Trace is a JSONL file receiving one event per query. Empty disables it.
	Trace string `yaml:"trace,omitempty" json:"trace,omitempty"`
}

// Synthesis configures the reactive synthesis backend.
type Synthesis struct {
	Binary  string        `yaml:"binary"  json:"binary"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Policy holds the switches that change what the operations compute.
type Policy struct {
	UseSaturatedGuarantees bool   `yaml:"use_saturated_guarantees" json:"use_saturated_guarantees"`
	ContextMode            string `yaml:"context_mode"             json:"context_mode"`
	KeepSmallerContext     bool   `yaml:"keep_smaller_context"     json:"keep_smaller_context"`
	ComposeWithContext     bool   `yaml:"compose_with_context"     json:"compose_with_context"`
	VerifyDisjoint         bool   `yaml:"verify_disjoint"          json:"verify_disjoint"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Oracle: Oracle{
			Backend: oracle.BackendBMC,
			Binary:  "NuSMV",
			Bound:   4,
			Timeout: 30 * time.Second,
			Cache:   true,
		},
		Synthesis: Synthesis{
			Binary:  "strix",
			Timeout: 60 * time.Second,
		},
		Policy: Policy{
			UseSaturatedGuarantees: true,
			ContextMode:            contexts.Mutex.String(),
			KeepSmallerContext:     true,
			ComposeWithContext:     true,
		},
	}
}

// LoadFile reads a configuration file. An empty path yields Default.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a configuration over the defaults. Unknown keys are
// rejected.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Oracle.Backend {
	case oracle.BackendBMC, oracle.BackendNuSMV:
	default:
		return fmt.Errorf("oracle.backend: unknown backend %q (bmc or nusmv)", c.Oracle.Backend)
	}
	if c.Oracle.Bound < 1 {
		return fmt.Errorf("oracle.bound: must be positive, got %d", c.Oracle.Bound)
	}
	if c.Oracle.Timeout < 0 || c.Synthesis.Timeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if _, err := contexts.ParseMode(c.Policy.ContextMode); err != nil {
		return fmt.Errorf("policy.context_mode: %w", err)
	}
	return nil
}

// OracleOptions converts the oracle section for oracle.New.
func (c *Config) OracleOptions(tw *trace.Writer, log *slog.Logger) oracle.Options {
	return oracle.Options{
		Backend: c.Oracle.Backend,
		Binary:  c.Oracle.Binary,
		Bound:   c.Oracle.Bound,
		Timeout: c.Oracle.Timeout,
		Cache:   c.Oracle.Cache,
		Trace:   tw,
		Logger:  log,
	}
}

// Checker builds the oracle stack and a checker carrying the saturation
// policy.
func (c *Config) Checker(tw *trace.Writer, log *slog.Logger) (*ltl.Checker, error) {
	o, err := oracle.New(c.OracleOptions(tw, log))
	if err != nil {
		return nil, err
	}
	return ltl.NewChecker(o,
		ltl.WithSaturatedGuarantees(c.Policy.UseSaturatedGuarantees),
		ltl.WithLogger(log),
	), nil
}

// ContextEngine builds the context engine the policy describes.
func (c *Config) ContextEngine(ck *ltl.Checker, log *slog.Logger) (*contexts.Engine, error) {
	mode, err := contexts.ParseMode(c.Policy.ContextMode)
	if err != nil {
		return nil, err
	}
	return contexts.NewEngine(ck,
		contexts.WithMode(mode),
		contexts.WithKeepSmallerContext(c.Policy.KeepSmallerContext),
		contexts.WithVerifyDisjoint(c.Policy.VerifyDisjoint),
		contexts.WithLogger(log),
	), nil
}

// NewTree wires an empty goal tree: oracle, checker, context engine and
// component selector, all sharing log and tw.
func (c *Config) NewTree(tw *trace.Writer, log *slog.Logger) (*cgt.Tree, error) {
	ck, err := c.Checker(tw, log)
	if err != nil {
		return nil, err
	}
	eng, err := c.ContextEngine(ck, log)
	if err != nil {
		return nil, err
	}
	return cgt.New(cgt.Config{
		Checker:            ck,
		Contexts:           eng,
		Selector:           library.NewSelector(ck, library.WithLogger(log), library.WithTrace(tw)),
		ComposeWithContext: c.Policy.ComposeWithContext,
		Trace:              tw,
		Logger:             log,
	}), nil
}
