package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/cgt/pkg/config"
	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
	"github.com/ormasoftchile/cgt/pkg/mission"
	"github.com/ormasoftchile/cgt/pkg/oracle"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config  string
	oracle  string
	bound   int
	verbose bool
	metrics string
	trace   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "cgt",
		Short:         "Contract-based Goal Trees",
		Long:          "cgt builds contract-based goal trees from mission documents: context clustering, composition, conjunction, component mapping and synthesis export.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "Path to a cgt config YAML file")
	pf.StringVar(&g.oracle, "oracle", "", "Oracle backend: bmc or nusmv (overrides config)")
	pf.IntVar(&g.bound, "bound", 0, "Lasso bound of the bmc oracle (overrides config)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Log every operation at debug level")
	pf.StringVar(&g.metrics, "metrics", "", "Write oracle metrics to this textfile on exit")
	pf.StringVar(&g.trace, "trace", "", "Append oracle queries and tree operations to this JSONL file")

	root.AddCommand(
		newValidateCmd(),
		newBuildCmd(g),
		newDiagramCmd(g),
		newExportCmd(g),
		newRealizeCmd(g),
		newSchemaCmd(),
		newPatternsCmd(),
		newTraceCmd(),
		newVersionCmd(),
	)
	return root
}

// session carries what a command run shares: configuration, logger and
// the optional trace sink.
type session struct {
	cfg *config.Config
	log *slog.Logger
	tw  *trace.Writer
	g   *globalFlags
}

func (g *globalFlags) open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadFile(g.config)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("oracle") {
		cfg.Oracle.Backend = g.oracle
	}
	if cmd.Flags().Changed("bound") {
		cfg.Oracle.Bound = g.bound
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	s := &session{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
		g:   g,
	}
	tracePath := g.trace
	if tracePath == "" {
		tracePath = cfg.Oracle.Trace
	}
	if tracePath != "" {
		if s.tw, err = trace.NewFileWriter(tracePath, ""); err != nil {
			return nil, err
		}
		s.log.Debug("tracing", "path", tracePath, "run_id", s.tw.RunID())
	}
	return s, nil
}

func (s *session) close() {
	if s.tw != nil {
		s.tw.Close()
	}
	if s.g.metrics != "" {
		if err := oracle.WriteMetrics(s.g.metrics); err != nil {
			s.log.Warn("write metrics", "path", s.g.metrics, "error", err)
		}
	}
}

// --- validate ---

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [mission.yaml]",
		Short: "Validate a mission YAML file against the schema and domain rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0])
		},
	}
}

func runValidate(stdout, stderr io.Writer, path string) error {
	doc, errs := mission.ValidateFile(path)
	var errors []*mission.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(stderr, "  %s [%s] %s\n", warnStyle.Render("⚠"), e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "    at: %s\n", e.Path)
			}
			continue
		}
		errors = append(errors, e)
	}
	if len(errors) > 0 {
		fmt.Fprintf(stderr, "%s %d error(s)\n\n", errStyle.Render("Validation failed:"), len(errors))
		for i, e := range errors {
			fmt.Fprintf(stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errors))
	}
	fmt.Fprintf(stdout, "%s %s is valid (%d goals, %d variables)\n", okStyle.Render("✓"), doc.Meta.Name, len(doc.Goals), len(doc.Variables))
	return nil
}

// --- schema ---

func newSchemaCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export the mission JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := mission.GenerateJSONSchema()
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write schema: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write the schema to this file instead of stdout")
	return cmd
}

// --- version ---

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cgt %s (%s)\n", version, commit)
		},
	}
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}
