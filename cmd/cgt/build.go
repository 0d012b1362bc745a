package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/cgt/pkg/diagram"
	"github.com/ormasoftchile/cgt/pkg/executor"
	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/patterns"
	"github.com/ormasoftchile/cgt/pkg/mission"
	"github.com/ormasoftchile/cgt/pkg/synthesis"
)

// assemble validates, builds and assembles the mission at path.
func (s *session) assemble(ctx context.Context, path string) (*mission.Mission, cgt.NodeID, *contexts.Partition, error) {
	doc, errs := mission.ValidateFile(path)
	if mission.HasErrors(errs) {
		return nil, cgt.NoNode, nil, fmt.Errorf("%s is invalid, run: cgt validate %s", path, path)
	}
	tr, err := s.cfg.NewTree(s.tw, s.log)
	if err != nil {
		return nil, cgt.NoNode, nil, err
	}
	if s.tw != nil {
		s.tw.EmitRunStart(doc.Meta.Name, map[string]any{
			"goals":   len(doc.Goals),
			"backend": s.cfg.Oracle.Backend,
			"mode":    s.cfg.Policy.ContextMode,
		})
	}
	start := time.Now()
	m, err := mission.Build(ctx, doc, tr)
	if err != nil {
		return nil, cgt.NoNode, nil, fmt.Errorf("build %s: %w", doc.Meta.Name, err)
	}
	root, p, err := m.Assemble(ctx)
	status := "success"
	if err != nil {
		status = "failed"
	}
	if s.tw != nil {
		s.tw.EmitRunComplete(status, time.Since(start))
	}
	s.log.Info("assembled", "mission", doc.Meta.Name, "status", status, "duration", time.Since(start))
	return m, root, p, err
}

// reportFailure prints a conflict with both goals' formulas.
func reportFailure(w io.Writer, err error) {
	var conflict *cgt.ConflictError
	if errors.As(err, &conflict) {
		fmt.Fprintln(w, errStyle.Render("✗ conflicting goals"))
		fmt.Fprint(w, indent(conflict.Pretty(), "  "))
		return
	}
	var compose *cgt.ComposeError
	if errors.As(err, &compose) {
		fmt.Fprintf(w, "%s %s\n", errStyle.Render("✗ cannot compose"), strings.Join(compose.Goals, ", "))
	}
}

// --- build ---

func newBuildCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "build [mission.yaml]",
		Short: "Build the contextual goal tree of a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			return s.runBuild(cmd.Context(), cmd.OutOrStdout(), args[0], diagram.Format(format))
		},
	}
	cmd.Flags().StringVar(&format, "format", string(diagram.FormatASCII), "Tree rendering: ascii or mermaid")
	return cmd
}

func (s *session) runBuild(ctx context.Context, w io.Writer, path string, format diagram.Format) error {
	m, root, p, err := s.assemble(ctx, path)
	if err != nil {
		reportFailure(w, err)
		return err
	}
	out, err := diagram.Generate(m.Tree, root, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, headStyle.Render("Contexts"))
	fmt.Fprint(w, indent(diagram.Contexts(p), "  "))
	fmt.Fprintln(w)
	fmt.Fprintln(w, headStyle.Render("Goal tree"))
	fmt.Fprint(w, out)
	fmt.Fprintf(w, "\n%s %s: root %s, %d nodes\n", okStyle.Render("✓"), m.Document.Meta.Name, m.Tree.Name(root), m.Tree.Len())
	return nil
}

// --- diagram ---

func newDiagramCmd(g *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "diagram [mission.yaml]",
		Short: "Render the goal tree of a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			m, root, _, err := s.assemble(cmd.Context(), args[0])
			if err != nil {
				reportFailure(cmd.ErrOrStderr(), err)
				return err
			}
			out, err := diagram.Generate(m.Tree, root, diagram.Format(format))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(diagram.FormatMermaid), "Diagram format: mermaid or ascii")
	return cmd
}

// --- export ---

func newExportCmd(g *globalFlags) *cobra.Command {
	var out, node string
	cmd := &cobra.Command{
		Use:   "export [mission.yaml]",
		Short: "Export the synthesis specification of a mission's goal tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			spec, err := s.export(cmd.Context(), args[0], node)
			if err != nil {
				reportFailure(cmd.ErrOrStderr(), err)
				return err
			}
			if out == "" {
				return spec.Write(cmd.OutOrStdout())
			}
			if err := os.WriteFile(out, []byte(spec.String()), 0o644); err != nil {
				return fmt.Errorf("write specification: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Specification written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write the specification to this file instead of stdout")
	cmd.Flags().StringVar(&node, "node", "", "Export the subtree rooted at this goal instead of the root")
	return cmd
}

func (s *session) export(ctx context.Context, path, node string) (*synthesis.Spec, error) {
	m, root, _, err := s.assemble(ctx, path)
	if err != nil {
		return nil, err
	}
	if node != "" {
		if root, err = m.Tree.Lookup(node); err != nil {
			return nil, err
		}
	}
	return synthesis.Export(ctx, m.Tree, root)
}

// --- realize ---

func newRealizeCmd(g *globalFlags) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "realize [mission.yaml | spec.txt]",
		Short: "Check realizability with the synthesis backend",
		Long:  "Realize exports a mission (or reads an exported specification) and asks the synthesis backend whether a controller exists.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			return s.runRealize(cmd.Context(), cmd.OutOrStdout(), args[0], strategy, nil)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "Write the controller (DOT) to this file when realizable")
	return cmd
}

func (s *session) runRealize(ctx context.Context, w io.Writer, path, strategy string, exec executor.CommandExecutor) error {
	var spec *synthesis.Spec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var err error
		if spec, err = s.export(ctx, path, ""); err != nil {
			reportFailure(w, err)
			return err
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open specification: %w", err)
		}
		spec, err = synthesis.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	if exec == nil {
		exec = &executor.RealExecutor{Timeout: s.cfg.Synthesis.Timeout}
	}
	syn := synthesis.New(s.cfg.Synthesis.Binary, exec)
	syn.Log = s.log
	res, err := syn.Realize(ctx, spec)
	if err != nil {
		return err
	}
	switch {
	case res.TimedOut:
		fmt.Fprintf(w, "%s no verdict within %s\n", warnStyle.Render("⚠ TIMEOUT"), s.cfg.Synthesis.Timeout)
		return fmt.Errorf("synthesis timed out")
	case !res.Realizable:
		fmt.Fprintf(w, "%s %s\n", errStyle.Render("✗ UNREALIZABLE"), dimStyle.Render(res.Duration.String()))
		return fmt.Errorf("specification is unrealizable")
	}
	fmt.Fprintf(w, "%s %s\n", okStyle.Render("✓ REALIZABLE"), dimStyle.Render(res.Duration.String()))
	if strategy != "" && res.Strategy != "" {
		if err := os.WriteFile(strategy, []byte(res.Strategy+"\n"), 0o644); err != nil {
			return fmt.Errorf("write strategy: %w", err)
		}
		fmt.Fprintf(w, "Strategy written to %s\n", strategy)
	}
	return nil
}

// --- patterns ---

func newPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List the specification patterns goals can be written with",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			for _, info := range patterns.Catalogue() {
				fmt.Fprintf(w, "%-24s %-9s %s\n", info.Name, info.Arity, dimStyle.Render(info.Doc))
			}
			fmt.Fprintf(w, "\nscopes: %s\n", strings.Join(patterns.ScopeNames(), ", "))
		},
	}
}
