package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/cgt/pkg/kernel/trace"
)

func newTraceCmd() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Trace file operations",
	}
	traceCmd.AddCommand(&cobra.Command{
		Use:   "summary [trace.jsonl]",
		Short: "Summarize a trace file: events per run and type, conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open trace: %w", err)
			}
			defer f.Close()
			return summarize(cmd.OutOrStdout(), f)
		},
	})
	return traceCmd
}

func summarize(w io.Writer, r io.Reader) error {
	events, err := trace.ReadAll(r)
	if err != nil {
		return err
	}
	runs := make(map[string]bool)
	counts := make(map[trace.EventType]int)
	var conflicts []trace.Event
	for _, e := range events {
		runs[e.RunID] = true
		counts[e.Type]++
		if e.Type == trace.EventConflict {
			conflicts = append(conflicts, e)
		}
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	fmt.Fprintf(w, "%d events, %d run(s)\n", len(events), len(runs))
	for _, t := range types {
		fmt.Fprintf(w, "  %-20s %d\n", t, counts[trace.EventType(t)])
	}
	for _, c := range conflicts {
		fmt.Fprintf(w, "%s %v / %v: %v\n", errStyle.Render("✗ conflict"), c.Data["left"], c.Data["right"], c.Data["message"])
	}
	return nil
}
