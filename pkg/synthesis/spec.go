// Package synthesis is the boundary to an external reactive synthesis
// backend: the sectioned specification file, the backend invocation and
// the parsing of its verdict and strategy.
package synthesis

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Section headers, in file order.
const (
	SectionAssumptions = "ASSUMPTIONS"
	SectionConstraints = "CONSTRAINTS"
	SectionGuarantees  = "GUARANTEES"
	SectionInputs      = "INPUTS"
	SectionOutputs     = "OUTPUTS"
	SectionEnd         = "END"
)

// Spec is a synthesis problem: the environment assumes Assumptions and
// Constraints, the controller must guarantee Guarantees, reading Inputs and
// driving Outputs.
type Spec struct {
	Assumptions []string
	Constraints []string
	Guarantees  []string
	Inputs      []string
	Outputs     []string
}

// Assumption conjoins assumptions and constraints. Empty means TRUE.
func (s *Spec) Assumption() string {
	return conjoin(append(append([]string(nil), s.Assumptions...), s.Constraints...))
}

// Guarantee conjoins the guarantees.
func (s *Spec) Guarantee() string { return conjoin(s.Guarantees) }

// Formula is the implication handed to the backend.
func (s *Spec) Formula() string {
	a, g := s.Assumption(), s.Guarantee()
	if a == "TRUE" {
		return g
	}
	return "(" + a + ") -> (" + g + ")"
}

func conjoin(fs []string) string {
	var parts []string
	for _, f := range fs {
		f = strings.TrimSpace(f)
		if f == "" || f == "TRUE" || f == "true" {
			continue
		}
		parts = append(parts, f)
	}
	switch len(parts) {
	case 0:
		return "TRUE"
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, ") & (") + ")"
}

// Write renders the sectioned file. CONSTRAINTS is omitted when empty.
func (s *Spec) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	section := func(name string, lines []string) {
		fmt.Fprintln(bw, name)
		for _, l := range lines {
			fmt.Fprintf(bw, "  %s\n", l)
		}
	}
	section(SectionAssumptions, s.Assumptions)
	if len(s.Constraints) > 0 {
		section(SectionConstraints, s.Constraints)
	}
	section(SectionGuarantees, s.Guarantees)
	section(SectionInputs, csvLine(s.Inputs))
	section(SectionOutputs, csvLine(s.Outputs))
	fmt.Fprintln(bw, SectionEnd)
	return bw.Flush()
}

// String is the sectioned file as text.
func (s *Spec) String() string {
	var b strings.Builder
	_ = s.Write(&b)
	return b.String()
}

func csvLine(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return []string{strings.Join(names, ", ")}
}

// Parse reads a sectioned file. '#' starts a comment; data lines belong to
// the last header; INPUTS and OUTPUTS lines are comma separated.
func Parse(r io.Reader) (*Spec, error) {
	s := &Spec{}
	var current string
	sc := bufio.NewScanner(r)
	lineNo := 0
	ended := false
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		indented := line[0] == ' ' || line[0] == '\t'
		if !indented {
			if text == SectionEnd {
				ended = true
				break
			}
			switch text {
			case SectionAssumptions, SectionConstraints, SectionGuarantees, SectionInputs, SectionOutputs:
				current = text
				continue
			}
			return nil, fmt.Errorf("line %d: unknown section %q", lineNo, text)
		}
		switch current {
		case SectionAssumptions:
			s.Assumptions = append(s.Assumptions, text)
		case SectionConstraints:
			s.Constraints = append(s.Constraints, text)
		case SectionGuarantees:
			s.Guarantees = append(s.Guarantees, text)
		case SectionInputs:
			s.Inputs = append(s.Inputs, splitCSV(text)...)
		case SectionOutputs:
			s.Outputs = append(s.Outputs, splitCSV(text)...)
		default:
			return nil, fmt.Errorf("line %d: data before the first section", lineNo)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read specification: %w", err)
	}
	if !ended {
		return nil, fmt.Errorf("missing %s", SectionEnd)
	}
	return s, nil
}

func splitCSV(line string) []string {
	var out []string
	for _, f := range strings.Split(line, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
