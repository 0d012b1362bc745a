package mission

import (
	"encoding/json"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/patterns"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "goals[0].context")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile performs the full 3-phase validation pipeline on a mission file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (variables, formulas, patterns, names)
func ValidateFile(path string) (*Document, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return doc, Validate(doc)
}

// Validate runs the semantic and domain phases on a decoded document.
func Validate(doc *Document) []*ValidationError {
	errs := validateSemantic(doc)
	return append(errs, ValidateDomain(doc)...)
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{
		Phase:    "semantic",
		Message:  fmt.Sprintf(format, args...),
		Severity: "error",
	}}
}

// validateSemantic validates the document against the generated JSON Schema.
func validateSemantic(doc *Document) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("mission-v0.json", schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile("mission-v0.json")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	var inst any
	if err := json.Unmarshal(data, &inst); err != nil {
		return semanticError("unmarshal document: %v", err)
	}
	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semanticError("%v", err)
	}
	var errs []*ValidationError
	for _, cause := range flatten(ve) {
		errs = append(errs, &ValidationError{
			Phase:    "semantic",
			Path:     strings.Join(cause.InstanceLocation, "/"),
			Message:  fmt.Sprintf("%v", cause.ErrorKind),
			Severity: "error",
		})
	}
	return errs
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}

type domainCheck struct {
	errs     []*ValidationError
	declared ltl.VariableSet
	used     map[string]bool
}

func (d *domainCheck) add(severity, path, format string, args ...any) {
	d.errs = append(d.errs, &ValidationError{
		Phase:    "domain",
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	})
}

// formula checks that text parses and mentions declared variables only.
func (d *domainCheck) formula(path, text string) {
	n, err := ltl.Parse(text)
	if err != nil {
		d.add("error", path, "invalid formula %q: %v", text, err)
		return
	}
	for _, name := range n.Vars() {
		d.used[name] = true
		if _, ok := d.declared.Lookup(name); !ok {
			d.add("error", path, "undeclared variable %q", name)
		}
	}
}

// ValidateDomain performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateDomain(doc *Document) []*ValidationError {
	d := &domainCheck{used: make(map[string]bool)}

	if doc.APIVersion != APIVersion {
		d.add("error", "apiVersion", "unrecognized apiVersion %q, expected %q", doc.APIVersion, APIVersion)
	}

	var vars []ltl.Variable
	seenVar := make(map[string]bool)
	for i, v := range doc.Variables {
		path := fmt.Sprintf("variables[%d]", i)
		if seenVar[v.Name] {
			d.add("error", path+".name", "duplicate variable %q", v.Name)
			continue
		}
		seenVar[v.Name] = true
		typ, err := ltl.ParseType(v.Type)
		if err != nil {
			d.add("error", path+".type", "%v", err)
			continue
		}
		vars = append(vars, ltl.Variable{Name: v.Name, Type: typ, Port: v.Port})
	}
	declared, err := ltl.NewVariableSet(vars...)
	if err != nil {
		d.add("error", "variables", "%v", err)
	}
	d.declared = declared

	rules := []struct {
		name   string
		groups [][]string
	}{
		{"mutex", doc.Rules.Mutex},
		{"inclusion", doc.Rules.Inclusion},
		{"dependent", doc.Rules.Dependent},
	}
	for _, r := range rules {
		for i, g := range r.groups {
			path := fmt.Sprintf("rules.%s[%d]", r.name, i)
			if len(g) < 2 {
				d.add("error", path, "a %s rule needs at least two propositions", r.name)
			}
			for _, p := range g {
				d.used[p] = true
				v, ok := declared.Lookup(p)
				switch {
				case !ok:
					d.add("error", path, "undeclared variable %q", p)
				case v.Type.Kind != ltl.Boolean:
					d.add("error", path, "variable %q is %s; context rules take boolean propositions", p, v.Type)
				}
			}
		}
	}

	hasLibrary := doc.Library != nil && len(doc.Library.Components) > 0
	seenGoal := make(map[string]bool)
	for i, g := range doc.Goals {
		path := fmt.Sprintf("goals[%d]", i)
		if seenGoal[g.Name] {
			d.add("error", path+".name", "duplicate goal name %q", g.Name)
		}
		seenGoal[g.Name] = true
		if g.Context != "" {
			d.formula(path+".context", g.Context)
		}
		switch {
		case g.Pattern != nil && len(g.Contracts) > 0:
			d.add("error", path, "goal %q has both a pattern and contracts", g.Name)
		case g.Pattern == nil && len(g.Contracts) == 0:
			d.add("error", path, "goal %q needs a pattern or at least one contract", g.Name)
		case g.Pattern != nil:
			p, err := patterns.Build(g.Pattern.Name, g.Pattern.Args...)
			if err != nil {
				d.add("error", path+".pattern", "%v", err)
				break
			}
			if n, err := ltl.Parse(p.Guarantee); err == nil {
				for _, name := range n.Vars() {
					d.used[name] = true
				}
			}
		default:
			for j, c := range g.Contracts {
				cpath := fmt.Sprintf("%s.contracts[%d]", path, j)
				for k, a := range c.Assumptions {
					d.formula(fmt.Sprintf("%s.assumptions[%d]", cpath, k), a)
				}
				for k, gt := range c.Guarantees {
					d.formula(fmt.Sprintf("%s.guarantees[%d]", cpath, k), gt)
				}
			}
		}
		if g.Map && !hasLibrary {
			d.add("error", path+".map", "goal %q is mapped but the mission has no component library", g.Name)
		}
	}

	if doc.Library != nil {
		seenComp := make(map[string]bool)
		for i, c := range doc.Library.Components {
			path := fmt.Sprintf("library.components[%d]", i)
			if seenComp[c.ID] {
				d.add("error", path+".id", "duplicate component id %q", c.ID)
			}
			seenComp[c.ID] = true
			for k, a := range c.Assumptions {
				d.formula(fmt.Sprintf("%s.assumptions[%d]", path, k), a)
			}
			for k, g := range c.Guarantees {
				d.formula(fmt.Sprintf("%s.guarantees[%d]", path, k), g)
			}
		}
	}

	for _, v := range doc.Variables {
		if !d.used[v.Name] {
			d.add("warning", "variables", "variable %q is never used", v.Name)
		}
	}
	return d.errs
}
