// Package mission defines the YAML mission document: typed variables,
// context rules, goals written as patterns or raw contracts, and a component
// library. Documents are decoded strictly, validated in three phases and
// built into a goal tree.
package mission

import (
	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

// APIVersion is the only document version understood.
const APIVersion = "cgt/v0"

// Document is a mission file.
type Document struct {
	APIVersion string        `yaml:"apiVersion"          json:"apiVersion"          jsonschema:"required,enum=cgt/v0"`
	Meta       Meta          `yaml:"meta"                json:"meta"                jsonschema:"required"`
	Variables  []Variable    `yaml:"variables,omitempty" json:"variables,omitempty"`
	Rules      contexts.Rules `yaml:"rules,omitempty"     json:"rules,omitempty"`
	Goals      []Goal        `yaml:"goals"               json:"goals"               jsonschema:"required,minItems=1"`
	Library    *Library      `yaml:"library,omitempty"   json:"library,omitempty"`
}

// Meta names the mission.
type Meta struct {
	Name        string `yaml:"name"                  json:"name"                  jsonschema:"required,minLength=1"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Variable declares a typed proposition. Type is "boolean" or "lo..hi".
// Port marks the variable as an instance of a generic port type.
type Variable struct {
	Name string `yaml:"name"           json:"name"           jsonschema:"required,minLength=1"`
	Type string `yaml:"type"           json:"type"           jsonschema:"required,pattern=^(boolean|bool|-?[0-9]+[.][.]-?[0-9]+)$"`
	Port string `yaml:"port,omitempty" json:"port,omitempty"`
}

// Goal is either a pattern application or a list of alternative contracts.
// Context restricts the operating situations the goal applies to.
type Goal struct {
	Name        string         `yaml:"name"                  json:"name"                  jsonschema:"required,minLength=1"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Context     string         `yaml:"context,omitempty"     json:"context,omitempty"`
	Pattern     *PatternRef    `yaml:"pattern,omitempty"     json:"pattern,omitempty"`
	Contracts   []ContractSpec `yaml:"contracts,omitempty"   json:"contracts,omitempty"`
	// Map implements the goal with components of the library.
	Map bool `yaml:"map,omitempty" json:"map,omitempty"`
}

// PatternRef applies a catalogue pattern.
type PatternRef struct {
	Name string   `yaml:"name" json:"name" jsonschema:"required"`
	Args []string `yaml:"args" json:"args" jsonschema:"required,minItems=1"`
}

// ContractSpec is an assume/guarantee pair as formula texts.
type ContractSpec struct {
	Assumptions []string `yaml:"assumptions,omitempty" json:"assumptions,omitempty"`
	Guarantees  []string `yaml:"guarantees"            json:"guarantees"            jsonschema:"required,minItems=1"`
}

// Library is the component library goals are mapped against.
type Library struct {
	Name       string      `yaml:"name,omitempty" json:"name,omitempty"`
	Components []Component `yaml:"components"     json:"components"     jsonschema:"required"`
}

// Component is a library entry.
type Component struct {
	ID          string   `yaml:"id"                    json:"id"                    jsonschema:"required,minLength=1"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Assumptions []string `yaml:"assumptions,omitempty" json:"assumptions,omitempty"`
	Guarantees  []string `yaml:"guarantees"            json:"guarantees"            jsonschema:"required,minItems=1"`
}

// VariableSet converts the declarations into a typed variable set.
func (d *Document) VariableSet() (ltl.VariableSet, error) {
	vs := make([]ltl.Variable, 0, len(d.Variables))
	for _, v := range d.Variables {
		typ, err := ltl.ParseType(v.Type)
		if err != nil {
			return ltl.VariableSet{}, err
		}
		vs = append(vs, ltl.Variable{Name: v.Name, Type: typ, Port: v.Port})
	}
	return ltl.NewVariableSet(vs...)
}
