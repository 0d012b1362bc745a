package mission

import (
	"context"
	"fmt"

	"github.com/ormasoftchile/cgt/pkg/kernel/cgt"
	"github.com/ormasoftchile/cgt/pkg/kernel/contexts"
	"github.com/ormasoftchile/cgt/pkg/kernel/contract"
	"github.com/ormasoftchile/cgt/pkg/kernel/library"
	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
	"github.com/ormasoftchile/cgt/pkg/kernel/patterns"
)

// Mission is a document built into a goal tree.
type Mission struct {
	Document *Document
	Tree     *cgt.Tree
	Vars     ltl.VariableSet
	// Goals are the leaf goal ids in document order.
	Goals   []cgt.NodeID
	Rules   []ltl.Formula
	Library *library.Library
}

// Build adds the document's goals to tr as leaves, derives the context
// rules and builds the component library. The document should have passed
// Validate.
func Build(ctx context.Context, doc *Document, tr *cgt.Tree) (*Mission, error) {
	vars, err := doc.VariableSet()
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	rules, err := doc.Rules.Derive(vars)
	if err != nil {
		return nil, err
	}
	m := &Mission{Document: doc, Tree: tr, Vars: vars, Rules: rules}

	ck := tr.Checker()
	if doc.Library != nil {
		m.Library = library.New(doc.Library.Name)
		for _, c := range doc.Library.Components {
			comp, err := library.NewComponent(ctx, ck, c.ID, c.Description, vars, c.Assumptions, c.Guarantees)
			if err != nil {
				return nil, err
			}
			m.Library.Add(comp)
		}
	}

	for _, g := range doc.Goals {
		cs, err := goalContracts(ctx, ck, vars, g)
		if err != nil {
			return nil, fmt.Errorf("goal %s: %w", g.Name, err)
		}
		goalCtx := ltl.True()
		if g.Context != "" {
			if goalCtx, err = patterns.Context(g.Context, vars); err != nil {
				return nil, fmt.Errorf("goal %s: context: %w", g.Name, err)
			}
		}
		id, err := tr.AddGoal(ctx, g.Name, g.Description, goalCtx, cs...)
		if err != nil {
			return nil, err
		}
		m.Goals = append(m.Goals, id)
	}
	return m, nil
}

func goalContracts(ctx context.Context, ck *ltl.Checker, vars ltl.VariableSet, g Goal) ([]*contract.Contract, error) {
	if g.Pattern != nil {
		p, err := patterns.Build(g.Pattern.Name, g.Pattern.Args...)
		if err != nil {
			return nil, err
		}
		c, err := p.Contract(ctx, ck, vars)
		if err != nil {
			return nil, err
		}
		return []*contract.Contract{c}, nil
	}
	cs := make([]*contract.Contract, 0, len(g.Contracts))
	for i, spec := range g.Contracts {
		c, err := contract.FromText(ctx, ck, vars, spec.Assumptions, spec.Guarantees)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", i, err)
		}
		cs = append(cs, c)
	}
	return cs, nil
}

// Assemble maps the goals flagged for mapping onto the library and then
// builds the contextual goal tree over all goals.
func (m *Mission) Assemble(ctx context.Context) (cgt.NodeID, *contexts.Partition, error) {
	for i, g := range m.Document.Goals {
		if !g.Map {
			continue
		}
		if m.Library == nil {
			return cgt.NoNode, nil, fmt.Errorf("goal %s: no component library", g.Name)
		}
		if _, err := m.Tree.Mapping(ctx, m.Goals[i], m.Library); err != nil {
			return cgt.NoNode, nil, err
		}
	}
	return m.Tree.CreateCGT(ctx, m.Goals, m.Rules)
}
