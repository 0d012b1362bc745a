package cgt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ormasoftchile/cgt/pkg/kernel/ltl"
)

var (
	// ErrDuplicateName is returned when a node name is already taken.
	ErrDuplicateName = errors.New("duplicate goal name")
	// ErrUnknownGoal is returned when a name or id does not resolve.
	ErrUnknownGoal = errors.New("unknown goal")
)

// ConflictError reports two goals of a conjunction whose assumptions can
// hold together while their guarantees cannot.
type ConflictError struct {
	Left, Right string
	// Assumptions and Guarantees hold the offending contract sides, left
	// first.
	Assumptions [2]ltl.Formula
	Guarantees  [2]ltl.Formula
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict between %s and %s: guarantees cannot hold together under shared assumptions", e.Left, e.Right)
}

// Pretty renders the conflicting contracts side by side for terminals.
func (e *ConflictError) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "conflict between %q and %q\n", e.Left, e.Right)
	for i, name := range []string{e.Left, e.Right} {
		fmt.Fprintf(&b, "  %s\n", name)
		fmt.Fprintf(&b, "    A: %s\n", e.Assumptions[i].Text())
		fmt.Fprintf(&b, "    G: %s\n", e.Guarantees[i].Text())
	}
	return b.String()
}

// ComposeError reports a composition where no tuple of child contracts
// composes.
type ComposeError struct {
	Goals []string
	Err   error
}

func (e *ComposeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot compose %s: %v", strings.Join(e.Goals, ", "), e.Err)
	}
	return fmt.Sprintf("cannot compose %s", strings.Join(e.Goals, ", "))
}

func (e *ComposeError) Unwrap() error { return e.Err }

// RefinementError reports a child whose guarantees no longer refine the
// guarantees of the node it implements.
type RefinementError struct {
	Node, Child string
}

func (e *RefinementError) Error() string {
	return fmt.Sprintf("%s does not refine the guarantees of %s", e.Child, e.Node)
}
