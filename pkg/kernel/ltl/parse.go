package ltl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Op identifies the operator at an AST node.
type Op int

const (
	OpTrue Op = iota
	OpFalse
	OpVar
	OpNum
	OpNot
	OpAnd
	OpOr
	OpImplies
	OpIff
	OpNext
	OpFinally
	OpGlobally
	OpUntil
	OpWeakUntil
	OpRelease
	OpCmp   // Sym is one of = != < <= > >=
	OpArith // Sym is one of + - * / mod
	OpNeg
)

// Node is a parsed LTL formula. Atoms are comparisons over variables or
// boolean variables; arithmetic appears only below a comparison.
type Node struct {
	Op    Op
	Sym   string
	Name  string
	Value int
	Args  []*Node
}

// Parse reads the model-checker flavoured LTL syntax used throughout the
// kernel: ! & | -> <-> X F G U W R V, comparisons and integer arithmetic.
func Parse(text string) (*Node, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: text}
	if len(toks) == 0 {
		return &Node{Op: OpTrue}, nil
	}
	n, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("parse %q: unexpected %q", text, p.toks[p.pos].text)
	}
	return n, nil
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokNum
	tokSym
)

type token struct {
	kind tokKind
	text string
}

var symbols = []string{"<->", "->", "<=", ">=", "!=", "==", "&&", "||", "(", ")", "!", "~", "&", "|", "=", "<", ">", "+", "-", "*", "/"}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		r := rune(s[i])
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(s) && isIdentRune(rune(s[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: s[i:j]})
			i = j
		case unicode.IsDigit(r):
			j := i + 1
			for j < len(s) && unicode.IsDigit(rune(s[j])) {
				j++
			}
			toks = append(toks, token{kind: tokNum, text: s[i:j]})
			i = j
		default:
			matched := false
			for _, sym := range symbols {
				if strings.HasPrefix(s[i:], sym) {
					toks = append(toks, token{kind: tokSym, text: normalizeSym(sym)})
					i += len(sym)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("parse %q: unexpected character %q at %d", s, s[i], i)
			}
		}
	}
	return toks, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '$' || r == '#'
}

func normalizeSym(s string) string {
	switch s {
	case "&&":
		return "&"
	case "||":
		return "|"
	case "==":
		return "="
	case "~":
		return "!"
	}
	return s
}

type binop struct {
	prec  int
	right bool
	op    Op
}

var binops = map[string]binop{
	"<->": {1, true, OpIff},
	"->":  {2, true, OpImplies},
	"|":   {3, false, OpOr},
	"&":   {4, false, OpAnd},
	"U":   {5, true, OpUntil},
	"W":   {5, true, OpWeakUntil},
	"R":   {5, true, OpRelease},
	"V":   {5, true, OpRelease},
	"=":   {6, false, OpCmp},
	"!=":  {6, false, OpCmp},
	"<":   {6, false, OpCmp},
	"<=":  {6, false, OpCmp},
	">":   {6, false, OpCmp},
	">=":  {6, false, OpCmp},
	"+":   {7, false, OpArith},
	"-":   {7, false, OpArith},
	"*":   {8, false, OpArith},
	"/":   {8, false, OpArith},
	"mod": {8, false, OpArith},
}

// prefix operators take an operand at comparison level, so "G x > 5"
// reads as G(x > 5) and "G a & b" as (G a) & b.
const prefixOperandPrec = 6

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) binary(minPrec int) (*Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return left, nil
		}
		bo, isOp := binops[t.text]
		if !isOp || t.kind == tokNum || bo.prec < minPrec {
			return left, nil
		}
		p.pos++
		next := bo.prec + 1
		if bo.right {
			next = bo.prec
		}
		right, err := p.binary(next)
		if err != nil {
			return nil, err
		}
		n := &Node{Op: bo.op, Args: []*Node{left, right}}
		if bo.op == OpCmp || bo.op == OpArith {
			n.Sym = t.text
		}
		left = n
	}
}

func (p *parser) unary() (*Node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("parse %q: unexpected end of formula", p.src)
	}
	p.pos++
	switch {
	case t.kind == tokSym && t.text == "(":
		inner, err := p.binary(0)
		if err != nil {
			return nil, err
		}
		if c, ok := p.peek(); !ok || c.text != ")" {
			return nil, fmt.Errorf("parse %q: missing )", p.src)
		}
		p.pos++
		return inner, nil
	case t.kind == tokSym && t.text == "!":
		return p.prefix(OpNot)
	case t.kind == tokSym && t.text == "-":
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Node{Op: OpNeg, Args: []*Node{operand}}, nil
	case t.kind == tokNum:
		v, err := strconv.Atoi(t.text)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", p.src, err)
		}
		return &Node{Op: OpNum, Value: v}, nil
	case t.kind == tokIdent:
		switch t.text {
		case "TRUE", "true":
			return &Node{Op: OpTrue}, nil
		case "FALSE", "false":
			return &Node{Op: OpFalse}, nil
		case "X":
			return p.prefix(OpNext)
		case "F":
			return p.prefix(OpFinally)
		case "G":
			return p.prefix(OpGlobally)
		}
		return &Node{Op: OpVar, Name: t.text}, nil
	}
	return nil, fmt.Errorf("parse %q: unexpected %q", p.src, t.text)
}

func (p *parser) prefix(op Op) (*Node, error) {
	operand, err := p.binary(prefixOperandPrec)
	if err != nil {
		return nil, err
	}
	return &Node{Op: op, Args: []*Node{operand}}, nil
}

// String renders the node in model-checker syntax, fully parenthesized.
func (n *Node) String() string {
	switch n.Op {
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	case OpVar:
		return n.Name
	case OpNum:
		return strconv.Itoa(n.Value)
	case OpNeg:
		return "-" + n.Args[0].String()
	case OpNot:
		return "!(" + n.Args[0].String() + ")"
	case OpNext:
		return "X (" + n.Args[0].String() + ")"
	case OpFinally:
		return "F (" + n.Args[0].String() + ")"
	case OpGlobally:
		return "G (" + n.Args[0].String() + ")"
	}
	return "(" + n.Args[0].String() + " " + n.symbol() + " " + n.Args[1].String() + ")"
}

func (n *Node) symbol() string {
	switch n.Op {
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpImplies:
		return "->"
	case OpIff:
		return "<->"
	case OpUntil:
		return "U"
	case OpWeakUntil:
		return "W"
	case OpRelease:
		return "V"
	}
	return n.Sym
}

// Vars returns the sorted, distinct identifiers referenced by the formula.
func (n *Node) Vars() []string {
	seen := make(map[string]struct{})
	n.walk(func(m *Node) {
		if m.Op == OpVar {
			seen[m.Name] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Temporal reports whether any temporal operator occurs in the formula.
func (n *Node) Temporal() bool {
	found := false
	n.walk(func(m *Node) {
		switch m.Op {
		case OpNext, OpFinally, OpGlobally, OpUntil, OpWeakUntil, OpRelease:
			found = true
		}
	})
	return found
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, a := range n.Args {
		a.walk(fn)
	}
}

// ExprString renders an atom (comparison or arithmetic subtree) in the
// syntax of github.com/expr-lang/expr.
func (n *Node) ExprString() string {
	switch n.Op {
	case OpTrue:
		return "true"
	case OpFalse:
		return "false"
	case OpVar:
		return n.Name
	case OpNum:
		return strconv.Itoa(n.Value)
	case OpNeg:
		return "(-" + n.Args[0].ExprString() + ")"
	case OpNot:
		return "(!" + n.Args[0].ExprString() + ")"
	case OpCmp, OpArith:
		sym := n.Sym
		switch sym {
		case "=":
			sym = "=="
		case "mod":
			sym = "%"
		}
		return "(" + n.Args[0].ExprString() + " " + sym + " " + n.Args[1].ExprString() + ")"
	}
	return n.String()
}
