// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package expr

import (
	"encoding/base64"
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"nickandperla.net/scrap/internal/token"
)

var atom = math.Inf(1)

// powers returns the binding powers a node presents to its neighbours:
// Left to whatever precedes it, Right to whatever follows it.
func powers(n Node) token.Prec {
	switch n := n.(type) {
	case *Int:
		if n.Value.Sign() < 0 {
			return token.Prec{Left: 0, Right: atom}
		}
	case *Float:
		if math.Signbit(n.Value) {
			return token.Prec{Left: 0, Right: atom}
		}
	case *Variant:
		if n.Payload == nil {
			return token.Prec{Left: atom, Right: token.Precedence(token.Apply).Left}
		}
		return token.Prec{Left: atom, Right: token.Precedence(token.Apply).Right + 1}
	case *Binop:
		return token.Precedence(n.Op)
	case *Apply:
		return token.Precedence(token.Apply)
	case *Function:
		if _, ok := MatchCases(n); ok {
			return token.Prec{Left: atom, Right: token.Precedence("->").Right}
		}
		return token.Precedence("->")
	case *Match:
		return token.Precedence("|>")
	case *Where:
		return token.Precedence(".")
	case *Assert:
		return token.Precedence("?")
	case *Access:
		return token.Precedence("@")
	case *Assign:
		return token.Precedence("=")
	}
	return token.Prec{Left: atom, Right: atom}
}

// leftOf formats child as the left operand of an operator with power p.
func leftOf(child Node, p token.Prec) string {
	if powers(child).Right <= p.Left {
		return "(" + child.String() + ")"
	}
	return child.String()
}

// rightOf formats child as the right operand of an operator with power p.
func rightOf(child Node, p token.Prec) string {
	if powers(child).Left < p.Right {
		return "(" + child.String() + ")"
	}
	return child.String()
}

func (n *Int) String() string { return n.Value.String() }

func (n *Float) String() string { return FormatFloat(n.Value) }

// FormatFloat renders f so that it scans back as a float literal.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func (n *String) String() string { return Quote(n.Value) }

// Quote renders s as a string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case 0:
			sb.WriteString(`\0`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (n *Bytes) String() string { return "~~" + base64.StdEncoding.EncodeToString(n.Value) }

func (n *Hole) String() string { return "()" }

func (n *Var) String() string { return n.Name }

func (n *HashRef) String() string { return token.HashRefPrefix + hex.EncodeToString(n.Digest[:]) }

func (n *Variant) String() string {
	if n.Payload == nil {
		return "#" + n.Tag
	}
	return "#" + n.Tag + " " + rightOf(n.Payload, powers(n))
}

func (n *List) String() string {
	parts := make([]string, 0, len(n.Elems)+1)
	for _, e := range n.Elems {
		parts = append(parts, e.String())
	}
	if n.Spread != nil {
		parts = append(parts, "..."+n.Spread.Name)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (n *Record) String() string {
	eq := token.Precedence("=")
	parts := make([]string, 0, len(n.Fields)+1)
	for _, f := range n.Fields {
		parts = append(parts, f.Name+" = "+rightOf(f.Value, eq))
	}
	if n.Spread != nil {
		parts = append(parts, "..."+n.Spread.Name)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (n *Binop) String() string {
	p := token.Precedence(n.Op)
	return leftOf(n.Left, p) + " " + n.Op + " " + rightOf(n.Right, p)
}

func (n *Apply) String() string {
	p := token.Precedence(token.Apply)
	return leftOf(n.Func, p) + " " + rightOf(n.Arg, p)
}

func (n *Function) String() string {
	if cases, ok := MatchCases(n); ok {
		return formatCases(cases)
	}
	return n.Param.String() + " -> " + rightOf(n.Body, token.Precedence("->"))
}

func (n *Match) String() string {
	return leftOf(n.Scrutinee, token.Precedence("|>")) + " |> " + formatCases(n.Cases)
}

func formatCases(cases []Case) string {
	arrow := token.Precedence("->")
	var sb strings.Builder
	for i, c := range cases {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("| ")
		sb.WriteString(c.Pattern.String())
		if c.Guard != nil {
			sb.WriteString(" ? ")
			g := c.Guard.String()
			if p := powers(c.Guard); p.Left <= arrow.Left || p.Right <= arrow.Left {
				g = "(" + g + ")"
			}
			sb.WriteString(g)
		}
		sb.WriteString(" -> ")
		body := rightOf(c.Body, arrow)
		if fn, ok := c.Body.(*Function); ok && i < len(cases)-1 {
			if _, nested := MatchCases(fn); nested {
				body = "(" + c.Body.String() + ")"
			}
		}
		sb.WriteString(body)
	}
	return sb.String()
}

func (n *Where) String() string {
	p := token.Precedence(".")
	eq := token.Precedence("=")
	var sb strings.Builder
	if _, nested := n.Body.(*Where); nested {
		sb.WriteString("(" + n.Body.String() + ")")
	} else {
		sb.WriteString(leftOf(n.Body, p))
	}
	for _, b := range n.Bindings {
		sb.WriteString(" . ")
		sb.WriteString(b.Pattern.String())
		sb.WriteString(" = ")
		sb.WriteString(rightOf(b.Value, eq))
	}
	return sb.String()
}

func (n *Assign) String() string {
	return n.Pattern.String() + " = " + rightOf(n.Value, token.Precedence("="))
}

func (n *Access) String() string {
	p := token.Precedence("@")
	return leftOf(n.Target, p) + "@" + rightOf(n.Key, p)
}

func (n *Assert) String() string {
	p := token.Precedence("?")
	return leftOf(n.Value, p) + " ? " + rightOf(n.Cond, p)
}

func (*Wildcard) String() string { return "_" }

func (p *Bind) String() string { return p.Name }

func (p *Literal) String() string { return p.Value.String() }

func (r *Rest) String() string { return "..." + r.Name }

func (p *ListPattern) String() string {
	parts := make([]string, 0, len(p.Elems)+1)
	for _, e := range p.Elems {
		parts = append(parts, e.String())
	}
	if p.Rest != nil {
		parts = append(parts, p.Rest.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (p *RecordPattern) String() string {
	parts := make([]string, 0, len(p.Fields)+1)
	for _, f := range p.Fields {
		parts = append(parts, f.Name+" = "+f.Pattern.String())
	}
	if p.Rest != nil {
		parts = append(parts, p.Rest.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (p *VariantPattern) String() string {
	if p.Payload == nil {
		return "#" + p.Tag
	}
	if lit, ok := p.Payload.(*Literal); ok && powers(lit.Value).Left == 0 {
		return "#" + p.Tag + " (" + lit.String() + ")"
	}
	return "#" + p.Tag + " " + p.Payload.String()
}
