// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package parser builds scrapscript syntax trees with a precedence-climbing
// parser over the scanner's token stream.
package parser

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/scanner"
	"nickandperla.net/scrap/internal/token"
)

// Error is a syntax error. Incomplete is set when more input could have
// completed the expression, which the REPL uses to ask for another line.
type Error struct {
	Pos        token.Pos
	Msg        string
	Incomplete bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// IsIncomplete reports whether err is a parse error caused by input that
// ended too early.
func IsIncomplete(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Incomplete
}

// Parser holds the token stream and the state of one parse.
type Parser struct {
	s      *scanner.Scanner
	gensym int
}

// New creates a parser reading from r.
func New(r io.Reader) *Parser {
	return &Parser{s: scanner.New(r)}
}

// Parse parses a complete program from a string.
func Parse(src string) (expr.Node, error) {
	return New(strings.NewReader(src)).Parse()
}

// Parse parses one top-level expression and requires the input to end
// after it.
func (p *Parser) Parse() (expr.Node, error) {
	n, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Token != token.EOF {
		return nil, p.errorf(tok, "unexpected token %s", tok)
	}
	if err := check(n, true); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) next() (*scanner.Item, error) {
	tok, err := p.s.Next()
	return tok, p.wrap(err)
}

func (p *Parser) peek() (*scanner.Item, error) {
	tok, err := p.s.Peek()
	return tok, p.wrap(err)
}

func (p *Parser) wrap(err error) error {
	if err == nil {
		return nil
	}
	var se *scanner.Error
	if errors.As(err, &se) {
		return &Error{Pos: se.Pos, Msg: se.Msg, Incomplete: se.Incomplete}
	}
	return &Error{Pos: p.s.Pos(), Msg: err.Error()}
}

func (p *Parser) errorf(tok *scanner.Item, format string, args ...any) *Error {
	return &Error{
		Pos:        tok.Pos,
		Msg:        fmt.Sprintf(format, args...),
		Incomplete: tok.Token == token.EOF,
	}
}

func (p *Parser) expect(t token.Token, what string) (*scanner.Item, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Token != t {
		return nil, p.errorf(tok, "expected %s, got %s", what, tok)
	}
	return tok, nil
}

func (p *Parser) expectOperator(op string) (*scanner.Item, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if tok.Token != token.OPERATOR || tok.Value != op {
		return nil, p.errorf(tok, "expected %q, got %s", op, tok)
	}
	return tok, nil
}

func isOperator(tok *scanner.Item, op string) bool {
	return tok.Token == token.OPERATOR && tok.Value == op
}

func (p *Parser) parseUnary() (expr.Node, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	at := expr.At{P: tok.Pos}

	switch tok.Token {
	case token.EOF:
		return nil, p.errorf(tok, "unexpected end of input")

	case token.INT:
		v, ok := new(big.Int).SetString(tok.Value, 10)
		if !ok {
			return nil, p.errorf(tok, "invalid integer %q", tok.Value)
		}
		return &expr.Int{At: at, Value: v}, nil

	case token.FLOAT:
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid float %q", tok.Value)
		}
		return &expr.Float{At: at, Value: v}, nil

	case token.STRING:
		return &expr.String{At: at, Value: tok.Value}, nil

	case token.BYTES:
		b, err := decodeBytes(tok.Value, tok.Base)
		if err != nil {
			return nil, p.errorf(tok, "invalid base%d bytes literal: %v", tok.Base, err)
		}
		return &expr.Bytes{At: at, Value: b}, nil

	case token.NAME:
		return &expr.Var{At: at, Name: tok.Value}, nil

	case token.HASHREF:
		ref := &expr.HashRef{At: at}
		if _, err := hex.Decode(ref.Digest[:], []byte(tok.Value)); err != nil {
			return nil, p.errorf(tok, "invalid hash reference: %v", err)
		}
		return ref, nil

	case token.HASH:
		name, err := p.expect(token.NAME, "variant tag")
		if err != nil {
			return nil, err
		}
		follow, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !startsPayload(follow) {
			return &expr.Variant{At: at, Tag: name.Value}, nil
		}
		// Above juxtaposition so that f #a 1 #b 2 applies f to two variants.
		payload, err := p.parseBinary(token.Precedence(token.Apply).Right + 1)
		if err != nil {
			return nil, err
		}
		return &expr.Variant{At: at, Tag: name.Value, Payload: payload}, nil

	case token.LPAREN:
		follow, err := p.peek()
		if err != nil {
			return nil, err
		}
		if follow.Token == token.RPAREN {
			p.next()
			return &expr.Hole{At: at}, nil
		}
		inner, err := p.parseBinary(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case token.LBRACKET:
		return p.parseList(at)

	case token.LBRACE:
		return p.parseRecord(at)

	case token.OPERATOR:
		switch tok.Value {
		case "-":
			// Unary minus binds tighter than application: -a b is (-a) b.
			operand, err := p.parseBinary(token.Highest + 1)
			if err != nil {
				return nil, err
			}
			switch n := operand.(type) {
			case *expr.Int:
				return &expr.Int{At: at, Value: new(big.Int).Neg(n.Value)}, nil
			case *expr.Float:
				return &expr.Float{At: at, Value: -n.Value}, nil
			}
			return &expr.Binop{At: at, Op: "-", Left: &expr.Int{At: at, Value: new(big.Int)}, Right: operand}, nil
		case "|":
			return p.parseMatchFunction(at)
		case "...":
			return nil, p.errorf(tok, "spread outside of a list or record")
		}
	}
	return nil, p.errorf(tok, "unexpected token %s", tok)
}

// startsPayload reports whether tok can begin a variant payload.
func startsPayload(tok *scanner.Item) bool {
	switch tok.Token {
	case token.EOF, token.RPAREN, token.RBRACKET, token.RBRACE:
		return false
	case token.OPERATOR:
		return tok.Value == "-"
	}
	return true
}

// stopsExpression reports whether an operator ends the expression being
// parsed rather than combining with it.
func stopsExpression(op string) bool {
	switch op {
	case ",", "|", "...":
		return true
	}
	return false
}

func (p *Parser) parseBinary(minPrec float64) (expr.Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// group is the where-group built by the previous iteration, so that
	// consecutive bindings join one group instead of nesting.
	var group *expr.Where

	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Token == token.EOF || tok.Token.IsCloser() {
			return l, nil
		}
		at := expr.At{P: tok.Pos}

		if tok.Token != token.OPERATOR {
			prec := token.Precedence(token.Apply)
			if prec.Left < minPrec {
				return l, nil
			}
			arg, err := p.parseBinary(prec.Right)
			if err != nil {
				return nil, err
			}
			l = &expr.Apply{At: expr.At{P: l.Pos()}, Func: l, Arg: arg}
			group = nil
			continue
		}

		op := tok.Value
		if stopsExpression(op) {
			return l, nil
		}
		prec := token.Precedence(op)
		if prec.Left < minPrec {
			return l, nil
		}
		p.next()

		switch op {
		case "::", ">*":
			return nil, p.errorf(tok, "operator %q is reserved", op)

		case "=":
			pat, err := ToPattern(l)
			if err != nil {
				return nil, err
			}
			val, err := p.parseBinary(prec.Right)
			if err != nil {
				return nil, err
			}
			l = &expr.Assign{At: expr.At{P: l.Pos()}, Pattern: pat, Value: val}
			group = nil
			continue

		case ".":
			b, err := p.parseBinary(prec.Right)
			if err != nil {
				return nil, err
			}
			assign, ok := b.(*expr.Assign)
			if !ok {
				return nil, &Error{Pos: b.Pos(), Msg: "expected a binding after '.'"}
			}
			binding := expr.Binding{Pattern: assign.Pattern, Value: assign.Value}
			if group != nil && group == l {
				group.Bindings = append(group.Bindings, binding)
				continue
			}
			group = &expr.Where{At: expr.At{P: l.Pos()}, Body: l, Bindings: []expr.Binding{binding}}
			l = group
			continue
		}

		r, err := p.parseBinary(prec.Right)
		if err != nil {
			return nil, err
		}
		group = nil
		switch op {
		case "->":
			pat, err := ToPattern(l)
			if err != nil {
				return nil, err
			}
			l = &expr.Function{At: expr.At{P: l.Pos()}, Param: pat, Body: r}
		case "|>":
			l = &expr.Apply{At: at, Func: r, Arg: l}
		case "<|":
			l = &expr.Apply{At: at, Func: l, Arg: r}
		case ">>":
			l = p.compose(at, r, l)
		case "<<":
			l = p.compose(at, l, r)
		case "?":
			l = &expr.Assert{At: at, Value: l, Cond: r}
		case "@":
			l = &expr.Access{At: at, Target: l, Key: r}
		default:
			l = &expr.Binop{At: at, Op: op, Left: l, Right: r}
		}
	}
}

// compose builds x -> outer (inner x) with a fresh parameter name.
func (p *Parser) compose(at expr.At, outer, inner expr.Node) expr.Node {
	name := fmt.Sprintf("$v%d", p.gensym)
	p.gensym++
	x := &expr.Var{At: at, Name: name}
	return &expr.Function{
		At:    at,
		Param: &expr.Bind{Name: name},
		Body: &expr.Apply{
			At:   at,
			Func: outer,
			Arg:  &expr.Apply{At: at, Func: inner, Arg: x},
		},
	}
}

func (p *Parser) parseMatchFunction(at expr.At) (expr.Node, error) {
	var cases []expr.Case
	arrow := token.Precedence("->")
	// Patterns and guards stop before -> and before a guard's ?.
	headPrec := arrow.Left + 0.1
	for {
		head, err := p.parseBinary(headPrec)
		if err != nil {
			return nil, err
		}
		pat, err := ToPattern(head)
		if err != nil {
			return nil, err
		}
		c := expr.Case{Pattern: pat}

		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if isOperator(tok, "?") {
			if c.Guard, err = p.parseBinary(headPrec); err != nil {
				return nil, err
			}
			if tok, err = p.next(); err != nil {
				return nil, err
			}
		}
		if !isOperator(tok, "->") {
			return nil, p.errorf(tok, "expected '->' in match case, got %s", tok)
		}
		if c.Body, err = p.parseBinary(arrow.Right); err != nil {
			return nil, err
		}
		cases = append(cases, c)

		follow, err := p.peek()
		if err != nil {
			return nil, err
		}
		if !isOperator(follow, "|") {
			break
		}
		p.next()
	}
	return expr.NewMatchFunction(at.P, cases), nil
}

// parseSpread consumes the name after "..." if there is one.
func (p *Parser) parseSpread(at expr.At) (*expr.Var, error) {
	follow, err := p.peek()
	if err != nil {
		return nil, err
	}
	spread := &expr.Var{At: at}
	if follow.Token == token.NAME {
		p.next()
		spread.Name = follow.Value
	}
	return spread, nil
}

// closeOrComma consumes a separator and reports whether the form ended.
func (p *Parser) closeOrComma(closer token.Token, what string) (bool, error) {
	tok, err := p.next()
	if err != nil {
		return false, err
	}
	if tok.Token == closer {
		return true, nil
	}
	if !isOperator(tok, ",") {
		return false, p.errorf(tok, "expected ',' or %s, got %s", what, tok)
	}
	return false, nil
}

func (p *Parser) parseList(at expr.At) (expr.Node, error) {
	list := &expr.List{At: at}
	for {
		tok, err := p.peek()
		if err != nil {
			return nil, err
		}
		if tok.Token == token.RBRACKET && len(list.Elems) == 0 {
			p.next()
			return list, nil
		}
		if isOperator(tok, "...") {
			p.next()
			if list.Spread, err = p.parseSpread(expr.At{P: tok.Pos}); err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACKET, "']' after spread; spread must come at end of list"); err != nil {
				return nil, err
			}
			return list, nil
		}
		elem, err := p.parseBinary(2)
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, elem)
		done, err := p.closeOrComma(token.RBRACKET, "']'")
		if err != nil {
			return nil, err
		}
		if done {
			return list, nil
		}
	}
}

func (p *Parser) parseRecord(at expr.At) (expr.Node, error) {
	rec := &expr.Record{At: at}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Token == token.RBRACE && len(rec.Fields) == 0 {
			return rec, nil
		}
		if isOperator(tok, "...") {
			if rec.Spread, err = p.parseSpread(expr.At{P: tok.Pos}); err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBRACE, "'}' after spread; spread must come at end of record"); err != nil {
				return nil, err
			}
			return rec, nil
		}
		if tok.Token != token.NAME {
			return nil, p.errorf(tok, "expected field name, got %s", tok)
		}
		if _, err := p.expectOperator("="); err != nil {
			return nil, err
		}
		val, err := p.parseBinary(2)
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, expr.Field{Name: tok.Value, Value: val})
		done, err := p.closeOrComma(token.RBRACE, "'}'")
		if err != nil {
			return nil, err
		}
		if done {
			return rec, nil
		}
	}
}
