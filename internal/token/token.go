// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package token defines scrapscript token types, source positions, and the
// operator spellings recognized by the scanner.
package token

import (
	"fmt"
	"strings"
)

// Token represents a scrapscript token type.
type Token int

const (
	EOF Token = iota
	INT
	FLOAT
	STRING
	BYTES
	NAME
	HASHREF // $sha256'<hex>
	OPERATOR
	HASH     // # (variant tag prefix)
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	LBRACE   // {
	RBRACE   // }
)

// String returns the string representation of a token.
func (t Token) String() string {
	switch t {
	case EOF:
		return "EOF"
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	case BYTES:
		return "BYTES"
	case NAME:
		return "NAME"
	case HASHREF:
		return "HASHREF"
	case OPERATOR:
		return "OPERATOR"
	case HASH:
		return "HASH"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACKET:
		return "LBRACKET"
	case RBRACKET:
		return "RBRACKET"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	}
	return "UNKNOWN"
}

// IsCloser returns true for tokens that end a bracketed form.
func (t Token) IsCloser() bool {
	switch t {
	case RPAREN, RBRACKET, RBRACE:
		return true
	}
	return false
}

// Pos is a location in source text. Line and Col are 1-based, Byte is the
// 0-based UTF-8 offset.
type Pos struct {
	Line int
	Col  int
	Byte int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Operators lists every operator spelling.
var Operators = []string{
	"::", "@", ">>", "<<", "^", "*", "/", "//", "%", "+", "-",
	">*", "++", ">+", "+<", "==", "/=", "<", ">", "<=", ">=",
	"&&", "||", "|>", "<|", "->", "|", ":", "=", "!", ".", "?",
	",", "...",
}

var operatorChars = func() string {
	var sb strings.Builder
	seen := map[rune]bool{}
	for _, op := range Operators {
		for _, r := range op {
			if !seen[r] {
				seen[r] = true
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}()

// IsOperatorChar returns true if the rune can appear in an operator.
func IsOperatorChar(r rune) bool {
	return strings.ContainsRune(operatorChars, r)
}

// IsOperator returns true if s is a complete operator spelling.
func IsOperator(s string) bool {
	for _, op := range Operators {
		if op == s {
			return true
		}
	}
	return false
}

// StartsOperator returns true if some operator begins with prefix.
func StartsOperator(prefix string) bool {
	for _, op := range Operators {
		if strings.HasPrefix(op, prefix) {
			return true
		}
	}
	return false
}

// HashRefPrefix introduces a content hash reference.
const HashRefPrefix = "$sha256'"

// Prec holds the left and right binding powers of an operator. An operator
// continues an expression when its Left power is at least the current
// minimum; its right operand is parsed with Right as the new minimum.
type Prec struct {
	Left  float64
	Right float64
}

func leftAssoc(n float64) Prec  { return Prec{n, n + 0.1} }
func rightAssoc(n float64) Prec { return Prec{n, n - 0.1} }
func nonAssoc(n float64) Prec   { return Prec{n, n} }
func fixity(n float64) Prec     { return Prec{n, 0} }

// Apply is the precedence key for juxtaposition.
const Apply = ""

var precedence = map[string]Prec{
	"::":  rightAssoc(2000),
	"@":   leftAssoc(1001),
	Apply: leftAssoc(1000),
	">>":  rightAssoc(14),
	"<<":  rightAssoc(14),
	"^":   rightAssoc(13),
	"*":   leftAssoc(12),
	"/":   leftAssoc(12),
	"//":  leftAssoc(12),
	"%":   leftAssoc(12),
	"+":   leftAssoc(11),
	"-":   leftAssoc(11),
	">*":  leftAssoc(10),
	"++":  leftAssoc(10),
	">+":  rightAssoc(10),
	"+<":  leftAssoc(10),
	"==":  nonAssoc(9),
	"/=":  nonAssoc(9),
	"<":   nonAssoc(9),
	">":   nonAssoc(9),
	"<=":  nonAssoc(9),
	">=":  nonAssoc(9),
	"&&":  leftAssoc(8),
	"||":  leftAssoc(7),
	"|>":  leftAssoc(6),
	"<|":  rightAssoc(6),
	"->":  rightAssoc(5),
	"|":   leftAssoc(4.5),
	":":   rightAssoc(4.5),
	"=":   leftAssoc(4),
	"!":   rightAssoc(3),
	".":   leftAssoc(3),
	"?":   leftAssoc(3),
	",":   fixity(1),
	"...": fixity(0),
}

// Precedence returns the binding powers of op. Use Apply for juxtaposition.
func Precedence(op string) Prec {
	return precedence[op]
}

// Highest is the largest binding power in the table; unary minus binds
// tighter than it.
const Highest = 2000.0
