// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package scanner provides a streaming lexer for scrapscript.
package scanner

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"nickandperla.net/scrap/internal/token"
)

// Scanner tokenizes scrapscript input rune-by-rune.
type Scanner struct {
	reader  *bufio.Reader
	buf     strings.Builder
	peeked  *Item
	pos     token.Pos // position of the next unread rune
	prevPos token.Pos // position before the last read, for unread
}

// Item represents a scanned token with its value.
type Item struct {
	Token token.Token
	Value string
	Base  int // encoding base for BYTES items
	Pos   token.Pos
}

func (i *Item) String() string {
	switch i.Token {
	case token.EOF:
		return "end of input"
	case token.STRING:
		return fmt.Sprintf("%q", i.Value)
	case token.OPERATOR, token.NAME, token.INT, token.FLOAT:
		return fmt.Sprintf("%q", i.Value)
	}
	return i.Token.String()
}

// Error is a lexical error. Incomplete is set when the input ended in the
// middle of a token.
type Error struct {
	Pos        token.Pos
	Msg        string
	Incomplete bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// New creates a new Scanner from an io.Reader.
func New(r io.Reader) *Scanner {
	return &Scanner{
		reader: bufio.NewReader(r),
		pos:    token.Pos{Line: 1, Col: 1},
	}
}

// NewFromString creates a new Scanner from a string.
func NewFromString(s string) *Scanner {
	return New(strings.NewReader(s))
}

// Pos returns the position of the next unread rune.
func (s *Scanner) Pos() token.Pos {
	return s.pos
}

// Peek returns the next item without consuming it.
func (s *Scanner) Peek() (*Item, error) {
	if s.peeked != nil {
		return s.peeked, nil
	}
	item, err := s.Next()
	if err != nil {
		return nil, err
	}
	s.peeked = item
	return item, nil
}

// Next returns the next token from the input.
func (s *Scanner) Next() (*Item, error) {
	if s.peeked != nil {
		item := s.peeked
		s.peeked = nil
		return item, nil
	}

	s.buf.Reset()
	for {
		if err := s.skipWhitespace(); err != nil {
			return nil, err
		}
		start := s.pos
		r, err := s.read()
		if err == io.EOF {
			return &Item{Token: token.EOF, Pos: start}, nil
		}
		if err != nil {
			return nil, err
		}

		switch {
		case r == '-':
			next, err := s.peekRune()
			if err != nil && err != io.EOF {
				return nil, err
			}
			if next == '-' {
				if err := s.skipComment(); err != nil {
					return nil, err
				}
				continue
			}
			return s.readOperator(r, start)
		case r == '"':
			return s.readString(start)
		case r == '#':
			return &Item{Token: token.HASH, Value: "#", Pos: start}, nil
		case r == '~':
			next, err := s.peekRune()
			if err != nil && err != io.EOF {
				return nil, err
			}
			if next != '~' {
				return nil, &Error{Pos: start, Msg: "unexpected token '~'", Incomplete: err == io.EOF}
			}
			s.read()
			return s.readBytes(start)
		case r >= '0' && r <= '9':
			return s.readNumber(r, start)
		case r == '(':
			return &Item{Token: token.LPAREN, Value: "(", Pos: start}, nil
		case r == ')':
			return &Item{Token: token.RPAREN, Value: ")", Pos: start}, nil
		case r == '[':
			return &Item{Token: token.LBRACKET, Value: "[", Pos: start}, nil
		case r == ']':
			return &Item{Token: token.RBRACKET, Value: "]", Pos: start}, nil
		case r == '{':
			return &Item{Token: token.LBRACE, Value: "{", Pos: start}, nil
		case r == '}':
			return &Item{Token: token.RBRACE, Value: "}", Pos: start}, nil
		case token.IsOperatorChar(r):
			return s.readOperator(r, start)
		case isIdentChar(r):
			return s.readName(r, start)
		}
		return nil, &Error{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
	}
}

// All scans the remaining input into a slice, ending with the EOF item.
func (s *Scanner) All() ([]*Item, error) {
	var items []*Item
	for {
		item, err := s.Next()
		if err != nil {
			return items, err
		}
		items = append(items, item)
		if item.Token == token.EOF {
			return items, nil
		}
	}
}

func (s *Scanner) read() (rune, error) {
	r, size, err := s.reader.ReadRune()
	if err != nil {
		return 0, err
	}
	s.prevPos = s.pos
	s.pos.Byte += size
	if r == '\n' {
		s.pos.Line++
		s.pos.Col = 1
	} else {
		s.pos.Col++
	}
	return r, nil
}

func (s *Scanner) unread() {
	if err := s.reader.UnreadRune(); err == nil {
		s.pos = s.prevPos
	}
}

// peekRune returns the next rune without consuming it.
func (s *Scanner) peekRune() (rune, error) {
	r, err := s.read()
	if err != nil {
		return 0, err
	}
	s.unread()
	return r, nil
}

func (s *Scanner) skipWhitespace() error {
	for {
		r, err := s.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !unicode.IsSpace(r) {
			s.unread()
			return nil
		}
	}
}

func (s *Scanner) skipComment() error {
	for {
		r, err := s.read()
		if err == io.EOF || r == '\n' {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Scanner) readString(start token.Pos) (*Item, error) {
	for {
		r, err := s.read()
		if err == io.EOF {
			return nil, &Error{Pos: start, Msg: "unterminated string", Incomplete: true}
		}
		if err != nil {
			return nil, err
		}
		switch r {
		case '"':
			return &Item{Token: token.STRING, Value: s.buf.String(), Pos: start}, nil
		case '\\':
			escPos := s.pos
			e, err := s.read()
			if err == io.EOF {
				return nil, &Error{Pos: start, Msg: "unterminated string", Incomplete: true}
			}
			if err != nil {
				return nil, err
			}
			switch e {
			case 'n':
				s.buf.WriteByte('\n')
			case 't':
				s.buf.WriteByte('\t')
			case 'r':
				s.buf.WriteByte('\r')
			case '0':
				s.buf.WriteByte(0)
			case '\\', '"':
				s.buf.WriteRune(e)
			default:
				return nil, &Error{Pos: escPos, Msg: fmt.Sprintf("unknown escape sequence \\%c", e)}
			}
		default:
			s.buf.WriteRune(r)
		}
	}
}

func (s *Scanner) readNumber(first rune, start token.Pos) (*Item, error) {
	s.buf.WriteRune(first)
	decimal := false
	for {
		r, err := s.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if r == '.' {
			if decimal {
				return nil, &Error{Pos: s.prevPos, Msg: "unexpected token '.'"}
			}
			decimal = true
		} else if r < '0' || r > '9' {
			s.unread()
			break
		}
		s.buf.WriteRune(r)
	}
	if decimal {
		return &Item{Token: token.FLOAT, Value: s.buf.String(), Pos: start}, nil
	}
	return &Item{Token: token.INT, Value: s.buf.String(), Pos: start}, nil
}

// readOperator reads the longest operator starting with first.
func (s *Scanner) readOperator(first rune, start token.Pos) (*Item, error) {
	s.buf.WriteRune(first)
	for {
		r, err := s.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !token.StartsOperator(s.buf.String() + string(r)) {
			s.unread()
			break
		}
		s.buf.WriteRune(r)
	}
	op := s.buf.String()
	if !token.IsOperator(op) {
		return nil, &Error{Pos: start, Msg: fmt.Sprintf("unexpected token %q", op)}
	}
	return &Item{Token: token.OPERATOR, Value: op, Pos: start}, nil
}

func (s *Scanner) readName(first rune, start token.Pos) (*Item, error) {
	s.buf.WriteRune(first)
	for {
		r, err := s.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isIdentChar(r) {
			s.unread()
			break
		}
		s.buf.WriteRune(r)
	}
	name := s.buf.String()
	if hex, ok := strings.CutPrefix(name, token.HashRefPrefix); ok {
		if !isHashHex(hex) {
			return nil, &Error{Pos: start, Msg: fmt.Sprintf("malformed hash reference %q", name)}
		}
		return &Item{Token: token.HASHREF, Value: hex, Pos: start}, nil
	}
	return &Item{Token: token.NAME, Value: name, Pos: start}, nil
}

// readBytes reads a ~~[base']data literal up to the next whitespace.
func (s *Scanner) readBytes(start token.Pos) (*Item, error) {
	for {
		r, err := s.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if unicode.IsSpace(r) {
			s.unread()
			break
		}
		s.buf.WriteRune(r)
	}
	raw := s.buf.String()
	base := 64
	if i := strings.LastIndexByte(raw, '\''); i >= 0 {
		switch raw[:i] {
		case "85":
			base = 85
		case "64":
			base = 64
		case "32":
			base = 32
		case "16":
			base = 16
		default:
			return nil, &Error{Pos: start, Msg: fmt.Sprintf("unexpected base %q in bytes literal", raw[:i])}
		}
		raw = raw[i+1:]
	}
	return &Item{Token: token.BYTES, Value: raw, Base: base, Pos: start}, nil
}

// isIdentChar returns true if the rune is valid in a name.
func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$' || r == '\''
}

func isHashHex(s string) bool {
	if len(s) != 64 || !utf8.ValidString(s) {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
