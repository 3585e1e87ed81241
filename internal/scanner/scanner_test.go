package scanner

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"nickandperla.net/scrap/internal/token"
)

func describe(items []*Item) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.Token {
		case token.EOF:
			parts = append(parts, "EOF")
		case token.BYTES:
			parts = append(parts, fmt.Sprintf("BYTES:%d'%s", item.Base, item.Value))
		default:
			parts = append(parts, item.Token.String()+":"+item.Value)
		}
	}
	return strings.Join(parts, " ")
}

func TestScanner(t *testing.T) {
	hex := strings.Repeat("ab", 32)
	tests := []struct {
		input string
		want  string
	}{
		{"", "EOF"},
		{"1 + 2", "INT:1 OPERATOR:+ INT:2 EOF"},
		{"1-2", "INT:1 OPERATOR:- INT:2 EOF"},
		{"3.14 1.", "FLOAT:3.14 FLOAT:1. EOF"},
		{`"hi\n\"there\""`, "STRING:hi\n\"there\" EOF"},
		{"x -> y", "NAME:x OPERATOR:-> NAME:y EOF"},
		{"a->b", "NAME:a OPERATOR:-> NAME:b EOF"},
		{"f >> g << h", "NAME:f OPERATOR:>> NAME:g OPERATOR:<< NAME:h EOF"},
		{"a // b /= c", "NAME:a OPERATOR:// NAME:b OPERATOR:/= NAME:c EOF"},
		{"[1, ...xs]", "LBRACKET:[ INT:1 OPERATOR:, OPERATOR:... NAME:xs RBRACKET:] EOF"},
		{"{a = 1}", "LBRACE:{ NAME:a OPERATOR:= INT:1 RBRACE:} EOF"},
		{"#some (x)", "HASH:# NAME:some LPAREN:( NAME:x RPAREN:) EOF"},
		{"| x -> 1", "OPERATOR:| NAME:x OPERATOR:-> INT:1 EOF"},
		{"$$add x' _y", "NAME:$$add NAME:x' NAME:_y EOF"},
		{"1 -- comment\n2", "INT:1 INT:2 EOF"},
		{"-- only a comment", "EOF"},
		{"~~aGVsbG8=", "BYTES:64'aGVsbG8= EOF"},
		{"~~16'68656c6c6f ~~85'K|(_", "BYTES:16'68656c6c6f BYTES:85'K|(_ EOF"},
		{"$sha256'" + hex, "HASHREF:" + hex + " EOF"},
		{"x @ 0 ? y", "NAME:x OPERATOR:@ INT:0 OPERATOR:? NAME:y EOF"},
		{"a ++ b +< c >+ d", "NAME:a OPERATOR:++ NAME:b OPERATOR:+< NAME:c OPERATOR:>+ NAME:d EOF"},
	}
	for index, tc := range tests {
		items, err := NewFromString(tc.input).All()
		if err != nil {
			t.Errorf("test #%d: unexpected error: %v", index, err)
			continue
		}
		if got := describe(items); got != tc.want {
			t.Errorf("test #%d: expected %q, got %q", index, tc.want, got)
		}
	}
}

func TestScannerErrors(t *testing.T) {
	tests := []struct {
		input      string
		incomplete bool
	}{
		{`"abc`, true},
		{`"abc\`, true},
		{`"\q"`, false},
		{"1.2.3", false},
		{"~x", false},
		{"~", true},
		{"~~99'abc", false},
		{"$sha256'abc", false},
		{"$sha256'" + strings.Repeat("A", 64), false},
		{"\\", false},
	}
	for index, tc := range tests {
		_, err := NewFromString(tc.input).All()
		if err == nil {
			t.Errorf("test #%d: expected an error for %q", index, tc.input)
			continue
		}
		var se *Error
		if !errors.As(err, &se) {
			t.Errorf("test #%d: expected *Error, got %T", index, err)
			continue
		}
		if se.Incomplete != tc.incomplete {
			t.Errorf("test #%d: expected incomplete=%v, got %v", index, tc.incomplete, se.Incomplete)
		}
	}
}

func TestPositions(t *testing.T) {
	items, err := NewFromString("a\n  bc é\n\"x\"").All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []token.Pos{
		{Line: 1, Col: 1, Byte: 0},
		{Line: 2, Col: 3, Byte: 4},
		{Line: 2, Col: 6, Byte: 7},
		{Line: 3, Col: 1, Byte: 10},
		{Line: 3, Col: 4, Byte: 13},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for index, item := range items {
		if item.Pos != want[index] {
			t.Errorf("test #%d: expected %v (byte %d), got %v (byte %d)", index, want[index], want[index].Byte, item.Pos, item.Pos.Byte)
		}
	}
}

func TestPeek(t *testing.T) {
	s := NewFromString("a b")
	first, err := s.Peek()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != again || first.Value != "a" {
		t.Errorf("expected Peek and Next to return the same item, got %v and %v", first, again)
	}
	next, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Value != "b" {
		t.Errorf("expected b, got %v", next)
	}
}
