package flat

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"nickandperla.net/scrap/internal/expr"
	"nickandperla.net/scrap/internal/parser"
)

func encodeSource(t *testing.T, src string) []byte {
	t.Helper()
	n, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Encode(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return b
}

func TestEncodeVectors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"3", "i\x06"},
		{"0", "i\x00"},
		{"-1", "i\x01"},
		{"1 + 2", "+\x02+i\x02i\x04"},
		{`"hello"`, "s\nhello"},
		{"[]", "\xdb\x00"},
		{"[123, 456]", "\xdb\x04i\xf6\x01i\x90\x07"},
		{"#abc 123", "#\x06abci\xf6\x01"},
		{"{x = 1, y = 2}", "{\x04\x02xi\x02\x02yi\x04"},
		{"x", "v\x02x"},
		{"x -> x", "fv\x02xv\x02x"},
		{"| 1 -> x | [1] -> y", "m\x04i\x02v\x02x\xdb\x02i\x02v\x02y"},
		{"~~YWJj", "b\x06abc"},
		{"3.14", "d\x1f\x85\xebQ\xb8\x1e\t@"},
		{"()", "("},
		{"x = 123", "=v\x02xi\xf6\x01"},
		{"f x", " v\x02fv\x02x"},
		{"a . a = 1", ".v\x02a=v\x02ai\x02"},
		{"r@x", "@v\x02rv\x02x"},
		{"#none", "n\x08none"},
		{"[1, ...xs]", "\xdb\x04i\x02R\x04xs"},
	}
	for index, tc := range tests {
		got := encodeSource(t, tc.src)
		if !bytes.Equal(got, []byte(tc.want)) {
			t.Errorf("test #%d: %s: expected %q, got %q", index, tc.src, tc.want, got)
		}
	}
}

func TestEncodeLong(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 100)
	got, err := Encode(&expr.Int{Value: v})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "l\x04\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00 \x00\x00\x00"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got, err = Encode(&expr.Int{Value: new(big.Int).Neg(v)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = "l\x04\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\xff\x1f\x00\x00\x00"
	if string(got) != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRoundTripSource(t *testing.T) {
	sources := []string{
		"1 + 2 * 3",
		"-7",
		"123456789012345678901234567890",
		"-123456789012345678901234567890",
		`"a\nb"`,
		"[1, [2, 3], {a = 4}]",
		"{a = 1, ...base}",
		"| [] -> 0 | [x, ...xs] ? x > 0 -> x | _ -> 1",
		"| {a = x, ...} -> x",
		"f . f = x -> g x . g = y -> y",
		"[a, b] = [1, 2]",
		"x ? x == 1",
		"#some (#pair [1, 2])",
		"$sha256'" + "aa" + "00112233445566778899aabbccddeeff00112233445566778899aabbccddee",
	}
	for index, src := range sources {
		n, err := parser.Parse(src)
		if err != nil {
			t.Fatalf("test #%d: unexpected error: %v", index, err)
		}
		b, err := Encode(n)
		if err != nil {
			t.Fatalf("test #%d: unexpected error: %v", index, err)
		}
		back, err := Decode(b)
		if err != nil {
			t.Fatalf("test #%d: %s: unexpected error: %v", index, src, err)
		}
		if back.String() != n.String() {
			t.Errorf("test #%d: expected %s, got %s", index, n, back)
		}
	}
}

func TestDecodeClosure(t *testing.T) {
	// A function capturing itself under the name self.
	in := []byte("\xe3fv\x02xv\x02x\x02\x08selfr\x00")
	n, err := Decode(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := n.String(), "x -> x . self = x -> x"; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	n, err = Decode([]byte("\xe3fv\x02xv\x02x\x00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := n.String(); got != "x -> x" {
		t.Errorf("unexpected closure %s", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []string{
		"",
		"i",
		"s\x0aabc",
		"\xdb\x02r\x00",
		"r\x00",
		"i\x02i\x02",
		"\x99",
		"[\x00",
		"+\x02=i\x02i\x02",
		".i\x02i\x02",
		"S",
	}
	for index, in := range tests {
		_, err := Decode([]byte(in))
		if err == nil {
			t.Errorf("test #%d: %q: expected error", index, in)
			continue
		}
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("test #%d: expected ErrMalformed, got %v", index, err)
		}
	}
}
