package parser

import (
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// b85Alphabet is the RFC 1924 character set.
const b85Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"

func decodeBytes(data string, base int) ([]byte, error) {
	switch base {
	case 85:
		return decodeBase85(data)
	case 64:
		return base64.StdEncoding.DecodeString(data)
	case 32:
		return base32.StdEncoding.DecodeString(data)
	case 16:
		return hex.DecodeString(data)
	}
	return nil, fmt.Errorf("unsupported base %d", base)
}

func decodeBase85(s string) ([]byte, error) {
	padding := (5 - len(s)%5) % 5
	s += strings.Repeat("~", padding)
	out := make([]byte, 0, len(s)/5*4)
	for i := 0; i < len(s); i += 5 {
		var acc uint64
		for j := i; j < i+5; j++ {
			idx := strings.IndexByte(b85Alphabet, s[j])
			if idx < 0 {
				return nil, fmt.Errorf("bad base85 character %q", s[j])
			}
			acc = acc*85 + uint64(idx)
		}
		if acc > math.MaxUint32 {
			return nil, fmt.Errorf("base85 overflow in group starting at %d", i)
		}
		out = append(out, byte(acc>>24), byte(acc>>16), byte(acc>>8), byte(acc))
	}
	return out[:len(out)-padding], nil
}
