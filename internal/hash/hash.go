// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package hash computes content hashes of scraps.
//
// The hash is SHA-256 over a deterministic serialization of the term with
// de Bruijn variable indexing, so alpha-equivalent terms share a hash.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"nickandperla.net/scrap/internal/expr"
)

// Prefix precedes the hex digest in the printed form of a hash.
const Prefix = "sha256'"

// Hash is the content hash of a scrap.
type Hash [32]byte

// Sum returns the canonical hash of n.
func Sum(n expr.Node) Hash {
	return sha256.Sum256(Serialize(n))
}

// Hex returns the lowercase hex digest.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String returns the printed form, sha256'<hex>.
func (h Hash) String() string { return Prefix + h.Hex() }

// Ref returns the source spelling of a reference to h.
func (h Hash) Ref() string { return "$" + h.String() }

// Node returns a reference expression for h.
func (h Hash) Node() *expr.HashRef { return &expr.HashRef{Digest: h} }

// Parse accepts a bare hex digest, sha256'<hex>, or $sha256'<hex>.
func Parse(s string) (Hash, error) {
	var h Hash
	digest := strings.TrimPrefix(strings.TrimPrefix(s, "$"), Prefix)
	if len(digest) != 2*len(h) || strings.ToLower(digest) != digest {
		return h, fmt.Errorf("invalid hash %q", s)
	}
	if _, err := hex.Decode(h[:], []byte(digest)); err != nil {
		return h, fmt.Errorf("invalid hash %q: %v", s, err)
	}
	return h, nil
}
