// Package provider fetches scraps from remote object stores and serves a
// local store to others.
package provider

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"nickandperla.net/scrap/internal/hash"
	"nickandperla.net/scrap/internal/store"
)

// ErrNotFound is returned when the remote does not know a hash.
var ErrNotFound = store.ErrNotFound

// Provider is the interface for remote scrap sources.
type Provider interface {
	// Fetch returns the flat encoding of the scrap with hash h.
	Fetch(ctx context.Context, h hash.Hash) ([]byte, error)
}

// Envelope is the wire form of a fetched scrap.
type Envelope struct {
	Hash [32]byte `cbor:"1,keyasint"`
	Term []byte   `cbor:"2,keyasint"` // flat encoding
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("provider: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalEnvelope serializes an Envelope to canonical CBOR.
func MarshalEnvelope(e *Envelope) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEnvelope deserializes an Envelope from CBOR.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("provider: unmarshal envelope: %w", err)
	}
	return &e, nil
}
