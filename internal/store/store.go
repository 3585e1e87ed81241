// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package store provides content-addressed persistence for scraps.
package store

import (
	"errors"

	"nickandperla.net/scrap/internal/hash"
)

// ErrNotFound is returned when no backend or remote knows a hash.
var ErrNotFound = errors.New("scrap not found")

// Backend is the interface for scrap persistence. Entries are the flat
// encoding of a scrap keyed by its canonical hash.
type Backend interface {
	// Get retrieves the entry for h. ok is false if there is none.
	Get(h hash.Hash) (data []byte, ok bool, err error)
	// Put stores data under h unless an entry already exists. stored
	// reports whether data was written.
	Put(h hash.Hash, data []byte) (stored bool, err error)
	// Len returns the number of entries.
	Len() (int, error)
	// Close releases resources.
	Close() error
}
