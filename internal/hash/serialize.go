// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package hash

import (
	"encoding/binary"
	"math"
	"math/big"
)

// ---------------------------------------------------------------------------
// Encoding conventions:
//   - First byte: HashVersion
//   - Fixed-width integers: big-endian (uint16=2B, uint32=4B)
//   - Arbitrary integers: sign byte + uint32 length + big-endian magnitude
//   - Floats: IEEE 754 big-endian 8B
//   - Strings and bytes: uint32 big-endian length + raw bytes
//   - Child nodes: serialized inline
// ---------------------------------------------------------------------------

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint16(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

func (s *serializer) writeUint32(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

func (s *serializer) writeFloat64(v float64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, math.Float64bits(v))
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBytes(v []byte) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBigInt(v *big.Int) {
	if v.Sign() < 0 {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
	s.writeBytes(v.Bytes())
}
