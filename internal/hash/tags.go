// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the canonical serialization.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every stored scrap.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix of the canonical serialization.
// Bumping it invalidates all existing content hashes.
const HashVersion byte = 1

const (
	TagReservedZero byte = 0x00

	// Literals
	TagInt     byte = 0x01
	TagFloat   byte = 0x02
	TagString  byte = 0x03
	TagBytes   byte = 0x04
	TagHole    byte = 0x05
	TagVariant byte = 0x06
	TagBareTag byte = 0x07
	TagList    byte = 0x08
	TagRecord  byte = 0x09

	// References
	TagLocalRef  byte = 0x0B
	TagGlobalRef byte = 0x0C
	TagBuiltin   byte = 0x0D
	TagHashRef   byte = 0x0E

	// Forms
	TagBinop      byte = 0x10
	TagApply      byte = 0x11
	TagFunction   byte = 0x12
	TagMatch      byte = 0x13
	TagMatchFn    byte = 0x14
	TagWhere      byte = 0x15
	TagAssign     byte = 0x16
	TagAccess     byte = 0x17
	TagAccessName byte = 0x18
	TagAssert     byte = 0x19

	// Patterns
	TagPatWildcard byte = 0x20
	TagPatBind     byte = 0x21
	TagPatLiteral  byte = 0x22
	TagPatList     byte = 0x23
	TagPatRecord   byte = 0x24
	TagPatVariant  byte = 0x25
	TagPatBareTag  byte = 0x26

	// Markers
	TagNone   byte = 0x30
	TagSpread byte = 0x31
	TagRest   byte = 0x32
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagInt, TagFloat, TagString, TagBytes, TagHole, TagVariant, TagBareTag,
	TagList, TagRecord,
	TagLocalRef, TagGlobalRef, TagBuiltin, TagHashRef,
	TagBinop, TagApply, TagFunction, TagMatch, TagMatchFn, TagWhere,
	TagAssign, TagAccess, TagAccessName, TagAssert,
	TagPatWildcard, TagPatBind, TagPatLiteral, TagPatList, TagPatRecord,
	TagPatVariant, TagPatBareTag,
	TagNone, TagSpread, TagRest,
}
