// Specification is the per-field contract of §3 specification_t. Prefix,
// slot and the accuracy ladder are derived deterministically from the
// field's dotted path the first time the field is concretized — grounded
// on the spec.md §4.2 algorithm description (schema.h doesn't spell out
// the exact hash; this module follows spec.md's explicit recipe using the
// xxhash dependency already wired for endpoint/cluster hashing).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package schema

import (
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// Prefix is the field's term prefix, plus an optional UUID-field variant
// (§3 "prefix (field + uuid variants)").
type Prefix struct {
	Field string
	UUID  string
}

// slotSeed mirrors endpoint.seed: an arbitrary fixed seed so slot ids are
// stable across restarts.
const slotSeed = 0x9e3779b9

// DeriveSlot computes the 32-bit value slot id (§4.2 point 2): a hash of
// the uppercased path, with slot 0 reserved for _id and 0xffffffff
// remapped to 0xfffffffe.
func DeriveSlot(fullMetaName string) uint32 {
	if fullMetaName == "_id" {
		return 0
	}
	up := strings.ToUpper(fullMetaName)
	slot := uint32(xxhash.ChecksumString64S(up, slotSeed))
	if slot == 0 {
		slot = 1
	}
	if slot == 0xffffffff {
		slot = 0xfffffffe
	}
	return slot
}

// DerivePrefix computes the field's term prefix: a short, deterministic
// byte-string derived from its path and type code (§4.2 point 1). We use
// the low 20 bits of a seeded xxhash of "path:type" rendered as 4
// characters of a 32-symbol alphabet (see encodePrefix), shared
// lexicographic range guaranteed by construction (fixed width, same
// alphabet for every field).
func DerivePrefix(fullMetaName string, concrete ConcreteType) Prefix {
	h := xxhash.ChecksumString64S(fullMetaName+":"+concrete.String(), slotSeed)
	field := encodePrefix(uint32(h))
	return Prefix{Field: field}
}

const prefixAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUV"

// encodePrefix renders v as a fixed-width 4-character string over
// prefixAlphabet (32 symbols, 5 bits each = 20 bits; we use the low 20 bits
// of v) so every field prefix has identical length and a shared
// lexicographic range, per the glossary's definition of Prefix.
func encodePrefix(v uint32) string {
	var b [4]byte
	x := v & 0xfffff
	for i := 3; i >= 0; i-- {
		b[i] = prefixAlphabet[x&0x1f]
		x >>= 5
	}
	return string(b[:])
}

// AccuracyLadder is the user-overridable sorted list of bucket sizes plus
// the parallel list of accuracy-term prefixes (§4.2 point 3).
type AccuracyLadder struct {
	Buckets  []uint64
	Prefixes []string
}

// DefaultAccuracy returns the ladder for a concrete type when the caller
// supplied none, following the relative granularity a numeric/date/geo
// field needs for efficient range-query rewriting (§4.4).
func DefaultAccuracy(t ConcreteType) AccuracyLadder {
	switch t {
	case TypeInteger, TypePositive, TypeFloat:
		return newLadder(fullMetaNameNumericBuckets, t)
	case TypeDate:
		return newLadder([]uint64{
			uint64(60), uint64(3600), uint64(86400), uint64(86400 * 30), uint64(86400 * 365),
		}, t)
	case TypeTime, TypeTimedelta:
		return newLadder([]uint64{60, 3600}, t)
	case TypeGeo:
		// HTM levels used as "bucket sizes" in trixel-count terms (§4.3).
		return newLadder([]uint64{1, 2, 4, 6, 8, 10, 12}, t)
	default:
		return AccuracyLadder{}
	}
}

var fullMetaNameNumericBuckets = []uint64{100, 1000, 10000, 100000, 1000000}

func newLadder(buckets []uint64, t ConcreteType) AccuracyLadder {
	prefixes := make([]string, len(buckets))
	for i, b := range buckets {
		prefixes[i] = "A" + encodePrefix(uint32(xxhash.ChecksumString64S(t.String()+strconv.FormatUint(b, 10), slotSeed)))
	}
	return AccuracyLadder{Buckets: append([]uint64(nil), buckets...), Prefixes: prefixes}
}

// BucketFor returns the coarse bucket value term for v at ladder index i
// (§4.3 point 5: "the value bucketed to that step").
func (a AccuracyLadder) BucketFor(i int, v int64) int64 {
	step := int64(a.Buckets[i])
	if step <= 0 {
		return v
	}
	if v >= 0 {
		return (v / step) * step
	}
	return -(((-v) + step - 1) / step) * step
}

// Specification is §3's specification_t, holding only the durable, public
// fields; transient indexing-time pointers described in the spec live on
// the indexing-pipeline's own per-call stack (§5: "no shared mutable state
// in the indexing pipeline; each invocation gets its own specification_t
// stack"), not here.
type Specification struct {
	Foreign bool
	Object  bool
	Array   bool
	Concrete ConcreteType

	Prefix Prefix
	Slot   uint32

	Flags Flags

	Accuracy AccuracyLadder

	Language     string
	StopStrategy StopStrategy
	StemStrategy StemStrategy
	StemLanguage string

	GeoError float64

	Index           uint8 // cmn.IndexMode bitmask, kept untyped to avoid an import cycle
	IndexUUIDField  IndexUUIDField

	Weight    []uint32
	Position  []bool
	Spelling  []bool
	Positions []bool

	MetaName     string
	FullMetaName string
}

// concreteTypeTriple is the "three-tuple (foreign, object, array) ×
// concrete" §4.2 calls out explicitly.
func (s Specification) concreteTypeTriple() (bool, bool, bool, ConcreteType) {
	return s.Foreign, s.Object, s.Array, s.Concrete
}
