// Typed indexers: one normalize/serialize/emit routine per concrete type
// (§4.3 "Per-type indexing contract"). Each indexer is handed the already
// resolved schema.Specification for its field and an *index.Document to
// append terms/values to.
//
// Grounded on original_source/src/schema.h's per-type index_* dispatch
// (bool/date/time/timedelta/float/integer/positive/keyword/string/text/
// uuid/geo) and on the teacher's small-struct-plus-switch style for
// dispatch tables (cmn/api_const.go's HTTP verb tables).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package indexing

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/schema"
)

// Context carries the per-document state an indexer needs: the target
// document and the current wall clock for "now"-relative date math.
type Context struct {
	Doc *index.Document
	Now time.Time
}

// Indexer normalizes v according to spec and appends terms/values to
// ctx.Doc (§4.3 points 1-7).
type Indexer func(spec schema.Specification, v interface{}, ctx *Context) error

// Dispatch runs the indexer for spec.Concrete on v, returning an error if
// v's Go type cannot be coerced to that concrete type or the type has no
// indexer.
func Dispatch(spec schema.Specification, v interface{}, ctx *Context) error {
	switch spec.Concrete {
	case schema.TypeBoolean:
		return indexBoolean(spec, v, ctx)
	case schema.TypeDate:
		return indexDate(spec, v, ctx)
	case schema.TypeTime:
		return indexTimeOfDay(spec, v, ctx)
	case schema.TypeTimedelta:
		return indexTimedelta(spec, v, ctx)
	case schema.TypeFloat:
		return indexFloat(spec, v, ctx)
	case schema.TypeInteger:
		return indexInteger(spec, v, ctx)
	case schema.TypePositive:
		return indexPositive(spec, v, ctx)
	case schema.TypeKeyword:
		return indexKeyword(spec, v, ctx)
	case schema.TypeString:
		return indexString(spec, v, ctx)
	case schema.TypeText:
		return indexText(spec, v, ctx)
	case schema.TypeUUID:
		return indexUUID(spec, v, ctx)
	case schema.TypeGeo:
		return indexGeo(spec, v, ctx)
	default:
		return xerrors.NewMissingTypeError("field %q has no concrete indexer", spec.FullMetaName)
	}
}

// emit implements the shared field-term / field-value / accuracy-ladder
// steps (§4.3 points 3-5) once serialized is the sortable serialization
// and numeric is its signed integer form for bucketing.
func emit(spec schema.Specification, serialized string, numeric int64, ctx *Context) {
	mode := cmn.IndexMode(spec.Index)
	if mode == 0 {
		mode = cmn.IdxAll
	}
	if mode.Has(cmn.IdxFieldTerm) {
		term := spec.Prefix.Field + serialized
		ctx.Doc.AddTerm(term, spec.Flags.Has(schema.FlagBoolTerm))
	}
	if mode.Has(cmn.IdxFieldValue) {
		ctx.Doc.AddValue(spec.Slot, serialized)
	}
	for i, prefix := range spec.Accuracy.Prefixes {
		bucket := spec.Accuracy.BucketFor(i, numeric)
		ctx.Doc.AddTerm(prefix+strconv.FormatInt(bucket, 10), false)
	}
}

func indexBoolean(spec schema.Specification, v interface{}, ctx *Context) error {
	b, ok := v.(bool)
	if !ok {
		return xerrors.NewCastError("field %q: expected boolean, got %T", spec.FullMetaName, v)
	}
	s := "f"
	n := int64(0)
	if b {
		s, n = "t", 1
	}
	emit(spec, s, n, ctx)
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func indexFloat(spec schema.Specification, v interface{}, ctx *Context) error {
	f, ok := toFloat(v)
	if !ok {
		return xerrors.NewCastError("field %q: expected float, got %T", spec.FullMetaName, v)
	}
	serialized := serializeFloat(f)
	emit(spec, serialized, int64(f), ctx)
	return nil
}

// serializeFloat produces a sortable byte string for f by flipping the
// sign bit (positive) or all bits (negative) of its IEEE-754 bit
// pattern, the standard trick for making float64 bit patterns order the
// same as the floats they represent, then hex-encoding.
func serializeFloat(f float64) string {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return fmt.Sprintf("%x", buf)
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func indexInteger(spec schema.Specification, v interface{}, ctx *Context) error {
	n, ok := toInt64(v)
	if !ok {
		return xerrors.NewCastError("field %q: expected integer, got %T", spec.FullMetaName, v)
	}
	emit(spec, serializeInt(n), n, ctx)
	return nil
}

func indexPositive(spec schema.Specification, v interface{}, ctx *Context) error {
	n, ok := toInt64(v)
	if !ok || n < 0 {
		return xerrors.NewCastError("field %q: expected positive integer, got %v", spec.FullMetaName, v)
	}
	emit(spec, fmt.Sprintf("%020d", n), n, ctx)
	return nil
}

// SerializeInt offsets n by 2^63 so two's-complement ordering becomes
// unsigned lexicographic ordering, matching the index library's numeric
// term ordering (§4.3 point 2). Exported so the query package's range
// rewrite (§4.4) can encode/decode the same field-term and slot-value
// representation this package writes, without a second encoding scheme.
func SerializeInt(n int64) string {
	u := uint64(n) ^ (1 << 63)
	return fmt.Sprintf("%020d", u)
}

// DeserializeInt is SerializeInt's inverse; ok is false if s isn't a
// 20-digit unsigned decimal.
func DeserializeInt(s string) (int64, bool) {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return int64(u ^ (1 << 63)), true
}

// SerializePositive mirrors indexPositive's plain zero-padded decimal
// encoding (no two's-complement offset: positive values are already
// unsigned-lexicographically ordered).
func SerializePositive(n int64) string {
	return fmt.Sprintf("%020d", n)
}

func serializeInt(n int64) string { return SerializeInt(n) }

func indexKeyword(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected keyword string, got %T", spec.FullMetaName, v)
	}
	emit(spec, s, 0, ctx)
	return nil
}

func indexString(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected string, got %T", spec.FullMetaName, v)
	}
	emit(spec, strings.ToLower(s), 0, ctx)
	return nil
}

// indexText runs a minimal term generator honoring the stop/stem
// strategy toggles (§4.3 point 7): lowercase, whitespace/punctuation
// tokenize, optionally drop stop words, optionally stem by trimming a
// small set of common English suffixes. Stop words are dropped only under
// StopAll and stemming runs only under StemAll/StemAllZ; StopStemmed,
// StemSome and the spelling flags have no effect here. FlagPositions adds
// a "term#i" term per token. No NLP library is used.
func indexText(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected text, got %T", spec.FullMetaName, v)
	}
	for i, tok := range tokenize(s) {
		tok = strings.ToLower(tok)
		if spec.StopStrategy != schema.StopNone && isStopWord(tok) {
			if spec.StopStrategy == schema.StopAll {
				continue
			}
		}
		if spec.StemStrategy == schema.StemAll || spec.StemStrategy == schema.StemAllZ {
			tok = stem(tok)
		}
		term := spec.Prefix.Field + tok
		ctx.Doc.AddTerm(term, false)
		if spec.Flags.Has(schema.FlagPositions) {
			ctx.Doc.AddTerm(fmt.Sprintf("%s#%d", term, i), false)
		}
	}
	return nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "is": true, "it": true, "for": true, "on": true,
}

func isStopWord(tok string) bool { return stopWords[tok] }

func stem(tok string) string {
	for _, suf := range []string{"ational", "ing", "edly", "ed", "ly", "es", "s"} {
		if strings.HasSuffix(tok, suf) && len(tok) > len(suf)+2 {
			return strings.TrimSuffix(tok, suf)
		}
	}
	return tok
}

func indexUUID(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected uuid string, got %T", spec.FullMetaName, v)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return xerrors.NewCastError("field %q: invalid uuid %q", spec.FullMetaName, s)
	}
	switch spec.IndexUUIDField {
	case schema.UUIDFieldUUID, schema.UUIDFieldBoth:
		emit(spec, id.String(), 0, ctx)
	}
	if spec.IndexUUIDField == schema.UUIDFieldField || spec.IndexUUIDField == schema.UUIDFieldBoth {
		ctx.Doc.AddTerm(spec.Prefix.Field+spec.MetaName, false)
	}
	return nil
}

func indexDate(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected date string, got %T", spec.FullMetaName, v)
	}
	t, err := ParseDateMath(s, ctx.Now)
	if err != nil {
		return err
	}
	ordinal, err := ToOrdinal(t.Year(), int(t.Month()), t.Day())
	if err != nil {
		return err
	}
	secondsOfDay := t.Hour()*3600 + t.Minute()*60 + t.Second()
	epoch := ordinal*86400 + int64(secondsOfDay)
	emit(spec, serializeInt(epoch), epoch, ctx)
	return nil
}

func indexTimeOfDay(spec schema.Specification, v interface{}, ctx *Context) error {
	s, ok := v.(string)
	if !ok {
		return xerrors.NewCastError("field %q: expected time string, got %T", spec.FullMetaName, v)
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return xerrors.NewCastError("field %q: invalid time %q", spec.FullMetaName, s)
	}
	secs := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	emit(spec, serializeInt(secs), secs, ctx)
	return nil
}

func indexTimedelta(spec schema.Specification, v interface{}, ctx *Context) error {
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(x)
		if err != nil {
			return xerrors.NewCastError("field %q: invalid timedelta %q", spec.FullMetaName, x)
		}
		secs := int64(d.Seconds())
		emit(spec, serializeInt(secs), secs, ctx)
		return nil
	default:
		secs, ok := toInt64(v)
		if !ok {
			return xerrors.NewCastError("field %q: expected timedelta, got %T", spec.FullMetaName, v)
		}
		emit(spec, serializeInt(secs), secs, ctx)
		return nil
	}
}

// IDTerm is the boolean document-id term every document gets in addition
// to slot 0 storage (§4.3 "ID term").
func IDTerm(id string) string { return "Q" + id }
