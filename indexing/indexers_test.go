package indexing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/schema"
)

func newCtx() *Context {
	return &Context{Doc: index.NewDocument(), Now: time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)}
}

func concreteSpec(t schema.ConcreteType, path string) schema.Specification {
	s := schema.New()
	spec, err := s.Concretize(path, t)
	if err != nil {
		panic(err)
	}
	return spec
}

func TestIndexBooleanEmitsTerm(t *testing.T) {
	spec := concreteSpec(schema.TypeBoolean, "active")
	ctx := newCtx()
	require.NoError(t, Dispatch(spec, true, ctx))
	terms := ctx.Doc.Terms()
	require.Contains(t, terms, spec.Prefix.Field+"t")
}

func TestIndexIntegerOrdersLexicographically(t *testing.T) {
	spec := concreteSpec(schema.TypeInteger, "count")
	ctxLow := newCtx()
	ctxHigh := newCtx()
	require.NoError(t, Dispatch(spec, int64(-5), ctxLow))
	require.NoError(t, Dispatch(spec, int64(5), ctxHigh))

	// Pick the field term (prefix + 20-digit serialization), not one of the
	// accuracy-ladder terms the same Dispatch call also emits.
	fieldTermLen := len(spec.Prefix.Field) + 20
	var lowTerm, highTerm string
	for term := range ctxLow.Doc.Terms() {
		if len(term) == fieldTermLen && term[:len(spec.Prefix.Field)] == spec.Prefix.Field {
			lowTerm = term
		}
	}
	for term := range ctxHigh.Doc.Terms() {
		if len(term) == fieldTermLen && term[:len(spec.Prefix.Field)] == spec.Prefix.Field {
			highTerm = term
		}
	}
	require.Less(t, lowTerm, highTerm)
}

func TestIndexIntegerRejectsWrongType(t *testing.T) {
	spec := concreteSpec(schema.TypeInteger, "count")
	ctx := newCtx()
	require.Error(t, Dispatch(spec, "not a number", ctx))
}

func TestIndexTextTokenizesAndLowercases(t *testing.T) {
	spec := concreteSpec(schema.TypeText, "body")
	ctx := newCtx()
	require.NoError(t, Dispatch(spec, "The Quick Fox", ctx))
	terms := ctx.Doc.Terms()
	require.Contains(t, terms, spec.Prefix.Field+"quick")
	require.Contains(t, terms, spec.Prefix.Field+"fox")
}

func TestIndexDateEmitsAccuracyTerms(t *testing.T) {
	spec := concreteSpec(schema.TypeDate, "created")
	ctx := newCtx()
	require.NoError(t, Dispatch(spec, "2026-07-30T00:00:00Z", ctx))
	require.NotEmpty(t, spec.Accuracy.Prefixes)
	terms := ctx.Doc.Terms()
	found := false
	for term := range terms {
		for _, p := range spec.Accuracy.Prefixes {
			if len(term) >= len(p) && term[:len(p)] == p {
				found = true
			}
		}
	}
	require.True(t, found)
}

func TestIndexUUIDRejectsInvalid(t *testing.T) {
	spec := concreteSpec(schema.TypeUUID, "ident")
	ctx := newCtx()
	require.Error(t, Dispatch(spec, "not-a-uuid", ctx))
}

func TestIDTermPrefixesQ(t *testing.T) {
	require.Equal(t, "Qabc123", IDTerm("abc123"))
}
