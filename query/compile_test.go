package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/indexing"
	"github.com/xapiand/xapiand/schema"
)

func newTestSchema(t *testing.T) *schema.Schema {
	s := schema.New()
	_, err := s.Concretize("title", schema.TypeKeyword)
	require.NoError(t, err)
	_, err = s.Concretize("age", schema.TypeInteger)
	require.NoError(t, err)
	return s
}

func TestCompileSimpleFieldValue(t *testing.T) {
	s := newTestSchema(t)
	c := &Compiler{Schema: s}
	expr, err := c.Compile("title:hello")
	require.NoError(t, err)
	require.Equal(t, ExprTerm, expr.Kind)
}

func TestCompileUnknownFieldErrors(t *testing.T) {
	s := newTestSchema(t)
	c := &Compiler{Schema: s}
	_, err := c.Compile("nope:hello")
	require.Error(t, err)
}

func TestCompileAndOrTree(t *testing.T) {
	s := newTestSchema(t)
	c := &Compiler{Schema: s}
	expr, err := c.Compile("title:a AND title:b OR title:c")
	require.NoError(t, err)
	require.Equal(t, ExprOr, expr.Kind)
}

func TestCompileRangeRewriteProducesMultipleTerms(t *testing.T) {
	s := newTestSchema(t)
	c := &Compiler{Schema: s}
	expr, err := c.Compile("age:[18,25]")
	require.NoError(t, err)
	require.Equal(t, ExprTerm, expr.Kind)
	require.NotEmpty(t, expr.Terms)
	require.NotNil(t, expr.Range)
}

// TestRangeRewritePicksFinestLadderStep guards against regressing to the
// coarsest-step selection: a tight [2000,2015] span against the default
// {100,1000,...} ladder must pick step=100 (one bucket term), not
// step=1,000,000 (a single term that would admit almost every document).
func TestRangeRewritePicksFinestLadderStep(t *testing.T) {
	s := newTestSchema(t)
	spec, ok := s.Lookup("age")
	require.True(t, ok)
	terms := rewriteWithLadder(spec, 2000, 2015, 100)
	require.Len(t, terms, 1)
	require.Equal(t, spec.Accuracy.Prefixes[0]+"2000", terms[0])
}

// TestRangeRewriteExactlyMatchesBounds is §8 testable property 5: a
// rewritten range query must return exactly {d : lo <= d.value <= hi},
// not every document whose accuracy bucket merely overlaps the range.
func TestRangeRewriteExactlyMatchesBounds(t *testing.T) {
	s := newTestSchema(t)
	db := index.NewMemDatabase("test")

	ages := map[string]int{
		"below":       1999,
		"lowerBound":  2000,
		"inside":      2008,
		"upperBound":  2015,
		"sameBucket":  2016, // same 100-bucket as 2000, but outside [2000,2015]
		"otherBucket": 2099,
	}
	for id, age := range ages {
		res, err := indexing.Index(s, map[string]interface{}{"age": age}, id, nil)
		require.NoError(t, err)
		_, err = db.ReplaceDocumentTerm(res.TermID, res.Doc)
		require.NoError(t, err)
	}

	c := &Compiler{Schema: s}
	expr, err := c.Compile("age:[2000,2015]")
	require.NoError(t, err)
	set, err := Evaluate(db, expr)
	require.NoError(t, err)

	matched := make(map[string]bool, len(set))
	for did := range set {
		doc, err := db.GetDocument(did)
		require.NoError(t, err)
		for k := range doc.Terms() {
			if k[0] == 'Q' {
				matched[k[1:]] = true
			}
		}
	}
	require.Equal(t, map[string]bool{"lowerBound": true, "inside": true, "upperBound": true}, matched)
}

// TestRangeRewriteFallsBackToExactScanWhenSpanExceedsTermCap covers a span
// wide enough that even the coarsest ladder step needs more than
// cmn.MaxRangeRewriteTerms buckets: rewriteWithLadder gives up (Terms is
// empty) and the executor must still answer exactly via a direct
// field-term scan rather than rejecting the query.
func TestRangeRewriteFallsBackToExactScanWhenSpanExceedsTermCap(t *testing.T) {
	s := schema.New()
	_, err := s.Concretize("amount", schema.TypePositive)
	require.NoError(t, err)

	db := index.NewMemDatabase("test")
	for id, amount := range map[string]int{"a": 5, "b": 10, "c": 15, "d": 20} {
		res, err := indexing.Index(s, map[string]interface{}{"amount": amount}, id, nil)
		require.NoError(t, err)
		_, err = db.ReplaceDocumentTerm(res.TermID, res.Doc)
		require.NoError(t, err)
	}

	c := &Compiler{Schema: s}
	expr, err := c.Compile("amount:[0,200000000]")
	require.NoError(t, err)
	require.Empty(t, expr.Terms)
	require.NotNil(t, expr.Range)

	set, err := Evaluate(db, expr)
	require.NoError(t, err)
	require.Len(t, set, 4)
}

func TestEvaluateIntersectsAnd(t *testing.T) {
	db := index.NewMemDatabase("test")
	doc1 := index.NewDocument()
	doc1.AddTerm("Xhello", false)
	doc1.AddTerm("Yworld", false)
	_, err := db.AddDocument(doc1)
	require.NoError(t, err)

	doc2 := index.NewDocument()
	doc2.AddTerm("Xhello", false)
	_, err = db.AddDocument(doc2)
	require.NoError(t, err)

	expr := &Expr{Kind: ExprAnd, Children: []*Expr{leaf("Xhello"), leaf("Yworld")}}
	set, err := Evaluate(db, expr)
	require.NoError(t, err)
	require.Len(t, set, 1)
}

func TestEvaluateOrUnions(t *testing.T) {
	db := index.NewMemDatabase("test")
	doc1 := index.NewDocument()
	doc1.AddTerm("Xa", false)
	_, _ = db.AddDocument(doc1)
	doc2 := index.NewDocument()
	doc2.AddTerm("Xb", false)
	_, _ = db.AddDocument(doc2)

	expr := &Expr{Kind: ExprOr, Children: []*Expr{leaf("Xa"), leaf("Xb")}}
	set, err := Evaluate(db, expr)
	require.NoError(t, err)
	require.Len(t, set, 2)
}

func TestEvaluateAndNotExcludes(t *testing.T) {
	db := index.NewMemDatabase("test")
	doc1 := index.NewDocument()
	doc1.AddTerm("Xa", false)
	doc1.AddTerm("Xb", false)
	_, _ = db.AddDocument(doc1)
	doc2 := index.NewDocument()
	doc2.AddTerm("Xa", false)
	_, _ = db.AddDocument(doc2)

	expr := &Expr{Kind: ExprAnd, Children: []*Expr{leaf("Xa"), {Kind: ExprNot, Children: []*Expr{leaf("Xb")}}}}
	set, err := Evaluate(db, expr)
	require.NoError(t, err)
	require.Len(t, set, 1)
}

func TestToMSetRespectsOffsetAndLimit(t *testing.T) {
	set := docSet{1: {}, 2: {}, 3: {}, 4: {}}
	ms := ToMSet(set, 1, 2)
	require.Equal(t, 4, ms.EstimatedMatches)
	require.Len(t, ms.Hits, 2)
}
