// Executor evaluates a compiled Expr tree against an index.Database,
// combining per-term postings lists into the final matching set (§4.4
// "Output. A library-level query tree ...").
//
// NOT is only meaningful as an exclusion within an AND (the common
// "a AND NOT b" shape); a bare top-level NOT has no universe to
// complement against and is rejected at evaluation time.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package query

import (
	"sort"
	"strconv"

	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/indexing"
)

type docSet map[index.DocID]struct{}

func newDocSet(ids []index.DocID) docSet {
	s := make(docSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s docSet) union(o docSet) docSet {
	out := make(docSet, len(s)+len(o))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range o {
		out[id] = struct{}{}
	}
	return out
}

func (s docSet) intersect(o docSet) docSet {
	out := make(docSet, minLen(len(s), len(o)))
	small, big := s, o
	if len(o) < len(s) {
		small, big = o, s
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s docSet) subtract(o docSet) docSet {
	out := make(docSet, len(s))
	for id := range s {
		if _, ok := o[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s docSet) xor(o docSet) docSet {
	return s.subtract(o).union(o.subtract(s))
}

func minLen(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Evaluate runs expr against db, resolving each leaf's candidate terms as
// an OR of postings lists (range rewrite and geo decomposition both
// produce multiple alternative terms per leaf).
func Evaluate(db index.Database, expr *Expr) (docSet, error) {
	switch expr.Kind {
	case ExprTerm:
		if expr.Range != nil {
			return evaluateRange(db, expr)
		}
		set := docSet{}
		for _, term := range expr.Terms {
			set = set.union(newDocSet(db.PostingsFor(term)))
		}
		return set, nil
	case ExprOr:
		left, err := Evaluate(db, expr.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := Evaluate(db, expr.Children[1])
		if err != nil {
			return nil, err
		}
		return left.union(right), nil
	case ExprXor:
		left, err := Evaluate(db, expr.Children[0])
		if err != nil {
			return nil, err
		}
		right, err := Evaluate(db, expr.Children[1])
		if err != nil {
			return nil, err
		}
		return left.xor(right), nil
	case ExprAnd:
		return evaluateAnd(db, expr.Children[0], expr.Children[1])
	case ExprNot:
		return nil, xerrors.NewClientError("NOT must appear as a child of AND")
	default:
		return nil, xerrors.NewClientError("unknown expression kind")
	}
}

func evaluateAnd(db index.Database, left, right *Expr) (docSet, error) {
	if right.Kind == ExprNot {
		l, err := Evaluate(db, left)
		if err != nil {
			return nil, err
		}
		excl, err := Evaluate(db, right.Children[0])
		if err != nil {
			return nil, err
		}
		return l.subtract(excl), nil
	}
	if left.Kind == ExprNot {
		return evaluateAnd(db, right, left)
	}
	l, err := Evaluate(db, left)
	if err != nil {
		return nil, err
	}
	r, err := Evaluate(db, right)
	if err != nil {
		return nil, err
	}
	return l.intersect(r), nil
}

// evaluateRange answers a range-rewritten leaf exactly (§4.4, §8 testable
// property 5): when the ladder produced candidate bucket terms, narrow to
// their postings first and re-check [From, To] exactly against each
// candidate's stored slot value; otherwise (no accuracy ladder, or every
// step exceeded the term cap) there is no narrower candidate set to start
// from, so scan the field's own sorted term dictionary directly.
func evaluateRange(db index.Database, expr *Expr) (docSet, error) {
	rf := expr.Range
	if len(expr.Terms) > 0 {
		candidates := docSet{}
		for _, term := range expr.Terms {
			candidates = candidates.union(newDocSet(db.PostingsFor(term)))
		}
		return filterByRange(db, candidates, rf), nil
	}
	return scanRangeExact(db, rf), nil
}

// filterByRange keeps only candidates whose slot value decodes within
// [rf.From, rf.To], trimming the over-inclusive edges a whole-bucket
// ladder term admits.
func filterByRange(db index.Database, candidates docSet, rf *RangeFilter) docSet {
	out := docSet{}
	for did := range candidates {
		for _, v := range db.ValueOf(did, rf.Slot) {
			if n, ok := decodeRangeValue(rf, v); ok && n >= rf.From && n <= rf.To {
				out[did] = struct{}{}
				break
			}
		}
	}
	return out
}

// scanRangeExact walks every field-term under rf.Prefix and keeps the ones
// whose sortable suffix falls within the encoded bounds, unioning their
// postings. The field-term encoding is order-preserving (§4.3 "Per-type
// indexing contract"), so plain string comparison between equal-width,
// zero-padded suffixes is exact — no ladder is needed for correctness,
// only for avoiding this scan on a real (non-in-memory) backend.
func scanRangeExact(db index.Database, rf *RangeFilter) docSet {
	lo := encodeRangeBound(rf, rf.From)
	hi := encodeRangeBound(rf, rf.To)
	out := docSet{}
	for _, term := range db.TermsWithPrefix(rf.Prefix) {
		suffix := term[len(rf.Prefix):]
		if suffix >= lo && suffix <= hi {
			for _, did := range db.PostingsFor(term) {
				out[did] = struct{}{}
			}
		}
	}
	return out
}

func encodeRangeBound(rf *RangeFilter, n int64) string {
	if rf.Positive {
		return indexing.SerializePositive(n)
	}
	return indexing.SerializeInt(n)
}

func decodeRangeValue(rf *RangeFilter, s string) (int64, bool) {
	if rf.Positive {
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	}
	return indexing.DeserializeInt(s)
}

// ToMSet ranks a docSet into §3's MSet, ordered by ascending DocID when
// no sort keys are given (§4.4 "Sorting and collapsing" covers the
// richer ordering; this is the identity/default ranking).
func ToMSet(set docSet, offset, limit int) index.MSet {
	ids := make([]index.DocID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := len(ids)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := ids[offset:end]

	hits := make([]index.Hit, len(page))
	for i, id := range page {
		hits[i] = index.Hit{DocID: id, Rank: offset + i, Weight: 1.0, Percent: 100}
	}
	return index.MSet{Hits: hits, EstimatedMatches: total}
}
