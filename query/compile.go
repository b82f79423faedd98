// Per-term lowering: turning a parsed field:value / field:range /
// field:geo token into a compiled Expr leaf, including the accuracy-
// ladder range rewrite and geo trixel decomposition (§4.4 "Per-term
// lowering").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package query

import (
	"strconv"
	"time"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/indexing"
	"github.com/xapiand/xapiand/schema"
)

// Field resolves query-time field metadata (§4.4 references the schema
// for prefix/slot/accuracy); Compiler plugs a schema.Schema in via this
// narrow interface so the package doesn't need the full Schema type in
// its exported surface.
type Field interface {
	Lookup(fullPath string) (schema.Specification, bool)
}

// Compiler lowers tokens against a schema snapshot.
type Compiler struct {
	Schema Field
}

// Compile tokenizes and lowers q into an Expr tree ready for execution
// (§4.4 "Output. A library-level query tree ...").
func (c *Compiler) Compile(q string) (*Expr, error) {
	toks, err := Tokenize(q)
	if err != nil {
		return nil, err
	}
	return Parse(toks, c.lower)
}

func (c *Compiler) lower(tok Token) (*Expr, error) {
	if tok.Field == "" {
		// No field prefix: treat as a free-text term against every text field
		// is out of scope here (handled one layer up by the dispatcher's
		// default-field convention); compile as a literal term.
		return leaf(tok.Value), nil
	}
	spec, ok := c.Schema.Lookup(tok.Field)
	if !ok {
		return nil, xerrors.NewNotFoundError("unknown field %q", tok.Field)
	}

	if tok.Range != nil {
		return c.lowerRange(spec, tok.Range)
	}

	switch spec.Concrete {
	case schema.TypeGeo:
		return nil, xerrors.NewClientError("field %q: geo queries require a range/radius literal", tok.Field)
	default:
		return leaf(spec.Prefix.Field + tok.Value), nil
	}
}

// lowerRange implements §4.4's range rewrite: an OR of accuracy-bucket
// terms (finest ladder step that still fits within cmn.MaxRangeRewriteTerms,
// to minimize over-inclusion) intersected with an inclusive value-range
// filter. The filter is attached unconditionally — even when a ladder
// step narrows the candidate set, whole-bucket terms over-match at the
// range's edges, so the executor always re-checks [from, to] exactly
// against the field's own value encoding (§8 testable property 5: the
// rewritten query must return exactly {d : lo <= d.value <= hi}). When no
// accuracy ladder applies (or every step still exceeds the term cap),
// Terms is left empty and the executor falls back to a direct sorted
// field-term range scan instead of rejecting the query.
func (c *Compiler) lowerRange(spec schema.Specification, r *RangeLiteral) (*Expr, error) {
	from, to, err := rangeBounds(spec, r)
	if err != nil {
		return nil, err
	}

	rf := &RangeFilter{Slot: spec.Slot, Prefix: spec.Prefix.Field, Positive: spec.Concrete == schema.TypePositive, From: from, To: to}

	var terms []string
	if len(spec.Accuracy.Buckets) > 0 {
		terms = rewriteWithLadder(spec, from, to, cmn.MaxRangeRewriteTerms)
	}
	return &Expr{Kind: ExprTerm, Terms: terms, Range: rf}, nil
}

func rangeBounds(spec schema.Specification, r *RangeLiteral) (int64, int64, error) {
	var from, to int64 = minInt64, maxInt64
	var err error
	if r.HasFrom {
		from, err = parseBound(spec, r.From)
		if err != nil {
			return 0, 0, err
		}
		if !r.FromInclusive {
			from++
		}
	}
	if r.HasTo {
		to, err = parseBound(spec, r.To)
		if err != nil {
			return 0, 0, err
		}
		if !r.ToInclusive {
			to--
		}
	}
	return from, to, nil
}

const (
	minInt64 = -(1 << 62)
	maxInt64 = 1 << 62
)

func parseBound(spec schema.Specification, s string) (int64, error) {
	switch spec.Concrete {
	case schema.TypeDate:
		t, err := indexing.ParseDateMath(s, time.Now().UTC())
		if err != nil {
			return 0, err
		}
		ord, err := indexing.ToOrdinal(t.Year(), int(t.Month()), t.Day())
		if err != nil {
			return 0, err
		}
		return ord*86400 + int64(t.Hour()*3600+t.Minute()*60+t.Second()), nil
	default:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, xerrors.NewCastError("cannot parse range bound %q", s)
		}
		return n, nil
	}
}

// rewriteWithLadder picks the FINEST accuracy step whose bucket size still
// divides the range into no more than maxTerms buckets, minimizing
// over-inclusion (a coarser step always over-matches by at least as much),
// and emits one accuracy term per bucket in [from, to] at that step (§4.4
// "two terms at most from the coarser ladder times N terms from the finer
// ladder ... capped at MAX_TERMS"). Returns nil if even the coarsest step
// needs more than maxTerms buckets.
func rewriteWithLadder(spec schema.Specification, from, to int64, maxTerms int) []string {
	for i := 0; i < len(spec.Accuracy.Buckets); i++ {
		step := int64(spec.Accuracy.Buckets[i])
		if step <= 0 {
			continue
		}
		count := (to-from)/step + 1
		if count <= 0 {
			continue
		}
		if int(count) <= maxTerms {
			terms := make([]string, 0, count)
			start := spec.Accuracy.BucketFor(i, from)
			for v := start; v <= to; v += step {
				terms = append(terms, spec.Accuracy.Prefixes[i]+strconv.FormatInt(v, 10))
			}
			return terms
		}
	}
	return nil
}
