// Translates the wire-format `_aggregations` request tree (§6, §4.4
// "Aggregations") into query.Agg nodes and runs them over a search's
// matched documents.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/query"
)

var metricNames = map[string]query.MetricKind{
	"count": query.MetricCount, "sum": query.MetricSum, "avg": query.MetricAvg,
	"min": query.MetricMin, "max": query.MetricMax, "variance": query.MetricVariance,
	"std": query.MetricStd, "median": query.MetricMedian, "mode": query.MetricMode,
	"stats": query.MetricStats, "extended_stats": query.MetricExtendedStats,
}

var bucketNames = map[string]query.BucketKind{
	"filter": query.BucketFilter, "values": query.BucketValues, "terms": query.BucketTerms,
	"histogram": query.BucketHistogram, "range": query.BucketRange,
	"date_histogram": query.BucketDateHistogram, "geo_distance": query.BucketGeoDistance,
	"missing": query.BucketMissing, "ip_range": query.BucketIPRange, "geo_trixels": query.BucketGeoTrixels,
}

// runAggregations parses req (one entry per named aggregation) and runs
// each over hits' matched document ids, returning the `#aggregations`
// payload. s resolves field names to slots (nil is tolerated: fields
// then resolve to slot 0, the `_id` slot, i.e. no useful values).
func (d *Dispatcher) runAggregations(db index.Database, hits index.MSet, req map[string]interface{}, s query.Field) (map[string]interface{}, error) {
	docs := make([]index.DocID, len(hits.Hits))
	for i, h := range hits.Hits {
		docs[i] = h.DocID
	}
	out := make(map[string]interface{}, len(req))
	for name, spec := range req {
		body, ok := spec.(map[string]interface{})
		if !ok {
			return nil, xerrors.NewClientError("aggregation %q: malformed spec", name)
		}
		agg, err := parseAgg(name, body, s)
		if err != nil {
			return nil, err
		}
		res, err := query.Run(db, docs, agg)
		if err != nil {
			if err == query.ErrNotImplemented {
				continue
			}
			return nil, err
		}
		out[name] = res
	}
	return out, nil
}

func parseAgg(name string, body map[string]interface{}, s query.Field) (*query.Agg, error) {
	agg := &query.Agg{Name: name}
	for key, val := range body {
		sub, isMap := val.(map[string]interface{})
		if mk, ok := metricNames[key]; ok && isMap {
			agg.Metric = mk
			agg.Slot = fieldSlot(sub, s)
			return agg, nil
		}
		if bk, ok := bucketNames[key]; ok && isMap {
			agg.Bucket = bk
			agg.Slot = fieldSlot(sub, s)
			if iv, ok := sub["interval"].(float64); ok {
				agg.Interval = iv
			}
			if lim, ok := sub["limit"].(float64); ok {
				agg.Limit = int(lim)
			}
			if mdc, ok := sub["min_doc_count"].(float64); ok {
				agg.MinDocCount = int(mdc)
			}
			if ranges, ok := sub["ranges"].([]interface{}); ok {
				for _, r := range ranges {
					rm, ok := r.(map[string]interface{})
					if !ok {
						continue
					}
					rb := query.RangeBucketSpec{}
					if k, ok := rm["key"].(string); ok {
						rb.Key = k
					}
					if f, ok := rm["from"].(float64); ok {
						rb.From, rb.HasFrom = f, true
					}
					if t, ok := rm["to"].(float64); ok {
						rb.To, rb.HasTo = t, true
					}
					agg.Ranges = append(agg.Ranges, rb)
				}
			}
			if rb, ok := body["aggregations"].(map[string]interface{}); ok {
				for subName, subSpec := range rb {
					subBody, ok := subSpec.(map[string]interface{})
					if !ok {
						continue
					}
					subAgg, err := parseAgg(subName, subBody, s)
					if err != nil {
						return nil, err
					}
					agg.Sub = append(agg.Sub, subAgg)
				}
			}
			return agg, nil
		}
	}
	return nil, xerrors.NewClientError("aggregation %q: no known metric/bucket key", name)
}

func fieldSlot(spec map[string]interface{}, s query.Field) uint32 {
	field, _ := spec["field"].(string)
	if field == "" || s == nil {
		return 0
	}
	if f, ok := s.Lookup(field); ok {
		return f.Slot
	}
	return 0
}
