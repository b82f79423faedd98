package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/index"
)

func seedAggDB(t *testing.T) (index.WritableDatabase, []index.DocID) {
	db := index.NewMemDatabase("agg")
	var ids []index.DocID
	for _, v := range []string{"10", "20", "30"} {
		doc := index.NewDocument()
		doc.AddValue(1, v)
		id, err := db.AddDocument(doc)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return db, ids
}

func TestRunMetricSum(t *testing.T) {
	db, ids := seedAggDB(t)
	res, err := Run(db, ids, &Agg{Name: "total", Metric: MetricSum, Slot: 1})
	require.NoError(t, err)
	m := res.(map[string]float64)
	require.Equal(t, 60.0, m["sum"])
}

func TestRunMetricStats(t *testing.T) {
	db, ids := seedAggDB(t)
	res, err := Run(db, ids, &Agg{Name: "s", Metric: MetricStats, Slot: 1})
	require.NoError(t, err)
	m := res.(map[string]float64)
	require.Equal(t, 3.0, m["count"])
	require.Equal(t, 10.0, m["min"])
	require.Equal(t, 30.0, m["max"])
}

func TestRunBucketHistogram(t *testing.T) {
	db, ids := seedAggDB(t)
	res, err := Run(db, ids, &Agg{Name: "h", Bucket: BucketHistogram, Slot: 1, Interval: 10})
	require.NoError(t, err)
	buckets := res.([]BucketResult)
	require.Len(t, buckets, 3)
}

func TestRunBucketUnimplementedReturnsSentinel(t *testing.T) {
	db, ids := seedAggDB(t)
	_, err := Run(db, ids, &Agg{Name: "dh", Bucket: BucketDateHistogram, Slot: 1})
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestRunBucketRangeSplitsValuesAtBoundary(t *testing.T) {
	db, ids := seedAggDB(t)
	res, err := Run(db, ids, &Agg{
		Name: "r", Bucket: BucketRange, Slot: 1,
		Ranges: []RangeBucketSpec{
			{Key: "low", HasTo: true, To: 15},
			{Key: "high", HasFrom: true, From: 15},
		},
	})
	require.NoError(t, err)
	buckets := res.([]BucketResult)
	require.Len(t, buckets, 2)
}
