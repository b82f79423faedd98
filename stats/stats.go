// Package stats tracks counter and latency metrics the way the teacher's
// own stats package names them ("*.n" counters, "*.ns" latencies, §8
// property/metric naming convention), but backs them with a real
// prometheus.Registry/client_golang exposition instead of the teacher's
// hand-rolled StatsD notifier, since §4.5's `_metrics` command is a
// Prometheus-style scrape endpoint rather than a push target.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric name constants, following the teacher's "*.n" / "*.ns" / "*.size"
// suffix convention (stats/target_stats.go) mapped onto the operations
// this server actually performs.
const (
	CheckoutWaitLatency = "checkout.wait.ns"
	RequestLatency      = "request.ns"
	CommitLatency       = "commit.ns"
	CommitCount         = "commit.n"
	CommitFailCount     = "commit.fail.n"
	IndexCount          = "index.n"
	SearchCount         = "search.n"
	DeleteCount         = "delete.n"
)

// Registry wraps a prometheus.Registry with the fixed set of collectors
// this server exposes. One instance is process-wide, injected into the
// Dispatcher and the autocommit scheduler.
type Registry struct {
	reg *prometheus.Registry

	checkoutWait *prometheus.HistogramVec
	requestTook  *prometheus.HistogramVec
	commitTook   prometheus.Histogram
	commits      prometheus.Counter
	commitFails  prometheus.Counter
	indexed      prometheus.Counter
	searched     prometheus.Counter
	deleted      prometheus.Counter
}

// New registers every collector and returns the ready Registry.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.checkoutWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xapiand", Name: "checkout_wait_seconds",
		Help:    "time spent waiting to check out a database handle, by writable flag",
		Buckets: prometheus.DefBuckets,
	}, []string{"writable"})

	r.requestTook = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xapiand", Name: "request_duration_seconds",
		Help:    "end-to-end request duration, begins to ends (§4.5 lifecycle)",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	r.commitTook = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xapiand", Name: "commit_duration_seconds",
		Help:    "duration of a WritableDatabase.Commit call",
		Buckets: prometheus.DefBuckets,
	})

	r.commits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xapiand", Name: "commits_total", Help: "successful commits",
	})
	r.commitFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xapiand", Name: "commit_failures_total", Help: "failed commits",
	})
	r.indexed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xapiand", Name: "documents_indexed_total", Help: "documents indexed",
	})
	r.searched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xapiand", Name: "searches_total", Help: "search requests served",
	})
	r.deleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xapiand", Name: "documents_deleted_total", Help: "documents deleted",
	})

	r.reg.MustRegister(r.checkoutWait, r.requestTook, r.commitTook,
		r.commits, r.commitFails, r.indexed, r.searched, r.deleted)
	return r
}

func (r *Registry) ObserveCheckoutWait(writable bool, d time.Duration) {
	label := "false"
	if writable {
		label = "true"
	}
	r.checkoutWait.WithLabelValues(label).Observe(d.Seconds())
}

func (r *Registry) ObserveRequest(command string, d time.Duration) {
	r.requestTook.WithLabelValues(command).Observe(d.Seconds())
}

func (r *Registry) ObserveCommit(d time.Duration, ok bool) {
	r.commitTook.Observe(d.Seconds())
	if ok {
		r.commits.Inc()
	} else {
		r.commitFails.Inc()
	}
}

func (r *Registry) IncIndexed()  { r.indexed.Inc() }
func (r *Registry) IncSearched() { r.searched.Inc() }
func (r *Registry) IncDeleted()  { r.deleted.Inc() }

// Handler returns the http.Handler serving the Prometheus text exposition
// format, wired to the HTTP dispatcher's `_metrics` command.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
