// Dispatcher wires the URL grammar, content/encoding negotiation and
// status policy of §4.5 to DatabasePool/Schema/indexing/query. Built on
// net/http: each accepted connection already gets its own goroutine and
// net/http itself serializes request handling on that goroutine, which
// satisfies "one worker per connection ... executes one request at a
// time per connection" without a second hand-rolled event loop.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/xapiand/xapiand/autocommit"
	"github.com/xapiand/xapiand/cluster"
	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/dbpool"
	"github.com/xapiand/xapiand/endpoint"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/indexing"
	"github.com/xapiand/xapiand/query"
	"github.com/xapiand/xapiand/schema"
	"github.com/xapiand/xapiand/stats"
)

// Lifecycle holds the per-request timestamps of §4.5 "Request lifecycle"
// for latency metrics (§8's "took" figure is Ends - Begins).
type Lifecycle struct {
	Begins, Received, Processing, Ready, Ends time.Time
}

func (l *Lifecycle) took() time.Duration { return l.Ends.Sub(l.Begins) }

// Dispatcher is the top-level http.Handler (§4.5).
type Dispatcher struct {
	Pool           *dbpool.Pool
	Autocommit     *autocommit.Scheduler
	Stats          *stats.Registry
	Nodes          *cluster.Registry
	Config         *cmn.Config
	RequestTimeout time.Duration

	mu      sync.Mutex
	schemas map[string]*schema.Schema
}

// NewDispatcher wires a Dispatcher over pool, defaulting RequestTimeout
// from cfg (§A.3) and attaching the shared autocommit scheduler (§4.6),
// metrics registry (§6 `_metrics`) and node registry (§6 `_nodes`/`_info`).
func NewDispatcher(pool *dbpool.Pool, cfg *cmn.Config) *Dispatcher {
	nodes := cluster.NewRegistry()
	nodes.SetLocalNode(&cluster.Node{Name: cfg.ClusterName, HTTPPort: cfg.HTTPPort, BinaryPort: cfg.BinaryPort, Touched: 1})
	nodes.Upsert(nodes.LocalNode())
	nodes.SetLeaderNode(nodes.LocalNode())

	return &Dispatcher{
		Pool:           pool,
		Autocommit:     autocommit.New(pool, cfg),
		Stats:          stats.New(),
		Nodes:          nodes,
		Config:         cfg,
		RequestTimeout: cfg.RequestTimeout,
		schemas:        make(map[string]*schema.Schema),
	}
}

func (d *Dispatcher) schemaFor(eps *endpoint.Endpoints) *schema.Schema {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := eps.String()
	s, ok := d.schemas[key]
	if !ok {
		s = schema.New()
		d.schemas[key] = s
	}
	return s
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lc := &Lifecycle{Begins: time.Now()}
	method := r.Method
	if override := r.Header.Get("X-HTTP-Method-Override"); override != "" && method == http.MethodPost {
		method = override
	} else if override := r.Header.Get("HTTP-Method-Override"); override != "" && method == http.MethodPost {
		method = override
	}

	if r.Header.Get("Expect") == "100-continue" {
		w.WriteHeader(http.StatusContinue)
	}
	lc.Received = time.Now()

	pp := ParsePath(r.URL.Path)
	accepted := ParseAccept(r.Header.Get("Accept"))
	ctype := BestContentType(accepted)
	if ctype == "" {
		d.writeError(w, lc, http.StatusNotAcceptable, "no acceptable content type", 0)
		return
	}
	enc := NegotiateEncoding(r.Header.Get("Accept-Encoding"))

	indent := -1
	for _, a := range accepted {
		if a.Indent >= 0 {
			indent = a.Indent
		}
	}
	prettyQuery := r.URL.Query().Get("pretty")
	if prettyQuery == "" && r.URL.Query().Has("pretty") {
		prettyQuery = "true"
	}
	pretty := PrettyLevel(prettyQuery, indent)

	if method == http.MethodOptions {
		w.Header().Set("Allow", joinMethods(AllowedMethods(pp.HasID, pp.Command)))
		w.WriteHeader(http.StatusOK)
		return
	}

	allowed := AllowedMethods(pp.HasID, pp.Command)
	if !methodAllowed(allowed, method) {
		d.writeError(w, lc, http.StatusMethodNotAllowed, "method not allowed for this command", 0)
		return
	}

	lc.Processing = time.Now()
	eps := endpoint.Of(endpoint.Endpoint{Path: pp.Path})

	var err error
	switch {
	// Reserved commands are checked first: a command token always wins
	// over the bare document-id interpretation of the trailing segment
	// (e.g. "/idx/_metadata/mykey" parses mykey as pp.ID, but it names a
	// metadata key, not a document).
	case pp.Command == CmdSchemaC && method == http.MethodGet:
		err = d.handleSchemaGet(w, eps, ctype, pretty)
	case pp.Command == CmdSchemaC && method == http.MethodPut:
		err = d.handleSchemaPut(w, r, eps, ctype, pretty)
	case pp.Command == CmdSchemaC && method == http.MethodDelete:
		err = d.handleSchemaDelete(w, eps, ctype, pretty)
	case pp.Command == CmdMetadataC && method == http.MethodGet:
		err = d.handleMetadataGet(w, eps, pp, ctype, pretty)
	case pp.Command == CmdMetadataC && method == http.MethodPut:
		err = d.handleMetadataPut(w, r, eps, pp, ctype, pretty)
	case pp.Command == CmdMetadataC && method == http.MethodDelete:
		err = d.handleMetadataDelete(w, eps, pp, ctype, pretty)
	case pp.Command == CmdSearchC && (method == http.MethodGet || method == http.MethodPost):
		err = d.handleSearch(w, r, eps, ctype, pretty, lc)
	case pp.Command == CmdMetricsC && method == http.MethodGet:
		d.handleMetrics(w, r)
		return
	case pp.Command == CmdNodesC && method == http.MethodGet:
		err = d.handleNodes(w, ctype, pretty)
	case pp.Command == CmdInfoC && method == http.MethodGet:
		err = d.handleInfo(w, ctype, pretty)
	case pp.Command == CmdCommitC && method == http.MethodPost:
		err = d.handleCommit(w, eps, ctype, pretty)
	case pp.Command == CmdTouchC && method == http.MethodPost:
		err = d.handleTouch(w, eps, ctype, pretty)
	case pp.Command == CmdWALC && method == http.MethodGet:
		err = d.handleWAL(w, eps, ctype, pretty)
	case pp.Command == CmdCheckC && method == http.MethodGet:
		err = d.handleCheck(w, eps, ctype, pretty)
	case pp.Command == CmdDumpC && method == http.MethodPost:
		err = d.handleDump(w, eps, ctype, pretty)
	case pp.Command == CmdRestoreC && method == http.MethodPost:
		err = d.handleRestore(w, r, eps, ctype, pretty)
	case pp.Command == CmdQuitC && method == http.MethodPost:
		d.handleQuit(w)
		return

	// Plain document operations (no reserved command in the path).
	case method == http.MethodGet && pp.HasID:
		err = d.handleGet(w, r, eps, pp, ctype, enc, pretty, lc)
	case method == http.MethodHead && pp.HasID:
		err = d.handleHead(w, eps, pp)
	case method == http.MethodHead && !pp.HasID:
		w.WriteHeader(http.StatusOK)
	case method == http.MethodPatch && pp.HasID:
		err = d.handlePatch(w, r, eps, pp, ctype, pretty, lc)
	case method == http.MethodPut && pp.HasID:
		err = d.handleIndex(w, r, eps, pp, ctype, pretty, lc)
	case method == http.MethodDelete && pp.HasID:
		err = d.handleDelete(w, eps, pp, ctype, pretty)
	case method == http.MethodPost && !pp.HasID:
		err = d.handleIndex(w, r, eps, pp, ctype, pretty, lc)
	case method == http.MethodGet && !pp.HasID:
		err = d.handleSearch(w, r, eps, ctype, pretty, lc)
	default:
		d.writeError(w, lc, http.StatusNotImplemented, "unknown command", 0)
		return
	}

	if err != nil {
		d.writeError(w, lc, xerrors.HTTPStatus(err), err.Error(), 0)
		return
	}
	d.Stats.ObserveRequest(commandLabel(pp.Command), time.Since(lc.Begins))
}

func joinMethods(methods []string) string {
	out := ""
	for i, m := range methods {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}

func (d *Dispatcher) deadline() time.Time {
	if d.RequestTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d.RequestTimeout)
}

func (d *Dispatcher) handleGet(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, pp ParsedPath, ctype string, enc Encoding, pretty int, lc *Lifecycle) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		did, err := h.FindDocument(indexing.IDTerm(pp.ID))
		if err != nil {
			return xerrors.NewNotFoundError("document %q not found", pp.ID)
		}
		doc, err := h.GetDocument(did)
		if err != nil {
			return err
		}
		locs, err := indexing.DecodeLocators(doc.Data())
		if err != nil {
			return err
		}
		env := NewEnvelope().Set(cmn.EnvDocID, pp.ID)
		if len(locs) > 0 {
			env.Set(cmn.ReservedValue, string(locs[0].Inline))
		}
		lc.Ready = time.Now()
		lc.Ends = time.Now()
		env.Set(cmn.EnvTook, lc.took().Seconds())
		d.writeEnvelope(w, http.StatusOK, env, ctype, enc, pretty)
		return nil
	})
}

func (d *Dispatcher) handleHead(w http.ResponseWriter, eps *endpoint.Endpoints, pp ParsedPath) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		if _, err := h.FindDocument(indexing.IDTerm(pp.ID)); err != nil {
			w.WriteHeader(http.StatusNotFound)
			return nil
		}
		w.WriteHeader(http.StatusOK)
		return nil
	})
}

type indexBody map[string]interface{}

func (d *Dispatcher) handleIndex(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int, lc *Lifecycle) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return xerrors.NewClientError("cannot read request body")
	}
	var body indexBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return xerrors.NewSerialisationError(err, "invalid JSON body")
	}

	docID := pp.ID
	if docID == "" {
		docID = generateID()
	}

	s := d.schemaFor(eps)
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		var oldDoc *index.Document
		// §8 scenario S2: a fresh id gets 201, an id that already names a
		// document (replace) gets 200 — checked here, not from whether the
		// caller supplied the id, since an auto-generated id is also new.
		status := http.StatusCreated
		if did, err := h.FindDocument(indexing.IDTerm(docID)); err == nil {
			oldDoc, _ = h.GetDocument(did)
			status = http.StatusOK
		}
		res, err := indexing.Index(s, body, docID, oldDoc)
		if err != nil {
			return err
		}
		if _, err := h.ReplaceDocumentTerm(res.TermID, res.Doc); err != nil {
			return err
		}
		d.Autocommit.Notify(eps, h.Database())
		d.Stats.IncIndexed()
		lc.Ready = time.Now()
		lc.Ends = time.Now()
		env := NewEnvelope().Set(cmn.EnvDocID, docID).Set(cmn.EnvTook, lc.took().Seconds())
		d.writeEnvelope(w, status, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

func (d *Dispatcher) handleDelete(w http.ResponseWriter, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int) error {
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		if err := h.DeleteDocumentTerm(indexing.IDTerm(pp.ID)); err != nil {
			return xerrors.NewNotFoundError("document %q not found", pp.ID)
		}
		d.Autocommit.Notify(eps, h.Database())
		d.Stats.IncDeleted()
		d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvDocID, pp.ID), ctype, EncodingIdentity, pretty)
		return nil
	})
}

func (d *Dispatcher) handleCommit(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		start := time.Now()
		err := h.Commit()
		d.Stats.ObserveCommit(time.Since(start), err == nil)
		if err != nil {
			return err
		}
		d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvCommit, true), ctype, EncodingIdentity, pretty)
		return nil
	})
}

// searchBody is the POST /_search request shape (§6 "query_field_t"):
// `_query` holds the implicit-AND query strings, `_aggregations` the
// optional aggregation tree request, offset/limit the usual paging pair.
type searchBody struct {
	Query        []string               `json:"_query"`
	Offset       int                    `json:"offset"`
	Limit        int                    `json:"limit"`
	Aggregations map[string]interface{} `json:"_aggregations"`
}

func (b *searchBody) UnmarshalJSON(data []byte) error {
	var raw struct {
		Query        interface{}            `json:"_query"`
		Offset       int                    `json:"offset"`
		Limit        int                    `json:"limit"`
		Aggregations map[string]interface{} `json:"_aggregations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.Query.(type) {
	case string:
		if v != "" {
			b.Query = []string{v}
		}
	case []interface{}:
		for _, el := range v {
			if s, ok := el.(string); ok && s != "" {
				b.Query = append(b.Query, s)
			}
		}
	}
	b.Offset, b.Limit, b.Aggregations = raw.Offset, raw.Limit, raw.Aggregations
	return nil
}

// handleSearch serves `_search` for both GET (query-string `q`/`offset`/
// `limit`) and POST (JSON body per searchBody) per §4.5's dispatch table
// entry "GET ... search" / "POST ... search".
func (d *Dispatcher) handleSearch(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, ctype string, pretty int, lc *Lifecycle) error {
	var body searchBody
	if r.Method == http.MethodPost {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return xerrors.NewClientError("cannot read request body")
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return xerrors.NewSerialisationError(err, "invalid JSON search body")
			}
		}
	} else if q := r.URL.Query().Get("q"); q != "" {
		body.Query = []string{q}
	}
	if body.Offset == 0 {
		body.Offset = atoiDefault(r.URL.Query().Get("offset"), 0)
	}
	if body.Limit == 0 {
		body.Limit = atoiDefault(r.URL.Query().Get("limit"), 10)
	}

	s := d.schemaFor(eps)
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		db := h.Database().RDB
		compiler := &query.Compiler{Schema: s}
		var hits index.MSet
		if len(body.Query) > 0 {
			expr, err := compiler.Compile(joinQueryAND(body.Query))
			if err != nil {
				return err
			}
			set, err := query.Evaluate(db, expr)
			if err != nil {
				return err
			}
			hits = query.ToMSet(set, body.Offset, body.Limit)
		}
		d.Stats.IncSearched()
		lc.Ready = time.Now()
		lc.Ends = time.Now()

		env := NewEnvelope().
			Set(cmn.EnvTotalCount, hits.Size()).
			Set(cmn.EnvMatchesEstimated, hits.EstimatedMatches).
			Set(cmn.EnvTook, lc.took().Seconds())
		hitDocs := make([]interface{}, 0, len(hits.Hits))
		for _, hit := range hits.Hits {
			out := map[string]interface{}{
				"docid": uint32(hit.DocID), "rank": hit.Rank, "weight": hit.Weight, "percent": hit.Percent,
			}
			if doc, err := db.GetDocument(hit.DocID); err == nil {
				for k, v := range bodyFields(doc) {
					out[k] = v
				}
			}
			hitDocs = append(hitDocs, out)
		}
		env.Set(cmn.EnvHits, hitDocs)

		if len(body.Aggregations) > 0 {
			aggs, err := d.runAggregations(db, hits, body.Aggregations, s)
			if err != nil {
				return err
			}
			env.Set(cmn.EnvAggregations, aggs)
		}
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// joinQueryAND combines multiple `_query` strings with an implicit AND
// (§4.4 "Input ... query strings (implicit AND)").
func joinQueryAND(qs []string) string {
	out := qs[0]
	for _, q := range qs[1:] {
		out += " AND " + q
	}
	return out
}

// bodyFields decodes a document's stored inline locator (if any) back
// into its top-level JSON fields, for inclusion in search hits.
func bodyFields(doc *index.Document) map[string]interface{} {
	locs, err := indexing.DecodeLocators(doc.Data())
	if err != nil || len(locs) == 0 {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(locs[0].Inline, &fields); err != nil {
		return nil
	}
	return fields
}

func (d *Dispatcher) handleMetrics(w http.ResponseWriter, r *http.Request) {
	d.Stats.Handler().ServeHTTP(w, r)
}

// handleNodes serves `_nodes` (§6 response envelope key `#nodes`): the
// registry's view of every known cluster participant.
func (d *Dispatcher) handleNodes(w http.ResponseWriter, ctype string, pretty int) error {
	nodes := d.Nodes.All()
	list := make([]interface{}, 0, len(nodes))
	for _, n := range nodes {
		list = append(list, map[string]interface{}{
			"name": n.Name, "http_port": n.HTTPPort, "binary_port": n.BinaryPort,
			"idx": n.Idx, "active": n.Active(),
		})
	}
	env := NewEnvelope().Set(cmn.EnvNodes, list)
	d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
	return nil
}

// handleInfo serves `_info` (§6 `#cluster_name`/`#versions`): static
// cluster identity plus the local node's view of the leader.
func (d *Dispatcher) handleInfo(w http.ResponseWriter, ctype string, pretty int) error {
	env := NewEnvelope().
		Set(cmn.EnvClusterName, d.Config.ClusterName).
		Set(cmn.EnvVersions, map[string]interface{}{"xapiand": "1.0.0"})
	if leader := d.Nodes.LeaderNode(); leader != nil {
		env.Set("#leader", leader.Name)
	}
	d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
	return nil
}

func commandLabel(c Command) string {
	for tok, cmd := range commandTokens {
		if cmd == c {
			return tok
		}
	}
	return "none"
}

func (d *Dispatcher) writeEnvelope(w http.ResponseWriter, status int, env *Envelope, ctype string, enc Encoding, pretty int) {
	var body []byte
	var err error
	switch ctype {
	case "application/msgpack", "application/x-msgpack":
		body, err = EncodeMsgPack(env)
	default:
		body, err = EncodeJSON(env, pretty)
	}
	if err != nil {
		glog.Errorf("encode response: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	compressed, applied := CompressIfSmaller(body, enc)
	w.Header().Set("Content-Type", ctype)
	if applied {
		switch enc {
		case EncodingGzip:
			w.Header().Set("Content-Encoding", "gzip")
		case EncodingDeflate:
			w.Header().Set("Content-Encoding", "deflate")
		}
		body = compressed
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (d *Dispatcher) writeError(w http.ResponseWriter, lc *Lifecycle, status int, message string, _ int) {
	lc.Ends = time.Now()
	env := StatusEnvelope(status, message)
	body, _ := EncodeJSON(env, 0)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

var idCounter uint64
var idMu sync.Mutex

// generateID mints an auto-id for POST-without-id (§4.5 "POST ... index
// (auto-id)") from a process-local monotonic counter; the minted id is
// returned to the client as the document id. The teacher's
// teris-io/shortid dependency is not used (SPEC_FULL.md lists it among the
// dropped teacher deps), which keeps this package dependency-free.
func generateID() string {
	idMu.Lock()
	defer idMu.Unlock()
	idCounter++
	return formatID(idCounter)
}

func formatID(n uint64) string {
	if n == 0 {
		return "0"
	}
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%36]
		n /= 36
	}
	return string(buf[i:])
}
