package httpd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/dbpool"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := &cmn.Config{AutocommitDelay: 5 * time.Millisecond, AutocommitMaxDelay: 50 * time.Millisecond}
	pool := dbpool.New(8, nil)
	return NewDispatcher(pool, cfg)
}

func doRequest(d *Dispatcher, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)
	return w
}

func TestIndexThenGetRoundTrips(t *testing.T) {
	d := newTestDispatcher(t)

	w := doRequest(d, http.MethodPut, "/twig/doc1", []byte(`{"title":"hello"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(d, http.MethodGet, "/twig/doc1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "doc1", env[cmn.EnvDocID])
}

func TestGetMissingDocumentReturns404(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodGet, "/twig/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRoundTrips(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/twig/doc2", []byte(`{"a":1}`))

	w := doRequest(d, http.MethodDelete, "/twig/doc2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodGet, "/twig/doc2", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchWithoutQueryReturnsEmptyHits(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/twig/doc3", []byte(`{"a":1}`))

	w := doRequest(d, http.MethodGet, "/twig/_search", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, float64(0), env[cmn.EnvTotalCount])
}

func TestOptionsReturnsAllowHeader(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodOptions, "/twig/doc1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("Allow"))
}

func TestNodesCommandListsLocalNode(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodGet, "/twig/_nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	nodes, ok := env[cmn.EnvNodes].([]interface{})
	require.True(t, ok)
	require.Len(t, nodes, 1)
}

func TestInfoCommandReportsClusterName(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodGet, "/twig/_info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, d.Config.ClusterName, env[cmn.EnvClusterName])
}

func TestMethodNotAllowedForCommand(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodDelete, "/twig/_touch", nil)
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestIndexCreateThenUpdateStatusCodes(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodPut, "/twig/doc4", []byte(`{"a":1}`))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doRequest(d, http.MethodPut, "/twig/doc4", []byte(`{"a":2}`))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSearchByQueryReturnsDocumentFields(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/docs/doc5", []byte(`{"name":"hello"}`))

	w := doRequest(d, http.MethodPost, "/docs/_search", []byte(`{"_query":"name:hello"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, float64(1), env[cmn.EnvTotalCount])
	hits, ok := env[cmn.EnvHits].([]interface{})
	require.True(t, ok)
	require.Len(t, hits, 1)
	hit, ok := hits[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "hello", hit["name"])
}

func TestSearchWithAggregations(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/docs/doc6", []byte(`{"name":"a"}`))
	doRequest(d, http.MethodPut, "/docs/doc7", []byte(`{"name":"b"}`))

	w := doRequest(d, http.MethodPost, "/docs/_search", []byte(`{"_aggregations":{"count_all":{"count":{}}}}`))
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	aggs, ok := env[cmn.EnvAggregations].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, aggs, "count_all")
}

func TestPatchAppliesJSONPatch(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/docs/doc8", []byte(`{"name":"hello","age":1}`))

	w := doRequest(d, http.MethodPatch, "/docs/doc8", []byte(`[{"op":"replace","path":"/name","value":"world"},{"op":"remove","path":"/age"}]`))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodPost, "/docs/_search", []byte(`{"_query":"name:world"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, float64(1), env[cmn.EnvTotalCount])
}

func TestSchemaGetAfterIndexing(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/twig/doc9", []byte(`{"title":"hello"}`))

	w := doRequest(d, http.MethodGet, "/twig/_schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Contains(t, env, "#schema")
}

// §4.2 "strict forbids any auto-detection" surfaced through PUT _schema
// (§6); §7 MissingTypeError maps to 412.
func TestSchemaPutStrictRejectsUndeclaredField(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodPut, "/twig/_schema", []byte(`{"strict":{"meta":true}}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodPut, "/twig/doc10", []byte(`{"meta":{"surprise":"value"}}`))
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

// §4.2 "dynamic=false forbids creating new fields" surfaced through PUT
// _schema.
func TestSchemaPutDynamicFalseBlocksNewFields(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodPut, "/twig/_schema", []byte(`{"dynamic":{"locked":false}}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodPut, "/twig/doc11", []byte(`{"locked":{"brandNew":"value"}}`))
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestMetadataPutGetDelete(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodPut, "/twig/_metadata/mykey", []byte(`{"value":"myval"}`))
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodGet, "/twig/_metadata/mykey", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "myval", env["mykey"])

	w = doRequest(d, http.MethodDelete, "/twig/_metadata/mykey", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodGet, "/twig/_metadata/mykey", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTouchCommitsWithoutPriorWrite(t *testing.T) {
	d := newTestDispatcher(t)
	w := doRequest(d, http.MethodPost, "/twig/_touch", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestDumpRestoreRoundTrips(t *testing.T) {
	d := newTestDispatcher(t)
	doRequest(d, http.MethodPut, "/docs/doc10", []byte(`{"name":"dumped"}`))
	doRequest(d, http.MethodPost, "/docs/_commit", nil)

	w := doRequest(d, http.MethodPost, "/docs/_dump", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dumpEnv map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dumpEnv))
	docs, ok := dumpEnv["#documents"]
	require.True(t, ok)
	docsJSON, err := json.Marshal(docs)
	require.NoError(t, err)

	w = doRequest(d, http.MethodPost, "/other/_restore", docsJSON)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(d, http.MethodPost, "/other/_search", []byte(`{"_query":"name:dumped"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, float64(1), env[cmn.EnvTotalCount])
}
