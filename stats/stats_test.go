package stats

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.IncIndexed()
	r.IncSearched()
	r.IncDeleted()
	r.ObserveCommit(5*time.Millisecond, true)
	r.ObserveCommit(5*time.Millisecond, false)
	r.ObserveCheckoutWait(true, time.Millisecond)
	r.ObserveRequest("_search", 2*time.Millisecond)

	req := httptest.NewRequest("GET", "/_metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "xapiand_documents_indexed_total 1")
	require.Contains(t, body, "xapiand_commits_total 1")
	require.Contains(t, body, "xapiand_commit_failures_total 1")
}
