package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSourceCall(t *testing.T) {
	before := testutil.ToFloat64(sourceCalls.WithLabelValues("wikitree", "search", "ok"))
	RecordSourceCall("wikitree", "search", "ok", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(sourceCalls.WithLabelValues("wikitree", "search", "ok")))
}

func TestSetDegraded(t *testing.T) {
	SetDegraded("familysearch", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(degraded.WithLabelValues("familysearch")))
	SetDegraded("familysearch", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(degraded.WithLabelValues("familysearch")))
}

func TestRecordPass(t *testing.T) {
	before := testutil.ToFloat64(passResults.WithLabelValues("exact", "empty"))
	RecordPass("exact", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(passResults.WithLabelValues("exact", "empty")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordConsensus("delta", "applied")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lineage_consensus_decisions_total")
}
