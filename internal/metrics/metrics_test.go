package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/icc-checker/internal/services"
)

var _ services.Metrics = (*Recorder)(nil)

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

func TestRecorderCounters(t *testing.T) {
	r := New(false)
	r.AuditPersisted()
	r.AuditPersisted()
	r.DuplicateDetected("precheck")
	r.DuplicateDetected("insert")
	r.DuplicateDetected("insert")
	r.CodeRejected()
	r.StoreError("latest_audit")
	r.LoginFailed("invalid")

	assert.Equal(t, 2.0, readCounter(t, r.persisted))
	assert.Equal(t, 1.0, readCounter(t, r.duplicates.WithLabelValues("precheck")))
	assert.Equal(t, 2.0, readCounter(t, r.duplicates.WithLabelValues("insert")))
	assert.Equal(t, 1.0, readCounter(t, r.codeRejects))
	assert.Equal(t, 1.0, readCounter(t, r.storeErrors.WithLabelValues("latest_audit")))
	assert.Equal(t, 0.0, readCounter(t, r.storeErrors.WithLabelValues("insert_audit")))
	assert.Equal(t, 1.0, readCounter(t, r.loginFailures.WithLabelValues("invalid")))
}

func TestHandlerExposesFamilies(t *testing.T) {
	r := New(true)
	r.AuditPersisted()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "icc_audits_persisted_total 1")
	assert.Contains(t, string(body), "go_goroutines")

	families, err := r.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["icc_audits_persisted_total"])
}
