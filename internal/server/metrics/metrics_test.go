package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()
	reg := NewRegistry(c)

	c.OccupyGranted()
	c.OccupyGranted()
	c.OccupyDenied()
	c.LeasesSwept(3)
	c.LeasesSwept(0)
	c.Heartbeat("user")
	c.SyncWrite("put")
	c.SyncConflict()
	c.ArchiveFailure()

	assert.Equal(t, 2.0, counterValue(t, reg, "leasekeeper_occupy_total", map[string]string{"outcome": "granted"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leasekeeper_occupy_total", map[string]string{"outcome": "denied"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "leasekeeper_leases_swept_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "leasekeeper_heartbeats_total", map[string]string{"role": "user"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leasekeeper_sync_writes_total", map[string]string{"kind": "put"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "leasekeeper_sync_conflicts_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "leasekeeper_archive_failures_total", nil))
}

func TestHandler_ServesTextFormat(t *testing.T) {
	c := NewCollector()
	reg := NewRegistry(c)
	c.ObserveRequest("/occupy", http.MethodPost, "200", 0.01)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `leasekeeper_http_request_duration_seconds_count{code="200",method="POST",route="/occupy"} 1`))
}
