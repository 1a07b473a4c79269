package monitoring_test

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushairer/batchwriter/monitoring"
)

func TestPrometheusMetrics_Reporter(t *testing.T) {
	pm := monitoring.NewPrometheusMetrics(nil)

	pm.ObserveFlush("users", 10, 7, 20*time.Millisecond, "success")
	pm.ObserveFlush("users", 5, 0, time.Millisecond, "fail")
	pm.ObserveCommit("users", "success")
	pm.IncError("users", "reported:statement_execution")
	pm.SetPending("users", 3)

	families, err := pm.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 15.0, values["batchwriter_rows_requested_total"])
	assert.Equal(t, 7.0, values["batchwriter_rows_affected_total"])
	assert.Equal(t, 3.0, values["batchwriter_pending_rows"])
	assert.Equal(t, 2.0, values["batchwriter_flush_total"])
	assert.Equal(t, 2.0, values["batchwriter_flush_duration_seconds"])
	assert.Equal(t, 1.0, values["batchwriter_commit_total"])
	assert.Equal(t, 1.0, values["batchwriter_errors_total"])
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	pm := monitoring.NewPrometheusMetrics(nil)
	pm.ObserveCommit("orders", "success")

	srv := httptest.NewServer(pm.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `batchwriter_commit_total{status="success",table="orders"} 1`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestPrometheusMetrics_StartStop(t *testing.T) {
	pm := monitoring.NewPrometheusMetrics(nil)

	require.NoError(t, pm.StartServer("127.0.0.1:0"))
	assert.Error(t, pm.StartServer("127.0.0.1:0"))

	resp, err := http.Get("http://" + pm.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, pm.StopServer())
	require.NoError(t, pm.StopServer())
	assert.Empty(t, pm.Addr())
}

func TestPrometheusMetrics_StartServerAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	pm := monitoring.NewPrometheusMetrics(nil)
	err = pm.StartServer(ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ln.Addr().String())
	assert.Empty(t, pm.Addr())

	// 失败的启动不占用服务器槽位
	require.NoError(t, pm.StartServer("127.0.0.1:0"))
	require.NoError(t, pm.StopServer())
}
