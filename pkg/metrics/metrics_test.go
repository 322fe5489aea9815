package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func assertHasMetricLine(t *testing.T, body, metric string, wantLabels ...string) {
	t.Helper()
	for _, ln := range strings.Split(body, "\n") {
		if !strings.HasPrefix(ln, metric+"{") {
			continue
		}
		ok := true
		for _, s := range wantLabels {
			if !strings.Contains(ln, s) {
				ok = false
				break
			}
		}
		if ok {
			return
		}
	}
	t.Fatalf("expected a %s line with labels %v; got:\n%s", metric, wantLabels, body)
}

func TestRecorderExposesPipelineMetrics(t *testing.T) {
	p := NewProvider("test", "abc123")
	r := NewRecorder(p.Registerer())

	r.ObserveRun("geocode", "success")
	r.ObserveRun("", "no_tool")
	r.ObservePhase("connect", 20*time.Millisecond)
	r.ObserveInvocation("mapbox_geocoding", "ok")
	r.IncRetry("mapbox_geocoding")
	r.IncConnectFailure()
	r.IncStatusDropped()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()

	assertHasMetricLine(t, body, "geoquery_runs_total", `query_type="geocode"`, `outcome="success"`)
	assertHasMetricLine(t, body, "geoquery_runs_total", `query_type="unknown"`, `outcome="no_tool"`)
	assertHasMetricLine(t, body, "geoquery_phase_duration_seconds_bucket", `phase="connect"`)
	assertHasMetricLine(t, body, "geoquery_tool_invocations_total", `tool="mapbox_geocoding"`, `result="ok"`)
	assertHasMetricLine(t, body, "geoquery_tool_retries_total", `tool="mapbox_geocoding"`)
	assertHasMetricLine(t, body, "geoquery_build_info", `version="test"`, `commit="abc123"`)
	if !strings.Contains(body, "geoquery_connect_failures_total 1") {
		t.Errorf("connect failure counter missing:\n%s", body)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveRun("geocode", "success")
	r.ObservePhase("invoke", time.Second)
	r.ObserveInvocation("x", "ok")
	r.IncRetry("x")
	r.IncConnectFailure()
	r.IncStatusDropped()
}
