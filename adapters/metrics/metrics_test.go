package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dapp-works/urpc/adapters/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestNew(t *testing.T) {
	// Use a new registry to avoid conflicts with other tests
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.DispatchTotal == nil || m.DispatchDuration == nil || m.PatchOperations == nil {
		t.Error("dispatch metrics not initialized")
	}
	if m.ConfigReloads == nil || m.SocketsOpen == nil {
		t.Error("auxiliary metrics not initialized")
	}
}

func TestObserveDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ObserveDispatch("function.call", "ok", 5*time.Millisecond)
	m.ObserveDispatch("function.call", "ok", 7*time.Millisecond)
	m.ObserveDispatch("variable.set", "NotWritable", time.Millisecond)

	families := gather(t, reg)
	total, ok := families["urpc_dispatch_total"]
	if !ok {
		t.Fatal("urpc_dispatch_total metric not found")
	}
	if len(total.GetMetric()) != 2 {
		t.Errorf("expected 2 series, got %d", len(total.GetMetric()))
	}
	for _, metric := range total.GetMetric() {
		labels := map[string]string{}
		for _, l := range metric.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		if labels["op"] == "function.call" && metric.GetCounter().GetValue() != 2 {
			t.Errorf("function.call count = %v", metric.GetCounter().GetValue())
		}
	}

	duration, ok := families["urpc_dispatch_duration_seconds"]
	if !ok {
		t.Fatal("urpc_dispatch_duration_seconds metric not found")
	}
	var samples uint64
	for _, metric := range duration.GetMetric() {
		samples += metric.GetHistogram().GetSampleCount()
	}
	if samples != 3 {
		t.Errorf("histogram samples = %d, want 3", samples)
	}
}

func TestPatchOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.PatchOperation("replace")
	m.PatchOperation("replace")
	m.PatchOperation("add")

	f, ok := gather(t, reg)["urpc_patch_operations_total"]
	if !ok {
		t.Fatal("urpc_patch_operations_total metric not found")
	}
	if len(f.GetMetric()) != 2 {
		t.Errorf("expected 2 series, got %d", len(f.GetMetric()))
	}
}

func TestConfigReloaded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ConfigReloaded(nil)
	m.ConfigReloaded(errors.New("bad yaml"))

	families := gather(t, reg)
	if v := families["urpc_config_reloads_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("reloads = %v, want 1", v)
	}
	if v := families["urpc_config_reload_errors_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("reload errors = %v, want 1", v)
	}
	if v := families["urpc_config_last_reload_timestamp"].GetMetric()[0].GetGauge().GetValue(); v == 0 {
		t.Error("last reload timestamp not set")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	m.ObserveDispatch("schema.loadFull", "ok", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `urpc_dispatch_total{op="schema.loadFull",status="ok"} 1`) {
		t.Errorf("exposition missing dispatch counter:\n%s", body)
	}
}

func TestInFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	var during float64
	h := m.InFlight(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gather(t, reg)["urpc_requests_in_flight"].GetMetric()[0].GetGauge().GetValue()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/urpc", nil))

	if during != 1 {
		t.Errorf("in flight during request = %v, want 1", during)
	}
	if after := gather(t, reg)["urpc_requests_in_flight"].GetMetric()[0].GetGauge().GetValue(); after != 0 {
		t.Errorf("in flight after request = %v, want 0", after)
	}
}
