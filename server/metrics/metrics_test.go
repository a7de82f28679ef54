package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoOpDiscardsEverything(t *testing.T) {
	var r Recorder = NoOp{}
	r.IncrCounter("x", nil)
	r.ObserveTiming("x", nil, time.Second)
	r.SetGauge("x", nil, 1)
}

func TestPrometheusRegistersLazily(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.IncrCounter("jobs_total", map[string]string{"service": "echo"})
	p.IncrCounter("jobs_total", map[string]string{"service": "echo"})

	if count := testutil.CollectAndCount(p.counterVec("jobs_total", map[string]string{"service": "echo"})); count != 1 {
		t.Fatalf("expected one counter series, got %d", count)
	}
	if got := testutil.ToFloat64(p.counters["jobs_total"].With(map[string]string{"service": "echo"})); got != 2 {
		t.Fatalf("expected counter value 2, got %v", got)
	}
}

func TestPrometheusReusesVecOnSecondCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.SetGauge("queue_depth", map[string]string{"service": "echo"}, 3)
	p.SetGauge("queue_depth", map[string]string{"service": "echo"}, 5)

	if got := testutil.ToFloat64(p.gauges["queue_depth"].With(map[string]string{"service": "echo"})); got != 5 {
		t.Fatalf("expected the second SetGauge call to overwrite the first, got %v", got)
	}
}

func TestPrometheusObserveTimingRegistersHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.ObserveTiming("action_duration", map[string]string{"action": "echo"}, 250*time.Millisecond)
	p.ObserveTiming("action_duration", map[string]string{"action": "echo"}, 250*time.Millisecond)

	hist := p.histogramVec("action_duration", map[string]string{"action": "echo"})
	if count := testutil.CollectAndCount(hist); count != 1 {
		t.Fatalf("expected one histogram series, got %d", count)
	}
}
