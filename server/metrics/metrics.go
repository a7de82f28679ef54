// Package metrics defines the plug-in counter/timer sink the server
// engine reports through (spec §1 Non-goals treats the recorder itself
// as an external collaborator; this package supplies the contract and a
// Prometheus-backed default).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the sink the server engine reports through.
// Label values are kept low-cardinality (service/action names, error
// codes) by callers.
type Recorder interface {
	IncrCounter(name string, labels map[string]string)
	ObserveTiming(name string, labels map[string]string, d time.Duration)
	SetGauge(name string, labels map[string]string, value float64)
}

// NoOp discards everything; used when no Recorder is configured.
type NoOp struct{}

func (NoOp) IncrCounter(string, map[string]string)                  {}
func (NoOp) ObserveTiming(string, map[string]string, time.Duration) {}
func (NoOp) SetGauge(string, map[string]string, float64)            {}

// Prometheus is the default Recorder, backed by client_golang. Counters,
// histograms, and gauges are created lazily per name the first time
// they're observed; that first call fixes the metric's label names.
type Prometheus struct {
	registerer prometheus.Registerer

	mu         sync.RWMutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		registerer: reg,
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *Prometheus) counterVec(name string, labels map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(c)
		p.counters[name] = c
	}
	return c
}

func (p *Prometheus) histogramVec(name string, labels map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(h)
		p.histograms[name] = h
	}
	return h
}

func (p *Prometheus) gaugeVec(name string, labels map[string]string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(g)
		p.gauges[name] = g
	}
	return g
}

func (p *Prometheus) IncrCounter(name string, labels map[string]string) {
	p.counterVec(name, labels).With(labels).Inc()
}

func (p *Prometheus) ObserveTiming(name string, labels map[string]string, d time.Duration) {
	p.histogramVec(name, labels).With(labels).Observe(d.Seconds())
}

func (p *Prometheus) SetGauge(name string, labels map[string]string, value float64) {
	p.gaugeVec(name, labels).With(labels).Set(value)
}
