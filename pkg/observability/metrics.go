// Package observability bundles the prometheus collector and OpenTelemetry
// tracing setup for the explorer service.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service's prometheus metrics. It satisfies both the
// session engine's Metrics interface and the backend RequestObserver, so one
// instance is threaded through the whole service.
type Collector struct {
	gatherer prometheus.Gatherer

	ActiveSessions  prometheus.Gauge
	Events          *prometheus.CounterVec
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	StaleResponses  prometheus.Counter
	Restorations    *prometheus.CounterVec

	InventoryMetros     prometheus.Gauge
	InventoryDevices    prometheus.Gauge
	InventoryLinks      prometheus.Gauge
	InventoryValidators prometheus.Gauge
}

// NewCollector registers the explorer metrics against the provided
// registerer, defaulting to the global prometheus registry when nil.
// Registration tolerates collectors already registered by an earlier
// instance.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoview_active_sessions",
		Help: "Current number of live explorer sessions.",
	}), "topoview_active_sessions")
	if err != nil {
		return nil, err
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoview_session_events_total",
		Help: "Total number of session events applied, labeled by event kind.",
	}, []string{"kind"})
	events, err = registerCounterVec(reg, events, "topoview_session_events_total")
	if err != nil {
		return nil, err
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoview_backend_requests_total",
		Help: "Total number of backend collaborator requests, labeled by operation and outcome.",
	}, []string{"op", "outcome"})
	requests, err = registerCounterVec(reg, requests, "topoview_backend_requests_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topoview_backend_request_duration_seconds",
		Help:    "Backend collaborator request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})
	duration, err = registerHistogramVec(reg, duration, "topoview_backend_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	stale, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "topoview_stale_responses_total",
		Help: "Backend responses discarded because a newer request superseded them.",
	}), "topoview_stale_responses_total")
	if err != nil {
		return nil, err
	}

	restorations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoview_restorations_total",
		Help: "URL state restoration attempts by outcome.",
	}, []string{"outcome"})
	restorations, err = registerCounterVec(reg, restorations, "topoview_restorations_total")
	if err != nil {
		return nil, err
	}

	metros, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoview_inventory_metros",
		Help: "Metros in the current topology snapshot.",
	}), "topoview_inventory_metros")
	if err != nil {
		return nil, err
	}
	devices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoview_inventory_devices",
		Help: "Devices in the current topology snapshot.",
	}), "topoview_inventory_devices")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoview_inventory_links",
		Help: "Links in the current topology snapshot.",
	}), "topoview_inventory_links")
	if err != nil {
		return nil, err
	}
	validators, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoview_inventory_validators",
		Help: "Validators in the current topology snapshot.",
	}), "topoview_inventory_validators")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:            gatherer,
		ActiveSessions:      sessions,
		Events:              events,
		BackendRequests:     requests,
		BackendDuration:     duration,
		StaleResponses:      stale,
		Restorations:        restorations,
		InventoryMetros:     metros,
		InventoryDevices:    devices,
		InventoryLinks:      links,
		InventoryValidators: validators,
	}, nil
}

// SessionEvent counts one applied session event
func (c *Collector) SessionEvent(kind string) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(kind).Inc()
}

// StaleResponse counts a discarded superseded backend response
func (c *Collector) StaleResponse() {
	if c == nil {
		return
	}
	c.StaleResponses.Inc()
}

// RestorationOutcome counts one finished restoration attempt
func (c *Collector) RestorationOutcome(outcome string) {
	if c == nil {
		return
	}
	c.Restorations.WithLabelValues(outcome).Inc()
}

// ObserveBackendRequest records one backend collaborator call
func (c *Collector) ObserveBackendRequest(op, outcome string, seconds float64) {
	if c == nil {
		return
	}
	c.BackendRequests.WithLabelValues(op, outcome).Inc()
	c.BackendDuration.WithLabelValues(op).Observe(seconds)
}

// SetInventoryCounts drives the snapshot gauges after every refresh
func (c *Collector) SetInventoryCounts(metros, devices, links, validators int) {
	if c == nil {
		return
	}
	c.InventoryMetros.Set(float64(metros))
	c.InventoryDevices.Set(float64(devices))
	c.InventoryLinks.Set(float64(links))
	c.InventoryValidators.Set(float64(validators))
}

// SessionOpened and SessionClosed track the live session gauge

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

// Handler exposes a ready-to-use /metrics handler
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
