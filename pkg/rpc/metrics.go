package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client-side RPC instruments.
type Metrics struct {
	Calls          *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	InFlight       prometheus.Gauge
	EventsReceived *prometheus.CounterVec
}

// NewMetrics registers the RPC metrics on registry, or on the default
// registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearclient_rpc_calls_total",
			Help: "RPC calls issued, by method and outcome",
		}, []string{"method", "outcome"}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clearclient_rpc_call_duration_seconds",
			Help:    "Time from send to response, by method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clearclient_rpc_calls_in_flight",
			Help: "Calls awaiting a response",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clearclient_rpc_events_received_total",
			Help: "Unsolicited pushes received, by normalized event",
		}, []string{"event"}),
	}
}

func (m *Metrics) callStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) callFinished(method Method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Calls.WithLabelValues(method.String(), outcome).Inc()
	m.CallDuration.WithLabelValues(method.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) signingFailed(method Method) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(method.String(), "signing_failed").Inc()
}

func (m *Metrics) eventReceived(event Event) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(event.String()).Inc()
}
