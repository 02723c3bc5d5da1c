package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var allStates = []State{StateDisconnected, StateConnecting, StateAuthenticating, StateConnected, StateError}

type Metrics struct {
	// State is 1 for the current state and 0 for the others.
	State *prometheus.GaugeVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &Metrics{
		State: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "clearclient_session_state",
			Help: "Current connection state of the session",
		}, []string{"state"}),
	}
}

func (m *Metrics) setState(current State) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		value := 0.0
		if st == current {
			value = 1
		}
		m.State.WithLabelValues(st.String()).Set(value)
	}
}
