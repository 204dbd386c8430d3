// Package metrics holds the prometheus collectors for the session layer.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "taskclient"

type Metrics struct {
	refreshCalls     *prometheus.CounterVec
	refreshCoalesced prometheus.Counter
	replays          *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	realtimeConnects *prometheus.CounterVec
	realtimeEvents   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when reg is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Token refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_coalesced_total",
			Help:      "Callers that joined an in-flight refresh instead of starting one.",
		}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "replays_total",
			Help:      "Requests replayed after a credential refresh, by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session status transitions by target status.",
		}, []string{"status"}),
		realtimeConnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connects_total",
			Help:      "Realtime connection attempts by outcome.",
		}, []string{"outcome"}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Inbound realtime events by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshCalls, m.refreshCoalesced, m.replays, m.transitions, m.realtimeConnects, m.realtimeEvents)
	}
	return m
}

func (m *Metrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.refreshCalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshCoalesced() {
	if m == nil {
		return
	}
	m.refreshCoalesced.Inc()
}

func (m *Metrics) Replay(result string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) RealtimeConnect(outcome string) {
	if m == nil {
		return
	}
	m.realtimeConnects.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RealtimeEvent(kind string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(kind).Inc()
}

// Collector accessors, mainly for tests.

func (m *Metrics) RefreshCounter() *prometheus.CounterVec {
	return m.refreshCalls
}

func (m *Metrics) CoalescedCounter() prometheus.Counter {
	return m.refreshCoalesced
}

func (m *Metrics) ReplayCounter() *prometheus.CounterVec {
	return m.replays
}

func (m *Metrics) TransitionCounter() *prometheus.CounterVec {
	return m.transitions
}

func (m *Metrics) RealtimeConnectCounter() *prometheus.CounterVec {
	return m.realtimeConnects
}

func (m *Metrics) RealtimeEventCounter() *prometheus.CounterVec {
	return m.realtimeEvents
}
