// Package metrics holds the process-wide Prometheus collectors shared by
// the registry, dispatcher and transport adapter. It replaces the single
// "static opened_streams counter" global with named, registry-owned
// metrics, following AIStore's stats/ package convention of
// package-level prometheus collectors registered once at init.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ServicesRegistered counts successful registry.AddService calls.
	ServicesRegistered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcflow",
		Name:      "services_registered_total",
		Help:      "Number of services successfully registered.",
	})

	// OpenedStreams counts server-stream and client-stream calls that have
	// reached ACCEPT/ok, replacing the single global counter.
	OpenedStreams = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcflow",
		Name:      "opened_streams_total",
		Help:      "Number of streaming calls (server- or client-stream) accepted.",
	})

	// ActiveSlots reports, per worker, how many request slots are
	// currently not in the DONE state.
	ActiveSlots = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rpcflow",
		Name:      "active_slots",
		Help:      "Request slots currently mid-call, by worker.",
	}, []string{"worker"})

	// DispatchedEvents counts completion events drained by the dispatcher,
	// by worker and outcome.
	DispatchedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcflow",
		Name:      "dispatched_events_total",
		Help:      "Completion events drained by the dispatcher.",
	}, []string{"worker", "ok"})

	// ForwardedCalls counts router forwards by downstream outcome.
	ForwardedCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcflow",
		Name:      "forwarded_calls_total",
		Help:      "Calls forwarded to a downstream peer, by outcome.",
	}, []string{"method", "outcome"})
)

func init() {
	prometheus.MustRegister(ServicesRegistered, OpenedStreams, ActiveSlots, DispatchedEvents, ForwardedCalls)
}
