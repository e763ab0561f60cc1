package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/vpnclient/internal/event"
	"github.com/loykin/vpnclient/internal/status"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnclient",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Number of executed up/down operations by target and terminal status.",
		}, []string{"target", "result"},
	)
	skipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnclient",
			Subsystem: "lifecycle",
			Name:      "skipped_total",
			Help:      "Number of up/down requests answered with Already UP/Already DOWN.",
		}, []string{"command"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vpnclient",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Time between the transitional and the terminal event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"},
	)

	logEvents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vpnclient",
			Subsystem: "log",
			Name:      "events",
			Help:      "Number of events in the lifecycle log per status.",
		}, []string{"status"},
	)
	tunnelUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vpnclient",
			Name:      "up",
			Help:      "1 when the derived status is UP, 0 otherwise.",
		},
	)
	uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vpnclient",
			Name:      "uptime_seconds",
			Help:      "Whole seconds since the last UP event, 0 unless UP.",
		},
	)
	lastEvent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vpnclient",
			Subsystem: "log",
			Name:      "last_event_timestamp_seconds",
			Help:      "Unix time of the most recent event, 0 for an empty log.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{operations, skipped, operationDuration, logEvents, tunnelUp, uptime, lastEvent}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for g.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile writes every metric of g to path in the text exposition format,
// for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveOperation(target, result event.Status, seconds float64) {
	if regOK.Load() {
		operations.WithLabelValues(target.String(), result.String()).Inc()
		operationDuration.WithLabelValues(target.String()).Observe(seconds)
	}
}

func IncSkipped(command string) {
	if regOK.Load() {
		skipped.WithLabelValues(command).Inc()
	}
}

// ObserveLog refreshes the log gauges from the full event sequence and its derived report.
func ObserveLog(events []event.Event, r status.Report) {
	if !regOK.Load() {
		return
	}
	counts := make(map[event.Status]int, len(event.Statuses))
	for _, e := range events {
		counts[e.Status]++
	}
	for _, st := range event.Statuses {
		logEvents.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	if r.Kind == status.Up {
		tunnelUp.Set(1)
		uptime.Set(float64(r.Uptime))
	} else {
		tunnelUp.Set(0)
		uptime.Set(0)
	}
	if len(events) == 0 {
		lastEvent.Set(0)
		return
	}
	lastEvent.Set(float64(events[len(events)-1].Timestamp) / 1000)
}
