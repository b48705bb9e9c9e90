// File: metrics/metrics.go
// Package metrics provides Prometheus instrumentation for wspeer endpoints.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Metrics holds the Prometheus collectors for a WebSocket endpoint. All
// methods are safe on a nil receiver so instrumentation stays optional.
type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	ConnectionsTotal  *prometheus.CounterVec
	MessagesTotal     *prometheus.CounterVec
	FramesTotal       *prometheus.CounterVec
	ClosesTotal       *prometheus.CounterVec
}

// New creates a Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wspeer"
	}
	return &Metrics{
		ActiveConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently open WebSocket connections",
			},
			[]string{"role"},
		),
		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of WebSocket connections",
			},
			[]string{"role"},
		),
		MessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of complete data messages",
			},
			[]string{"role", "type", "direction"},
		),
		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Total number of WebSocket frames",
			},
			[]string{"role", "opcode", "direction"},
		),
		ClosesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closes_total",
				Help:      "Total number of CLOSE frames by status code",
			},
			[]string{"role", "code"},
		),
	}
}

// Default returns the process-wide Metrics instance, creating it on first
// use. Collectors register once with the default Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = New("")
	})
	return defaultSet
}

// ConnOpened records a connection reaching the open state.
func (m *Metrics) ConnOpened(role string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(role).Inc()
	m.ActiveConnections.WithLabelValues(role).Inc()
}

// ConnClosed records a connection reaching the closed state.
func (m *Metrics) ConnClosed(role string) {
	if m == nil {
		return
	}
	m.ActiveConnections.WithLabelValues(role).Dec()
}

// Message records a complete data message.
func (m *Metrics) Message(role, dataType, direction string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(role, dataType, direction).Inc()
}

// Frame records one frame on the wire.
func (m *Metrics) Frame(role, opcode, direction string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(role, opcode, direction).Inc()
}

// Close records a CLOSE frame carrying code.
func (m *Metrics) Close(role string, code uint16) {
	if m == nil {
		return
	}
	m.ClosesTotal.WithLabelValues(role, strconv.Itoa(int(code))).Inc()
}
