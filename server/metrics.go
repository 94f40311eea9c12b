// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    *prometheus.GaugeVec
	connections *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "harbor",
				Subsystem: "connector",
				Name:      "requests_total",
				Help:      "Requests served, by connector, status code and method.",
			},
			[]string{"connector", "code", "method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "harbor",
				Subsystem: "connector",
				Name:      "request_duration_seconds",
				Help:      "Request latency by connector.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"connector"},
		),
		inFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "harbor",
				Subsystem: "connector",
				Name:      "requests_in_flight",
				Help:      "Requests currently being served by connector.",
			},
			[]string{"connector"},
		),
		connections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "harbor",
				Subsystem: "connector",
				Name:      "open_connections",
				Help:      "Open client connections by connector.",
			},
			[]string{"connector"},
		),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight, m.connections} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) instrument(name string, h http.Handler) http.Handler {
	labels := prometheus.Labels{"connector": name}
	h = promhttp.InstrumentHandlerCounter(m.requests.MustCurryWith(labels), h)
	h = promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels), h)
	return promhttp.InstrumentHandlerInFlight(m.inFlight.With(labels), h)
}

func (m *metrics) connState(name string) func(net.Conn, http.ConnState) {
	g := m.connections.WithLabelValues(name)
	return func(_ net.Conn, st http.ConnState) {
		switch st {
		case http.StateNew:
			g.Inc()
		case http.StateClosed, http.StateHijacked:
			g.Dec()
		}
	}
}
