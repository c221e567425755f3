package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	endpointRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_rest_endpoint_rotations_total",
		Help: "The number of times the REST gateway rotated to the next endpoint.",
	})
	wsReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_ws_reconnects_total",
		Help: "The number of event stream reconnect attempts.",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_events_dropped_total",
		Help: "The number of events dropped due to full router buffers.",
	})
)
