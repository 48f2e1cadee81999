package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "ingest_entries_total",
		Help:      "Total entries committed to the store, by project.",
	}, []string{"project"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "ws_connections_active",
		Help:      "Number of active WebSocket connections.",
	})

	wsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "ws_events_total",
		Help:      "Total events written to WebSocket clients, by type.",
	}, []string{"type"})

	wsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "ws_dropped_total",
		Help:      "Total events dropped because a subscriber was too slow.",
	})

	sessionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "sessions_total",
		Help:      "Number of sessions in the store.",
	})

	entriesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "entries_total",
		Help:      "Number of entries in the store.",
	})

	dbSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tailt",
		Subsystem: "server",
		Name:      "db_size_bytes",
		Help:      "DuckDB database file size in bytes.",
	})
)
