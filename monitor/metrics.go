package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "scanner",
		Name:      "latest_head_block",
		Help:      "Latest chain head observed by the scanner.",
	})
	LatestProcessedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "scanner",
		Name:      "latest_processed_block",
		Help:      "Latest block whose transactions and logs were enqueued.",
	})
	EnqueuedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "scanner",
		Name:      "enqueued_items_total",
		Help:      "Items placed onto the ingestion queues.",
	}, []string{"queue"})
	DroppedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "scanner",
		Name:      "dropped_items_total",
		Help:      "Items dropped because the destination queue was full.",
	}, []string{"queue"})
	WhaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "classifier",
		Name:      "whale_events_total",
		Help:      "Transfers that crossed the whale threshold.",
	})
	ThreatEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "classifier",
		Name:      "threat_events_total",
		Help:      "Whale events with at least one risk tag.",
	})
	PersonalAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "classifier",
		Name:      "personal_alerts_total",
		Help:      "Transfers routed to bound wallet owners.",
	})
)
