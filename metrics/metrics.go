// Package metrics exposes queue.Status as Prometheus gauges (spec §7
// "external monitoring"), grounded on the teacher pack's
// github.com/prometheus/client_golang.
/*
 * Copyright (c) 2024, ColDB Authors.
 */
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldb/coldb/queue"
)

// Collector refreshes a fixed set of gauges from a live
// queue.ReplicatedQueue on every Refresh call or background tick.
type Collector struct {
	Queue *queue.ReplicatedQueue

	queueSize        prometheus.Gauge
	insertsInQueue   prometheus.Gauge
	mergesInQueue    prometheus.Gauge
	mutationsInQueue prometheus.Gauge
	futureParts      prometheus.Gauge
	minUnprocessed   prometheus.Gauge
	maxProcessed     prometheus.Gauge
	oldestTime       prometheus.Gauge
}

// NewCollector builds and registers the gauge set under reg.
func NewCollector(reg prometheus.Registerer, q *queue.ReplicatedQueue, labels prometheus.Labels) *Collector {
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "coldb",
			Subsystem:   "queue",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(g)
		return g
	}
	return &Collector{
		Queue:            q,
		queueSize:        gauge("size", "total entries currently in the replication queue"),
		insertsInQueue:   gauge("inserts", "GET_PART entries currently queued"),
		mergesInQueue:    gauge("merges", "MERGE_PARTS entries currently queued"),
		mutationsInQueue: gauge("mutations", "ATTACH_PART/DROP_RANGE/CLEAR_COLUMN entries currently queued"),
		futureParts:      gauge("future_parts", "parts currently being produced"),
		minUnprocessed:   gauge("min_unprocessed_insert_time", "oldest unprocessed insert's create_time, unix seconds"),
		maxProcessed:     gauge("max_processed_insert_time", "newest processed insert's create_time, unix seconds"),
		oldestTime:       gauge("oldest_entry_time", "oldest queued entry's create_time, unix seconds"),
	}
}

// Refresh pulls one Status snapshot and updates every gauge from it.
func (c *Collector) Refresh() {
	st := c.Queue.GetStatus()
	c.queueSize.Set(float64(st.QueueSize))
	c.insertsInQueue.Set(float64(st.InsertsInQueue))
	c.mergesInQueue.Set(float64(st.MergesInQueue))
	c.mutationsInQueue.Set(float64(st.PartMutationsInQueue))
	c.futureParts.Set(float64(len(st.FutureParts)))
	c.minUnprocessed.Set(float64(st.MinUnprocessedInsertTime))
	c.maxProcessed.Set(float64(st.MaxProcessedInsertTime))
	c.oldestTime.Set(float64(st.QueueOldestTime))
}

// RunPeriodic refreshes every interval until ctx is cancelled.
func (c *Collector) RunPeriodic(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Refresh()
		}
	}
}
