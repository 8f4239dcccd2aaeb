package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luismateoh/Aldebaran-sub001/internal/entities"
)

// Snapshotter is what the collector polls for queue gauges.
type Snapshotter interface {
	Snapshot() entities.QueueSnapshot
}

type QueueMetrics struct {
	EnqueueTotal   *prometheus.CounterVec // mode: queued | priority
	ProcessedTotal *prometheus.CounterVec // result: succeeded | failed | cached
	QueueDepth     prometheus.Gauge
	Processing     prometheus.Gauge
}

func NewQueueMetrics() *QueueMetrics {
	m := &QueueMetrics{
		EnqueueTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmedia_optimize_requests_total",
				Help: "Total number of optimization requests by mode",
			},
			[]string{"mode"},
		),
		ProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventmedia_optimize_processed_total",
				Help: "Total number of processed items by result",
			},
			[]string{"result"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventmedia_optimize_queue_depth",
				Help: "Number of items waiting in the optimization queue",
			},
		),
		Processing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventmedia_optimize_processing",
				Help: "Whether the drain worker is currently processing (1) or idle (0)",
			},
		),
	}

	prometheus.MustRegister(
		m.EnqueueTotal,
		m.ProcessedTotal,
		m.QueueDepth,
		m.Processing,
	)

	return m
}

// Collect polls the queue and keeps the gauges current until ctx ends.
func (m *QueueMetrics) Collect(ctx context.Context, q Snapshotter) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := q.Snapshot()
			m.QueueDepth.Set(float64(snap.Length))
			if snap.Processing {
				m.Processing.Set(1)
			} else {
				m.Processing.Set(0)
			}
		}
	}
}
