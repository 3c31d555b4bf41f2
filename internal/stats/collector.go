package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itoreflect/reflector/internal/classify"
)

const (
	namespace = "ito_reflector"
	labelQueue     = "queue"
	labelSignature = "signature"
	labelReason    = "reason"
)

// Collector exposes every worker's shared stats block as Prometheus
// gauges, grounded on the teacher pack's labeled-metric style. Gauges,
// not counters, are used deliberately: the underlying WorkerBlock
// counters are already cumulative totals read via relaxed atomic loads,
// so each scrape simply Sets the current value instead of tracking a
// delta to Add.
type Collector struct {
	PacketsReceived  *prometheus.GaugeVec
	PacketsReflected *prometheus.GaugeVec
	BytesReceived    *prometheus.GaugeVec
	BytesReflected   *prometheus.GaugeVec
	ErrTxFailed      *prometheus.GaugeVec
	LatencyAvgNs     *prometheus.GaugeVec
	AcceptsBySignature *prometheus.GaugeVec
	RejectsByReason    *prometheus.GaugeVec
}

// NewCollector creates and registers a Collector against reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := newCollector()
	reg.MustRegister(
		c.PacketsReceived,
		c.PacketsReflected,
		c.BytesReceived,
		c.BytesReflected,
		c.ErrTxFailed,
		c.LatencyAvgNs,
		c.AcceptsBySignature,
		c.RejectsByReason,
	)
	return c
}

func newCollector() *Collector {
	queueLabels := []string{labelQueue}
	return &Collector{
		PacketsReceived: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "packets_received_total",
			Help: "Cumulative packets received by a worker's receive queue.",
		}, queueLabels),
		PacketsReflected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "packets_reflected_total",
			Help: "Cumulative packets accepted and reflected by a worker.",
		}, queueLabels),
		BytesReceived: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bytes_received_total",
			Help: "Cumulative bytes received by a worker's receive queue.",
		}, queueLabels),
		BytesReflected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bytes_reflected_total",
			Help: "Cumulative bytes reflected by a worker.",
		}, queueLabels),
		ErrTxFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tx_failed_total",
			Help: "Cumulative packets send_batch refused for a worker.",
		}, queueLabels),
		LatencyAvgNs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "latency_avg_ns",
			Help: "Average receive-to-transmit latency in nanoseconds for a worker.",
		}, queueLabels),
		AcceptsBySignature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "accepts_by_signature_total",
			Help: "Cumulative accepted packets for a worker, by ITO signature.",
		}, append(queueLabels, labelSignature)),
		RejectsByReason: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rejects_by_reason_total",
			Help: "Cumulative rejected packets for a worker, by reject reason.",
		}, append(queueLabels, labelReason)),
	}
}

// Report refreshes every gauge for one worker from its current shared
// stats block. A caller typically invokes this for every worker
// immediately before an external process scrapes the registry.
func (c *Collector) Report(queue int, block *WorkerBlock) {
	qs := strconv.Itoa(queue)

	c.PacketsReceived.WithLabelValues(qs).Set(float64(block.PacketsReceived.Load()))
	c.PacketsReflected.WithLabelValues(qs).Set(float64(block.PacketsReflected.Load()))
	c.BytesReceived.WithLabelValues(qs).Set(float64(block.BytesReceived.Load()))
	c.BytesReflected.WithLabelValues(qs).Set(float64(block.BytesReflected.Load()))
	c.ErrTxFailed.WithLabelValues(qs).Set(float64(block.ErrTxFailed.Load()))

	if count := block.LatencyCount.Load(); count > 0 {
		c.LatencyAvgNs.WithLabelValues(qs).Set(float64(block.LatencySumNs.Load()) / float64(count))
	}

	for sig := classify.SigType(1); sig < classify.NumSigTypes; sig++ {
		c.AcceptsBySignature.WithLabelValues(qs, sig.String()).Set(float64(block.BySignature[sig].Load()))
	}
	for reason := classify.RejectReason(1); reason < classify.NumRejectReasons; reason++ {
		c.RejectsByReason.WithLabelValues(qs, reason.String()).Set(float64(block.ByReject[reason].Load()))
	}
}

// ReportAll refreshes every worker's gauges, indexing queue labels by
// slice position.
func (c *Collector) ReportAll(blocks []*WorkerBlock) {
	for i, b := range blocks {
		c.Report(i, b)
	}
}
