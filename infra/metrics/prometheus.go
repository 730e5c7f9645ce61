package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memlog"

var _ Collector = (*Prometheus)(nil)

// Prometheus is a Collector backed by a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	appends      *prometheus.CounterVec // records appended, by log and partition
	appendBytes  *prometheus.CounterVec // encoded bytes appended, by log
	reads        *prometheus.CounterVec // records delivered, by log and group
	readErrors   *prometheus.CounterVec // failed reads, by log, group and code
	commits      *prometheus.CounterVec // commits, by log and group
	committed    *prometheus.GaugeVec   // last committed offset
	consumerLags *prometheus.GaugeVec   // records not yet committed
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{registry: prometheus.NewRegistry()}
	return p.register()
}

func (p *Prometheus) register() *Prometheus {
	p.appends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appends_total",
		Help:      "Number of records appended.",
	}, []string{"log", "partition"})

	p.appendBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "append_bytes_total",
		Help:      "Number of encoded bytes appended.",
	}, []string{"log"})

	p.reads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reads_total",
		Help:      "Number of records delivered to consumer groups.",
	}, []string{"log", "group"})

	p.readErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_errors_total",
		Help:      "Number of failed reads.",
	}, []string{"log", "group", "code"})

	p.commits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Number of partition commits.",
	}, []string{"log", "group"})

	p.committed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "committed_offset",
		Help:      "Last committed offset of a consumer group.",
	}, []string{"log", "group", "partition"})

	p.consumerLags = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consumer_lag",
		Help:      "Records appended but not yet committed by a consumer group.",
	}, []string{"log", "group", "partition"})

	p.registry.MustRegister(
		p.appends,
		p.appendBytes,
		p.reads,
		p.readErrors,
		p.commits,
		p.committed,
		p.consumerLags,
	)
	return p
}

// Registry returns the registry holding the memlog metrics.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the collected metrics.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *Prometheus) Appended(log string, partition int, size int) {
	p.appends.WithLabelValues(log, strconv.Itoa(partition)).Inc()
	p.appendBytes.WithLabelValues(log).Add(float64(size))
}

func (p *Prometheus) Read(log, group string) {
	p.reads.WithLabelValues(log, group).Inc()
}

func (p *Prometheus) ReadError(log, group, code string) {
	p.readErrors.WithLabelValues(log, group, code).Inc()
}

func (p *Prometheus) Committed(log, group string, partition int, offset int64) {
	p.commits.WithLabelValues(log, group).Inc()
	p.committed.WithLabelValues(log, group, strconv.Itoa(partition)).Set(float64(offset))
}

func (p *Prometheus) Lag(log, group string, partition int, lag int64) {
	p.consumerLags.WithLabelValues(log, group, strconv.Itoa(partition)).Set(float64(lag))
}
