package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"soctel/internal/core/domain"
)

type PrometheusCollector struct {
	// Counters
	devicesConnectedTotal prometheus.Gauge
	sessionsActiveTotal   prometheus.Gauge
	samplesIngestedTotal  prometheus.Counter
	samplesRejectedTotal  prometheus.Counter
	samplesDroppedTotal   prometheus.Counter
	messagesMalformed     prometheus.Counter

	// Histograms
	flushDuration   prometheus.Histogram
	flushBatchSize  prometheus.Histogram

	// Session metrics
	sessionHealthScore   *prometheus.GaugeVec
	sessionDischargeRate *prometheus.GaugeVec
	sessionJankRate      *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		devicesConnectedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soctel_devices_connected_total",
			Help: "Total number of connected devices",
		}),

		sessionsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "soctel_sessions_active_total",
			Help: "Total number of active sessions",
		}),

		samplesIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soctel_samples_ingested_total",
			Help: "Total number of samples accepted for ingestion",
		}),

		samplesRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soctel_samples_rejected_total",
			Help: "Total number of samples rejected at the ingress",
		}),

		samplesDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soctel_samples_dropped_total",
			Help: "Total number of buffered samples shed under the capacity cap",
		}),

		messagesMalformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "soctel_ingress_malformed_messages_total",
			Help: "Total number of malformed ingress messages",
		}),

		flushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "soctel_flush_duration_seconds",
			Help:    "Duration of sample batch flushes to storage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		flushBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "soctel_flush_batch_size",
			Help:    "Number of samples per storage flush",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		sessionHealthScore: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soctel_session_health_score",
			Help: "Health score of active sessions (0-100)",
		}, []string{"session_id"}),

		sessionDischargeRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soctel_session_discharge_rate",
			Help: "Battery discharge rate of active sessions in percent per hour",
		}, []string{"session_id"}),

		sessionJankRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "soctel_session_jank_rate",
			Help: "Jank rate of active sessions in percent",
		}, []string{"session_id"}),
	}
}

func (p *PrometheusCollector) RecordDeviceConnected() {
	p.devicesConnectedTotal.Inc()
}

func (p *PrometheusCollector) RecordDeviceDisconnected() {
	p.devicesConnectedTotal.Dec()
}

func (p *PrometheusCollector) RecordSessionStarted() {
	p.sessionsActiveTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded(sessionID domain.SessionID) {
	p.sessionsActiveTotal.Dec()

	p.sessionHealthScore.DeleteLabelValues(string(sessionID))
	p.sessionDischargeRate.DeleteLabelValues(string(sessionID))
	p.sessionJankRate.DeleteLabelValues(string(sessionID))
}

func (p *PrometheusCollector) RecordSampleIngested() {
	p.samplesIngestedTotal.Inc()
}

func (p *PrometheusCollector) RecordSampleRejected() {
	p.samplesRejectedTotal.Inc()
}

// RecordSampleDropped counts one buffered sample shed under backpressure.
func (p *PrometheusCollector) RecordSampleDropped() {
	p.samplesDroppedTotal.Inc()
}

func (p *PrometheusCollector) RecordMalformedMessage() {
	p.messagesMalformed.Inc()
}

func (p *PrometheusCollector) RecordFlush(duration time.Duration, batchSize int) {
	p.flushDuration.Observe(duration.Seconds())
	p.flushBatchSize.Observe(float64(batchSize))
}

func (p *PrometheusCollector) UpdateSessionMetrics(snapshot *domain.AggregateSnapshot) {
	id := string(snapshot.SessionID)
	p.sessionHealthScore.WithLabelValues(id).Set(float64(snapshot.HealthScore))
	p.sessionDischargeRate.WithLabelValues(id).Set(snapshot.DischargeRate)
	p.sessionJankRate.WithLabelValues(id).Set(snapshot.JankRate)
}
