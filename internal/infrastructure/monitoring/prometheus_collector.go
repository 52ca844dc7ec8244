package monitoring

import (
	"time"

	"telecare/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes call lifecycle metrics on the diagnostics
// endpoint. It implements services.CallMetrics.
type PrometheusCollector struct {
	stateTransitionsTotal *prometheus.CounterVec
	signalingMessages     *prometheus.CounterVec
	callsFinishedTotal    *prometheus.CounterVec
	callDuration          *prometheus.HistogramVec

	packetsReceived prometheus.Gauge
	bytesReceived   prometheus.Gauge
	remoteTracks    prometheus.Gauge
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		stateTransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_call_state_transitions_total",
			Help: "Call state machine transitions",
		}, []string{"from", "to"}),

		signalingMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_signaling_messages_total",
			Help: "Signaling messages by direction and type",
		}, []string{"direction", "type"}),

		callsFinishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "telecare_calls_finished_total",
			Help: "Finished call attempts by outcome",
		}, []string{"outcome"}),

		callDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telecare_call_duration_seconds",
			Help:    "Wall time of finished call attempts",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"outcome"}),

		packetsReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "telecare_media_packets_received",
			Help: "RTP packets received during the current session",
		}),

		bytesReceived: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "telecare_media_bytes_received",
			Help: "RTP payload bytes received during the current session",
		}),

		remoteTracks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "telecare_media_remote_tracks",
			Help: "Remote tracks attached to the current session",
		}),
	}
}

func (p *PrometheusCollector) StateTransition(from, to domain.CallState) {
	p.stateTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (p *PrometheusCollector) SignalingMessage(direction, messageType string) {
	p.signalingMessages.WithLabelValues(direction, messageType).Inc()
}

func (p *PrometheusCollector) CallFinished(outcome domain.CallOutcome, duration time.Duration) {
	p.callsFinishedTotal.WithLabelValues(string(outcome)).Inc()
	p.callDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

// UpdateMediaStats refreshes the session gauges. The status server calls it
// when the stats endpoint is scraped.
func (p *PrometheusCollector) UpdateMediaStats(stats *domain.MediaStats) {
	p.packetsReceived.Set(float64(stats.PacketsReceived))
	p.bytesReceived.Set(float64(stats.BytesReceived))
	p.remoteTracks.Set(float64(stats.RemoteTracks))
}
