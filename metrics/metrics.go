// Package metrics exports modem session events as Prometheus metrics.
//
// A Collector implements tonemodem.Observer. Register it with a session via
// tonemodem.WithObserver; several sessions may share one Collector.
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg, "tonemodem")
//	session, err := tonemodem.New(cfg, tonemodem.WithObserver(collector))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure reasons reported in the reason label of decode_failures_total.
const (
	ReasonECC      = "ecc"
	ReasonSyncLost = "sync_lost"
)

// Collector holds the Prometheus collectors for session events.
type Collector struct {
	framesSent       prometheus.Counter
	payloadsSent     prometheus.Counter
	bytesSent        prometheus.Counter
	markersDetected  prometheus.Counter
	payloadsReceived prometheus.Counter
	bytesReceived    prometheus.Counter
	decodeFailures   *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// NewCollector creates the metrics under namespace and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total audio frames handed to the playback callback",
		}),
		payloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_sent_total",
			Help:      "Total transmissions emitted",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_sent_total",
			Help:      "Total payload bytes transmitted",
		}),
		markersDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markers_detected_total",
			Help:      "Total start markers detected",
		}),
		payloadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_received_total",
			Help:      "Total payloads decoded",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_received_total",
			Help:      "Total payload bytes decoded",
		}),
		decodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total captures that yielded no payload (by reason)",
		}, []string{"reason"}),
		analysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receive_analysis_seconds",
			Help:      "Time spent demodulating and decoding a capture",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

// FrameSent counts one emitted frame.
func (c *Collector) FrameSent() { c.framesSent.Inc() }

// PayloadSent counts a finished transmission of n bytes.
func (c *Collector) PayloadSent(n int) {
	c.payloadsSent.Inc()
	c.bytesSent.Add(float64(n))
}

// MarkerDetected counts a started capture.
func (c *Collector) MarkerDetected() { c.markersDetected.Inc() }

// PayloadReceived counts a decoded payload and observes its analysis time.
func (c *Collector) PayloadReceived(n int, analysis time.Duration) {
	c.payloadsReceived.Inc()
	c.bytesReceived.Add(float64(n))
	c.analysisDuration.Observe(analysis.Seconds())
}

// DecodeFailed counts a capture that produced nothing.
func (c *Collector) DecodeFailed(syncLost bool) {
	reason := ReasonECC
	if syncLost {
		reason = ReasonSyncLost
	}
	c.decodeFailures.WithLabelValues(reason).Inc()
}
