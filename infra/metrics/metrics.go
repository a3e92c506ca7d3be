package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionMetrics instruments one printer session. All methods are safe on a
// nil receiver so the session can run uninstrumented.
type SessionMetrics struct {
	statusFrames    prometheus.Counter
	replies         prometheus.Counter
	orphanReplies   prometheus.Counter
	publishFailures prometheus.Counter
	reconnects      prometheus.Counter
	replyLatency    prometheus.Histogram
}

func registerCounter(reg prometheus.Registerer, name, help string) (prometheus.Counter, error) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter), nil
		}
		return nil, err
	}
	return c, nil
}

// NewSessionMetrics registers session metrics on the provided registerer. If
// reg is nil, the default registerer is used. Already registered collectors
// are reused.
func NewSessionMetrics(reg prometheus.Registerer) (*SessionMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &SessionMetrics{}
	var err error
	if m.statusFrames, err = registerCounter(reg, "printer_status_frames_total",
		"Total number of push_status frames received"); err != nil {
		return nil, err
	}
	if m.replies, err = registerCounter(reg, "printer_replies_total",
		"Total number of command replies delivered to a caller"); err != nil {
		return nil, err
	}
	if m.orphanReplies, err = registerCounter(reg, "printer_orphan_replies_total",
		"Replies received while no call was awaiting one"); err != nil {
		return nil, err
	}
	if m.publishFailures, err = registerCounter(reg, "printer_publish_failures_total",
		"Outbound publishes refused by the transport"); err != nil {
		return nil, err
	}
	if m.reconnects, err = registerCounter(reg, "printer_reconnects_total",
		"Transport-level connection losses"); err != nil {
		return nil, err
	}

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "printer_reply_latency_seconds",
		Help:    "Time between command publish and reply delivery",
		Buckets: prometheus.DefBuckets,
	})
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	m.replyLatency = latency
	return m, nil
}

func (m *SessionMetrics) StatusFrame() {
	if m != nil {
		m.statusFrames.Inc()
	}
}

func (m *SessionMetrics) Reply() {
	if m != nil {
		m.replies.Inc()
	}
}

func (m *SessionMetrics) OrphanReply() {
	if m != nil {
		m.orphanReplies.Inc()
	}
}

func (m *SessionMetrics) PublishFailure() {
	if m != nil {
		m.publishFailures.Inc()
	}
}

func (m *SessionMetrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *SessionMetrics) ObserveReplyLatency(seconds float64) {
	if m != nil {
		m.replyLatency.Observe(seconds)
	}
}

// Handler serves the default registry over HTTP for scraping.
func Handler() http.Handler { return promhttp.Handler() }
