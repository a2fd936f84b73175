package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional set of Prometheus counters a Session reports to.
// A nil *Metrics (the default) means no metrics are recorded; every
// method is nil-safe.
type Metrics struct {
	GreylistRetries prometheus.Counter
	AuthOutcomes    *prometheus.CounterVec // labels: mechanism, outcome=success|failure
	TLSUpgrades     prometheus.Counter
	Timeouts        prometheus.Counter
}

// NewMetrics registers and returns a Metrics set under reg. Pass a fresh
// *prometheus.Registry, or nil to use the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		GreylistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smtpengine",
			Name:      "greylist_retries_total",
			Help:      "Number of greylist-triggered command retries.",
		}),
		AuthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smtpengine",
			Name:      "auth_outcomes_total",
			Help:      "Authentication attempts by mechanism and outcome.",
		}, []string{"mechanism", "outcome"}),
		TLSUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smtpengine",
			Name:      "tls_upgrades_total",
			Help:      "Number of successful STARTTLS upgrades.",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smtpengine",
			Name:      "timeouts_total",
			Help:      "Number of inactivity timeouts.",
		}),
	}
	reg.MustRegister(m.GreylistRetries, m.AuthOutcomes, m.TLSUpgrades, m.Timeouts)
	return m
}

func (m *Metrics) greylistRetry() {
	if m == nil {
		return
	}
	m.GreylistRetries.Inc()
}

func (m *Metrics) authOutcome(mechanism string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.AuthOutcomes.WithLabelValues(mechanism, outcome).Inc()
}

func (m *Metrics) tlsUpgrade() {
	if m == nil {
		return
	}
	m.TLSUpgrades.Inc()
}

func (m *Metrics) timeout() {
	if m == nil {
		return
	}
	m.Timeouts.Inc()
}
