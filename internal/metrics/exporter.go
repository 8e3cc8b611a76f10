// Package metrics exposes the vault's security posture to Prometheus. The
// audit is recomputed on every scrape so the values never go stale.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyward/go/internal/audit"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/vault"
)

const namespace = "keyward"

// Source lists the records to audit
type Source func(ctx context.Context) ([]*vault.Password, error)

// Exporter is a prometheus.Collector over a Source
type Exporter struct {
	source  Source
	auditor *audit.Auditor
	timeout time.Duration
	logger  *slog.Logger

	up       *prometheus.Desc
	score    *prometheus.Desc
	total    *prometheus.Desc
	issues   *prometheus.Desc
	strength *prometheus.Desc
	age      *prometheus.Desc

	decisions *prometheus.CounterVec

	mu sync.Mutex
}

// Option configures an Exporter
type Option func(*Exporter)

// WithAuditor replaces the auditor, e.g. to pin its clock in tests
func WithAuditor(a *audit.Auditor) Option {
	return func(e *Exporter) { e.auditor = a }
}

// WithScrapeTimeout bounds each call to the source
func WithScrapeTimeout(d time.Duration) Option {
	return func(e *Exporter) { e.timeout = d }
}

// WithLogger sets the logger for scrape failures
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExporter creates an exporter that audits the records of source on every
// scrape
func NewExporter(source Source, opts ...Option) *Exporter {
	e := &Exporter{
		source:  source,
		auditor: audit.NewAuditor(),
		timeout: 10 * time.Second,
		logger:  slog.Default(),

		up: prometheus.NewDesc(namespace+"_up",
			"Whether the last scrape could read the vault.", nil, nil),
		score: prometheus.NewDesc(namespace+"_security_score",
			"Vault security score from 0 to 100.", nil, nil),
		total: prometheus.NewDesc(namespace+"_passwords_total",
			"Number of records in the vault.", nil, nil),
		issues: prometheus.NewDesc(namespace+"_password_issues",
			"Records flagged by the audit, by issue kind.", []string{"kind"}, nil),
		strength: prometheus.NewDesc(namespace+"_password_strength",
			"Records per strength bucket.", []string{"bucket"}, nil),
		age: prometheus.NewDesc(namespace+"_password_age",
			"Records per age bucket.", []string{"bucket"}, nil),

		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Master password re-authentication decisions made by this process since it started.",
		}, []string{"intent", "decision"}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "metrics")

	// Pre-populate so every series exists from the first scrape
	for _, intent := range gate.Intents() {
		for _, v := range []gate.Verdict{gate.VerdictGranted, gate.VerdictDenied} {
			e.decisions.WithLabelValues(string(intent), string(v))
		}
	}
	return e
}

// Observe counts a gate decision. It has the gate.Observer signature.
func (e *Exporter) Observe(d gate.Decision) {
	e.decisions.WithLabelValues(string(d.Intent), string(d.Verdict)).Inc()
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.up
	ch <- e.score
	ch <- e.total
	ch <- e.issues
	ch <- e.strength
	ch <- e.age
	e.decisions.Describe(ch)
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.decisions.Collect(ch)

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	records, err := e.source(ctx)
	if err != nil {
		e.logger.Warn("scrape failed", "error", err)
		ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, 1)

	snap := e.auditor.Audit(records)
	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}

	gauge(e.score, snap.SecurityScore)
	gauge(e.total, snap.Total)
	gauge(e.issues, len(snap.Weak), string(audit.IssueWeak))
	gauge(e.issues, len(snap.Old), string(audit.IssueOld))
	gauge(e.issues, len(snap.Duplicates), string(audit.IssueDuplicate))

	strength := map[string]int{}
	for _, b := range snap.StrengthDistribution {
		strength[b.Name] = b.Count
	}
	for _, name := range strengthBuckets {
		gauge(e.strength, strength[name], labelFor(name))
	}

	for _, b := range e.auditor.AgeReport(records) {
		gauge(e.age, b.Count, labelFor(b.Name))
	}
}

var strengthBuckets = []string{"Weak", "Moderate", "Strong", "Very Strong"}

// labelFor turns a bucket display name into a label value
func labelFor(name string) string {
	switch name {
	case "Weak":
		return "weak"
	case "Moderate":
		return "moderate"
	case "Strong":
		return "strong"
	case "Very Strong":
		return "very_strong"
	case "0-30 days":
		return "0-30d"
	case "31-90 days":
		return "31-90d"
	case "91-180 days":
		return "91-180d"
	case "181+ days":
		return "181d+"
	}
	return name
}

// Register adds the exporter to reg
func (e *Exporter) Register(reg prometheus.Registerer) error {
	return reg.Register(e)
}

// NewRegistry returns a registry with the exporter and the Go runtime
// collectors
func NewRegistry(e *Exporter) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := e.Register(reg); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}

// Handler serves reg in the Prometheus exposition format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
