// Package metrics exposes the audit flow counters on a private Prometheus
// registry. Recorder satisfies services.Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	reg *prometheus.Registry

	persisted     prometheus.Counter     // icc_audits_persisted_total
	duplicates    *prometheus.CounterVec // icc_audit_duplicates_total{source}
	codeRejects   prometheus.Counter     // icc_precheck_code_rejections_total
	storeErrors   *prometheus.CounterVec // icc_store_errors_total{op}
	loginFailures *prometheus.CounterVec // icc_login_failures_total{reason}
}

// New builds a recorder. withRuntime adds the Go and process collectors.
func New(withRuntime bool) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icc_audits_persisted_total",
			Help: "Audit records written.",
		}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "icc_audit_duplicates_total",
			Help: "Same store and date audits detected, by where they were caught.",
		}, []string{"source"}),
		codeRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icc_precheck_code_rejections_total",
			Help: "Pre-check evaluations with a wrong store code.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "icc_store_errors_total",
			Help: "Failed store calls, by operation.",
		}, []string{"op"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "icc_login_failures_total",
			Help: "Rejected administrator sign-ins, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.persisted, r.duplicates, r.codeRejects, r.storeErrors, r.loginFailures)
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

func (r *Recorder) AuditPersisted() { r.persisted.Inc() }

func (r *Recorder) DuplicateDetected(source string) { r.duplicates.WithLabelValues(source).Inc() }

func (r *Recorder) CodeRejected() { r.codeRejects.Inc() }

func (r *Recorder) StoreError(op string) { r.storeErrors.WithLabelValues(op).Inc() }

func (r *Recorder) LoginFailed(reason string) { r.loginFailures.WithLabelValues(reason).Inc() }

// Registry is the underlying registry, for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
