package exchange

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	flowBilateral = "bilateral"
	flowEcosystem = "ecosystem"
)

var (
	flowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exchangeflow",
		Name:      "flows_total",
		Help:      "Flow triggers by flow type and outcome.",
	}, []string{"flow", "outcome"})

	replicationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exchangeflow",
		Name:      "replication_failures_total",
		Help:      "Replications to a counterpart that failed after local creation.",
	}, []string{"role"})

	statusReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exchangeflow",
		Name:      "status_reports_total",
		Help:      "Status transitions applied, by resulting status.",
	}, []string{"status"})
)

func observeFlow(flow string, err error) {
	outcome := "created"
	switch {
	case err == nil:
	case errors.Is(err, ErrPIIViolation):
		outcome = "pii_veto"
	default:
		outcome = "failed"
	}
	flowsTotal.WithLabelValues(flow, outcome).Inc()
}
