package facilitator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "requests_total",
		Help:      "Requests handled, by operation and status code.",
	}, []string{"operation", "status"})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "verifications_total",
		Help:      "Payment verifications, by network and result.",
	}, []string{"network", "result"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "settlements_total",
		Help:      "Payment settlements, by network and result.",
	}, []string{"network", "result"})

	ledgerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facilitator",
		Name:      "ledger_failures_total",
		Help:      "Bookkeeping writes that failed and were skipped.",
	})
)

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "rejected"
}
