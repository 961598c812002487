package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgerOpsTotal) }

var ledgerOpsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_ledger_operations_total",
		Help: "Credit ledger operations by kind and outcome.",
	},
	[]string{"op", "result"}, // op="deduct", result="ok"|"insufficient"|"error"
)

func IncLedgerOp(op, result string) {
	ledgerOpsTotal.WithLabelValues(norm(op), norm(result)).Inc()
}
