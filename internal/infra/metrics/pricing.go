package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(priceCalculationsTotal, appliedRulesPerCalc, pricingFailOpenTotal) }

var priceCalculationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "price_calculations_total",
		Help: "Completed price calculations by item type.",
	},
	[]string{"item_type"},
)

var appliedRulesPerCalc = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "price_calculation_applied_rules",
		Help:    "Number of promotion rules applied per calculation.",
		Buckets: []float64{0, 1, 2, 3, 5, 8},
	},
)

var pricingFailOpenTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "pricing_fail_open_total",
		Help: "Calculations degraded to the undiscounted base price after an internal error.",
	},
)

func ObservePriceCalculation(itemType string, appliedRules int) {
	priceCalculationsTotal.WithLabelValues(norm(itemType)).Inc()
	appliedRulesPerCalc.Observe(float64(appliedRules))
}

func IncPricingFailOpen() {
	pricingFailOpenTotal.Inc()
}
