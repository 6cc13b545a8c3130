package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision pipeline metrics
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_bot_cycles_total",
			Help: "Total number of trading cycles by outcome",
		},
		[]string{"outcome"},
	)

	aggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_bot_aggregations_total",
			Help: "Total number of signal aggregations",
		},
		[]string{"symbol", "verdict"},
	)

	sourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_bot_source_failures_total",
			Help: "Total number of provider fetch failures",
		},
		[]string{"source"},
	)

	sourcesAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorum_bot_sources_available",
			Help: "Number of currently available signal sources",
		},
	)

	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_bot_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"symbol", "side"},
	)

	riskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_bot_risk_rejections_total",
			Help: "Total number of orders rejected by the risk gate",
		},
		[]string{"rule"},
	)

	portfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorum_bot_portfolio_equity",
			Help: "Current portfolio equity",
		},
	)

	portfolioDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorum_bot_portfolio_drawdown_pct",
			Help: "Current drawdown from peak equity in percent",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(aggregationsTotal)
	prometheus.MustRegister(sourceFailuresTotal)
	prometheus.MustRegister(sourcesAvailable)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(riskRejectionsTotal)
	prometheus.MustRegister(portfolioEquity)
	prometheus.MustRegister(portfolioDrawdown)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCycle counts a cycle by outcome (traded, skipped, rejected, error).
func RecordCycle(outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
}

// RecordAggregation counts an aggregation verdict for a symbol.
func RecordAggregation(symbol, verdict string) {
	aggregationsTotal.WithLabelValues(symbol, verdict).Inc()
}

// RecordSourceFailure counts a provider fetch failure.
func RecordSourceFailure(source string) {
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// SetSourcesAvailable updates the available-source gauge.
func SetSourcesAvailable(n int) {
	sourcesAvailable.Set(float64(n))
}

// RecordTrade counts an executed trade.
func RecordTrade(symbol, side string) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
}

// RecordRiskRejection counts a rejection by rule name.
func RecordRiskRejection(rule string) {
	riskRejectionsTotal.WithLabelValues(rule).Inc()
}

// UpdatePortfolio refreshes the equity and drawdown gauges.
func UpdatePortfolio(equity, drawdownPct float64) {
	portfolioEquity.Set(equity)
	portfolioDrawdown.Set(drawdownPct)
}
