package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FundMetrics tracks fund engine activity as seen by the hosting daemon.
type FundMetrics struct {
	commands      *prometheus.CounterVec
	commandTime   *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	bids          *prometheus.CounterVec
	bidVolume     *prometheus.CounterVec
	auctionsOpen  *prometheus.CounterVec
	feeShares     *prometheus.CounterVec
	oracleAge     *prometheus.GaugeVec
	oracleFailure *prometheus.CounterVec
	crankRuns     *prometheus.CounterVec
}

var (
	fundOnce     sync.Once
	fundRegistry *FundMetrics
)

// Fund returns the process-wide fund metrics registry.
func Fund() *FundMetrics {
	fundOnce.Do(func() {
		fundRegistry = &FundMetrics{
			commands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_commands_total",
				Help: "Count of fund commands by name and outcome.",
			}, []string{"command", "outcome"}),
			commandTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fund_command_duration_seconds",
				Help:    "Time spent applying a fund command including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"command"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_command_failures_total",
				Help: "Count of rejected fund commands by error kind.",
			}, []string{"command", "kind"}),
			bids: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_auction_bids_total",
				Help: "Count of filled auction bids per fund.",
			}, []string{"fund"}),
			bidVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_auction_bid_volume_raw",
				Help: "Raw token volume exchanged through auction bids by side.",
			}, []string{"fund", "side"}),
			auctionsOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_auctions_opened_total",
				Help: "Count of opened auctions by fund and mode.",
			}, []string{"fund", "mode"}),
			feeShares: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_fee_shares_minted_raw",
				Help: "Raw fee shares minted per fund and beneficiary class.",
			}, []string{"fund", "beneficiary"}),
			oracleAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fund_oracle_quote_age_seconds",
				Help: "Age of the most recent aggregated oracle quote per pair.",
			}, []string{"pair"}),
			oracleFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_oracle_source_failures_total",
				Help: "Count of rejected oracle source fetches by source.",
			}, []string{"source"}),
			crankRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fund_crank_runs_total",
				Help: "Count of scheduled crank jobs by job and outcome.",
			}, []string{"job", "outcome"}),
		}
		prometheus.MustRegister(
			fundRegistry.commands,
			fundRegistry.commandTime,
			fundRegistry.failures,
			fundRegistry.bids,
			fundRegistry.bidVolume,
			fundRegistry.auctionsOpen,
			fundRegistry.feeShares,
			fundRegistry.oracleAge,
			fundRegistry.oracleFailure,
			fundRegistry.crankRuns,
		)
	})
	return fundRegistry
}

// ObserveCommand records a command outcome. kind is empty on success.
func (m *FundMetrics) ObserveCommand(command, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	command = label(command)
	outcome := "success"
	if kind != "" {
		outcome = "error"
		m.failures.WithLabelValues(command, kind).Inc()
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandTime.WithLabelValues(command).Observe(elapsed.Seconds())
}

// ObserveBid records a filled bid and the raw amounts of both legs.
func (m *FundMetrics) ObserveBid(fund string, sold, bought uint64) {
	if m == nil {
		return
	}
	fund = label(fund)
	m.bids.WithLabelValues(fund).Inc()
	m.bidVolume.WithLabelValues(fund, "sell").Add(float64(sold))
	m.bidVolume.WithLabelValues(fund, "buy").Add(float64(bought))
}

// ObserveAuctionOpened counts an auction opened by the launcher or by anyone.
func (m *FundMetrics) ObserveAuctionOpened(fund string, permissionless bool) {
	if m == nil {
		return
	}
	mode := "launcher"
	if permissionless {
		mode = "permissionless"
	}
	m.auctionsOpen.WithLabelValues(label(fund), mode).Inc()
}

// ObserveFeeShares adds minted fee shares for the dao or recipients.
func (m *FundMetrics) ObserveFeeShares(fund, beneficiary string, raw uint64) {
	if m == nil || raw == 0 {
		return
	}
	m.feeShares.WithLabelValues(label(fund), label(beneficiary)).Add(float64(raw))
}

// SetOracleAge publishes the age of the cached quote for pair.
func (m *FundMetrics) SetOracleAge(pair string, age time.Duration) {
	if m == nil {
		return
	}
	if age < 0 {
		age = 0
	}
	m.oracleAge.WithLabelValues(label(pair)).Set(age.Seconds())
}

// RecordOracleFailure counts a rejected source fetch.
func (m *FundMetrics) RecordOracleFailure(source string) {
	if m == nil {
		return
	}
	m.oracleFailure.WithLabelValues(label(source)).Inc()
}

// ObserveCrank records a scheduled job run.
func (m *FundMetrics) ObserveCrank(job string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.crankRuns.WithLabelValues(label(job), outcome).Inc()
}

func label(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
