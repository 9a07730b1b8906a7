package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFundMetricsCommandOutcomes(t *testing.T) {
	m := Fund()
	m.ObserveCommand("bid", "", time.Millisecond)
	m.ObserveCommand("bid", "validation", time.Millisecond)

	if got := testutil.ToFloat64(m.failures.WithLabelValues("bid", "validation")); got < 1 {
		t.Fatalf("expected validation failure recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("bid", "success")); got < 1 {
		t.Fatalf("expected success recorded, got %v", got)
	}
}

func TestFundMetricsBidVolume(t *testing.T) {
	m := Fund()
	m.ObserveBid("fund1test", 100, 141)
	if got := testutil.ToFloat64(m.bidVolume.WithLabelValues("fund1test", "buy")); got != 141 {
		t.Fatalf("unexpected buy volume: %v", got)
	}
	m.ObserveFeeShares("fund1test", "dao", 0)
	if got := testutil.CollectAndCount(m.feeShares); got != 0 {
		t.Fatalf("zero fee shares should not create a series, got %d", got)
	}
}

func TestFundMetricsCrankAndOracle(t *testing.T) {
	m := Fund()
	m.ObserveCrank("poke", errors.New("boom"))
	if got := testutil.ToFloat64(m.crankRuns.WithLabelValues("poke", "error")); got != 1 {
		t.Fatalf("unexpected crank error count: %v", got)
	}
	m.SetOracleAge("A/B", -time.Second)
	if got := testutil.ToFloat64(m.oracleAge.WithLabelValues("A/B")); got != 0 {
		t.Fatalf("negative ages should clamp to zero, got %v", got)
	}
}
