package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"fundchain/native/fund"
	"fundchain/observability/metrics"
)

// Snapshot is one aggregated median for a pair.
type Snapshot struct {
	Pair       Pair
	Median     *uint256.Int
	Feeders    []string
	Digest     string
	ObservedAt time.Time
}

// Recorder persists aggregated snapshots.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap Snapshot) error
}

// RecorderFunc adapts ordinary functions to Recorder.
type RecorderFunc func(ctx context.Context, snap Snapshot) error

// RecordSnapshot implements Recorder.
func (f RecorderFunc) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	if f == nil {
		return nil
	}
	return f(ctx, snap)
}

// ErrInsufficientFeeds is returned when fewer than the minimum number of
// fresh quotes were collected for a pair.
var ErrInsufficientFeeds = errors.New("oracle: insufficient fresh feeds")

// Manager polls sources on an interval and caches the latest median per pair.
// It implements fund.PriceOracle over the cache.
type Manager struct {
	logger   *slog.Logger
	sources  []Source
	pairs    []Pair
	minFeeds int
	maxAge   time.Duration
	interval time.Duration
	recorder Recorder
	cache    *lru.Cache[Pair, Snapshot]
	now      func() time.Time
	once     sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder persists every aggregated snapshot.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithCacheSize bounds the number of cached pairs.
func WithCacheSize(size int) Option {
	return func(m *Manager) {
		if size <= 0 {
			return
		}
		if cache, err := lru.New[Pair, Snapshot](size); err == nil {
			m.cache = cache
		}
	}
}

// New constructs a manager instance.
func New(sources []Source, pairs []Pair, interval, maxAge time.Duration, minFeeds int, opts ...Option) (*Manager, error) {
	if len(pairs) > 0 && len(sources) == 0 {
		return nil, fmt.Errorf("at least one source required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	if minFeeds <= 0 {
		minFeeds = 1
	}
	cache, err := lru.New[Pair, Snapshot](256)
	if err != nil {
		return nil, err
	}
	mgr := &Manager{
		logger:   slog.Default(),
		sources:  append([]Source{}, sources...),
		pairs:    append([]Pair{}, pairs...),
		interval: interval,
		maxAge:   maxAge,
		minFeeds: minFeeds,
		recorder: RecorderFunc(nil),
		cache:    cache,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	if mgr.recorder == nil {
		mgr.recorder = RecorderFunc(nil)
	}
	return mgr, nil
}

// Run blocks, periodically polling upstream feeds until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("oracle manager started", "sources", len(m.sources), "pairs", len(m.pairs))
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("oracle tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single aggregation cycle across all configured pairs. Every
// pair is attempted; the first failure is returned.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	var firstErr error
	for _, pair := range m.pairs {
		if err := m.processPair(ctx, pair); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) processPair(ctx context.Context, pair Pair) error {
	now := m.now()
	prices := make([]*uint256.Int, 0, len(m.sources))
	feeders := make([]string, 0, len(m.sources))
	var observed time.Time
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		quote, err := src.Fetch(ctx, pair)
		if err != nil {
			m.reject(src, pair, "fetch failed", err)
			continue
		}
		if quote.Price == nil || quote.Price.IsZero() {
			m.reject(src, pair, "invalid price", nil)
			continue
		}
		if quote.Timestamp.After(now.Add(5 * time.Second)) {
			m.reject(src, pair, "future timestamp", nil)
			continue
		}
		if quote.Timestamp.Before(now.Add(-m.maxAge)) {
			m.reject(src, pair, "quote expired", nil)
			continue
		}
		feeders = append(feeders, src.Name())
		prices = append(prices, quote.Price)
		if observed.IsZero() || quote.Timestamp.Before(observed) {
			observed = quote.Timestamp
		}
	}
	if len(prices) < m.minFeeds {
		return fmt.Errorf("%w for %s: %d of %d", ErrInsufficientFeeds, pair, len(prices), m.minFeeds)
	}
	snap := Snapshot{
		Pair:       pair,
		Median:     median(prices),
		Feeders:    feeders,
		Digest:     digest(pair, feeders, observed),
		ObservedAt: observed,
	}
	m.cache.Add(pair, snap)
	metrics.Fund().SetOracleAge(pair.String(), now.Sub(observed))
	if err := m.recorder.RecordSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

func (m *Manager) reject(src Source, pair Pair, reason string, err error) {
	metrics.Fund().RecordOracleFailure(src.Name())
	attrs := []any{"source", src.Name(), "pair", pair.String(), "reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	m.logger.Debug("oracle quote rejected", attrs...)
}

// Latest returns the cached snapshot for the pair, if any.
func (m *Manager) Latest(pair Pair) (Snapshot, bool) {
	return m.cache.Get(pair)
}

// Quote implements fund.PriceOracle. When only the inverse pair is cached
// the inverse price is returned, rounded down. Staleness is judged by the
// engine from the returned timestamp.
func (m *Manager) Quote(sell, buy common.Address) (fund.PriceQuote, error) {
	if snap, ok := m.cache.Get(Pair{Sell: sell, Buy: buy}); ok {
		return fund.PriceQuote{Price: new(uint256.Int).Set(snap.Median), Timestamp: unixSeconds(snap.ObservedAt)}, nil
	}
	if snap, ok := m.cache.Get(Pair{Sell: buy, Buy: sell}); ok && !snap.Median.IsZero() {
		scale := new(uint256.Int).Mul(uint256.NewInt(fund.ScaledOne), uint256.NewInt(fund.ScaledOne))
		inverse := new(uint256.Int).Div(scale, snap.Median)
		if inverse.IsZero() {
			return fund.PriceQuote{}, fund.ErrPriceUnavailable
		}
		return fund.PriceQuote{Price: inverse, Timestamp: unixSeconds(snap.ObservedAt)}, nil
	}
	return fund.PriceQuote{}, fund.ErrPriceUnavailable
}

func median(prices []*uint256.Int) *uint256.Int {
	sorted := make([]*uint256.Int, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lt(sorted[j]) })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(uint256.Int).Set(sorted[mid])
	}
	// (a+b)/2 without overflow: a/2 + b/2 + (a%2 + b%2)/2
	a, b := sorted[mid-1], sorted[mid]
	two := uint256.NewInt(2)
	out := new(uint256.Int).Div(a, two)
	out.Add(out, new(uint256.Int).Div(b, two))
	carry := new(uint256.Int).Add(new(uint256.Int).Mod(a, two), new(uint256.Int).Mod(b, two))
	return out.Add(out, carry.Div(carry, two))
}

func digest(pair Pair, feeders []string, ts time.Time) string {
	h := sha256.New()
	h.Write(pair.Sell.Bytes())
	h.Write(pair.Buy.Bytes())
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	sorted := append([]string{}, feeders...)
	sort.Strings(sorted)
	for _, f := range sorted {
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func unixSeconds(t time.Time) uint64 {
	if t.Unix() <= 0 {
		return 0
	}
	return uint64(t.Unix())
}
