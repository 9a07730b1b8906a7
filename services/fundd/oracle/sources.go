package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/crypto"
	"fundchain/native/fund"
)

// Quote is a single source observation in buy tokens per sell token (D18).
type Quote struct {
	Price     *uint256.Int
	Timestamp time.Time
}

// Source resolves a price quote for a token pair.
type Source interface {
	Name() string
	Fetch(ctx context.Context, pair Pair) (Quote, error)
}

// SourceConfig describes a source to build.
type SourceConfig struct {
	Name     string
	Type     string
	Endpoint string
	APIKey   string
	Prices   map[string]string
}

// BuildSource constructs a source from configuration. Static sources serve
// fixed prices keyed "sell/buy"; http sources query a JSON endpoint.
func BuildSource(cfg SourceConfig, client *http.Client) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "static":
		return NewStaticSource(label(cfg.Name, "static"), cfg.Prices)
	case "http":
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, fmt.Errorf("http source %q requires an endpoint", cfg.Name)
		}
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		return &HTTPSource{name: label(cfg.Name, "http"), endpoint: strings.TrimSpace(cfg.Endpoint), apiKey: cfg.APIKey, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown oracle type %q", cfg.Type)
	}
}

// StaticSource serves configured prices stamped with the current time.
type StaticSource struct {
	name   string
	prices map[Pair]*uint256.Int
	now    func() time.Time
}

// NewStaticSource parses prices keyed "sell/buy" with decimal values.
func NewStaticSource(name string, prices map[string]string) (*StaticSource, error) {
	src := &StaticSource{name: name, prices: make(map[Pair]*uint256.Int, len(prices)), now: time.Now}
	for key, value := range prices {
		pair, err := ParsePair(key)
		if err != nil {
			return nil, fmt.Errorf("static source %s: %w", name, err)
		}
		price, err := fund.ParseD18(value)
		if err != nil {
			return nil, fmt.Errorf("static source %s: %s: %w", name, key, err)
		}
		src.prices[pair] = price
	}
	return src, nil
}

func (s *StaticSource) Name() string { return s.name }

// SetClock overrides the timestamp source.
func (s *StaticSource) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context, pair Pair) (Quote, error) {
	price, ok := s.prices[pair]
	if !ok {
		return Quote{}, fmt.Errorf("no static price for %s", pair)
	}
	return Quote{Price: new(uint256.Int).Set(price), Timestamp: s.now()}, nil
}

// HTTPSource queries endpoint?sell=..&buy=.. and expects
// {"price": "<decimal>", "timestamp": <unix seconds>}.
type HTTPSource struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

func (s *HTTPSource) Name() string { return s.name }

type httpQuote struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, pair Pair) (Quote, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return Quote{}, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("sell", pair.Sell.Hex())
	q.Set("buy", pair.Buy.Hex())
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch %s: %w", s.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Quote{}, fmt.Errorf("fetch %s: status %d: %s", s.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload httpQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("decode %s: %w", s.name, err)
	}
	price, err := fund.ParseD18(payload.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("decode %s: %w", s.name, err)
	}
	return Quote{Price: price, Timestamp: time.Unix(payload.Timestamp, 0)}, nil
}

// Pair is a directed sell/buy token pair.
type Pair struct {
	Sell common.Address
	Buy  common.Address
}

func (p Pair) String() string {
	return crypto.Display(crypto.TokenPrefix, p.Sell) + "/" + crypto.Display(crypto.TokenPrefix, p.Buy)
}

// ParsePair parses "sell/buy" with either address form.
func ParsePair(raw string) (Pair, error) {
	sellRaw, buyRaw, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found {
		return Pair{}, fmt.Errorf("pair %q must be sell/buy", raw)
	}
	sell, err := crypto.ParseAddress(sellRaw)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %q sell: %w", raw, err)
	}
	buy, err := crypto.ParseAddress(buyRaw)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %q buy: %w", raw, err)
	}
	if sell == buy {
		return Pair{}, fmt.Errorf("pair %q uses the same token twice", raw)
	}
	return Pair{Sell: sell, Buy: buy}, nil
}

func label(name, fallback string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	return fallback
}
