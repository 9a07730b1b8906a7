package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fundchain/native/bank"
	"fundchain/native/fund"
	"fundchain/observability/metrics"
	"fundchain/services/fundd/ledger"
)

func (s *Server) auctionParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.fail(w, r, badRequest("invalid auction id"))
		return 0, false
	}
	return id, true
}

// GetRebalance returns the fund's current epoch.
func (s *Server) GetRebalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		rb, err := eng.Rebalance(addr)
		if err != nil {
			return nil, err
		}
		return rebalanceView(rb), nil
	})
}

// StartRebalance declares pairs for the next epoch.
func (s *Server) StartRebalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		LauncherWindow uint64     `json:"launcher_window"`
		TTL            uint64     `json:"ttl"`
		Pairs          []pairJSON `json:"pairs"`
		Seal           bool       `json:"seal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pairs, err := parsePairs(req.Pairs)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	params := fund.StartParams{LauncherWindow: req.LauncherWindow, TTL: req.TTL, Pairs: pairs, Seal: req.Seal}
	s.command(w, r, ledger.Command{Name: "start_rebalance", Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		rb, err := tx.Engine.StartRebalance(caller, addr, params)
		if err != nil {
			return nil, err
		}
		return rebalanceView(rb), nil
	})
}

// AddRebalanceDetails appends pairs to an unsealed draft.
func (s *Server) AddRebalanceDetails(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Pairs []pairJSON `json:"pairs"`
		Seal  bool       `json:"seal"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pairs, err := parsePairs(req.Pairs)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	s.command(w, r, ledger.Command{Name: "add_rebalance_details", Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		rb, err := tx.Engine.AddRebalanceDetails(caller, addr, pairs, req.Seal)
		if err != nil {
			return nil, err
		}
		return rebalanceView(rb), nil
	})
}

// OpenAuction opens an auction for a declared pair. Launchers may tighten
// spots and prices; anyone may open with the declared values once the
// launcher window has passed.
func (s *Server) OpenAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Sell           string     `json:"sell"`
		Buy            string     `json:"buy"`
		Permissionless bool       `json:"permissionless"`
		SellSpot       *string    `json:"sell_spot"`
		BuySpot        *string    `json:"buy_spot"`
		Prices         pricesJSON `json:"prices"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var pair fund.Pair
	var err error
	if pair.Sell, err = parseAccount(req.Sell, "sell"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if pair.Buy, err = parseAccount(req.Buy, "buy"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	var params *fund.OpenParams
	if !req.Permissionless {
		params = &fund.OpenParams{}
		if params.SellSpot, err = parseOptionalDecimal(req.SellSpot, "sell_spot"); err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
		if params.BuySpot, err = parseOptionalDecimal(req.BuySpot, "buy_spot"); err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
		if params.Prices, err = parsePrices(req.Prices, "prices"); err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
	}
	s.command(w, r, ledger.Command{Name: "open_auction", Caller: caller, Fund: addr}, http.StatusCreated, func(tx *ledger.Tx) (any, error) {
		var (
			a   *fund.Auction
			err error
		)
		if req.Permissionless {
			a, err = tx.Engine.OpenAuctionPermissionless(caller, addr, pair)
		} else {
			a, err = tx.Engine.OpenAuction(caller, addr, pair, params)
		}
		if err != nil {
			return nil, err
		}
		metrics.Fund().ObserveAuctionOpened(account(addr), req.Permissionless)
		return auctionView(a), nil
	})
}

// GetAuction returns an auction with its current price and status.
func (s *Server) GetAuction(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	id, ok := s.auctionParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		a, err := eng.Auction(addr, id)
		if err != nil {
			return nil, err
		}
		price, status, err := eng.AuctionPrice(addr, id)
		if err != nil {
			return nil, err
		}
		out := auctionView(a)
		out["price"] = dec(price)
		out["status"] = status.String()
		return out, nil
	})
}

// Bid trades against an open auction.
func (s *Server) Bid(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	id, ok := s.auctionParam(w, r)
	if !ok {
		return
	}
	var req struct {
		SellAmount uint64 `json:"sell_amount,string"`
		MaxBuy     uint64 `json:"max_buy_amount,string"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cmd := ledger.Command{Name: "bid", Caller: caller, Fund: addr, Volume: req.SellAmount}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		q, err := tx.Engine.Bid(caller, addr, id, req.SellAmount, req.MaxBuy)
		if err != nil {
			return nil, err
		}
		metrics.Fund().ObserveBid(account(addr), q.SellAmount, q.BuyAmount)
		return map[string]any{
			"price":       dec(q.Price),
			"sell_amount": strconv.FormatUint(q.SellAmount, 10),
			"buy_amount":  strconv.FormatUint(q.BuyAmount, 10),
			"max_sell":    strconv.FormatUint(q.MaxSell, 10),
		}, nil
	})
}

// CloseAuction ends a live auction early.
func (s *Server) CloseAuction(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	id, ok := s.auctionParam(w, r)
	if !ok {
		return
	}
	s.command(w, r, ledger.Command{Name: "close_auction", Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		a, err := tx.Engine.CloseAuction(caller, addr, id)
		if err != nil {
			return nil, err
		}
		return auctionView(a), nil
	})
}
