package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fundchain/native/bank"
	"fundchain/native/fund"
	"fundchain/observability/metrics"
	"fundchain/services/fundd/journal"
	"fundchain/services/fundd/ledger"
	"fundchain/services/fundd/oracle"
)

func (s *Server) indexParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.fail(w, r, badRequest("invalid distribution index"))
		return 0, false
	}
	return index, true
}

// GetFeeRecipients returns the configured recipient split.
func (s *Server) GetFeeRecipients(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		rec, err := eng.FeeRecipients(addr)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"fund":               account(addr),
			"distribution_index": rec.DistributionIndex,
			"recipients":         recipientsView(rec.Active()),
		}, nil
	})
}

// DistributeFees mints the DAO's pending shares and snapshots the
// recipients' shares into a new distribution recorded against the caller.
func (s *Server) DistributeFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.command(w, r, ledger.Command{Name: "distribute_fees", Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		dist, err := tx.Engine.DistributeFees(caller, addr)
		if err != nil {
			return nil, err
		}
		if dist == nil {
			return map[string]any{"fund": account(addr), "distribution": nil}, nil
		}
		return map[string]any{"fund": account(addr), "distribution": distributionView(dist)}, nil
	})
}

// GetFeeDistribution returns an outstanding distribution.
func (s *Server) GetFeeDistribution(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		d, err := eng.FeeDistribution(addr, index)
		if err != nil {
			return nil, err
		}
		return distributionView(d), nil
	})
}

// CrankFeeDistribution pays the listed recipients of a distribution.
func (s *Server) CrankFeeDistribution(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	index, ok := s.indexParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Recipients []string `json:"recipients"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	recipients, err := parseAccounts(req.Recipients, "recipients")
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	s.command(w, r, ledger.Command{Name: "crank_fee_distribution", Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		paid, err := tx.Engine.CrankFeeDistribution(caller, addr, index, recipients)
		if err != nil {
			return nil, err
		}
		metrics.Fund().ObserveFeeShares(account(addr), "recipients", paid)
		return map[string]any{"fund": account(addr), "index": index, "paid": strconv.FormatUint(paid, 10)}, nil
	})
}

// GetEvents pages through the fund's committed events.
func (s *Server) GetEvents(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusNotImplemented, "journal_disabled", "event journal not configured")
		return
	}
	q := journal.Query{Fund: account(addr), Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, badRequest("invalid after cursor"))
			return
		}
		q.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(w, r, badRequest("invalid limit"))
			return
		}
		q.Limit = limit
	}
	rows, err := s.journal.Events(r.Context(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		attrs := map[string]string{}
		_ = json.Unmarshal([]byte(row.Attributes), &attrs)
		out = append(out, map[string]any{
			"seq":        row.Seq,
			"type":       row.Type,
			"attributes": attrs,
			"created_at": row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// GetBalance returns an account's raw token balance.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.addressParam(w, r, "account")
	if !ok {
		return
	}
	tokenAddr, ok := s.addressParam(w, r, "token")
	if !ok {
		return
	}
	s.view(w, r, func(_ *fund.Engine, ledger *bank.Ledger) (any, error) {
		balance, err := ledger.Balance(tokenAddr, owner)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"account": account(owner),
			"token":   token(tokenAddr),
			"balance": strconv.FormatUint(balance, 10),
		}, nil
	})
}

// GetOraclePrice returns the cached median for a pair, falling back to the
// last journaled snapshot.
func (s *Server) GetOraclePrice(w http.ResponseWriter, r *http.Request) {
	sell, ok := s.addressParam(w, r, "sell")
	if !ok {
		return
	}
	buy, ok := s.addressParam(w, r, "buy")
	if !ok {
		return
	}
	pair := oracle.Pair{Sell: sell, Buy: buy}
	if s.oracle != nil {
		if snap, found := s.oracle.Latest(pair); found {
			writeJSON(w, http.StatusOK, map[string]any{
				"pair":        pair.String(),
				"price":       dec(snap.Median),
				"feeders":     snap.Feeders,
				"digest":      snap.Digest,
				"observed_at": snap.ObservedAt,
				"source":      "cache",
			})
			return
		}
	}
	if s.journal != nil {
		row, err := s.journal.LatestSnapshot(r.Context(), pair)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"pair":        row.Pair,
				"price":       journalPrice(row.Median),
				"digest":      row.Digest,
				"observed_at": row.ObservedAt,
				"source":      "journal",
			})
			return
		}
		if !errors.Is(err, journal.ErrNotFound) {
			s.fail(w, r, err)
			return
		}
	}
	s.fail(w, r, fund.ErrPriceUnavailable)
}

// journalPrice renders a journaled raw D18 integer as a decimal.
func journalPrice(raw string) string {
	v, err := parseRawD18(raw)
	if err != nil {
		return raw
	}
	return dec(v)
}
