package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"fundchain/native/bank"
	"fundchain/native/fund"
	"fundchain/services/fundd/ledger"
)

// command runs body through the ledger runner and writes its result.
func (s *Server) command(w http.ResponseWriter, r *http.Request, cmd ledger.Command, status int, body func(tx *ledger.Tx) (any, error)) {
	var out any
	err := s.runner.Execute(r.Context(), cmd, func(tx *ledger.Tx) error {
		var err error
		out, err = body(tx)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request, body func(eng *fund.Engine, ledger *bank.Ledger) (any, error)) {
	var out any
	err := s.runner.View(r.Context(), func(eng *fund.Engine, ledger *bank.Ledger) error {
		var err error
		out, err = body(eng, ledger)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func volume(amounts []fund.TokenAmount) uint64 {
	var total uint64
	for _, a := range amounts {
		if total+a.Amount < total {
			return ^uint64(0)
		}
		total += a.Amount
	}
	return total
}

// ListFunds returns every fund initialized through this daemon.
func (s *Server) ListFunds(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.runner.Funds()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		out := make([]map[string]any, 0, len(addrs))
		for _, addr := range addrs {
			f, err := eng.Fund(addr)
			if err != nil {
				return nil, err
			}
			out = append(out, fundView(f))
		}
		return map[string]any{"funds": out}, nil
	})
}

// InitFund creates a fund owned by the caller.
func (s *Server) InitFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		ShareMint     string `json:"share_mint"`
		AnnualTVLFee  string `json:"annual_tvl_fee"`
		MintFee       string `json:"mint_fee"`
		AuctionLength uint64 `json:"auction_length"`
		Mandate       string `json:"mandate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	params := fund.InitParams{AuctionLength: req.AuctionLength, Mandate: req.Mandate}
	var err error
	if params.ShareMint, err = parseAccount(req.ShareMint, "share_mint"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if params.AnnualTVLFee, err = parseDecimal(req.AnnualTVLFee, "annual_tvl_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if params.MintFee, err = parseDecimal(req.MintFee, "mint_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "init_fund", Caller: caller, Fund: fund.DeriveFundAddress(params.ShareMint)}
	s.command(w, r, cmd, http.StatusCreated, func(tx *ledger.Tx) (any, error) {
		f, err := tx.Engine.InitFund(caller, params)
		if err != nil {
			return nil, err
		}
		if err := tx.RegisterFund(f.Address); err != nil {
			return nil, err
		}
		return fundView(f), nil
	})
}

// GetFund returns the fund record.
func (s *Server) GetFund(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		f, err := eng.Fund(addr)
		if err != nil {
			return nil, err
		}
		return fundView(f), nil
	})
}

// UpdateFund applies owner changes to fees, recipients and metadata.
func (s *Server) UpdateFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		AnnualTVLFee     *string         `json:"annual_tvl_fee"`
		MintFee          *string         `json:"mint_fee"`
		AuctionLength    *uint64         `json:"auction_length"`
		Mandate          *string         `json:"mandate"`
		AddRecipients    []recipientJSON `json:"add_recipients"`
		RemoveRecipients []string        `json:"remove_recipients"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	update := fund.FundUpdate{AuctionLength: req.AuctionLength, Mandate: req.Mandate}
	var err error
	if update.AnnualTVLFee, err = parseOptionalDecimal(req.AnnualTVLFee, "annual_tvl_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if update.MintFee, err = parseOptionalDecimal(req.MintFee, "mint_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	for i, rec := range req.AddRecipients {
		recipient, err := parseAccount(rec.Recipient, "add_recipients.recipient")
		if err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
		portion, err := parseDecimal(rec.Portion, "add_recipients.portion")
		if err != nil || !portion.IsUint64() {
			s.fail(w, r, badRequest("add_recipients[%d].portion invalid", i))
			return
		}
		update.AddRecipients = append(update.AddRecipients, fund.FeeRecipient{Recipient: recipient, Portion: portion.Uint64()})
	}
	for _, raw := range req.RemoveRecipients {
		recipient, err := parseAccount(raw, "remove_recipients")
		if err != nil {
			s.fail(w, r, badRequest("%v", err))
			return
		}
		update.RemoveRecipients = append(update.RemoveRecipients, recipient)
	}
	cmd := ledger.Command{Name: "update_fund", Caller: caller, Fund: addr}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		f, err := tx.Engine.UpdateFund(caller, addr, update)
		if err != nil {
			return nil, err
		}
		return fundView(f), nil
	})
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, name string, apply func(eng *fund.Engine, caller, addr common.Address) (*fund.Fund, error)) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.command(w, r, ledger.Command{Name: name, Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		f, err := apply(tx.Engine, caller, addr)
		if err != nil {
			return nil, err
		}
		return fundView(f), nil
	})
}

// KillFund moves the fund to Killed.
func (s *Server) KillFund(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "kill_fund", func(eng *fund.Engine, caller, addr common.Address) (*fund.Fund, error) {
		return eng.KillFund(caller, addr)
	})
}

// StartMigration moves the fund to Migrating.
func (s *Server) StartMigration(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "start_migration", func(eng *fund.Engine, caller, addr common.Address) (*fund.Fund, error) {
		return eng.StartMigration(caller, addr)
	})
}

// InitSuccessor creates the fund that takes over a Migrating fund's basket.
func (s *Server) InitSuccessor(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		AnnualTVLFee  string `json:"annual_tvl_fee"`
		MintFee       string `json:"mint_fee"`
		AuctionLength uint64 `json:"auction_length"`
		Mandate       string `json:"mandate"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	params := fund.InitParams{AuctionLength: req.AuctionLength, Mandate: req.Mandate}
	var err error
	if params.AnnualTVLFee, err = parseDecimal(req.AnnualTVLFee, "annual_tvl_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	if params.MintFee, err = parseDecimal(req.MintFee, "mint_fee"); err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "init_successor", Caller: caller, Fund: addr}
	s.command(w, r, cmd, http.StatusCreated, func(tx *ledger.Tx) (any, error) {
		f, err := tx.Engine.InitSuccessor(caller, addr, params)
		if err != nil {
			return nil, err
		}
		if err := tx.RegisterFund(f.Address); err != nil {
			return nil, err
		}
		return fundView(f), nil
	})
}

// MigrateTokens moves basket tokens from a Migrating fund to its successor.
// Anyone may call it.
func (s *Server) MigrateTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Successor string   `json:"successor"`
		Tokens    []string `json:"tokens"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	successor, err := parseAccount(req.Successor, "successor")
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	tokens, err := parseAccounts(req.Tokens, "tokens")
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "migrate_tokens", Caller: caller, Fund: addr}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		b, err := tx.Engine.MigrateTokens(caller, addr, successor, tokens)
		if err != nil {
			return nil, err
		}
		return basketView(b), nil
	})
}

// Poke accrues TVL fees up to the current day. Anyone may poke.
func (s *Server) Poke(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "poke", func(eng *fund.Engine, _, addr common.Address) (*fund.Fund, error) {
		return eng.Poke(addr)
	})
}

// GetBasket returns the fund's holdings.
func (s *Server) GetBasket(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		b, err := eng.Basket(addr)
		if err != nil {
			return nil, err
		}
		return basketView(b), nil
	})
}

// AddToBasket deposits tokens into the basket, minting initial shares to the
// caller when requested.
func (s *Server) AddToBasket(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Amounts       []amountJSON `json:"amounts"`
		InitialShares uint64       `json:"initial_shares,string"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "add_to_basket", Caller: caller, Fund: addr, Volume: volume(amounts)}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		b, err := tx.Engine.AddToBasket(caller, addr, amounts, req.InitialShares)
		if err != nil {
			return nil, err
		}
		return basketView(b), nil
	})
}

// RemoveFromBasket frees a token's basket slot.
func (s *Server) RemoveFromBasket(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	tokenAddr, ok := s.addressParam(w, r, "token")
	if !ok {
		return
	}
	cmd := ledger.Command{Name: "remove_from_basket", Caller: caller, Fund: addr}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		if err := tx.Engine.RemoveFromBasket(caller, addr, tokenAddr); err != nil {
			return nil, err
		}
		b, err := tx.Engine.Basket(addr)
		if err != nil {
			return nil, err
		}
		return basketView(b), nil
	})
}

// GetActor returns the roles held by identity.
func (s *Server) GetActor(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	identity, ok := s.addressParam(w, r, "identity")
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		roles, err := eng.Actor(addr, identity)
		if err != nil {
			return nil, err
		}
		return map[string]any{"fund": account(addr), "authority": account(identity), "roles": roleNames(roles)}, nil
	})
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

func (s *Server) actorCommand(w http.ResponseWriter, r *http.Request, name string, apply func(eng *fund.Engine, caller, addr, identity common.Address, roles fund.Role) (any, error)) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	identity, ok := s.addressParam(w, r, "identity")
	if !ok {
		return
	}
	var req rolesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	roles, err := parseRoles(req.Roles)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	s.command(w, r, ledger.Command{Name: name, Caller: caller, Fund: addr}, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		return apply(tx.Engine, caller, addr, identity, roles)
	})
}

// PutActor grants roles to identity.
func (s *Server) PutActor(w http.ResponseWriter, r *http.Request) {
	s.actorCommand(w, r, "init_or_update_actor", func(eng *fund.Engine, caller, addr, identity common.Address, roles fund.Role) (any, error) {
		actor, err := eng.InitOrUpdateActor(caller, addr, identity, roles)
		if err != nil {
			return nil, err
		}
		return map[string]any{"fund": account(actor.Fund), "authority": account(actor.Authority), "roles": roleNames(actor.Roles)}, nil
	})
}

// DeleteActor revokes roles from identity.
func (s *Server) DeleteActor(w http.ResponseWriter, r *http.Request) {
	s.actorCommand(w, r, "remove_actor", func(eng *fund.Engine, caller, addr, identity common.Address, roles fund.Role) (any, error) {
		if err := eng.RemoveActor(caller, addr, identity, roles); err != nil {
			return nil, err
		}
		left, err := eng.Actor(addr, identity)
		if err != nil {
			return nil, err
		}
		return map[string]any{"fund": account(addr), "authority": account(identity), "roles": roleNames(left)}, nil
	})
}

// GetPending returns owner's pending basket.
func (s *Server) GetPending(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	owner, ok := s.addressParam(w, r, "owner")
	if !ok {
		return
	}
	s.view(w, r, func(eng *fund.Engine, _ *bank.Ledger) (any, error) {
		p, err := eng.PendingBasket(addr, owner)
		if err != nil {
			return nil, err
		}
		return pendingView(p), nil
	})
}

// AddToPending stages caller deposits for minting.
func (s *Server) AddToPending(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Amounts []amountJSON `json:"amounts"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "add_to_pending_basket", Caller: caller, Fund: addr, Volume: volume(amounts)}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		p, err := tx.Engine.AddToPendingBasket(caller, addr, amounts)
		if err != nil {
			return nil, err
		}
		return pendingView(p), nil
	})
}

// RemoveFromPending withdraws staged amounts back to the caller.
func (s *Server) RemoveFromPending(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Amounts    []amountJSON `json:"amounts"`
		ForMinting bool         `json:"for_minting"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amounts, err := parseAmounts(req.Amounts)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "remove_from_pending_basket", Caller: caller, Fund: addr}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		p, err := tx.Engine.RemoveFromPendingBasket(caller, addr, amounts, req.ForMinting)
		if err != nil {
			return nil, err
		}
		return pendingView(p), nil
	})
}

// MintShares converts the caller's pending deposits into shares.
func (s *Server) MintShares(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Shares    uint64 `json:"shares,string"`
		MinShares uint64 `json:"min_shares,string"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cmd := ledger.Command{Name: "mint_shares", Caller: caller, Fund: addr, Volume: req.Shares}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		minted, err := tx.Engine.MintShares(caller, addr, req.Shares, req.MinShares)
		if err != nil {
			return nil, err
		}
		return map[string]any{"minted": strconv.FormatUint(minted, 10)}, nil
	})
}

// BurnShares redeems caller shares into the pending basket.
func (s *Server) BurnShares(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	addr, ok := s.fundParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Shares uint64       `json:"shares,string"`
		MinOut []amountJSON `json:"min_out"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	minOut, err := parseAmounts(req.MinOut)
	if err != nil {
		s.fail(w, r, badRequest("%v", err))
		return
	}
	cmd := ledger.Command{Name: "burn_shares", Caller: caller, Fund: addr, Volume: req.Shares}
	s.command(w, r, cmd, http.StatusOK, func(tx *ledger.Tx) (any, error) {
		out, err := tx.Engine.BurnShares(caller, addr, req.Shares, minOut)
		if err != nil {
			return nil, err
		}
		return map[string]any{"redeemed": amountsView(out)}, nil
	})
}
