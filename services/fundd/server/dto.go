package server

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"fundchain/crypto"
	"fundchain/native/fund"
)

// Addresses travel as bech32 (or 0x hex on input), D18 values as decimal
// strings and raw amounts as decimal integer strings.

type amountJSON struct {
	Token  string `json:"token"`
	Amount uint64 `json:"amount,string"`
}

type rangeJSON struct {
	Low  string `json:"low"`
	Spot string `json:"spot"`
	High string `json:"high"`
}

type pricesJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type pairJSON struct {
	Sell      string     `json:"sell"`
	Buy       string     `json:"buy"`
	SellLimit rangeJSON  `json:"sell_limit"`
	BuyLimit  rangeJSON  `json:"buy_limit"`
	Prices    pricesJSON `json:"prices"`
}

type recipientJSON struct {
	Recipient string `json:"recipient"`
	Portion   string `json:"portion"`
}

func parseAccount(raw, field string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseDecimal(raw, field string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return new(uint256.Int), nil
	}
	v, err := fund.ParseD18(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseOptionalDecimal(raw *string, field string) (*uint256.Int, error) {
	if raw == nil {
		return nil, nil
	}
	return parseDecimal(*raw, field)
}

func parseAmounts(in []amountJSON) ([]fund.TokenAmount, error) {
	out := make([]fund.TokenAmount, 0, len(in))
	for i, a := range in {
		token, err := parseAccount(a.Token, fmt.Sprintf("amounts[%d].token", i))
		if err != nil {
			return nil, err
		}
		out = append(out, fund.TokenAmount{Token: token, Amount: a.Amount})
	}
	return out, nil
}

func parseRange(in rangeJSON, field string) (fund.BasketRange, error) {
	var out fund.BasketRange
	var err error
	if out.Low, err = parseDecimal(in.Low, field+".low"); err != nil {
		return out, err
	}
	if out.Spot, err = parseDecimal(in.Spot, field+".spot"); err != nil {
		return out, err
	}
	if out.High, err = parseDecimal(in.High, field+".high"); err != nil {
		return out, err
	}
	return out, nil
}

func parsePrices(in pricesJSON, field string) (fund.PriceRange, error) {
	var out fund.PriceRange
	var err error
	if out.Start, err = parseDecimal(in.Start, field+".start"); err != nil {
		return out, err
	}
	if out.End, err = parseDecimal(in.End, field+".end"); err != nil {
		return out, err
	}
	return out, nil
}

func parsePairs(in []pairJSON) ([]fund.RebalancePair, error) {
	out := make([]fund.RebalancePair, 0, len(in))
	for i, p := range in {
		field := fmt.Sprintf("pairs[%d]", i)
		var pair fund.RebalancePair
		var err error
		if pair.Sell, err = parseAccount(p.Sell, field+".sell"); err != nil {
			return nil, err
		}
		if pair.Buy, err = parseAccount(p.Buy, field+".buy"); err != nil {
			return nil, err
		}
		if pair.SellLimit, err = parseRange(p.SellLimit, field+".sell_limit"); err != nil {
			return nil, err
		}
		if pair.BuyLimit, err = parseRange(p.BuyLimit, field+".buy_limit"); err != nil {
			return nil, err
		}
		if pair.Prices, err = parsePrices(p.Prices, field+".prices"); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, nil
}

func parseRoles(names []string) (fund.Role, error) {
	var roles fund.Role
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "owner":
			roles |= fund.RoleOwner
		case "rebalance_manager":
			roles |= fund.RoleRebalanceManager
		case "auction_launcher":
			roles |= fund.RoleAuctionLauncher
		case "brand_manager":
			roles |= fund.RoleBrandManager
		default:
			return 0, fmt.Errorf("unknown role %q", name)
		}
	}
	return roles, nil
}

func roleNames(r fund.Role) []string {
	names := []string{}
	for _, entry := range []struct {
		role fund.Role
		name string
	}{
		{fund.RoleOwner, "owner"},
		{fund.RoleRebalanceManager, "rebalance_manager"},
		{fund.RoleAuctionLauncher, "auction_launcher"},
		{fund.RoleBrandManager, "brand_manager"},
	} {
		if r.HasAny(entry.role) {
			names = append(names, entry.name)
		}
	}
	return names
}

func account(addr common.Address) string { return crypto.Display(crypto.AccountPrefix, addr) }

func token(addr common.Address) string { return crypto.Display(crypto.TokenPrefix, addr) }

func dec(v *uint256.Int) string { return fund.FormatD18(v) }

func fundView(f *fund.Fund) map[string]any {
	out := map[string]any{
		"address":                       account(f.Address),
		"share_mint":                    token(f.ShareMint),
		"status":                        f.Status.String(),
		"tvl_fee_per_second":            dec(f.TVLFee),
		"mint_fee":                      dec(f.MintFee),
		"last_poke":                     f.LastPoke,
		"dao_pending_fee_shares":        dec(f.DAOPendingFeeShares),
		"recipients_pending_fee_shares": dec(f.RecipientsPendingFeeShares),
		"recipients_to_be_minted":       dec(f.RecipientsToBeMinted),
		"auction_length":                f.AuctionLength,
		"mandate":                       f.Mandate,
		"created_at":                    f.CreatedAt,
	}
	if f.Predecessor != (common.Address{}) {
		out["predecessor"] = account(f.Predecessor)
	}
	if f.Successor != (common.Address{}) {
		out["successor"] = account(f.Successor)
	}
	return out
}

func amountsView(in []fund.TokenAmount) []amountJSON {
	out := make([]amountJSON, 0, len(in))
	for _, a := range in {
		out = append(out, amountJSON{Token: token(a.Token), Amount: a.Amount})
	}
	return out
}

func basketView(b *fund.Basket) map[string]any {
	sum := b.Checksum()
	return map[string]any{
		"fund":     account(b.Fund),
		"holdings": amountsView(b.Holdings()),
		"checksum": hex.EncodeToString(sum[:]),
	}
}

func pendingView(p *fund.PendingBasket) map[string]any {
	slots := []map[string]any{}
	for _, s := range p.Slots {
		if s.ForMinting == 0 && s.ForRedeeming == 0 {
			continue
		}
		slots = append(slots, map[string]any{
			"token":         token(s.Token),
			"for_minting":   fmt.Sprint(s.ForMinting),
			"for_redeeming": fmt.Sprint(s.ForRedeeming),
		})
	}
	return map[string]any{"fund": account(p.Fund), "owner": account(p.Owner), "slots": slots}
}

func rangeView(r fund.BasketRange) rangeJSON {
	return rangeJSON{Low: dec(r.Low), Spot: dec(r.Spot), High: dec(r.High)}
}

func rebalanceView(r *fund.Rebalance) map[string]any {
	pairs := []pairJSON{}
	for _, p := range r.IncludedPairs() {
		pairs = append(pairs, pairJSON{
			Sell:      token(p.Sell),
			Buy:       token(p.Buy),
			SellLimit: rangeView(p.SellLimit),
			BuyLimit:  rangeView(p.BuyLimit),
			Prices:    pricesJSON{Start: dec(p.Prices.Start), End: dec(p.Prices.End)},
		})
	}
	return map[string]any{
		"fund":               account(r.Fund),
		"nonce":              r.Nonce,
		"current_auction_id": r.CurrentAuctionID,
		"sealed":             r.Sealed,
		"started_at":         r.StartedAt,
		"restricted_until":   r.RestrictedUntil,
		"available_until":    r.AvailableUntil,
		"launcher_window":    r.LauncherWindow,
		"ttl":                r.TTL,
		"pairs":              pairs,
	}
}

func auctionView(a *fund.Auction) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"nonce":      a.Nonce,
		"fund":       account(a.Fund),
		"sell":       token(a.Sell),
		"buy":        token(a.Buy),
		"sell_limit": dec(a.SellLimit),
		"buy_limit":  dec(a.BuyLimit),
		"prices":     pricesJSON{Start: dec(a.Prices.Start), End: dec(a.Prices.End)},
		"k":          dec(a.K),
		"start":      a.Start,
		"end":        a.End,
	}
}

func recipientsView(in []fund.FeeRecipient) []recipientJSON {
	out := []recipientJSON{}
	for _, r := range in {
		if r.Recipient == (common.Address{}) {
			continue
		}
		out = append(out, recipientJSON{Recipient: account(r.Recipient), Portion: dec(uint256.NewInt(r.Portion))})
	}
	return out
}

func distributionView(d *fund.FeeDistribution) map[string]any {
	return map[string]any{
		"fund":       account(d.Fund),
		"index":      d.Index,
		"cranker":    account(d.Cranker),
		"created_at": d.CreatedAt,
		"amount":     dec(d.Amount),
		"remaining":  dec(d.Remaining),
		"recipients": recipientsView(d.Recipients[:]),
	}
}

func parseAccounts(in []string, field string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for i, raw := range in {
		addr, err := parseAccount(raw, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseRawD18(raw string) (*uint256.Int, error) {
	return uint256.FromDecimal(raw)
}
