package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"fundchain/crypto"
)

var tokenNow = time.Now

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	return fs
}

func validAddress(raw, field string) error {
	if _, err := crypto.ParseAddress(raw); err != nil {
		return fmt.Errorf("%s: %v", field, err)
	}
	return nil
}

func fundPath(raw string, rest ...string) string {
	return "/v1/funds/" + url.PathEscape(raw) + strings.Join(rest, "")
}

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var (
		subject string
		scope   string
		secret  string
		issuer  string
		ttl     time.Duration
	)
	fs.StringVar(&subject, "subject", "", "caller address (bech32 or 0x)")
	fs.StringVar(&scope, "scope", "", "space separated scopes, e.g. fund:operator")
	fs.StringVar(&secret, "secret", os.Getenv("FUNDD_SECRET"), "HMAC secret shared with fundd")
	fs.StringVar(&issuer, "issuer", "", "optional iss claim")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validAddress(subject, "--subject"); err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(secret) == "" {
		return printError(stderr, "--secret or FUNDD_SECRET is required")
	}
	if ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	now := tokenNow()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, signed)
	return 0
}

func runFundCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "list":
		return callAndPrint(http.MethodGet, "/v1/funds", nil, stdout, stderr)
	case "get", "basket", "poke":
		if len(args) != 2 {
			return printError(stderr, "fund "+args[0]+" requires FUND")
		}
		if err := validAddress(args[1], "FUND"); err != nil {
			return printError(stderr, err.Error())
		}
		switch args[0] {
		case "get":
			return callAndPrint(http.MethodGet, fundPath(args[1]), nil, stdout, stderr)
		case "basket":
			return callAndPrint(http.MethodGet, fundPath(args[1], "/basket"), nil, stdout, stderr)
		default:
			return callAndPrint(http.MethodPost, fundPath(args[1], "/poke"), nil, stdout, stderr)
		}
	case "init":
		return runFundInit(args[1:], stdout, stderr)
	case "events":
		return runFundEvents(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown fund subcommand: %s\n", args[0])
		return 1
	}
}

func runFundInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("fund init", stderr)
	var (
		shareMint     string
		annualFee     string
		mintFee       string
		auctionLength uint64
		mandate       string
	)
	fs.StringVar(&shareMint, "share-mint", "", "share token address")
	fs.StringVar(&annualFee, "annual-fee", "0", "annual TVL fee as a decimal, e.g. 0.02")
	fs.StringVar(&mintFee, "mint-fee", "0", "mint fee as a decimal")
	fs.Uint64Var(&auctionLength, "auction-length", 3600, "auction length in seconds")
	fs.StringVar(&mandate, "mandate", "", "free-form mandate")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validAddress(shareMint, "--share-mint"); err != nil {
		return printError(stderr, err.Error())
	}
	return callAndPrint(http.MethodPost, "/v1/funds", map[string]any{
		"share_mint":     shareMint,
		"annual_tvl_fee": annualFee,
		"mint_fee":       mintFee,
		"auction_length": auctionLength,
		"mandate":        mandate,
	}, stdout, stderr)
}

func runFundEvents(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "fund events requires FUND")
	}
	fund := args[0]
	if err := validAddress(fund, "FUND"); err != nil {
		return printError(stderr, err.Error())
	}
	fs := newFlagSet("fund events", stderr)
	var (
		eventType string
		after     uint64
		limit     int
	)
	fs.StringVar(&eventType, "type", "", "filter by event type")
	fs.Uint64Var(&after, "after", 0, "return events after this sequence")
	fs.IntVar(&limit, "limit", 0, "page size")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	query := url.Values{}
	if eventType != "" {
		query.Set("type", eventType)
	}
	if after > 0 {
		query.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := fundPath(fund, "/events")
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return callAndPrint(http.MethodGet, path, nil, stdout, stderr)
}

func runAuctionCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) < 3 {
		return printError(stderr, "auction requires a subcommand, FUND and ID")
	}
	sub, fund, rawID := args[0], args[1], args[2]
	if err := validAddress(fund, "FUND"); err != nil {
		return printError(stderr, err.Error())
	}
	if _, err := strconv.ParseUint(rawID, 10, 64); err != nil {
		return printError(stderr, "ID must be an unsigned integer")
	}
	base := fundPath(fund, "/auctions/", rawID)
	switch sub {
	case "get":
		return callAndPrint(http.MethodGet, base, nil, stdout, stderr)
	case "close":
		return callAndPrint(http.MethodPost, base+"/close", nil, stdout, stderr)
	case "bid":
		fs := newFlagSet("auction bid", stderr)
		var sell, maxBuy uint64
		fs.Uint64Var(&sell, "sell", 0, "raw sell token amount to take")
		fs.Uint64Var(&maxBuy, "max-buy", 0, "maximum raw buy token amount to pay")
		if err := fs.Parse(args[3:]); err != nil {
			return 1
		}
		if sell == 0 || maxBuy == 0 {
			return printError(stderr, "--sell and --max-buy are required")
		}
		return callAndPrint(http.MethodPost, base+"/bid", map[string]string{
			"sell_amount":    strconv.FormatUint(sell, 10),
			"max_buy_amount": strconv.FormatUint(maxBuy, 10),
		}, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown auction subcommand: %s\n", sub)
		return 1
	}
}

func runCreditCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("credit", stderr)
	var (
		account string
		token   string
		amount  uint64
	)
	fs.StringVar(&account, "account", "", "recipient address")
	fs.StringVar(&token, "token", "", "token address")
	fs.Uint64Var(&amount, "amount", 0, "raw amount")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := validAddress(account, "--account"); err != nil {
		return printError(stderr, err.Error())
	}
	if err := validAddress(token, "--token"); err != nil {
		return printError(stderr, err.Error())
	}
	if amount == 0 {
		return printError(stderr, "--amount must be positive")
	}
	return callAndPrint(http.MethodPost, "/v1/admin/credit", map[string]string{
		"account": account,
		"token":   token,
		"amount":  strconv.FormatUint(amount, 10),
	}, stdout, stderr)
}

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		return printError(stderr, "balance requires ACCOUNT and TOKEN")
	}
	for i, field := range []string{"ACCOUNT", "TOKEN"} {
		if err := validAddress(args[i], field); err != nil {
			return printError(stderr, err.Error())
		}
	}
	return callAndPrint(http.MethodGet, "/v1/balances/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil, stdout, stderr)
}
