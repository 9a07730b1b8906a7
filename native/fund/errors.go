package fund

import "errors"

// Kind classifies engine failures so callers can react without matching on
// individual sentinels.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindArithmetic
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error is a classified fund engine sentinel. Compare with errors.Is.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return "fund engine: " + e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

// KindOf returns the classification of err, or KindUnknown when err does not
// wrap a fund engine error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable machine-readable code of a fund engine error.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

var (
	errNilState = errors.New("fund engine: state not configured")
)

// Authorization.
var (
	ErrInvalidRole       = newError(KindAuthorization, "invalid_role", "caller lacks the required role")
	ErrInvalidFundStatus = newError(KindAuthorization, "invalid_fund_status", "operation not allowed in current fund status")
	ErrInvalidCranker    = newError(KindAuthorization, "invalid_cranker", "caller is not the distribution cranker")
	ErrModulePaused      = newError(KindAuthorization, "module_paused", "module paused")
)

// Validation.
var (
	ErrMaxNumberOfTokensReached             = newError(KindValidation, "max_tokens_reached", "ledger capacity exhausted")
	ErrInvalidAddedTokenMints               = newError(KindValidation, "invalid_added_tokens", "invalid token or amount added")
	ErrInvalidRemovedTokenMints             = newError(KindValidation, "invalid_removed_tokens", "token absent or amount exceeds holding")
	ErrTokenMintNotInBasket                 = newError(KindValidation, "token_not_in_basket", "token not in basket")
	ErrInvalidShareAmountProvided           = newError(KindValidation, "invalid_share_amount", "invalid share amount")
	ErrInvalidSellLimit                     = newError(KindValidation, "invalid_sell_limit", "sell limit bounds invalid")
	ErrInvalidBuyLimit                      = newError(KindValidation, "invalid_buy_limit", "buy limit bounds invalid")
	ErrInvalidPrices                        = newError(KindValidation, "invalid_prices", "price range invalid")
	ErrInvalidTTL                           = newError(KindValidation, "invalid_ttl", "rebalance ttl invalid")
	ErrRebalanceTTLExceeded                 = newError(KindValidation, "rebalance_ttl_exceeded", "rebalance ttl exceeds maximum")
	ErrRebalanceTokenAlreadyAdded           = newError(KindValidation, "rebalance_duplicate_pair", "pair already present in rebalance")
	ErrRebalanceTooManyTokens               = newError(KindValidation, "rebalance_too_many_tokens", "rebalance token count exceeds maximum")
	ErrRebalanceNotOpenForDetailUpdates     = newError(KindValidation, "rebalance_sealed", "rebalance not open for detail updates")
	ErrTokensNotAvailableForRebalance       = newError(KindValidation, "pair_not_in_rebalance", "pair not part of the active rebalance")
	ErrSellTokenNotSurplus                  = newError(KindValidation, "sell_not_surplus", "sell token not in surplus")
	ErrBuyTokenNotDeficit                   = newError(KindValidation, "buy_not_deficit", "buy token not in deficit")
	ErrAuctionTimeout                       = newError(KindValidation, "auction_timeout", "rebalance window elapsed")
	ErrAuctionCollision                     = newError(KindValidation, "auction_collision", "an auction for this pair is still live")
	ErrAuctionCannotBeOpenedPermissionless  = newError(KindValidation, "auction_restricted", "auction cannot be opened permissionlessly yet")
	ErrAuctionNotOngoing                    = newError(KindValidation, "auction_not_ongoing", "auction is not open")
	ErrFundNotRebalancing                   = newError(KindValidation, "fund_not_rebalancing", "fund has no sealed rebalance")
	ErrSlippageExceeded                     = newError(KindValidation, "slippage_exceeded", "slippage exceeded")
	ErrInsufficientBalance                  = newError(KindValidation, "insufficient_balance", "insufficient balance available")
	ErrBidInvariantViolated                 = newError(KindValidation, "bid_invariant_violated", "bid breaches declared limit")
	ErrMinimumAmountOutNotMet               = newError(KindValidation, "minimum_out_not_met", "minimum amount out not met")
	ErrInvalidFeeRecipientPortion           = newError(KindValidation, "invalid_fee_recipient_portion", "fee recipient portions must sum to one")
	ErrInvalidFeeRecipientContainsDuplicate = newError(KindValidation, "fee_recipient_duplicate", "duplicate fee recipient")
	ErrInvalidFeeRecipientCount             = newError(KindValidation, "invalid_fee_recipient_count", "too many fee recipients")
	ErrTVLFeeTooHigh                        = newError(KindValidation, "tvl_fee_too_high", "tvl fee too high")
	ErrTVLFeeTooLow                         = newError(KindValidation, "tvl_fee_too_low", "tvl fee too low")
	ErrInvalidMintFee                       = newError(KindValidation, "invalid_mint_fee", "mint fee too high")
	ErrInvalidAuctionLength                 = newError(KindValidation, "invalid_auction_length", "auction length out of range")
	ErrInvalidMandate                       = newError(KindValidation, "invalid_mandate", "mandate too long")
	ErrInvalidFeeConfig                     = newError(KindValidation, "invalid_fee_config", "dao fee configuration out of bounds")
	ErrInvalidFeeDistribution               = newError(KindValidation, "invalid_fee_distribution", "fee distribution not found or already paid")
	ErrUnsupportedToken                     = newError(KindValidation, "unsupported_token", "token not supported")
	ErrInvalidAmount                        = newError(KindValidation, "invalid_amount", "amount must be positive")
)

// Arithmetic.
var (
	ErrMathOverflow = newError(KindArithmetic, "math_overflow", "math overflow")
)

// Consistency.
var (
	ErrStalePrice          = newError(KindConsistency, "stale_price", "price feed stale")
	ErrMintMismatch        = newError(KindConsistency, "mint_mismatch", "token mint mismatch")
	ErrFundNotFound        = newError(KindConsistency, "fund_not_found", "fund not found")
	ErrFundExists          = newError(KindConsistency, "fund_exists", "fund already initialised")
	ErrAuctionNotFound     = newError(KindConsistency, "auction_not_found", "auction not found")
	ErrRebalanceMismatch   = newError(KindConsistency, "rebalance_mismatch", "auction belongs to a superseded rebalance")
	ErrPriceUnavailable    = newError(KindConsistency, "price_unavailable", "price unavailable")
	ErrCollaboratorMissing = newError(KindConsistency, "collaborator_missing", "required collaborator not configured")
	ErrAddressMismatch     = newError(KindConsistency, "address_mismatch", "record does not belong to fund")
	ErrInvalidSuccessor    = newError(KindConsistency, "invalid_successor", "successor fund missing or mismatched")
)
