package fund

// ModuleName is the pause-guard key for fund commands.
const ModuleName = "fund"

// Time.
const (
	Day            = 86_400
	YearInSeconds  = 365 * Day
	MinAuctionLen  = 60
	MaxAuctionLen  = 604_800
	MaxTTL         = 604_800 * 4
	MaxMandateSize = 128

	// RestrictedAuctionBuffer is the delay after an epoch starts before any
	// auction may open.
	RestrictedAuctionBuffer = 0

	// CrankerExclusivity is how long only the recorded cranker may pay out
	// a fee distribution.
	CrankerExclusivity = Day
)

// Capacities.
const (
	MaxBasketTokens    = 100
	MaxPendingTokens   = 110
	MaxRebalanceTokens = 30
	MaxRebalancePairs  = MaxRebalanceTokens
	MaxFeeRecipients   = 64
)

// Scaled (D18) limits. Values above 1.8e19 are kept as decimal strings and
// parsed once at init.
const (
	ScaledOne          uint64 = 1_000_000_000_000_000_000
	MaxDAOFeeNumerator uint64 = 500_000_000_000_000_000
	MaxFeeFloor        uint64 = 1_500_000_000_000_000
	MaxTVLFee          uint64 = 100_000_000_000_000_000
	MaxMintFee         uint64 = 50_000_000_000_000_000

	// MaxPriceRange bounds start/end for a declared auction price range.
	MaxPriceRange uint64 = 1_000_000_000
	// MaxNarrowingFactor bounds how far the launcher may raise a start price.
	MaxNarrowingFactor uint64 = 100

	maxRateDecimal  = "1000000000000000000000000000"         // 1e27 tokens per share
	maxPriceDecimal = "1000000000000000000000000000000000000" // 1e36
)
