package chain

import (
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// Pubkey is a Solana public key (base58 string).
type Pubkey string

// Signature is a transaction signature.
type Signature string

// Venue identifies the trading venue a token launched on.
type Venue string

const (
	VenueRaydium Venue = "raydium"
	VenuePumpFun Venue = "pumpfun"
	VenuePancake Venue = "pancakeswap"
	VenueUnknown Venue = "unknown"
)

// IsBSC reports whether the venue settles on BNB Smart Chain.
func (v Venue) IsBSC() bool {
	return v == VenuePancake
}

// DEX program IDs watched for launch events (mainnet).
const (
	RaydiumAMMProgram = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	PumpFunProgram    = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// Well-known mints.
const (
	SOLMint  Pubkey = "So11111111111111111111111111111111111111112"
	USDCMint Pubkey = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// ValidatePubkey checks that an address is well-formed base58 of key length.
func ValidatePubkey(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("decode pubkey %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("pubkey %q: expected 32 bytes, got %d", addr, len(raw))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Token snapshot
// ---------------------------------------------------------------------------

// TokenSnapshot is the point-in-time view of a newly launched token that
// flows through the scoring pipeline. Fields that an RPC source could not
// resolve stay at their zero value; downstream scorers treat missing data
// per their own fail-open/fail-closed policy.
type TokenSnapshot struct {
	Address Pubkey `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	Venue   Venue  `json:"venue"`

	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	LiquiditySOL decimal.Decimal `json:"liquidity_sol"`
	PriceUSD     decimal.Decimal `json:"price_usd"`

	HolderCount        int     `json:"holder_count"`
	TopHolderPct       float64 `json:"top_holder_pct"` // largest non-pool holder, % of supply
	HolderGrowthPerMin float64 `json:"holder_growth_per_min"`

	// Liquidity inflow rate in USD per minute since launch.
	LiquidityVelocityUSD float64 `json:"liquidity_velocity_usd"`

	CreatedAt  time.Time `json:"created_at"`
	DetectedAt time.Time `json:"detected_at"`
}

// AgeMinutes returns the token age at observation time.
func (t TokenSnapshot) AgeMinutes() float64 {
	at := t.DetectedAt
	if at.IsZero() {
		at = time.Now()
	}
	return at.Sub(t.CreatedAt).Minutes()
}

// EffectiveLiquidityUSD returns the USD liquidity, converting from the SOL
// reserve when the USD figure is not available from the source.
func (t TokenSnapshot) EffectiveLiquidityUSD(solPriceUSD decimal.Decimal) decimal.Decimal {
	if t.LiquidityUSD.IsPositive() {
		return t.LiquidityUSD
	}
	return t.LiquiditySOL.Mul(solPriceUSD)
}

// ---------------------------------------------------------------------------
// Trade result
// ---------------------------------------------------------------------------

// TradeResult is the normalized outcome of a buy or sell attempt. Failed
// attempts carry Success=false and an Error string; callers never see a
// raw transport fault.
type TradeResult struct {
	Success   bool            `json:"success"`
	TxHash    Signature       `json:"tx_hash,omitempty"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// WalletBalance represents the balance of a wallet.
type WalletBalance struct {
	SOL    decimal.Decimal            `json:"sol"`
	Tokens map[Pubkey]decimal.Decimal `json:"tokens"` // mint -> amount
}
