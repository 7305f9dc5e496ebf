package execution

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Execution Gateway — venue dispatch with priority-bundle tips
// ---------------------------------------------------------------------------

// Known bundle tip accounts (mainnet). Tips rotate across all eight to
// avoid write-lock contention on a single account.
const (
	tipAccount1 = "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"
	tipAccount2 = "HFqU5x63VTqvQss8hp11i4bVqkfRtQ7NmXwkiY8X9W5E"
	tipAccount3 = "Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"
	tipAccount4 = "ADaUMid9yfUytqMBgopwjb2DTLSLuiv3Jhqzsg1dbE7B"
	tipAccount5 = "DfXygSm4jCyNCzbzYYR18MFJkvDVwVS7s3d7rZmLhRDd"
	tipAccount6 = "ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"
	tipAccount7 = "DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"
	tipAccount8 = "3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"
)

var tipAccounts = []chain.Pubkey{
	tipAccount1, tipAccount2, tipAccount3, tipAccount4,
	tipAccount5, tipAccount6, tipAccount7, tipAccount8,
}

// Config configures the execution gateway.
type Config struct {
	// DryRun simulates fills instead of submitting transactions.
	DryRun bool `yaml:"dry_run"`

	// UseTips attaches a priority tip to Solana swaps.
	UseTips bool            `yaml:"use_tips"`
	TipSOL  decimal.Decimal `yaml:"tip_sol"` // tip per swap in SOL

	// AmountSOL is the default buy size.
	AmountSOL decimal.Decimal `yaml:"amount_sol"`

	TimeoutMs int `yaml:"timeout_ms"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DryRun:    true,
		UseTips:   true,
		TipSOL:    decimal.NewFromFloat(0.01),
		AmountSOL: decimal.NewFromFloat(0.05),
		TimeoutMs: 10000,
	}
}

// Gateway executes buys and sells across venues. All outcomes are reported
// as a normalized TradeResult; transport faults never escape as errors.
type Gateway struct {
	config Config
	rpc    chain.RPCClient
	wallet Wallet

	tipIdx atomic.Uint32 // shared round-robin across buys and sells

	buys        atomic.Int64
	sells       atomic.Int64
	failures    atomic.Int64
	tipLamports atomic.Int64
}

// NewGateway creates an execution gateway.
func NewGateway(config Config, rpc chain.RPCClient, wallet Wallet) *Gateway {
	return &Gateway{
		config: config,
		rpc:    rpc,
		wallet: wallet,
	}
}

// DryRun reports whether the gateway simulates fills.
func (g *Gateway) DryRun() bool {
	return g.config.DryRun
}

// Buy swaps SOL into the token. A zero amount uses the configured default
// size.
func (g *Gateway) Buy(ctx context.Context, snap chain.TokenSnapshot, amountSOL decimal.Decimal) chain.TradeResult {
	if amountSOL.IsZero() {
		amountSOL = g.config.AmountSOL
	}
	if !amountSOL.IsPositive() {
		return failed("buy amount must be positive")
	}
	if snap.Venue == chain.VenueUnknown {
		return failed(fmt.Sprintf("no route for venue %q", snap.Venue))
	}

	price, err := g.entryPrice(ctx, snap)
	if err != nil {
		g.failures.Add(1)
		return failed(fmt.Sprintf("price lookup: %v", err))
	}

	tokensOut := amountSOL.Div(price)

	if g.config.DryRun {
		g.buys.Add(1)
		log.Info().
			Str("token", string(snap.Address)).
			Str("venue", string(snap.Venue)).
			Str("amount_sol", amountSOL.String()).
			Str("price", price.String()).
			Msg("execution: simulated buy")
		return filled(simulatedSignature(), amountSOL, tokensOut, price)
	}

	intent := SwapIntent{
		Side:     SideBuy,
		Venue:    snap.Venue,
		Token:    snap.Address,
		AmountIn: amountSOL,
	}
	g.attachTip(&intent)

	sig, err := g.submit(ctx, intent)
	if err != nil {
		g.failures.Add(1)
		log.Error().Err(err).
			Str("token", string(snap.Address)).
			Msg("execution: buy failed")
		return failed(err.Error())
	}

	g.buys.Add(1)
	log.Info().
		Str("token", string(snap.Address)).
		Str("venue", string(snap.Venue)).
		Str("tx", string(sig)).
		Str("amount_sol", amountSOL.String()).
		Msg("execution: buy submitted")

	return filled(sig, amountSOL, tokensOut, price)
}

// Sell swaps tokens back into SOL.
func (g *Gateway) Sell(ctx context.Context, token chain.Pubkey, venue chain.Venue, amountTokens decimal.Decimal) chain.TradeResult {
	if !amountTokens.IsPositive() {
		return failed("sell amount must be positive")
	}
	if venue == chain.VenueUnknown {
		return failed(fmt.Sprintf("no route for venue %q", venue))
	}

	price, err := g.rpc.GetPrice(ctx, token)
	if err != nil {
		g.failures.Add(1)
		return failed(fmt.Sprintf("price lookup: %v", err))
	}

	solOut := amountTokens.Mul(price)

	if g.config.DryRun {
		g.sells.Add(1)
		log.Info().
			Str("token", string(token)).
			Str("venue", string(venue)).
			Str("amount_tokens", amountTokens.String()).
			Str("price", price.String()).
			Msg("execution: simulated sell")
		return filled(simulatedSignature(), amountTokens, solOut, price)
	}

	intent := SwapIntent{
		Side:     SideSell,
		Venue:    venue,
		Token:    token,
		AmountIn: amountTokens,
	}
	g.attachTip(&intent)

	sig, err := g.submit(ctx, intent)
	if err != nil {
		g.failures.Add(1)
		log.Error().Err(err).
			Str("token", string(token)).
			Msg("execution: sell failed")
		return failed(err.Error())
	}

	g.sells.Add(1)
	log.Info().
		Str("token", string(token)).
		Str("venue", string(venue)).
		Str("tx", string(sig)).
		Msg("execution: sell submitted")

	return filled(sig, amountTokens, solOut, price)
}

// attachTip adds a priority tip for Solana venues. BSC swaps never carry
// one; tips go to eight rotating accounts to spread write locks.
func (g *Gateway) attachTip(intent *SwapIntent) {
	if !g.config.UseTips || intent.Venue.IsBSC() {
		return
	}
	intent.TipAccount = g.nextTipAccount()
	intent.TipSOL = g.config.TipSOL
	g.tipLamports.Add(g.config.TipSOL.Mul(decimal.NewFromInt(1_000_000_000)).IntPart())
}

// nextTipAccount returns the next tip account (round-robin).
func (g *Gateway) nextTipAccount() chain.Pubkey {
	idx := g.tipIdx.Add(1) - 1
	return tipAccounts[idx%uint32(len(tipAccounts))]
}

func (g *Gateway) submit(ctx context.Context, intent SwapIntent) (chain.Signature, error) {
	timeout := time.Duration(g.config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	submitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return g.wallet.SignAndSubmit(submitCtx, intent)
}

// entryPrice prefers the snapshot's observed price; a fresh pool may not
// have an indexed quote yet.
func (g *Gateway) entryPrice(ctx context.Context, snap chain.TokenSnapshot) (decimal.Decimal, error) {
	if snap.PriceUSD.IsPositive() {
		return snap.PriceUSD, nil
	}
	price, err := g.rpc.GetPrice(ctx, snap.Address)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("no quote for %s", snap.Address)
	}
	return price, nil
}

func filled(sig chain.Signature, in, out, price decimal.Decimal) chain.TradeResult {
	return chain.TradeResult{
		Success:   true,
		TxHash:    sig,
		AmountIn:  in,
		AmountOut: out,
		Price:     price,
		Timestamp: time.Now(),
	}
}

func failed(reason string) chain.TradeResult {
	return chain.TradeResult{
		Success:   false,
		Error:     reason,
		Timestamp: time.Now(),
	}
}

func simulatedSignature() chain.Signature {
	return chain.Signature("sim-" + uuid.NewString())
}

// Stats is a point-in-time snapshot of gateway counters.
type Stats struct {
	DryRun      bool   `json:"dry_run"`
	Buys        int64  `json:"buys"`
	Sells       int64  `json:"sells"`
	Failures    int64  `json:"failures"`
	TotalTipSOL string `json:"total_tip_sol"`
}

func (g *Gateway) Stats() Stats {
	tip := decimal.NewFromInt(g.tipLamports.Load()).Div(decimal.NewFromInt(1_000_000_000))
	return Stats{
		DryRun:      g.config.DryRun,
		Buys:        g.buys.Load(),
		Sells:       g.sells.Load(),
		Failures:    g.failures.Load(),
		TotalTipSOL: tip.String(),
	}
}
