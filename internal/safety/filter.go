package safety

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Safety Filter — five-layer token vetting before any buy decision
// Layers: rug risk, liquidity floor, holder distribution, age, honeypot
// ---------------------------------------------------------------------------

// totalLayers is fixed: every report carries exactly five layer results so
// the overall score is always passed/5 * 100.
const totalLayers = 5

// Layer codes, in evaluation order.
const (
	LayerRugRisk   = "rug_risk"
	LayerLiquidity = "liquidity"
	LayerHolders   = "holders"
	LayerAge       = "age"
	LayerHoneypot  = "honeypot"
)

// Config configures the safety filter.
type Config struct {
	// Minimum overall score (0-100) for a token to be considered safe.
	Threshold int `yaml:"threshold"`

	// Minimum rug-risk oracle score (0-10, higher is safer).
	MinRugScore float64 `yaml:"min_rug_score"`

	// Liquidity floor in USD.
	MinLiquidityUSD float64 `yaml:"min_liquidity_usd"`

	// Holder distribution bounds.
	MinHolders      int     `yaml:"min_holders"`
	MaxTopHolderPct float64 `yaml:"max_top_holder_pct"`

	// Maximum token age at detection.
	MaxTokenAgeMinutes float64 `yaml:"max_token_age_minutes"`

	// SOL reference price for pools reporting only SOL reserves.
	SOLPriceUSD float64 `yaml:"sol_price_usd"`
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:          70,
		MinRugScore:        7,
		MinLiquidityUSD:    5000,
		MinHolders:         50,
		MaxTopHolderPct:    60,
		MaxTokenAgeMinutes: 5,
		SOLPriceUSD:        150,
	}
}

// LayerResult is the outcome of one safety layer.
type LayerResult struct {
	Layer  string `json:"layer"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Report is the full safety verdict for a token. It always contains exactly
// five layer results; OverallScore is Passed/5 scaled to 0-100.
type Report struct {
	Token        chain.Pubkey  `json:"token"`
	Layers       []LayerResult `json:"layers"`
	Passed       int           `json:"passed"`
	OverallScore int           `json:"overall_score"`
	Safe         bool          `json:"safe"`
	CheckedAt    time.Time     `json:"checked_at"`
	LatencyMs    int64         `json:"latency_ms"`
}

// FailureReasons returns the reasons of all failed layers.
func (r Report) FailureReasons() []string {
	var out []string
	for _, l := range r.Layers {
		if !l.Passed && l.Reason != "" {
			out = append(out, l.Reason)
		}
	}
	return out
}

// rugScorer and honeypotChecker are the oracle dependencies, narrowed to
// what the filter needs so tests can substitute them.
type rugScorer interface {
	Score(ctx context.Context, mint chain.Pubkey) (float64, error)
}

type honeypotChecker interface {
	IsHoneypot(ctx context.Context, address chain.Pubkey) (bool, error)
}

// Filter runs the five safety layers against a token snapshot.
type Filter struct {
	config   Config
	rugRisk  rugScorer
	honeypot honeypotChecker
}

// NewFilter creates a safety filter with the given oracles. Either oracle
// may be nil; its layer then runs in degraded (fail-open) mode.
func NewFilter(config Config, rugRisk rugScorer, honeypot honeypotChecker) *Filter {
	return &Filter{
		config:   config,
		rugRisk:  rugRisk,
		honeypot: honeypot,
	}
}

// SetThresholds applies updated gate values without touching oracle wiring.
// Zero values leave the corresponding threshold unchanged.
func (f *Filter) SetThresholds(minLiquidityUSD float64, minHolders int, maxTopHolderPct float64) {
	if minLiquidityUSD > 0 {
		f.config.MinLiquidityUSD = minLiquidityUSD
	}
	if minHolders > 0 {
		f.config.MinHolders = minHolders
	}
	if maxTopHolderPct > 0 {
		f.config.MaxTopHolderPct = maxTopHolderPct
	}
}

// Analyze runs all five layers and produces a Report. It never returns an
// error: oracle failures degrade individual layers per their policy.
func (f *Filter) Analyze(ctx context.Context, snap chain.TokenSnapshot) Report {
	start := time.Now()

	report := Report{
		Token:     snap.Address,
		Layers:    make([]LayerResult, 0, totalLayers),
		CheckedAt: start,
	}

	report.Layers = append(report.Layers, f.checkRugRisk(ctx, snap))
	report.Layers = append(report.Layers, f.checkLiquidity(snap))
	report.Layers = append(report.Layers, f.checkHolders(snap))
	report.Layers = append(report.Layers, f.checkAge(snap))
	report.Layers = append(report.Layers, f.checkHoneypot(ctx, snap))

	for _, l := range report.Layers {
		if l.Passed {
			report.Passed++
		}
	}

	report.OverallScore = report.Passed * 100 / totalLayers
	report.Safe = report.OverallScore >= f.config.Threshold
	report.LatencyMs = time.Since(start).Milliseconds()

	log.Info().
		Str("token", string(snap.Address)).
		Int("passed", report.Passed).
		Int("score", report.OverallScore).
		Bool("safe", report.Safe).
		Strs("failures", report.FailureReasons()).
		Int64("latency_ms", report.LatencyMs).
		Msg("safety: analysis complete")

	return report
}

// checkRugRisk queries the external risk oracle. Oracle failure is
// fail-open: the token gets a neutral score equal to the minimum so the
// layer passes, since blocking every token on a third-party outage would
// halt the pipeline.
func (f *Filter) checkRugRisk(ctx context.Context, snap chain.TokenSnapshot) LayerResult {
	score := f.config.MinRugScore
	if f.rugRisk != nil {
		oracleCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
		defer cancel()

		s, err := f.rugRisk.Score(oracleCtx, snap.Address)
		if err != nil {
			log.Warn().Err(err).Str("token", string(snap.Address)).
				Msg("safety: rug-risk oracle unavailable, assuming neutral")
		} else {
			score = s
		}
	}

	if score < f.config.MinRugScore {
		return LayerResult{
			Layer:  LayerRugRisk,
			Reason: fmt.Sprintf("risk score %.1f below minimum %.1f", score, f.config.MinRugScore),
		}
	}
	return LayerResult{Layer: LayerRugRisk, Passed: true}
}

// checkLiquidity enforces the liquidity floor. Missing liquidity data is
// fail-closed: a pool we cannot size is a pool we do not enter.
func (f *Filter) checkLiquidity(snap chain.TokenSnapshot) LayerResult {
	liq := snap.EffectiveLiquidityUSD(decimal.NewFromFloat(f.config.SOLPriceUSD))

	if !liq.IsPositive() {
		return LayerResult{
			Layer:  LayerLiquidity,
			Reason: "liquidity unknown",
		}
	}

	floor := decimal.NewFromFloat(f.config.MinLiquidityUSD)
	if liq.LessThan(floor) {
		return LayerResult{
			Layer:  LayerLiquidity,
			Reason: fmt.Sprintf("liquidity $%s below floor $%s", liq.StringFixed(0), floor.StringFixed(0)),
		}
	}
	return LayerResult{Layer: LayerLiquidity, Passed: true}
}

// checkHolders enforces both distribution bounds. Both violations are
// reported together when present.
func (f *Filter) checkHolders(snap chain.TokenSnapshot) LayerResult {
	var reasons []string

	if snap.HolderCount < f.config.MinHolders {
		reasons = append(reasons,
			fmt.Sprintf("%d holders below minimum %d", snap.HolderCount, f.config.MinHolders))
	}
	if snap.TopHolderPct > f.config.MaxTopHolderPct {
		reasons = append(reasons,
			fmt.Sprintf("top holder %.1f%% above maximum %.1f%%", snap.TopHolderPct, f.config.MaxTopHolderPct))
	}

	if len(reasons) > 0 {
		return LayerResult{
			Layer:  LayerHolders,
			Reason: strings.Join(reasons, "; "),
		}
	}
	return LayerResult{Layer: LayerHolders, Passed: true}
}

// checkAge rejects tokens older than the freshness window. An unknown
// creation time is fail-open: the detection path only surfaces tokens it
// just saw launch, so missing metadata means fresh, not stale.
func (f *Filter) checkAge(snap chain.TokenSnapshot) LayerResult {
	if snap.CreatedAt.IsZero() {
		return LayerResult{Layer: LayerAge, Passed: true}
	}

	age := snap.AgeMinutes()
	if age > f.config.MaxTokenAgeMinutes {
		return LayerResult{
			Layer:  LayerAge,
			Reason: fmt.Sprintf("token %.1f min old, maximum %.1f min", age, f.config.MaxTokenAgeMinutes),
		}
	}
	return LayerResult{Layer: LayerAge, Passed: true}
}

// checkHoneypot runs the honeypot simulation for BSC venues only; Solana
// venues pass automatically since the simulator covers EVM contracts.
// Oracle failure is fail-open.
func (f *Filter) checkHoneypot(ctx context.Context, snap chain.TokenSnapshot) LayerResult {
	if !snap.Venue.IsBSC() {
		return LayerResult{Layer: LayerHoneypot, Passed: true}
	}
	if f.honeypot == nil {
		return LayerResult{Layer: LayerHoneypot, Passed: true}
	}

	oracleCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()

	isHoneypot, err := f.honeypot.IsHoneypot(oracleCtx, snap.Address)
	if err != nil {
		log.Warn().Err(err).Str("token", string(snap.Address)).
			Msg("safety: honeypot oracle unavailable, skipping layer")
		return LayerResult{Layer: LayerHoneypot, Passed: true}
	}

	if isHoneypot {
		return LayerResult{
			Layer:  LayerHoneypot,
			Reason: "contract blocks sells",
		}
	}
	return LayerResult{Layer: LayerHoneypot, Passed: true}
}
