package trader

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/alerts"
	"github.com/hawkeye-trading/hawkeye/internal/chain"
	"github.com/hawkeye-trading/hawkeye/internal/dedup"
	"github.com/hawkeye-trading/hawkeye/internal/execution"
	"github.com/hawkeye-trading/hawkeye/internal/learner"
	"github.com/hawkeye-trading/hawkeye/internal/position"
	"github.com/hawkeye-trading/hawkeye/internal/predict"
	"github.com/hawkeye-trading/hawkeye/internal/risk"
	"github.com/hawkeye-trading/hawkeye/internal/safety"
)

// ---------------------------------------------------------------------------
// Trade Controller — launch feed in, closed positions out
// ---------------------------------------------------------------------------

// Config configures the trade controller.
type Config struct {
	// AmountSOL is the buy size per token.
	AmountSOL float64 `yaml:"amount_sol"`

	// InitialBalanceSOL seeds the session balance for dry runs.
	InitialBalanceSOL float64 `yaml:"initial_balance_sol"`

	// MaxOpenPositions caps concurrent positions.
	MaxOpenPositions int `yaml:"max_open_positions"`

	Monitor position.MonitorConfig `yaml:"monitor"`
}

// DefaultConfig returns single-position dry-run defaults.
func DefaultConfig() Config {
	return Config{
		AmountSOL:         0.05,
		InitialBalanceSOL: 10.0,
		MaxOpenPositions:  1,
		Monitor:           position.DefaultMonitorConfig(),
	}
}

// OutcomeSink receives closed-trade outcomes, e.g. the ClickHouse writer.
type OutcomeSink interface {
	Write(o learner.Outcome) error
}

// Deps are the components the controller wires together.
type Deps struct {
	RPC      chain.RPCClient
	Seen     dedup.SeenStore
	Filter   *safety.Filter
	Entry    *predict.EntryPredictor
	Cascade  *predict.CascadeSentinel
	Gateway  *execution.Gateway
	Risk     *risk.Engine
	Learner  *learner.Learner
	Notifier *alerts.Notifier
	Outcomes OutcomeSink // optional
}

// Controller runs the token pipeline: dedup, safety, prediction, risk,
// execution, then hands the position to the monitor. Closed positions
// feed the learner, which in turn retunes the entry gates.
type Controller struct {
	config  Config
	deps    Deps
	monitor *position.Monitor
	slots   *position.Slots

	mu         sync.Mutex
	balanceSOL decimal.Decimal

	// minSafety is the learner-adjusted gate on the filter's 0-100 score.
	// Stored as an integer percent for atomic access from the hot path.
	minSafety atomic.Int64

	// Stats.
	seenTokens   atomic.Int64
	duplicates   atomic.Int64
	unsafeSkips  atomic.Int64
	entrySkips   atomic.Int64
	cascadeSkips atomic.Int64
	riskBlocks   atomic.Int64
	slotBlocks   atomic.Int64
	buyFailures  atomic.Int64
	buys         atomic.Int64
	wins         atomic.Int64
	losses       atomic.Int64
}

// New creates a controller and its position monitor.
func New(config Config, deps Deps) *Controller {
	if config.MaxOpenPositions < 1 {
		config.MaxOpenPositions = 1
	}

	c := &Controller{
		config:     config,
		deps:       deps,
		slots:      position.NewSlots(config.MaxOpenPositions),
		balanceSOL: decimal.NewFromFloat(config.InitialBalanceSOL),
	}
	c.monitor = position.NewMonitor(config.Monitor, deps.RPC, c.sell, c.onClose)
	c.applyThresholds()
	return c
}

// Monitor exposes the position monitor for shutdown and HTTP handlers.
func (c *Controller) Monitor() *position.Monitor {
	return c.monitor
}

// Balance returns the session SOL balance.
func (c *Controller) Balance() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceSOL
}

// Run consumes launch events until the context is cancelled or the
// channel closes. Each event runs the full pipeline inline; launches
// arriving while a buy is in flight wait their turn, which also
// serializes balance updates.
func (c *Controller) Run(ctx context.Context, launches <-chan chain.TokenSnapshot) {
	log.Info().
		Float64("amount_sol", c.config.AmountSOL).
		Int("max_positions", c.config.MaxOpenPositions).
		Bool("dry_run", c.deps.Gateway.DryRun()).
		Msg("controller: pipeline started")

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-launches:
			if !ok {
				return
			}
			c.handleLaunch(ctx, snap)
		}
	}
}

// handleLaunch runs one token through every gate in order. The cheap
// gates come first so oracle calls are only paid for novel tokens.
func (c *Controller) handleLaunch(ctx context.Context, snap chain.TokenSnapshot) {
	c.seenTokens.Add(1)

	first, err := c.deps.Seen.MarkSeen(ctx, snap.Address)
	if err != nil {
		log.Warn().Err(err).Str("mint", string(snap.Address)).
			Msg("controller: seen store unavailable, proceeding")
	} else if !first {
		c.duplicates.Add(1)
		return
	}

	report := c.deps.Filter.Analyze(ctx, snap)
	minSafety := int(c.minSafety.Load())
	if !report.Safe || report.OverallScore < minSafety {
		c.unsafeSkips.Add(1)
		reasons := report.FailureReasons()
		log.Info().
			Str("mint", string(snap.Address)).
			Int("score", report.OverallScore).
			Int("min", minSafety).
			Strs("reasons", reasons).
			Msg("controller: safety gate rejected token")
		if c.rugLayerFailed(report) {
			c.deps.Notifier.RugDetected(ctx, snap.Address, strings.Join(reasons, "; "))
		}
		return
	}

	pred := c.deps.Entry.Predict(snap)
	if !c.deps.Entry.Approves(pred) {
		c.entrySkips.Add(1)
		log.Info().
			Str("mint", string(snap.Address)).
			Float64("confidence", pred.Confidence).
			Str("recommendation", pred.Recommendation).
			Msg("controller: entry predictor rejected token")
		return
	}

	virality := c.deps.Cascade.Predict(snap)
	if !c.deps.Cascade.Approves(virality) {
		c.cascadeSkips.Add(1)
		log.Info().
			Str("mint", string(snap.Address)).
			Int("virality", virality.Score).
			Msg("controller: cascade sentinel rejected token")
		return
	}

	amount := decimal.NewFromFloat(c.config.AmountSOL)
	decision := c.deps.Risk.Check(amount, c.Balance())
	if !decision.Allowed {
		c.riskBlocks.Add(1)
		log.Warn().
			Str("mint", string(snap.Address)).
			Strs("reasons", decision.ReasonCodes).
			Msg("controller: risk engine blocked buy")
		return
	}

	if !c.slots.TryAcquire() {
		c.slotBlocks.Add(1)
		log.Info().
			Str("mint", string(snap.Address)).
			Int("open", c.monitor.OpenCount()).
			Msg("controller: position slots full, skipping")
		return
	}

	result := c.deps.Gateway.Buy(ctx, snap, amount)
	if !result.Success {
		c.slots.Release()
		c.buyFailures.Add(1)
		log.Error().
			Str("mint", string(snap.Address)).
			Str("error", result.Error).
			Msg("controller: buy failed")
		c.deps.Notifier.Error(ctx, "buy failed", result.Error)
		return
	}

	c.deps.Risk.RecordSpend(result.AmountIn)
	c.adjustBalance(result.AmountIn.Neg())
	c.buys.Add(1)
	c.deps.Notifier.BuyExecuted(ctx, snap.Address, result.AmountIn, result)

	pos := position.NewPosition(snap, result)
	pos.SafetyScore = report.OverallScore
	pos.Confidence = pred.Confidence
	pos.ViralityScore = virality.Score

	log.Info().
		Str("position", pos.ID).
		Str("mint", string(snap.Address)).
		Str("symbol", snap.Symbol).
		Int("safety", pos.SafetyScore).
		Float64("confidence", pos.Confidence).
		Int("virality", pos.ViralityScore).
		Str("entry_price", pos.EntryPrice.String()).
		Msg("controller: position opened")

	c.monitor.Track(ctx, pos)
}

// sell is the monitor's liquidation callback.
func (c *Controller) sell(ctx context.Context, pos *position.Position) chain.TradeResult {
	return c.deps.Gateway.Sell(ctx, pos.Token, pos.Venue, pos.TokenAmount)
}

// onClose feeds a closed position back into the learning loop.
func (c *Controller) onClose(closed position.Closed) {
	ctx := context.Background()
	pos := closed.Position

	if closed.Result.Success {
		c.adjustBalance(closed.Result.AmountOut)
	}

	pnlSOL := pos.EntrySOL.Mul(decimal.NewFromFloat(closed.PnLPct / 100))
	c.deps.Risk.RecordPnL(pnlSOL)

	if closed.PnLPct > 0 {
		c.wins.Add(1)
	} else {
		c.losses.Add(1)
	}

	entryPrice, _ := pos.EntryPrice.Float64()
	exitPrice, _ := closed.ExitPrice.Float64()
	outcome := learner.Outcome{
		Timestamp:       closed.ClosedAt,
		Token:           pos.Token,
		EntryPrice:      entryPrice,
		ExitPrice:       exitPrice,
		PnLPct:          closed.PnLPct,
		SafetyScore:     float64(pos.SafetyScore),
		Confidence:      pos.Confidence,
		ViralityScore:   float64(pos.ViralityScore),
		HoldTimeMinutes: closed.HoldTime.Minutes(),
		ExitReason:      closed.ExitReason,
	}
	c.deps.Learner.Record(outcome)

	if c.deps.Outcomes != nil {
		if err := c.deps.Outcomes.Write(outcome); err != nil {
			log.Warn().Err(err).Msg("controller: outcome sink write failed")
		}
	}

	c.deps.Notifier.SellExecuted(ctx, pos.Token, closed.PnLPct, closed.ExitReason, closed.Result)
	c.slots.Release()
	c.applyThresholds()

	log.Info().
		Str("position", pos.ID).
		Str("mint", string(pos.Token)).
		Str("reason", closed.ExitReason).
		Float64("pnl_pct", closed.PnLPct).
		Str("hold", closed.HoldTime.String()).
		Str("balance_sol", c.Balance().String()).
		Msg("controller: position closed")
}

// applyThresholds pushes the learner's current recommendation into
// every gate.
func (c *Controller) applyThresholds() {
	th := c.deps.Learner.RecommendThresholds()
	c.minSafety.Store(int64(th.SafetyScore))
	c.deps.Entry.SetMinConfidence(th.Confidence)
	c.deps.Cascade.SetMinVirality(int(th.ViralityScore))

	if th.Source == learner.SourceLearned {
		log.Info().
			Float64("safety", th.SafetyScore).
			Float64("confidence", th.Confidence).
			Float64("virality", th.ViralityScore).
			Int("based_on", th.BasedOnTrades).
			Float64("win_rate", th.WinRate).
			Msg("controller: applied learned thresholds")
	}
}

func (c *Controller) rugLayerFailed(report safety.Report) bool {
	for _, l := range report.Layers {
		if l.Layer == safety.LayerRugRisk && !l.Passed {
			return true
		}
	}
	return false
}

func (c *Controller) adjustBalance(delta decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceSOL = c.balanceSOL.Add(delta)
}

// Summary builds the end-of-session report for the alert channel.
func (c *Controller) Summary(mode string) alerts.SessionSummary {
	return alerts.SessionSummary{
		Mode:         mode,
		TotalTrades:  int(c.wins.Load() + c.losses.Load()),
		Wins:         int(c.wins.Load()),
		Losses:       int(c.losses.Load()),
		FinalBalance: c.Balance(),
	}
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	TokensSeen    int64  `json:"tokens_seen"`
	Duplicates    int64  `json:"duplicates"`
	UnsafeSkips   int64  `json:"unsafe_skips"`
	EntrySkips    int64  `json:"entry_skips"`
	CascadeSkips  int64  `json:"cascade_skips"`
	RiskBlocks    int64  `json:"risk_blocks"`
	SlotBlocks    int64  `json:"slot_blocks"`
	BuyFailures   int64  `json:"buy_failures"`
	Buys          int64  `json:"buys"`
	Wins          int64  `json:"wins"`
	Losses        int64  `json:"losses"`
	OpenPositions int    `json:"open_positions"`
	BalanceSOL    string `json:"balance_sol"`
	MinSafety     int64  `json:"min_safety"`
}

func (c *Controller) Stats() Stats {
	return Stats{
		TokensSeen:    c.seenTokens.Load(),
		Duplicates:    c.duplicates.Load(),
		UnsafeSkips:   c.unsafeSkips.Load(),
		EntrySkips:    c.entrySkips.Load(),
		CascadeSkips:  c.cascadeSkips.Load(),
		RiskBlocks:    c.riskBlocks.Load(),
		SlotBlocks:    c.slotBlocks.Load(),
		BuyFailures:   c.buyFailures.Load(),
		Buys:          c.buys.Load(),
		Wins:          c.wins.Load(),
		Losses:        c.losses.Load(),
		OpenPositions: c.monitor.OpenCount(),
		BalanceSOL:    c.Balance().String(),
		MinSafety:     c.minSafety.Load(),
	}
}
