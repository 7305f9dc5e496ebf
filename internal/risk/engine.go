package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Engine is the trading budget guard.
// SAFETY > PROFIT > SPEED
//
// Hardcoded minimums (not configurable, not disableable):
// - max_daily_loss: ALWAYS active
// - min_balance reserve: ALWAYS active
// - kill_switch: ALWAYS responsive, in-process
type Engine struct {
	config Config

	mu         sync.RWMutex
	day        time.Time
	dailyPnL   decimal.Decimal
	dailySpend decimal.Decimal

	// Kill switch, atomic for lock-free check.
	killed atomic.Bool
	frozen atomic.Bool

	allowed atomic.Int64
	denied  atomic.Int64
	freezes atomic.Int64

	now func() time.Time
}

// Config holds budget guard configuration. Amounts are SOL.
type Config struct {
	MaxDailyLossSOL  float64 `yaml:"max_daily_loss_sol"`  // default 1.0
	MaxDailySpendSOL float64 `yaml:"max_daily_spend_sol"` // default 2.0
	MinBalanceSOL    float64 `yaml:"min_balance_sol"`     // default 0.1
	MaxTradeSOL      float64 `yaml:"max_trade_sol"`       // default 0.5
}

// DefaultConfig returns conservative daily budgets.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossSOL:  1.0,
		MaxDailySpendSOL: 2.0,
		MinBalanceSOL:    0.1,
		MaxTradeSOL:      0.5,
	}
}

// Decision is the outcome of a pre-trade check.
type Decision struct {
	Allowed     bool     `json:"allowed"`
	ReasonCodes []string `json:"reason_codes,omitempty"`
	Timestamp   int64    `json:"ts"`
}

// New creates a budget guard.
func New(cfg Config) *Engine {
	e := &Engine{config: cfg, now: time.Now}
	e.day = startOfDay(e.now())
	return e
}

// Check evaluates a prospective buy against all budget policies. amountSOL
// is the planned spend, balanceSOL the wallet balance before the trade.
func (e *Engine) Check(amountSOL, balanceSOL decimal.Decimal) Decision {
	d := Decision{
		Allowed:   true,
		Timestamp: time.Now().UnixMicro(),
	}

	// Kill switch first, no lock needed.
	if e.killed.Load() {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes, "KILL_SWITCH_ACTIVE")
		return d
	}
	if e.frozen.Load() {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes, "SYSTEM_FROZEN")
		return d
	}

	e.mu.Lock()
	e.rolloverLocked()
	pnl := e.dailyPnL
	spend := e.dailySpend
	e.mu.Unlock()

	amount := amountSOL.InexactFloat64()

	// Daily loss limit (NOT DISABLEABLE).
	if pnl.InexactFloat64() < -e.config.MaxDailyLossSOL {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes,
			fmt.Sprintf("DAILY_LOSS_EXCEEDED:pnl=%.4f,limit=%.4f", pnl.InexactFloat64(), -e.config.MaxDailyLossSOL))
	}

	// Daily spend budget.
	if spend.InexactFloat64()+amount > e.config.MaxDailySpendSOL {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes,
			fmt.Sprintf("DAILY_BUDGET_EXCEEDED:spent=%.4f,order=%.4f,limit=%.4f",
				spend.InexactFloat64(), amount, e.config.MaxDailySpendSOL))
	}

	// Per-trade cap.
	if amount > e.config.MaxTradeSOL {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes,
			fmt.Sprintf("TRADE_TOO_LARGE:amount=%.4f,limit=%.4f", amount, e.config.MaxTradeSOL))
	}

	// Reserve balance (NOT DISABLEABLE).
	remaining := balanceSOL.Sub(amountSOL).InexactFloat64()
	if remaining < e.config.MinBalanceSOL {
		d.Allowed = false
		d.ReasonCodes = append(d.ReasonCodes,
			fmt.Sprintf("RESERVE_BREACH:remaining=%.4f,reserve=%.4f", remaining, e.config.MinBalanceSOL))
	}

	if d.Allowed {
		e.allowed.Add(1)
		log.Debug().Str("amount_sol", amountSOL.String()).Msg("risk: ALLOW")
	} else {
		e.denied.Add(1)
		log.Warn().Strs("reasons", d.ReasonCodes).Msg("risk: DENY")
	}

	return d
}

// RecordSpend adds an executed buy to today's budget.
func (e *Engine) RecordSpend(amountSOL decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rolloverLocked()
	e.dailySpend = e.dailySpend.Add(amountSOL)
}

// RecordPnL adds a realized result to today's PnL, auto-freezing when the
// daily loss limit is breached.
func (e *Engine) RecordPnL(pnlSOL decimal.Decimal) {
	e.mu.Lock()
	e.rolloverLocked()
	e.dailyPnL = e.dailyPnL.Add(pnlSOL)
	breach := e.dailyPnL.InexactFloat64() < -e.config.MaxDailyLossSOL
	pnl := e.dailyPnL
	e.mu.Unlock()

	if breach && !e.frozen.Load() {
		e.frozen.Store(true)
		e.freezes.Add(1)
		log.Error().
			Str("pnl_sol", pnl.String()).
			Float64("limit", -e.config.MaxDailyLossSOL).
			Msg("risk: AUTO-FREEZE, daily loss limit breached")
	}
}

// rolloverLocked resets daily counters at the UTC day boundary. Caller
// holds mu.
func (e *Engine) rolloverLocked() {
	today := startOfDay(e.now())
	if today.After(e.day) {
		e.day = today
		e.dailyPnL = decimal.Zero
		e.dailySpend = decimal.Zero
		log.Info().Msg("risk: daily counters reset")
	}
}

// Kill activates the kill switch. Requires a restart to clear.
func (e *Engine) Kill() {
	e.killed.Store(true)
	log.Error().Msg("risk: KILL SWITCH ACTIVATED, all trading stopped")
}

// Freeze halts new entries; open positions keep their exits.
func (e *Engine) Freeze(reason string) {
	e.frozen.Store(true)
	e.freezes.Add(1)
	log.Warn().Str("reason", reason).Msg("risk: system frozen")
}

// Resume unfreezes the system. A kill switch cannot be resumed.
func (e *Engine) Resume() {
	if e.killed.Load() {
		log.Warn().Msg("risk: cannot resume, kill switch is active")
		return
	}
	e.frozen.Store(false)
	log.Info().Msg("risk: system resumed")
}

// IsActive reports whether entries are currently permitted.
func (e *Engine) IsActive() bool {
	return !e.killed.Load() && !e.frozen.Load()
}

// Stats is a point-in-time snapshot of the guard state.
type Stats struct {
	DailyPnLSOL   string `json:"daily_pnl_sol"`
	DailySpendSOL string `json:"daily_spend_sol"`
	Killed        bool   `json:"killed"`
	Frozen        bool   `json:"frozen"`
	Allowed       int64  `json:"allowed_total"`
	Denied        int64  `json:"denied_total"`
	Freezes       int64  `json:"freezes_total"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		DailyPnLSOL:   e.dailyPnL.String(),
		DailySpendSOL: e.dailySpend.String(),
		Killed:        e.killed.Load(),
		Frozen:        e.frozen.Load(),
		Allowed:       e.allowed.Load(),
		Denied:        e.denied.Load(),
		Freezes:       e.freezes.Load(),
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
