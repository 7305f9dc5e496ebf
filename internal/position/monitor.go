package position

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Position Monitor — per-position polling loop with exit rules
// Exit precedence: take profit, then stop loss, then trailing stop
// ---------------------------------------------------------------------------

// Exit reasons.
const (
	ExitTakeProfit   = "Take Profit"
	ExitStopLoss     = "Stop Loss"
	ExitTrailingStop = "Trailing Stop"
	ExitForced       = "Forced Close"
)

// ExitRules define when an open position is closed.
type ExitRules struct {
	TakeProfitPct       float64 `yaml:"take_profit_pct"`       // default 300
	StopLossPct         float64 `yaml:"stop_loss_pct"`         // default 20
	TrailingStop        bool    `yaml:"trailing_stop"`         // default true
	TrailingDistancePct float64 `yaml:"trailing_distance_pct"` // default 20
}

// DefaultExitRules returns production defaults.
func DefaultExitRules() ExitRules {
	return ExitRules{
		TakeProfitPct:       300,
		StopLossPct:         20,
		TrailingStop:        true,
		TrailingDistancePct: 20,
	}
}

// Evaluate checks the exit rules against the current price. Take profit is
// checked first, then stop loss, then the trailing stop; the first rule to
// trigger wins. The trailing stop measures drawdown from the peak and fires
// whether or not the position is in profit.
func (r ExitRules) Evaluate(entry, peak, price decimal.Decimal) (string, bool) {
	if !entry.IsPositive() || !price.IsPositive() {
		return "", false
	}

	hundred := decimal.NewFromInt(100)
	pnlPct := price.Sub(entry).Div(entry).Mul(hundred)

	if pnlPct.GreaterThanOrEqual(decimal.NewFromFloat(r.TakeProfitPct)) {
		return ExitTakeProfit, true
	}
	if pnlPct.LessThanOrEqual(decimal.NewFromFloat(-r.StopLossPct)) {
		return ExitStopLoss, true
	}
	if r.TrailingStop && peak.IsPositive() {
		drawdownPct := peak.Sub(price).Div(peak).Mul(hundred)
		if drawdownPct.GreaterThanOrEqual(decimal.NewFromFloat(r.TrailingDistancePct)) {
			return ExitTrailingStop, true
		}
	}
	return "", false
}

// Position is one open holding under watch.
type Position struct {
	ID          string          `json:"id"`
	Token       chain.Pubkey    `json:"token"`
	Symbol      string          `json:"symbol"`
	Venue       chain.Venue     `json:"venue"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TokenAmount decimal.Decimal `json:"token_amount"`
	EntrySOL    decimal.Decimal `json:"entry_sol"`
	OpenedAt    time.Time       `json:"opened_at"`

	// Research context at entry, carried through to the outcome record.
	SafetyScore   int     `json:"safety_score"`
	Confidence    float64 `json:"confidence"`
	ViralityScore int     `json:"virality_score"`

	mu        sync.Mutex
	peakPrice decimal.Decimal
	lastPrice decimal.Decimal
	done      atomic.Bool
}

// NewPosition creates a position from a confirmed entry fill.
func NewPosition(snap chain.TokenSnapshot, fill chain.TradeResult) *Position {
	return &Position{
		ID:          uuid.NewString(),
		Token:       snap.Address,
		Symbol:      snap.Symbol,
		Venue:       snap.Venue,
		EntryPrice:  fill.Price,
		TokenAmount: fill.AmountOut,
		EntrySOL:    fill.AmountIn,
		OpenedAt:    fill.Timestamp,
		peakPrice:   fill.Price,
		lastPrice:   fill.Price,
	}
}

// observe records a price tick. The peak only ratchets upward.
func (p *Position) observe(price decimal.Decimal) (peak decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice = price
	if price.GreaterThan(p.peakPrice) {
		p.peakPrice = price
	}
	return p.peakPrice
}

// PeakPrice returns the highest price seen since entry.
func (p *Position) PeakPrice() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peakPrice
}

// LastPrice returns the most recent observed price.
func (p *Position) LastPrice() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPrice
}

// PnLPct returns the unrealized profit at the last observed price.
func (p *Position) PnLPct() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.EntryPrice.IsPositive() {
		return 0
	}
	return p.lastPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Closed is a finished position with its exit outcome.
type Closed struct {
	Position   *Position         `json:"position"`
	ExitPrice  decimal.Decimal   `json:"exit_price"`
	ExitReason string            `json:"exit_reason"`
	PnLPct     float64           `json:"pnl_pct"`
	HoldTime   time.Duration     `json:"hold_time"`
	ClosedAt   time.Time         `json:"closed_at"`
	Result     chain.TradeResult `json:"result"`
}

// Win reports whether the trade closed in profit.
func (c Closed) Win() bool {
	return c.PnLPct > 0
}

// SellFunc liquidates a position and returns the fill.
type SellFunc func(ctx context.Context, pos *Position) chain.TradeResult

// CloseFunc is invoked after a position is closed.
type CloseFunc func(closed Closed)

// MonitorConfig configures the polling loop.
type MonitorConfig struct {
	PollIntervalMs int       `yaml:"poll_interval_ms"` // default 5000
	Rules          ExitRules `yaml:"rules"`
}

// DefaultMonitorConfig returns production defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollIntervalMs: 5000,
		Rules:          DefaultExitRules(),
	}
}

// Monitor watches open positions, polling prices on a fixed interval and
// liquidating when an exit rule triggers.
type Monitor struct {
	config  MonitorConfig
	rpc     chain.RPCClient
	sell    SellFunc
	onClose CloseFunc

	mu   sync.Mutex
	open map[string]*Position
	wg   sync.WaitGroup
}

// NewMonitor creates a position monitor. onClose may be nil.
func NewMonitor(config MonitorConfig, rpc chain.RPCClient, sell SellFunc, onClose CloseFunc) *Monitor {
	return &Monitor{
		config:  config,
		rpc:     rpc,
		sell:    sell,
		onClose: onClose,
		open:    make(map[string]*Position),
	}
}

// SetRules swaps the exit rules for positions opened after the call.
func (m *Monitor) SetRules(rules ExitRules) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Rules = rules
}

func (m *Monitor) rules() ExitRules {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Rules
}

// Track starts watching a position. The watch goroutine exits when the
// position closes or ctx is cancelled; cancellation stops the loop within
// one poll interval without selling.
func (m *Monitor) Track(ctx context.Context, pos *Position) {
	m.mu.Lock()
	m.open[pos.ID] = pos
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watch(ctx, pos)

	log.Info().
		Str("position", pos.ID).
		Str("token", string(pos.Token)).
		Str("entry", pos.EntryPrice.String()).
		Msg("position: tracking")
}

// Wait blocks until every watch goroutine has stopped.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Open returns the currently tracked positions.
func (m *Monitor) Open() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, p)
	}
	return out
}

// OpenCount returns the number of tracked positions.
func (m *Monitor) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Monitor) watch(ctx context.Context, pos *Position) {
	defer m.wg.Done()

	interval := time.Duration(m.config.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("position", pos.ID).
				Msg("position: watch stopped, position left open")
			m.forget(pos.ID)
			return
		case <-ticker.C:
			price, err := m.rpc.GetPrice(ctx, pos.Token)
			if err != nil {
				log.Warn().Err(err).
					Str("position", pos.ID).
					Msg("position: price poll failed")
				continue
			}
			if !price.IsPositive() {
				continue
			}

			peak := pos.observe(price)
			reason, exit := m.rules().Evaluate(pos.EntryPrice, peak, price)
			if !exit {
				continue
			}

			m.close(ctx, pos, price, reason)
			return
		}
	}
}

// ForceClose liquidates a tracked position immediately, outside the exit
// rules. Used during shutdown and by the operator control surface.
func (m *Monitor) ForceClose(ctx context.Context, id string) bool {
	m.mu.Lock()
	pos, ok := m.open[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	price := pos.LastPrice()
	m.close(ctx, pos, price, ExitForced)
	return true
}

func (m *Monitor) close(ctx context.Context, pos *Position, price decimal.Decimal, reason string) {
	// A position closes exactly once even if the watch loop and a forced
	// close race.
	if !pos.done.CompareAndSwap(false, true) {
		return
	}
	m.forget(pos.ID)

	result := m.sell(ctx, pos)
	if !result.Success {
		log.Error().
			Str("position", pos.ID).
			Str("error", result.Error).
			Msg("position: exit sell failed")
	}

	pnl := 0.0
	if pos.EntryPrice.IsPositive() {
		pnl = price.Sub(pos.EntryPrice).Div(pos.EntryPrice).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	closed := Closed{
		Position:   pos,
		ExitPrice:  price,
		ExitReason: reason,
		PnLPct:     pnl,
		HoldTime:   time.Since(pos.OpenedAt),
		ClosedAt:   time.Now(),
		Result:     result,
	}

	log.Info().
		Str("position", pos.ID).
		Str("token", string(pos.Token)).
		Str("reason", reason).
		Float64("pnl_pct", pnl).
		Msg("position: closed")

	if m.onClose != nil {
		m.onClose(closed)
	}
}

func (m *Monitor) forget(id string) {
	m.mu.Lock()
	delete(m.open, id)
	m.mu.Unlock()
}
