package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestConfig() Config {
	return Config{
		MaxDailyLossSOL:  1.0,
		MaxDailySpendSOL: 2.0,
		MinBalanceSOL:    0.1,
		MaxTradeSOL:      0.5,
	}
}

func sol(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func hasReason(codes []string, prefix string) bool {
	for _, c := range codes {
		if strings.Contains(c, prefix) {
			return true
		}
	}
	return false
}

func TestCheckAllowsNormalTrade(t *testing.T) {
	e := New(defaultTestConfig())

	d := e.Check(sol(0.05), sol(10))
	assert.True(t, d.Allowed)
	assert.Empty(t, d.ReasonCodes)
}

func TestCheckDenyDailyBudget(t *testing.T) {
	e := New(defaultTestConfig())
	e.RecordSpend(sol(1.9))

	d := e.Check(sol(0.2), sol(10))
	assert.False(t, d.Allowed)
	assert.True(t, hasReason(d.ReasonCodes, "DAILY_BUDGET_EXCEEDED"))
}

func TestCheckDenyDailyLoss(t *testing.T) {
	e := New(defaultTestConfig())
	e.RecordPnL(sol(-1.5)) // also auto-freezes

	d := e.Check(sol(0.05), sol(10))
	assert.False(t, d.Allowed)
	// The freeze gate fires before the per-policy checks.
	assert.True(t, hasReason(d.ReasonCodes, "SYSTEM_FROZEN"))

	// After an operator resume the loss limit itself still denies.
	e.Resume()
	d = e.Check(sol(0.05), sol(10))
	assert.False(t, d.Allowed)
	assert.True(t, hasReason(d.ReasonCodes, "DAILY_LOSS_EXCEEDED"))
}

func TestCheckDenyTradeTooLarge(t *testing.T) {
	e := New(defaultTestConfig())

	d := e.Check(sol(0.75), sol(10))
	assert.False(t, d.Allowed)
	assert.True(t, hasReason(d.ReasonCodes, "TRADE_TOO_LARGE"))
}

func TestCheckDenyReserveBreach(t *testing.T) {
	e := New(defaultTestConfig())

	d := e.Check(sol(0.05), sol(0.12))
	assert.False(t, d.Allowed)
	assert.True(t, hasReason(d.ReasonCodes, "RESERVE_BREACH"))
}

func TestKillSwitchBlocksAll(t *testing.T) {
	e := New(defaultTestConfig())
	e.Kill()

	d := e.Check(sol(0.05), sol(10))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.ReasonCodes[0], "KILL_SWITCH_ACTIVE")
}

func TestFreezeBlocksAndResumes(t *testing.T) {
	e := New(defaultTestConfig())
	e.Freeze("operator pause")

	d := e.Check(sol(0.05), sol(10))
	assert.False(t, d.Allowed)

	e.Resume()
	d = e.Check(sol(0.05), sol(10))
	assert.True(t, d.Allowed)
}

func TestKillSwitchCannotResume(t *testing.T) {
	e := New(defaultTestConfig())
	e.Kill()
	e.Resume()

	assert.False(t, e.IsActive())
}

func TestAutoFreezeOnDailyLoss(t *testing.T) {
	e := New(defaultTestConfig())
	e.RecordPnL(sol(-1.5))

	assert.True(t, e.frozen.Load())
	assert.Equal(t, int64(1), e.freezes.Load())
}

func TestDailyRollover(t *testing.T) {
	e := New(defaultTestConfig())

	now := time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	e.mu.Lock()
	e.day = startOfDay(now)
	e.mu.Unlock()

	e.RecordSpend(sol(1.9))
	d := e.Check(sol(0.2), sol(10))
	require.False(t, d.Allowed)

	// Past midnight the budget resets.
	now = now.Add(2 * time.Hour)
	d = e.Check(sol(0.2), sol(10))
	assert.True(t, d.Allowed, "reasons: %v", d.ReasonCodes)

	stats := e.Stats()
	assert.Equal(t, "0", stats.DailySpendSOL)
}
