package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------- Test helpers ----------

type telegramCapture struct {
	mu       sync.Mutex
	messages []map[string]string
	status   int
}

func (c *telegramCapture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.mu.Lock()
		c.messages = append(c.messages, body)
		c.mu.Unlock()
		if c.status != 0 {
			w.WriteHeader(c.status)
		}
	}
}

func (c *telegramCapture) last(t *testing.T) map[string]string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.messages)
	return c.messages[len(c.messages)-1]
}

func newTestNotifier(serverURL string) *Notifier {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.BotToken = "test-token"
	cfg.ChatID = "12345"
	cfg.BaseURL = serverURL
	return NewNotifier(cfg)
}

// ---------- Tests ----------

func TestBuyAlertDelivered(t *testing.T) {
	capture := &telegramCapture{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	n := newTestNotifier(server.URL)
	n.BuyExecuted(context.Background(),
		"TokenMint1111111111111111111111111111111111",
		decimal.NewFromFloat(0.05),
		chain.TradeResult{Success: true, TxHash: "abcdef1234567890xyz", Price: decimal.NewFromFloat(0.000001)})

	msg := capture.last(t)
	assert.Equal(t, "12345", msg["chat_id"])
	assert.Equal(t, "HTML", msg["parse_mode"])
	assert.Contains(t, msg["text"], "BUY EXECUTED")
	assert.Contains(t, msg["text"], "0.0500 SOL")
	assert.Contains(t, msg["text"], "TokenMint1111111...")

	sent, failed := n.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
}

func TestSellAlertShowsOutcome(t *testing.T) {
	capture := &telegramCapture{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	n := newTestNotifier(server.URL)

	n.SellExecuted(context.Background(), "TokenA", 150.5, "Take Profit",
		chain.TradeResult{Success: true, AmountOut: decimal.NewFromFloat(0.125)})
	assert.Contains(t, capture.last(t)["text"], "SELL EXECUTED - PROFIT")
	assert.Contains(t, capture.last(t)["text"], "+150.50%")
	assert.Contains(t, capture.last(t)["text"], "Take Profit")

	n.SellExecuted(context.Background(), "TokenA", -20, "Stop Loss",
		chain.TradeResult{Success: true, AmountOut: decimal.NewFromFloat(0.04)})
	assert.Contains(t, capture.last(t)["text"], "SELL EXECUTED - LOSS")
	assert.Contains(t, capture.last(t)["text"], "-20.00%")
}

func TestMissingCredentialsDisable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true // no token or chat id

	n := NewNotifier(cfg)
	assert.False(t, n.Enabled())

	// Sends become no-ops rather than panics.
	n.BuyExecuted(context.Background(), "TokenA", decimal.NewFromFloat(0.05), chain.TradeResult{})
	sent, _ := n.Stats()
	assert.Equal(t, int64(0), sent)
}

func TestAlertTypeToggles(t *testing.T) {
	capture := &telegramCapture{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.BotToken = "test-token"
	cfg.ChatID = "12345"
	cfg.BaseURL = server.URL
	cfg.AlertOnBuy = false
	n := NewNotifier(cfg)

	n.BuyExecuted(context.Background(), "TokenA", decimal.NewFromFloat(0.05), chain.TradeResult{})
	sent, _ := n.Stats()
	assert.Equal(t, int64(0), sent, "buy alerts toggled off")

	n.RugDetected(context.Background(), "TokenA", "contract blocks sells")
	sent, _ = n.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Contains(t, capture.last(t)["text"], "RUG DETECTED")
}

func TestAPIFailureCountedNotFatal(t *testing.T) {
	capture := &telegramCapture{status: http.StatusTooManyRequests}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	n := newTestNotifier(server.URL)
	n.Error(context.Background(), "rpc down", "price poll")

	sent, failed := n.Stats()
	assert.Equal(t, int64(0), sent)
	assert.Equal(t, int64(1), failed)
}

func TestSessionSummaryWinRate(t *testing.T) {
	capture := &telegramCapture{}
	server := httptest.NewServer(capture.handler())
	defer server.Close()

	n := newTestNotifier(server.URL)
	n.SendSummary(context.Background(), SessionSummary{
		Mode:         "PAPER",
		TotalTrades:  10,
		Wins:         6,
		Losses:       4,
		FinalBalance: decimal.NewFromFloat(11.2345),
	})

	text := capture.last(t)["text"]
	assert.Contains(t, text, "SESSION SUMMARY")
	assert.Contains(t, text, "Win Rate: 60.0%")
	assert.Contains(t, text, "11.2345 SOL")
}
