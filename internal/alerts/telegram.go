package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Telegram Notifier — operator alerts over the Bot API
// ---------------------------------------------------------------------------

const defaultTelegramAPI = "https://api.telegram.org"

// Config configures Telegram alerts. BotToken and ChatID usually come from
// the environment via the config loader.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	AlertOnBuy   bool `yaml:"alert_on_buy"`
	AlertOnSell  bool `yaml:"alert_on_sell"`
	AlertOnRug   bool `yaml:"alert_on_rug"`
	AlertOnError bool `yaml:"alert_on_error"`

	// BaseURL overrides the Bot API endpoint, for tests.
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// DefaultConfig returns alerts disabled with all alert types on once
// credentials are provided.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		AlertOnBuy:   true,
		AlertOnSell:  true,
		AlertOnRug:   true,
		AlertOnError: true,
		BaseURL:      defaultTelegramAPI,
		TimeoutMs:    10000,
	}
}

// Notifier sends alerts to a Telegram chat. Sends are best-effort: a
// failed delivery is logged and counted, never surfaced to the pipeline.
type Notifier struct {
	config     Config
	httpClient *http.Client

	sent   atomic.Int64
	failed atomic.Int64
}

// NewNotifier creates a notifier. Alerts are disabled when credentials are
// missing regardless of the enabled flag.
func NewNotifier(config Config) *Notifier {
	if config.Enabled && (config.BotToken == "" || config.ChatID == "") {
		log.Warn().Msg("alerts: telegram enabled but credentials missing, disabling")
		config.Enabled = false
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultTelegramAPI
	}

	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	if config.Enabled {
		log.Info().Msg("alerts: telegram enabled")
	}

	return &Notifier{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether alerts will be delivered.
func (n *Notifier) Enabled() bool {
	return n.config.Enabled
}

// BuyExecuted announces an entry fill.
func (n *Notifier) BuyExecuted(ctx context.Context, token chain.Pubkey, amountSOL decimal.Decimal, result chain.TradeResult) {
	if !n.config.Enabled || !n.config.AlertOnBuy {
		return
	}
	msg := fmt.Sprintf(
		"<b>BUY EXECUTED</b>\n\nAmount: %s SOL\nToken: <code>%s</code>\nPrice: $%s\nTX: <code>%s</code>\n\n%s",
		amountSOL.StringFixed(4), shortKey(token), result.Price.String(),
		shortSig(result.TxHash), utcNow())
	n.send(ctx, msg)
}

// SellExecuted announces an exit fill with its outcome.
func (n *Notifier) SellExecuted(ctx context.Context, token chain.Pubkey, pnlPct float64, reason string, result chain.TradeResult) {
	if !n.config.Enabled || !n.config.AlertOnSell {
		return
	}
	status := "PROFIT"
	if pnlPct <= 0 {
		status = "LOSS"
	}
	msg := fmt.Sprintf(
		"<b>SELL EXECUTED - %s</b>\n\nPnL: %+.2f%%\nReceived: %s SOL\nToken: <code>%s</code>\nTX: <code>%s</code>\nReason: %s\n\n%s",
		status, pnlPct, result.AmountOut.StringFixed(4), shortKey(token),
		shortSig(result.TxHash), reason, utcNow())
	n.send(ctx, msg)
}

// TokenDetected announces a launch that cleared the safety gate.
func (n *Notifier) TokenDetected(ctx context.Context, token chain.Pubkey, score, passed, total int) {
	if !n.config.Enabled {
		return
	}
	msg := fmt.Sprintf(
		"<b>NEW TOKEN DETECTED</b>\n\nToken: <code>%s</code>\nSafety: %d/100 (%d/%d checks)\n\n%s",
		shortKey(token), score, passed, total, utcNow())
	n.send(ctx, msg)
}

// RugDetected warns about a token flagged as dangerous.
func (n *Notifier) RugDetected(ctx context.Context, token chain.Pubkey, reason string) {
	if !n.config.Enabled || !n.config.AlertOnRug {
		return
	}
	msg := fmt.Sprintf(
		"<b>RUG DETECTED</b>\n\nToken: <code>%s</code>\nReason: %s\n\n%s",
		shortKey(token), reason, utcNow())
	n.send(ctx, msg)
}

// Error reports a pipeline fault.
func (n *Notifier) Error(ctx context.Context, errMsg, detail string) {
	if !n.config.Enabled || !n.config.AlertOnError {
		return
	}
	msg := fmt.Sprintf("<b>BOT ERROR</b>\n\nError: %s", errMsg)
	if detail != "" {
		msg += "\nContext: " + detail
	}
	msg += "\n\n" + utcNow()
	n.send(ctx, msg)
}

// SessionSummary reports end-of-session results.
type SessionSummary struct {
	Mode         string
	TotalTrades  int
	Wins         int
	Losses       int
	FinalBalance decimal.Decimal
}

// SendSummary delivers the session summary.
func (n *Notifier) SendSummary(ctx context.Context, s SessionSummary) {
	if !n.config.Enabled {
		return
	}
	winRate := 0.0
	if s.Wins+s.Losses > 0 {
		winRate = float64(s.Wins) / float64(s.Wins+s.Losses) * 100
	}
	msg := fmt.Sprintf(
		"<b>SESSION SUMMARY</b>\n\nMode: %s\nTotal Trades: %d\nWins: %d\nLosses: %d\nWin Rate: %.1f%%\nFinal Balance: %s SOL\n\n%s",
		s.Mode, s.TotalTrades, s.Wins, s.Losses, winRate,
		s.FinalBalance.StringFixed(4), utcNow())
	n.send(ctx, msg)
}

func (n *Notifier) send(ctx context.Context, text string) {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.config.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		n.failed.Add(1)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.config.BaseURL, n.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		n.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.failed.Add(1)
		log.Debug().Err(err).Msg("alerts: telegram send failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.failed.Add(1)
		log.Debug().Int("status", resp.StatusCode).Msg("alerts: telegram API error")
		return
	}

	n.sent.Add(1)
}

// Stats returns sent/failed counters.
func (n *Notifier) Stats() (sent, failed int64) {
	return n.sent.Load(), n.failed.Load()
}

func shortKey(k chain.Pubkey) string {
	if len(k) <= 16 {
		return string(k)
	}
	return string(k[:16]) + "..."
}

func shortSig(s chain.Signature) string {
	if len(s) <= 16 {
		return string(s)
	}
	return string(s[:16]) + "..."
}

func utcNow() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05") + " UTC"
}
