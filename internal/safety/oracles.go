package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// External risk oracles — rug-risk score and honeypot flag over HTTP
// ---------------------------------------------------------------------------

const (
	defaultRugRiskURL  = "https://api.rugcheck.xyz/v1"
	defaultHoneypotURL = "https://api.honeypot.is/v2/IsHoneypot"

	oracleTimeout = 5 * time.Second
)

// RugRiskConfig configures the rug-risk oracle client.
type RugRiskConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// DefaultRugRiskConfig returns production defaults.
func DefaultRugRiskConfig() RugRiskConfig {
	return RugRiskConfig{
		BaseURL:   defaultRugRiskURL,
		TimeoutMs: int(oracleTimeout / time.Millisecond),
	}
}

// RugRiskClient fetches a third-party rug-risk score for a mint.
type RugRiskClient struct {
	config     RugRiskConfig
	httpClient *http.Client

	// Stats.
	requests atomic.Int64
	failures atomic.Int64
}

// NewRugRiskClient creates a rug-risk oracle client.
func NewRugRiskClient(config RugRiskConfig) *RugRiskClient {
	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = oracleTimeout
	}
	return &RugRiskClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Score fetches the 0-10 risk score for a mint. Higher is safer.
func (c *RugRiskClient) Score(ctx context.Context, mint chain.Pubkey) (float64, error) {
	c.requests.Add(1)

	url := fmt.Sprintf("%s/tokens/%s/report/summary", c.config.BaseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("rugrisk: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("rugrisk: HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("rugrisk: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.failures.Add(1)
		return 0, fmt.Errorf("rugrisk: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.failures.Add(1)
		return 0, fmt.Errorf("rugrisk: parse response: %w", err)
	}

	log.Debug().
		Str("mint", string(mint)).
		Float64("score", parsed.Score).
		Msg("rugrisk: score fetched")

	return parsed.Score, nil
}

// Stats returns request/failure counters.
func (c *RugRiskClient) Stats() (requests, failures int64) {
	return c.requests.Load(), c.failures.Load()
}

// ---------------------------------------------------------------------------

// HoneypotConfig configures the honeypot oracle client.
type HoneypotConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// DefaultHoneypotConfig returns production defaults.
func DefaultHoneypotConfig() HoneypotConfig {
	return HoneypotConfig{
		BaseURL:   defaultHoneypotURL,
		TimeoutMs: int(oracleTimeout / time.Millisecond),
	}
}

// HoneypotClient checks a BSC contract against a honeypot simulator API.
type HoneypotClient struct {
	config     HoneypotConfig
	httpClient *http.Client

	requests atomic.Int64
	failures atomic.Int64
}

// NewHoneypotClient creates a honeypot oracle client.
func NewHoneypotClient(config HoneypotConfig) *HoneypotClient {
	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout == 0 {
		timeout = oracleTimeout
	}
	return &HoneypotClient{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsHoneypot reports whether a contract blocks sells.
func (c *HoneypotClient) IsHoneypot(ctx context.Context, address chain.Pubkey) (bool, error) {
	c.requests.Add(1)

	url := fmt.Sprintf("%s?address=%s", c.config.BaseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("honeypot: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("honeypot: HTTP error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("honeypot: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.failures.Add(1)
		return false, fmt.Errorf("honeypot: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		HoneypotResult struct {
			IsHoneypot bool `json:"isHoneypot"`
		} `json:"honeypotResult"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.failures.Add(1)
		return false, fmt.Errorf("honeypot: parse response: %w", err)
	}

	return parsed.HoneypotResult.IsHoneypot, nil
}

// Stats returns request/failure counters.
func (c *HoneypotClient) Stats() (requests, failures int64) {
	return c.requests.Load(), c.failures.Load()
}
