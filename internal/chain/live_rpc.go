package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Live RPC Client — Solana JSON-RPC with rate limiting, retry and a
// circuit breaker; token prices come from the Jupiter price API
// ---------------------------------------------------------------------------

const (
	circuitBreakerThreshold = 10 // open after 10 consecutive errors
	circuitBreakerCooldown  = 30 * time.Second

	jupiterPriceURL = "https://price.jup.ag/v6/price"

	splTokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	wrappedSOLMint  = "So11111111111111111111111111111111111111112"

	lamportsPerSOL = 1_000_000_000
)

// venuePrograms maps venues to the program whose activity marks a launch.
var venuePrograms = map[Venue]string{
	VenueRaydium: RaydiumAMMProgram,
	VenuePumpFun: PumpFunProgram,
}

// LiveRPCClient talks to a real Solana RPC endpoint.
type LiveRPCClient struct {
	config     RPCConfig
	httpClient *http.Client

	// Token bucket rate limiter.
	limiter       chan struct{}
	limiterCancel context.CancelFunc

	nextID atomic.Int64

	// Circuit breaker.
	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool

	// Stats.
	requestCount  atomic.Int64
	errorCount    atomic.Int64
	latencySum    atomic.Int64 // cumulative microseconds
	lastRequestAt atomic.Int64
}

// NewLiveRPCClient creates a live client. Zero config fields get the
// DefaultRPCConfig values.
func NewLiveRPCClient(config RPCConfig) *LiveRPCClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 10
	}
	if config.PriceURL == "" {
		config.PriceURL = jupiterPriceURL
	}

	bucketSize := int(config.RateLimitRPS)
	if bucketSize < 1 {
		bucketSize = 1
	}
	limiter := make(chan struct{}, bucketSize)
	for i := 0; i < bucketSize; i++ {
		limiter <- struct{}{}
	}

	limiterCtx, limiterCancel := context.WithCancel(context.Background())

	c := &LiveRPCClient{
		config:        config,
		httpClient:    &http.Client{Timeout: config.Timeout},
		limiter:       limiter,
		limiterCancel: limiterCancel,
	}

	// Refill tokens at the configured RPS.
	go func() {
		interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-limiterCtx.Done():
				return
			case <-ticker.C:
				select {
				case c.limiter <- struct{}{}:
				default: // bucket full
				}
			}
		}
	}()

	return c
}

// Close stops the rate limiter refill loop.
func (c *LiveRPCClient) Close() {
	c.limiterCancel()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call makes a rate-limited, retried JSON-RPC call.
func (c *LiveRPCClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if c.circuitOpen.Load() {
		return nil, fmt.Errorf("rpc: circuit breaker open for %s", method)
	}

	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("rpc: create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("rpc: %s http error: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("rpc: %s read response: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		c.requestCount.Add(1)
		c.latencySum.Add(time.Since(start).Microseconds())
		c.lastRequestAt.Store(time.Now().UnixMilli())

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rpc: %s rate limited (429)", method)
			c.errorCount.Add(1)
			// Longer backoff on 429; not a circuit-breaker error.
			select {
			case <-time.After(time.Duration(2<<uint(attempt)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("rpc: %s HTTP %d: %s", method, resp.StatusCode, string(respBody))
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("rpc: %s unmarshal response: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if rpcResp.Error != nil {
			c.resetErrors()
			return nil, fmt.Errorf("rpc: %s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
		}

		c.resetErrors()
		return rpcResp.Result, nil
	}

	return nil, fmt.Errorf("rpc: %s failed after %d attempts: %w", method, c.config.MaxRetries+1, lastErr)
}

func (c *LiveRPCClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= circuitBreakerThreshold {
		if c.circuitOpen.CompareAndSwap(false, true) {
			log.Error().Int64("errors", count).Msg("rpc: circuit breaker open")
			go func() {
				time.Sleep(circuitBreakerCooldown)
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				log.Info().Msg("rpc: circuit breaker reset")
			}()
		}
	}
}

func (c *LiveRPCClient) resetErrors() {
	c.consecutiveErrors.Store(0)
}

// ---------------------------------------------------------------------------
// RPCClient implementation
// ---------------------------------------------------------------------------

// GetTokenSnapshot refreshes on-chain holder data and the Jupiter price
// for a mint. Liquidity figures come from launch events; when only the
// mint is known they stay zero and the safety filter's liquidity layer
// fails closed as designed.
func (c *LiveRPCClient) GetTokenSnapshot(ctx context.Context, mint Pubkey) (*TokenSnapshot, error) {
	snap := &TokenSnapshot{
		Address:    mint,
		Venue:      VenueUnknown,
		DetectedAt: time.Now(),
	}

	holders, topPct, err := c.topHolders(ctx, mint)
	if err != nil {
		return nil, err
	}
	snap.HolderCount = holders
	snap.TopHolderPct = topPct

	if price, err := c.GetPrice(ctx, mint); err == nil {
		snap.PriceUSD = price
	}

	return snap, nil
}

// GetPrice fetches the current USD price from the Jupiter price API.
func (c *LiveRPCClient) GetPrice(ctx context.Context, mint Pubkey) (decimal.Decimal, error) {
	queryURL, err := url.Parse(c.config.PriceURL)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc: parse price url: %w", err)
	}
	q := queryURL.Query()
	q.Set("ids", string(mint))
	queryURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", queryURL.String(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc: create price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc: price http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc: read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rpc: price HTTP %d", resp.StatusCode)
	}

	var priceResp struct {
		Data map[string]struct {
			Price float64 `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return decimal.Zero, fmt.Errorf("rpc: parse price: %w", err)
	}

	data, ok := priceResp.Data[string(mint)]
	if !ok || data.Price <= 0 {
		return decimal.Zero, fmt.Errorf("rpc: no price for %s", mint)
	}
	return decimal.NewFromFloat(data.Price), nil
}

// ResolveLaunchMint fetches the transaction behind a launch signature and
// extracts the launched token's mint from its post token balances. Wrapped
// SOL is the quote side of every pool and never the launched token.
func (c *LiveRPCClient) ResolveLaunchMint(ctx context.Context, signature string) (Pubkey, error) {
	result, err := c.call(ctx, "getTransaction", []any{
		signature,
		map[string]any{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	})
	if err != nil {
		return "", err
	}

	var tx struct {
		Meta struct {
			PostTokenBalances []struct {
				Mint string `json:"mint"`
			} `json:"postTokenBalances"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(result, &tx); err != nil {
		return "", fmt.Errorf("rpc: parse transaction: %w", err)
	}

	for _, bal := range tx.Meta.PostTokenBalances {
		if bal.Mint != "" && bal.Mint != wrappedSOLMint {
			return Pubkey(bal.Mint), nil
		}
	}
	return "", fmt.Errorf("rpc: no token mint in transaction %s", signature)
}

// GetRecentLaunches scans recent program activity for a venue and resolves
// each launch signature to its token mint. Signatures whose transaction
// carries no resolvable mint are skipped.
func (c *LiveRPCClient) GetRecentLaunches(ctx context.Context, venue Venue, sinceMinutes int) ([]TokenSnapshot, error) {
	programID, ok := venuePrograms[venue]
	if !ok {
		return nil, fmt.Errorf("rpc: no launch program for venue %s", venue)
	}

	result, err := c.call(ctx, "getSignaturesForAddress", []any{
		programID,
		map[string]any{"limit": 20},
	})
	if err != nil {
		return nil, err
	}

	var sigs []struct {
		Signature string `json:"signature"`
		BlockTime int64  `json:"blockTime"`
	}
	if err := json.Unmarshal(result, &sigs); err != nil {
		return nil, fmt.Errorf("rpc: parse signatures: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).Unix()
	var launches []TokenSnapshot
	for _, sig := range sigs {
		if sig.BlockTime < cutoff {
			continue
		}
		mint, err := c.ResolveLaunchMint(ctx, sig.Signature)
		if err != nil {
			log.Debug().Err(err).Str("sig", sig.Signature).Msg("rpc: mint resolution failed")
			continue
		}
		launches = append(launches, TokenSnapshot{
			Address:    mint,
			Venue:      venue,
			CreatedAt:  time.Unix(sig.BlockTime, 0),
			DetectedAt: time.Now(),
		})
	}
	return launches, nil
}

// GetWalletBalance fetches the SOL balance plus SPL token accounts.
func (c *LiveRPCClient) GetWalletBalance(ctx context.Context, wallet Pubkey) (*WalletBalance, error) {
	solResult, err := c.call(ctx, "getBalance", []any{string(wallet)})
	if err != nil {
		return nil, err
	}

	var balResp struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(solResult, &balResp); err != nil {
		return nil, fmt.Errorf("rpc: parse balance: %w", err)
	}
	solBalance := decimal.NewFromInt(int64(balResp.Value)).Div(decimal.NewFromInt(lamportsPerSOL))

	tokens := make(map[Pubkey]decimal.Decimal)
	tokenResult, err := c.call(ctx, "getTokenAccountsByOwner", []any{
		string(wallet),
		map[string]any{"programId": splTokenProgram},
		map[string]any{"encoding": "jsonParsed"},
	})
	if err != nil {
		// Non-fatal: report SOL only.
		return &WalletBalance{SOL: solBalance, Tokens: tokens}, nil
	}

	var tokenResp struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								UIAmountString string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(tokenResult, &tokenResp); err == nil {
		for _, ta := range tokenResp.Value {
			amount, _ := decimal.NewFromString(ta.Account.Data.Parsed.Info.TokenAmount.UIAmountString)
			if amount.IsPositive() {
				tokens[Pubkey(ta.Account.Data.Parsed.Info.Mint)] = amount
			}
		}
	}

	return &WalletBalance{SOL: solBalance, Tokens: tokens}, nil
}

// SubscribeLaunches polls recent program activity on an interval. The
// WebSocket LaunchFeed is the primary detection path; this is the HTTP
// fallback behind the same interface.
func (c *LiveRPCClient) SubscribeLaunches(ctx context.Context, venue Venue) (<-chan TokenSnapshot, error) {
	if _, ok := venuePrograms[venue]; !ok {
		return nil, fmt.Errorf("rpc: no launch program for venue %s", venue)
	}

	out := make(chan TokenSnapshot, 100)

	go func() {
		defer close(out)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		seen := make(map[Pubkey]bool)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				launches, err := c.GetRecentLaunches(ctx, venue, 5)
				if err != nil {
					log.Debug().Err(err).Str("venue", string(venue)).Msg("rpc: poll launches error")
					continue
				}
				for _, snap := range launches {
					if snap.Address == "" || seen[snap.Address] {
						continue
					}
					seen[snap.Address] = true
					if full, err := c.GetTokenSnapshot(ctx, snap.Address); err == nil {
						full.Venue = snap.Venue
						full.CreatedAt = snap.CreatedAt
						full.DetectedAt = snap.DetectedAt
						snap = *full
					} else {
						log.Debug().Err(err).Str("mint", string(snap.Address)).Msg("rpc: snapshot enrichment failed")
					}
					select {
					case out <- snap:
					default:
					}
				}
			}
		}
	}()

	return out, nil
}

// Health checks the RPC endpoint via getHealth.
func (c *LiveRPCClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.call(healthCtx, "getHealth", nil)
	return err
}

// topHolders returns the number of reported largest accounts and the top
// account's share of supply.
func (c *LiveRPCClient) topHolders(ctx context.Context, mint Pubkey) (int, float64, error) {
	result, err := c.call(ctx, "getTokenLargestAccounts", []any{string(mint)})
	if err != nil {
		return 0, 0, err
	}

	var resp struct {
		Value []struct {
			Address string `json:"address"`
			Amount  string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return 0, 0, fmt.Errorf("rpc: parse holders: %w", err)
	}
	if len(resp.Value) == 0 {
		return 0, 0, nil
	}

	supply, err := c.tokenSupply(ctx, mint)
	topPct := 0.0
	if err == nil && supply.IsPositive() {
		top, _ := decimal.NewFromString(resp.Value[0].Amount)
		pct := top.Div(supply).Mul(decimal.NewFromInt(100))
		topPct, _ = pct.Float64()
	}

	return len(resp.Value), topPct, nil
}

// tokenSupply fetches the raw token supply for a mint.
func (c *LiveRPCClient) tokenSupply(ctx context.Context, mint Pubkey) (decimal.Decimal, error) {
	result, err := c.call(ctx, "getTokenSupply", []any{string(mint)})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("rpc: parse supply: %w", err)
	}

	supply, err := decimal.NewFromString(resp.Value.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rpc: parse supply amount: %w", err)
	}
	return supply, nil
}

// RPCStats is a snapshot of client counters.
type RPCStats struct {
	RequestCount  int64 `json:"request_count"`
	ErrorCount    int64 `json:"error_count"`
	AvgLatencyUs  int64 `json:"avg_latency_us"`
	LastRequestAt int64 `json:"last_request_at"`
	CircuitOpen   bool  `json:"circuit_open"`
	ConsecErrors  int64 `json:"consecutive_errors"`
}

func (c *LiveRPCClient) Stats() RPCStats {
	reqCount := c.requestCount.Load()
	avgLatency := int64(0)
	if reqCount > 0 {
		avgLatency = c.latencySum.Load() / reqCount
	}
	return RPCStats{
		RequestCount:  reqCount,
		ErrorCount:    c.errorCount.Load(),
		AvgLatencyUs:  avgLatency,
		LastRequestAt: c.lastRequestAt.Load(),
		CircuitOpen:   c.circuitOpen.Load(),
		ConsecErrors:  c.consecutiveErrors.Load(),
	}
}
