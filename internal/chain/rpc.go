package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// RPC Client Interface
// ---------------------------------------------------------------------------

// RPCClient is the interface for chain RPC interactions.
// Implementations: StubRPCClient (testing / paper sessions); a live client
// plugs in behind the same interface.
type RPCClient interface {
	// GetTokenSnapshot refreshes liquidity, price and holder data for a mint.
	GetTokenSnapshot(ctx context.Context, mint Pubkey) (*TokenSnapshot, error)

	// GetPrice returns the current USD price for a mint.
	GetPrice(ctx context.Context, mint Pubkey) (decimal.Decimal, error)

	// GetRecentLaunches returns tokens launched within the last N minutes.
	GetRecentLaunches(ctx context.Context, venue Venue, sinceMinutes int) ([]TokenSnapshot, error)

	// ResolveLaunchMint extracts the launched token's mint from the
	// transaction behind a launch signature.
	ResolveLaunchMint(ctx context.Context, signature string) (Pubkey, error)

	// GetWalletBalance returns SOL + token balances for a wallet.
	GetWalletBalance(ctx context.Context, wallet Pubkey) (*WalletBalance, error)

	// SubscribeLaunches opens a subscription for new token launch events.
	SubscribeLaunches(ctx context.Context, venue Venue) (<-chan TokenSnapshot, error)

	// Health returns the RPC endpoint health.
	Health(ctx context.Context) error
}

// RPCConfig configures the chain RPC client.
type RPCConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`

	// PriceURL overrides the Jupiter price endpoint, for tests.
	PriceURL string `yaml:"price_url"`
}

// DefaultRPCConfig returns development defaults.
func DefaultRPCConfig() RPCConfig {
	return RPCConfig{
		Endpoint:     "https://api.mainnet-beta.solana.com",
		WSEndpoint:   "wss://api.mainnet-beta.solana.com",
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

// ---------------------------------------------------------------------------
// Stub RPC Client (for testing and paper sessions)
// ---------------------------------------------------------------------------

// StubRPCClient is a mock RPC client for testing.
type StubRPCClient struct {
	mu          sync.RWMutex
	snapshots   map[Pubkey]*TokenSnapshot
	prices      map[Pubkey]decimal.Decimal
	launchMints map[string]Pubkey
	balance     *WalletBalance
	launchChan  chan TokenSnapshot
	failNext    bool
}

// NewStubRPCClient creates a stub RPC client for testing.
func NewStubRPCClient() *StubRPCClient {
	return &StubRPCClient{
		snapshots:   make(map[Pubkey]*TokenSnapshot),
		prices:      make(map[Pubkey]decimal.Decimal),
		launchMints: make(map[string]Pubkey),
		balance: &WalletBalance{
			SOL:    decimal.NewFromFloat(10.0),
			Tokens: make(map[Pubkey]decimal.Decimal),
		},
		launchChan: make(chan TokenSnapshot, 100),
	}
}

// SetLaunchMint scripts the mint behind a launch signature.
func (s *StubRPCClient) SetLaunchMint(signature string, mint Pubkey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchMints[signature] = mint
}

// AddSnapshot registers a token snapshot for the stub to return.
func (s *StubRPCClient) AddSnapshot(snap TokenSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.Address] = &snap
}

// SetPrice sets the current price for a mint.
func (s *StubRPCClient) SetPrice(mint Pubkey, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[mint] = price
}

// SetBalance sets the stub wallet balance.
func (s *StubRPCClient) SetBalance(bal WalletBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = &bal
}

// EmitLaunch sends a launch event on the subscription channel.
func (s *StubRPCClient) EmitLaunch(snap TokenSnapshot) {
	s.launchChan <- snap
}

// SetFailNext makes the next call fail.
func (s *StubRPCClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *StubRPCClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubRPCClient) GetTokenSnapshot(_ context.Context, mint Pubkey) (*TokenSnapshot, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.snapshots[mint]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("stub: token %s not found", mint)
}

func (s *StubRPCClient) GetPrice(_ context.Context, mint Pubkey) (decimal.Decimal, error) {
	if s.shouldFail() {
		return decimal.Zero, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.prices[mint]; ok {
		return p, nil
	}
	if snap, ok := s.snapshots[mint]; ok {
		return snap.PriceUSD, nil
	}
	return decimal.Zero, fmt.Errorf("stub: no price for %s", mint)
}

func (s *StubRPCClient) GetRecentLaunches(_ context.Context, venue Venue, sinceMinutes int) ([]TokenSnapshot, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute)
	out := make([]TokenSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if venue != "" && snap.Venue != venue {
			continue
		}
		if snap.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *snap)
	}
	return out, nil
}

func (s *StubRPCClient) ResolveLaunchMint(_ context.Context, signature string) (Pubkey, error) {
	if s.shouldFail() {
		return "", fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if mint, ok := s.launchMints[signature]; ok {
		return mint, nil
	}
	return "", fmt.Errorf("stub: no mint for signature %s", signature)
}

func (s *StubRPCClient) GetWalletBalance(_ context.Context, _ Pubkey) (*WalletBalance, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance, nil
}

func (s *StubRPCClient) SubscribeLaunches(ctx context.Context, _ Venue) (<-chan TokenSnapshot, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	out := make(chan TokenSnapshot, 100)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-s.launchChan:
				if !ok {
					return
				}
				out <- snap
			}
		}
	}()
	return out, nil
}

func (s *StubRPCClient) Health(_ context.Context) error {
	if s.shouldFail() {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
