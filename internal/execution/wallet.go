package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// Side of a swap.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SwapIntent is a fully-specified swap ready for signing. AmountIn is SOL
// for buys and tokens for sells. TipAccount is empty when the venue or the
// configuration does not use priority bundles.
type SwapIntent struct {
	Side       Side
	Venue      chain.Venue
	Token      chain.Pubkey
	AmountIn   decimal.Decimal
	TipAccount chain.Pubkey
	TipSOL     decimal.Decimal
}

// Wallet signs and submits swap intents. Implementations own key material
// and transport; the gateway never sees a private key.
type Wallet interface {
	Address() chain.Pubkey
	SignAndSubmit(ctx context.Context, intent SwapIntent) (chain.Signature, error)
}

// ---------------------------------------------------------------------------
// Stub wallet for tests
// ---------------------------------------------------------------------------

// StubWallet records intents and returns synthetic signatures.
type StubWallet struct {
	mu       sync.Mutex
	intents  []SwapIntent
	failNext bool
}

// NewStubWallet creates an empty stub wallet.
func NewStubWallet() *StubWallet {
	return &StubWallet{}
}

func (w *StubWallet) Address() chain.Pubkey {
	return "StubWa11et111111111111111111111111111111111"
}

func (w *StubWallet) SignAndSubmit(ctx context.Context, intent SwapIntent) (chain.Signature, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failNext {
		w.failNext = false
		return "", fmt.Errorf("wallet: submit rejected")
	}

	w.intents = append(w.intents, intent)
	return chain.Signature("stub-" + uuid.NewString()), nil
}

// SetFailNext makes the next submission fail once.
func (w *StubWallet) SetFailNext() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext = true
}

// Intents returns a copy of all recorded intents.
func (w *StubWallet) Intents() []SwapIntent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]SwapIntent, len(w.intents))
	copy(out, w.intents)
	return out
}
