package chain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePubkey(t *testing.T) {
	t.Run("well-known mints validate", func(t *testing.T) {
		require.NoError(t, ValidatePubkey(string(SOLMint)))
		require.NoError(t, ValidatePubkey(string(USDCMint)))
		require.NoError(t, ValidatePubkey(RaydiumAMMProgram))
		require.NoError(t, ValidatePubkey(PumpFunProgram))
	})

	t.Run("rejects non-base58", func(t *testing.T) {
		assert.Error(t, ValidatePubkey("not!valid@base58"))
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		assert.Error(t, ValidatePubkey("abc"))
	})
}

func TestTokenSnapshot_EffectiveLiquidityUSD(t *testing.T) {
	solPrice := decimal.NewFromInt(150)

	t.Run("prefers USD figure when present", func(t *testing.T) {
		snap := TokenSnapshot{
			LiquidityUSD: decimal.NewFromInt(8000),
			LiquiditySOL: decimal.NewFromInt(100),
		}
		assert.True(t, snap.EffectiveLiquidityUSD(solPrice).Equal(decimal.NewFromInt(8000)))
	})

	t.Run("converts from SOL reserve when USD missing", func(t *testing.T) {
		snap := TokenSnapshot{
			LiquiditySOL: decimal.NewFromInt(40),
		}
		assert.True(t, snap.EffectiveLiquidityUSD(solPrice).Equal(decimal.NewFromInt(6000)))
	})
}

func TestTokenSnapshot_AgeMinutes(t *testing.T) {
	now := time.Now()
	snap := TokenSnapshot{
		CreatedAt:  now.Add(-3 * time.Minute),
		DetectedAt: now,
	}
	assert.InDelta(t, 3.0, snap.AgeMinutes(), 0.01)
}

func TestVenue_IsBSC(t *testing.T) {
	assert.True(t, VenuePancake.IsBSC())
	assert.False(t, VenueRaydium.IsBSC())
	assert.False(t, VenuePumpFun.IsBSC())
}

func TestLaunchDetection(t *testing.T) {
	t.Run("raydium initialize2", func(t *testing.T) {
		logs := []string{
			"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
			"Program log: initialize2: InitializeInstruction2",
		}
		require.True(t, isLaunchEvent(logs))
		assert.Equal(t, VenueRaydium, venueFromLogs(logs))
	})

	t.Run("pumpfun requires both markers", func(t *testing.T) {
		partial := []string{"Program log: Instruction: Create"}
		assert.False(t, isLaunchEvent(partial))

		full := []string{
			"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
			"Program log: Instruction: Create",
			"Program log: Instruction: InitializeMint2",
		}
		require.True(t, isLaunchEvent(full))
		assert.Equal(t, VenuePumpFun, venueFromLogs(full))
	})

	t.Run("unrelated logs ignored", func(t *testing.T) {
		assert.False(t, isLaunchEvent([]string{"Program log: Instruction: Swap"}))
	})
}

func TestStubResolveLaunchMint(t *testing.T) {
	s := NewStubRPCClient()
	s.SetLaunchMint("sig111", "Mint1111111111111111111111111111")

	mint, err := s.ResolveLaunchMint(context.Background(), "sig111")
	require.NoError(t, err)
	assert.Equal(t, Pubkey("Mint1111111111111111111111111111"), mint)

	_, err = s.ResolveLaunchMint(context.Background(), "unknown")
	assert.Error(t, err)
}
