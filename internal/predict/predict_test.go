package predict

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------- Test helpers ----------

// promisingSnapshot is a token in the entry sweet spot: mid-band liquidity,
// healthy distribution, three minutes old.
func promisingSnapshot() chain.TokenSnapshot {
	now := time.Now()
	return chain.TokenSnapshot{
		Address:      "So11111111111111111111111111111111111111112",
		Symbol:       "TEST",
		Venue:        chain.VenueRaydium,
		LiquidityUSD: decimal.NewFromInt(20000),
		HolderCount:  120,
		TopHolderPct: 40,
		CreatedAt:    now.Add(-3 * time.Minute),
		DetectedAt:   now,
	}
}

// ---------- Entry predictor ----------

func TestEntryWeightsSumToOne(t *testing.T) {
	w := DefaultSignalWeights()
	sum := w.LiquidityVelocity + w.HolderAccumulation + w.AgeTiming +
		w.VolumeMomentum + w.DevActivity
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEntryPredictorSweetSpot(t *testing.T) {
	p := NewEntryPredictor(DefaultEntryConfig())

	pred := p.Predict(promisingSnapshot())

	// 0.5*0.25 + 1.0*0.25 + 1.0*0.20 + 0.8*0.15 + 0.5*0.15 = 0.77
	assert.InDelta(t, 0.77, pred.Confidence, 1e-9)
	assert.InDelta(t, 6.0, pred.PredictedPumpHours, 1e-9)
	assert.Equal(t, "BUY - Moderate confidence pump in 6.0h", pred.Recommendation)
	assert.True(t, p.Approves(pred))

	require.Len(t, pred.Signals, 5)
	assert.InDelta(t, 1.0, pred.Signals[SignalAgeTiming].Score, 1e-9)
	assert.InDelta(t, 0.5, pred.Signals[SignalLiquidityVelocity].Score, 1e-9,
		"in band but no inflow data")
}

func TestEntryPredictorWeakToken(t *testing.T) {
	p := NewEntryPredictor(DefaultEntryConfig())

	now := time.Now()
	snap := chain.TokenSnapshot{
		Address:      "TokenWeak",
		LiquidityUSD: decimal.NewFromInt(1000),
		HolderCount:  5,
		TopHolderPct: 90,
		CreatedAt:    now.Add(-30 * time.Minute),
		DetectedAt:   now,
	}

	pred := p.Predict(snap)

	assert.Less(t, pred.Confidence, 0.5)
	assert.InDelta(t, 24.0, pred.PredictedPumpHours, 1e-9,
		"low confidence pushes timing out")
	assert.Equal(t, "SKIP - Insufficient confidence", pred.Recommendation)
	assert.False(t, p.Approves(pred))
}

func TestEntryHighInflowCapsHours(t *testing.T) {
	p := NewEntryPredictor(DefaultEntryConfig())

	snap := promisingSnapshot()
	snap.CreatedAt = time.Now().Add(-10 * time.Minute) // outside sweet spot
	snap.LiquidityVelocityUSD = 2500

	pred := p.Predict(snap)

	assert.GreaterOrEqual(t, pred.Confidence, 0.5)
	assert.InDelta(t, 8.0, pred.PredictedPumpHours, 1e-9)
}

func TestEntryRecommendationBands(t *testing.T) {
	assert.Equal(t, "STRONG BUY - High confidence pump in 6.0h", recommendEntry(0.85, 6))
	assert.Equal(t, "BUY - Moderate confidence pump in 12.0h", recommendEntry(0.65, 12))
	assert.Equal(t, "CONSIDER - Low confidence pump in 24.0h", recommendEntry(0.45, 24))
	assert.Equal(t, "SKIP - Insufficient confidence", recommendEntry(0.2, 24))
}

func TestEntryDisabledApprovesEverything(t *testing.T) {
	cfg := DefaultEntryConfig()
	cfg.Enabled = false
	p := NewEntryPredictor(cfg)

	assert.True(t, p.Approves(Prediction{Confidence: 0.1}))
}

func TestEntryDisabledPredictsNeutral(t *testing.T) {
	cfg := DefaultEntryConfig()
	cfg.Enabled = false
	p := NewEntryPredictor(cfg)

	// No scoring runs: even a strong token gets the zero result.
	pred := p.Predict(promisingSnapshot())
	assert.Zero(t, pred.Confidence)
	assert.Zero(t, pred.PredictedPumpHours)
	assert.Empty(t, pred.Signals)
	assert.True(t, p.Approves(pred))
}

func TestEntrySetMinConfidence(t *testing.T) {
	p := NewEntryPredictor(DefaultEntryConfig())

	p.SetMinConfidence(0.9)
	assert.False(t, p.Approves(Prediction{Confidence: 0.77}))

	p.SetMinConfidence(0) // out of range, ignored
	assert.False(t, p.Approves(Prediction{Confidence: 0.77}))
}

// ---------- Cascade sentinel ----------

func TestCascadeWeightsSumToOne(t *testing.T) {
	w := DefaultCascadeWeights()
	sum := w.NetworkVelocity + w.HolderDiversity + w.EarlyAdopters +
		w.LiquidityCascade + w.SocialMomentum
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCascadeViralToken(t *testing.T) {
	s := NewCascadeSentinel(DefaultCascadeConfig())

	snap := promisingSnapshot()
	snap.HolderGrowthPerMin = 15
	snap.LiquidityVelocityUSD = 1500

	v := s.Predict(snap)

	// 0.8*0.25 + 1.0*0.20 + 0.7*0.20 + 0.8*0.25 + 0.5*0.10 = 0.79
	assert.InDelta(t, 79, float64(v.Score), 1)
	assert.InDelta(t, v.ViralProbability, float64(v.Score)/100.0, 1e-9)
	assert.True(t, s.Approves(v))
	require.Len(t, v.Signals, 5)
}

func TestCascadeQuietToken(t *testing.T) {
	s := NewCascadeSentinel(DefaultCascadeConfig())

	now := time.Now()
	snap := chain.TokenSnapshot{
		Address:      "TokenQuiet",
		LiquidityUSD: decimal.NewFromInt(2000),
		HolderCount:  20,
		TopHolderPct: 70,
		CreatedAt:    now.Add(-20 * time.Minute),
		DetectedAt:   now,
	}

	v := s.Predict(snap)

	assert.Less(t, v.Score, 60)
	assert.False(t, s.Approves(v))
}

func TestCascadeGrowthFallback(t *testing.T) {
	// Without an explicit growth rate the sentinel derives one from
	// holder count over age.
	s := NewCascadeSentinel(DefaultCascadeConfig())

	snap := promisingSnapshot() // 120 holders in 3 min = 40/min
	v := s.Predict(snap)

	assert.InDelta(t, 0.8, v.Signals[SignalNetworkVelocity].Score, 1e-9)
}

func TestCascadeRecommendationBands(t *testing.T) {
	assert.Equal(t, "VIRAL ALERT - Extremely high viral potential", recommendVirality(95))
	assert.Equal(t, "STRONG VIRAL - High viral potential", recommendVirality(80))
	assert.Equal(t, "MODERATE VIRAL - Some viral potential", recommendVirality(65))
	assert.Equal(t, "LOW VIRAL - Limited viral potential", recommendVirality(45))
	assert.Equal(t, "NO VIRAL - Unlikely to go viral", recommendVirality(20))
}

func TestCascadeSetMinVirality(t *testing.T) {
	s := NewCascadeSentinel(DefaultCascadeConfig())

	s.SetMinVirality(90)
	assert.False(t, s.Approves(Virality{Score: 80}))

	s.SetMinVirality(200) // out of range, ignored
	assert.False(t, s.Approves(Virality{Score: 80}))
}

func TestCascadeDisabledApprovesEverything(t *testing.T) {
	cfg := DefaultCascadeConfig()
	cfg.Enabled = false
	s := NewCascadeSentinel(cfg)

	assert.True(t, s.Approves(Virality{Score: 0}))
}

func TestCascadeDisabledPredictsNeutral(t *testing.T) {
	cfg := DefaultCascadeConfig()
	cfg.Enabled = false
	s := NewCascadeSentinel(cfg)

	v := s.Predict(promisingSnapshot())
	assert.Zero(t, v.Score)
	assert.Zero(t, v.ViralProbability)
	assert.Empty(t, v.Signals)
	assert.True(t, s.Approves(v))
}
