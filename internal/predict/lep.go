package predict

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Launch Entry Predictor
// 5-signal weighted model: liquidity velocity 25% + holder accumulation 25%
// + age timing 20% + volume momentum 15% + dev activity 15%
// ---------------------------------------------------------------------------

// Signal names.
const (
	SignalLiquidityVelocity  = "liquidity_velocity"
	SignalHolderAccumulation = "holder_accumulation"
	SignalAgeTiming          = "age_timing"
	SignalVolumeMomentum     = "volume_momentum"
	SignalDevActivity        = "dev_activity"
)

// SignalWeights defines the weight of each entry signal.
type SignalWeights struct {
	LiquidityVelocity  float64 `yaml:"liquidity_velocity"`  // default 0.25
	HolderAccumulation float64 `yaml:"holder_accumulation"` // default 0.25
	AgeTiming          float64 `yaml:"age_timing"`          // default 0.20
	VolumeMomentum     float64 `yaml:"volume_momentum"`     // default 0.15
	DevActivity        float64 `yaml:"dev_activity"`        // default 0.15
}

// DefaultSignalWeights returns the standard entry weights.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		LiquidityVelocity:  0.25,
		HolderAccumulation: 0.25,
		AgeTiming:          0.20,
		VolumeMomentum:     0.15,
		DevActivity:        0.15,
	}
}

// EntryConfig configures the entry predictor.
type EntryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Weights       SignalWeights `yaml:"weights"`
	MinConfidence float64       `yaml:"min_confidence"` // default 0.6
}

// DefaultEntryConfig returns production defaults.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		Enabled:       true,
		Weights:       DefaultSignalWeights(),
		MinConfidence: 0.6,
	}
}

// SubSignal is one scored component of a prediction.
type SubSignal struct {
	Score  float64 `json:"score"` // 0-1
	Detail string  `json:"detail,omitempty"`
}

// Prediction is the entry predictor's full output for a token.
type Prediction struct {
	Confidence         float64              `json:"confidence"`           // 0-1 weighted composite
	PredictedPumpHours float64              `json:"predicted_pump_hours"`
	Signals            map[string]SubSignal `json:"signals"`
	Recommendation     string               `json:"recommendation"`
}

// EntryPredictor estimates pump confidence and timing for a fresh token.
type EntryPredictor struct {
	config EntryConfig
}

// NewEntryPredictor creates an entry predictor.
func NewEntryPredictor(config EntryConfig) *EntryPredictor {
	return &EntryPredictor{config: config}
}

// SetMinConfidence replaces the entry gate, used when learned thresholds
// are applied at runtime.
func (p *EntryPredictor) SetMinConfidence(v float64) {
	if v > 0 && v <= 1 {
		p.config.MinConfidence = v
	}
}

// Approves reports whether a prediction clears the entry gate. A disabled
// predictor approves everything.
func (p *EntryPredictor) Approves(pred Prediction) bool {
	if !p.config.Enabled {
		return true
	}
	return pred.Confidence >= p.config.MinConfidence
}

// Predict scores a token snapshot across all five signals. A disabled
// predictor returns a neutral zero result without scoring.
func (p *EntryPredictor) Predict(snap chain.TokenSnapshot) Prediction {
	if !p.config.Enabled {
		return Prediction{Recommendation: "DISABLED"}
	}

	signals := map[string]SubSignal{
		SignalLiquidityVelocity:  p.liquidityVelocity(snap),
		SignalHolderAccumulation: p.holderAccumulation(snap),
		SignalAgeTiming:          p.ageTiming(snap),
		SignalVolumeMomentum:     p.volumeMomentum(snap),
		SignalDevActivity:        p.devActivity(snap),
	}

	w := p.config.Weights
	confidence := signals[SignalLiquidityVelocity].Score*w.LiquidityVelocity +
		signals[SignalHolderAccumulation].Score*w.HolderAccumulation +
		signals[SignalAgeTiming].Score*w.AgeTiming +
		signals[SignalVolumeMomentum].Score*w.VolumeMomentum +
		signals[SignalDevActivity].Score*w.DevActivity
	confidence = clamp01(confidence)

	hours := p.predictHours(snap, confidence)

	pred := Prediction{
		Confidence:         confidence,
		PredictedPumpHours: hours,
		Signals:            signals,
		Recommendation:     recommendEntry(confidence, hours),
	}

	if confidence >= p.config.MinConfidence {
		log.Info().
			Str("token", string(snap.Address)).
			Float64("confidence", confidence).
			Float64("pump_hours", hours).
			Msg("predict: entry signal")
	}

	return pred
}

// liquidityVelocity scores the pool size band plus inflow rate. Pools under
// $5k are too thin, over $50k the move already happened.
func (p *EntryPredictor) liquidityVelocity(snap chain.TokenSnapshot) SubSignal {
	liq := snap.LiquidityUSD.InexactFloat64()
	velocity := snap.LiquidityVelocityUSD

	score := 0.0
	if liq >= 5000 && liq <= 50000 {
		score += 0.5
	}
	if velocity > 1000 {
		score += 0.5
	}

	return SubSignal{
		Score:  score,
		Detail: fmt.Sprintf("liquidity $%.0f, inflow $%.0f/min", liq, velocity),
	}
}

// holderAccumulation scores distribution shape: 50-200 holders with the top
// wallet between 30 and 60 percent reads as organic accumulation.
func (p *EntryPredictor) holderAccumulation(snap chain.TokenSnapshot) SubSignal {
	score := 0.0
	if snap.HolderCount >= 50 && snap.HolderCount <= 200 {
		score += 0.5
	}
	if snap.TopHolderPct >= 30 && snap.TopHolderPct <= 60 {
		score += 0.5
	}

	return SubSignal{
		Score:  score,
		Detail: fmt.Sprintf("%d holders, top %.1f%%", snap.HolderCount, snap.TopHolderPct),
	}
}

// ageTiming scores the 2-5 minute sweet spot: fresh enough to be early,
// old enough to have survived the first sell wave.
func (p *EntryPredictor) ageTiming(snap chain.TokenSnapshot) SubSignal {
	age := snap.AgeMinutes()
	if age >= 2 && age <= 5 {
		return SubSignal{Score: 1.0, Detail: fmt.Sprintf("%.1f min, sweet spot", age)}
	}
	return SubSignal{Score: 0.3, Detail: fmt.Sprintf("%.1f min", age)}
}

// volumeMomentum uses pool depth as a volume proxy until per-token volume
// feeds are wired.
func (p *EntryPredictor) volumeMomentum(snap chain.TokenSnapshot) SubSignal {
	if snap.LiquidityUSD.InexactFloat64() > 10000 {
		return SubSignal{Score: 0.8, Detail: "strong"}
	}
	return SubSignal{Score: 0.4, Detail: "weak"}
}

// devActivity is neutral until deployer-wallet tracking lands.
func (p *EntryPredictor) devActivity(snap chain.TokenSnapshot) SubSignal {
	return SubSignal{Score: 0.5, Detail: "neutral"}
}

// predictHours estimates time-to-pump from the signal state.
func (p *EntryPredictor) predictHours(snap chain.TokenSnapshot, confidence float64) float64 {
	hours := 12.0

	age := snap.AgeMinutes()
	if age >= 2 && age <= 5 {
		hours = 6.0
	}
	if snap.LiquidityVelocityUSD > 2000 {
		if hours > 8.0 {
			hours = 8.0
		}
	}
	if confidence < 0.5 {
		hours = 24.0
	}

	return hours
}

func recommendEntry(confidence, hours float64) string {
	switch {
	case confidence >= 0.8:
		return fmt.Sprintf("STRONG BUY - High confidence pump in %.1fh", hours)
	case confidence >= 0.6:
		return fmt.Sprintf("BUY - Moderate confidence pump in %.1fh", hours)
	case confidence >= 0.4:
		return fmt.Sprintf("CONSIDER - Low confidence pump in %.1fh", hours)
	default:
		return "SKIP - Insufficient confidence"
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
