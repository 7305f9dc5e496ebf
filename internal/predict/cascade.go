package predict

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Cascade Sentinel
// Viral-spread model: network velocity 25% + holder diversity 20% + early
// adopter quality 20% + liquidity cascade 25% + social momentum 10%
// ---------------------------------------------------------------------------

// Cascade signal names.
const (
	SignalNetworkVelocity = "network_velocity"
	SignalHolderDiversity = "holder_diversity"
	SignalEarlyAdopters   = "early_adopter_quality"
	SignalLiquidityCasc   = "liquidity_cascade"
	SignalSocialMomentum  = "social_momentum"
)

// CascadeWeights defines the weight of each viral signal.
type CascadeWeights struct {
	NetworkVelocity  float64 `yaml:"network_velocity"`      // default 0.25
	HolderDiversity  float64 `yaml:"holder_diversity"`      // default 0.20
	EarlyAdopters    float64 `yaml:"early_adopter_quality"` // default 0.20
	LiquidityCascade float64 `yaml:"liquidity_cascade"`     // default 0.25
	SocialMomentum   float64 `yaml:"social_momentum"`       // default 0.10
}

// DefaultCascadeWeights returns the standard viral weights.
func DefaultCascadeWeights() CascadeWeights {
	return CascadeWeights{
		NetworkVelocity:  0.25,
		HolderDiversity:  0.20,
		EarlyAdopters:    0.20,
		LiquidityCascade: 0.25,
		SocialMomentum:   0.10,
	}
}

// CascadeConfig configures the cascade sentinel.
type CascadeConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Weights     CascadeWeights `yaml:"weights"`
	MinVirality int            `yaml:"min_virality"` // default 75
}

// DefaultCascadeConfig returns production defaults.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Enabled:     true,
		Weights:     DefaultCascadeWeights(),
		MinVirality: 75,
	}
}

// Virality is the cascade sentinel's output for a token.
type Virality struct {
	Score            int                  `json:"score"` // 0-100
	ViralProbability float64              `json:"viral_probability"`
	Signals          map[string]SubSignal `json:"signals"`
	Recommendation   string               `json:"recommendation"`
}

// CascadeSentinel estimates viral spread potential from holder network and
// liquidity growth dynamics.
type CascadeSentinel struct {
	config CascadeConfig
}

// NewCascadeSentinel creates a cascade sentinel.
func NewCascadeSentinel(config CascadeConfig) *CascadeSentinel {
	return &CascadeSentinel{config: config}
}

// SetMinVirality replaces the viral gate, used when learned thresholds are
// applied at runtime.
func (s *CascadeSentinel) SetMinVirality(v int) {
	if v > 0 && v <= 100 {
		s.config.MinVirality = v
	}
}

// Approves reports whether a virality result clears the gate. A disabled
// sentinel approves everything.
func (s *CascadeSentinel) Approves(v Virality) bool {
	if !s.config.Enabled {
		return true
	}
	return v.Score >= s.config.MinVirality
}

// Predict scores viral potential across all five signals. A disabled
// sentinel returns a neutral zero result without scoring.
func (s *CascadeSentinel) Predict(snap chain.TokenSnapshot) Virality {
	if !s.config.Enabled {
		return Virality{Recommendation: "DISABLED"}
	}

	signals := map[string]SubSignal{
		SignalNetworkVelocity: s.networkVelocity(snap),
		SignalHolderDiversity: s.holderDiversity(snap),
		SignalEarlyAdopters:   s.earlyAdopters(snap),
		SignalLiquidityCasc:   s.liquidityCascade(snap),
		SignalSocialMomentum:  s.socialMomentum(snap),
	}

	w := s.config.Weights
	composite := signals[SignalNetworkVelocity].Score*w.NetworkVelocity +
		signals[SignalHolderDiversity].Score*w.HolderDiversity +
		signals[SignalEarlyAdopters].Score*w.EarlyAdopters +
		signals[SignalLiquidityCasc].Score*w.LiquidityCascade +
		signals[SignalSocialMomentum].Score*w.SocialMomentum

	score := int(clamp01(composite) * 100)

	v := Virality{
		Score:            score,
		ViralProbability: float64(score) / 100.0,
		Signals:          signals,
		Recommendation:   recommendVirality(score),
	}

	if score >= s.config.MinVirality {
		log.Info().
			Str("token", string(snap.Address)).
			Int("virality", score).
			Msg("predict: high viral potential")
	}

	return v
}

// networkVelocity scores holder network growth. Over 10 new holders per
// minute is a strong viral signal.
func (s *CascadeSentinel) networkVelocity(snap chain.TokenSnapshot) SubSignal {
	growth := snap.HolderGrowthPerMin
	if growth == 0 {
		if age := snap.AgeMinutes(); age > 0 {
			growth = float64(snap.HolderCount) / age
		}
	}

	score := 0.4
	if growth > 10 {
		score = 0.8
	}

	return SubSignal{
		Score:  score,
		Detail: fmt.Sprintf("%.1f holders/min", growth),
	}
}

// holderDiversity scores decentralization: at least 100 holders with the
// top wallet under half the supply.
func (s *CascadeSentinel) holderDiversity(snap chain.TokenSnapshot) SubSignal {
	score := 0.0
	if snap.HolderCount >= 100 {
		score += 0.5
	}
	if snap.TopHolderPct < 50 {
		score += 0.5
	}

	return SubSignal{
		Score:  score,
		Detail: fmt.Sprintf("%d holders, top %.1f%%", snap.HolderCount, snap.TopHolderPct),
	}
}

// earlyAdopters uses total holder count as a proxy for early-adopter mix
// until per-wallet history tracking lands.
func (s *CascadeSentinel) earlyAdopters(snap chain.TokenSnapshot) SubSignal {
	if snap.HolderCount >= 50 && snap.HolderCount <= 150 {
		return SubSignal{Score: 0.7, Detail: "high"}
	}
	return SubSignal{Score: 0.4, Detail: "medium"}
}

// liquidityCascade scores liquidity inflow rate. Over $1000 per minute
// reads as a cascade forming.
func (s *CascadeSentinel) liquidityCascade(snap chain.TokenSnapshot) SubSignal {
	perMin := snap.LiquidityVelocityUSD
	if perMin == 0 {
		if age := snap.AgeMinutes(); age > 0 {
			perMin = snap.LiquidityUSD.InexactFloat64() / age
		}
	}

	score := 0.4
	if perMin > 1000 {
		score = 0.8
	}

	return SubSignal{
		Score:  score,
		Detail: fmt.Sprintf("$%.0f/min", perMin),
	}
}

// socialMomentum is neutral until social feeds are wired.
func (s *CascadeSentinel) socialMomentum(snap chain.TokenSnapshot) SubSignal {
	return SubSignal{Score: 0.5, Detail: "neutral"}
}

func recommendVirality(score int) string {
	switch {
	case score >= 90:
		return "VIRAL ALERT - Extremely high viral potential"
	case score >= 75:
		return "STRONG VIRAL - High viral potential"
	case score >= 60:
		return "MODERATE VIRAL - Some viral potential"
	case score >= 40:
		return "LOW VIRAL - Limited viral potential"
	default:
		return "NO VIRAL - Unlikely to go viral"
	}
}
