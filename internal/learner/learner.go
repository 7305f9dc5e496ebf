package learner

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------------------------------------------------------------------------
// Outcome Learner — thresholds adapted from realized trade results
// ---------------------------------------------------------------------------

const (
	// maxHistory bounds the rolling outcome window; the oldest record is
	// evicted first.
	maxHistory = 1000

	// minTrades is the smallest sample worth learning from.
	minTrades = 10
)

// Threshold sources.
const (
	SourceLearned  = "learned"
	SourceDefaults = "defaults"
	SourceFallback = "fallback"
)

// Outcome is one finished trade as seen by the learner.
type Outcome struct {
	Timestamp       time.Time    `json:"timestamp"`
	Token           chain.Pubkey `json:"token"`
	EntryPrice      float64      `json:"entry_price"`
	ExitPrice       float64      `json:"exit_price"`
	PnLPct          float64      `json:"pnl_percent"`
	Win             bool         `json:"win"`
	SafetyScore     float64      `json:"safety_score"`
	Confidence      float64      `json:"lep_confidence"`
	ViralityScore   float64      `json:"virality_score"`
	HoldTimeMinutes float64      `json:"hold_time_minutes"`
	ExitReason      string       `json:"exit_reason,omitempty"`
}

// Patterns is the aggregate picture extracted from the outcome window.
type Patterns struct {
	TotalTrades     int       `json:"total_trades"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`
	WinRate         float64   `json:"win_rate"`
	AvgWin          float64   `json:"avg_win"`
	AvgLoss         float64   `json:"avg_loss"`
	OptimalSafety   float64   `json:"optimal_safety_score"`
	OptimalConf     float64   `json:"optimal_lep_confidence"`
	OptimalVirality float64   `json:"optimal_virality_score"`
	AvgHoldTime     float64   `json:"avg_hold_time"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Thresholds is a recommendation for the pipeline's entry gates.
type Thresholds struct {
	SafetyScore   float64 `json:"safety_score"`
	Confidence    float64 `json:"lep_confidence"`
	ViralityScore float64 `json:"virality_score"`
	Source        string  `json:"source"`
	BasedOnTrades int     `json:"based_on_trades,omitempty"`
	WinRate       float64 `json:"win_rate,omitempty"`
}

// Defaults are the configured gates used until enough outcomes accumulate.
type Defaults struct {
	SafetyScore   float64 `yaml:"safety_score"`   // default 70
	Confidence    float64 `yaml:"lep_confidence"` // default 0.6
	ViralityScore float64 `yaml:"virality_score"` // default 75
}

// DefaultDefaults returns the standard gates.
func DefaultDefaults() Defaults {
	return Defaults{
		SafetyScore:   70,
		Confidence:    0.6,
		ViralityScore: 75,
	}
}

// Store persists outcomes and learned patterns across restarts.
type Store interface {
	LoadHistory() ([]Outcome, error)
	SaveHistory(history []Outcome) error
	LoadPatterns() (*Patterns, error)
	SavePatterns(p Patterns) error
}

// Learner accumulates trade outcomes and derives gate thresholds from the
// winning trades. All methods are safe for concurrent use.
type Learner struct {
	mu       sync.Mutex
	defaults Defaults
	history  []Outcome
	patterns *Patterns
	store    Store
	loadErr  error
}

// New creates a learner. store may be nil for a memory-only learner; when
// present, prior history and patterns are loaded from it.
func New(defaults Defaults, store Store) *Learner {
	l := &Learner{defaults: defaults, store: store}

	if store != nil {
		history, err := store.LoadHistory()
		if err != nil {
			l.loadErr = err
			log.Warn().Err(err).Msg("learner: history load failed, starting cold")
		} else {
			if len(history) > maxHistory {
				history = history[len(history)-maxHistory:]
			}
			l.history = history
		}

		patterns, err := store.LoadPatterns()
		if err != nil {
			l.loadErr = err
			log.Warn().Err(err).Msg("learner: patterns load failed")
		} else {
			l.patterns = patterns
		}
	}

	return l
}

// Record adds a trade outcome, evicting the oldest once the window is full,
// and refreshes the learned patterns when the sample is large enough.
func (l *Learner) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	o.Win = o.PnLPct > 0

	l.mu.Lock()
	defer l.mu.Unlock()

	l.history = append(l.history, o)
	if len(l.history) > maxHistory {
		l.history = l.history[len(l.history)-maxHistory:]
	}

	if len(l.history) >= minTrades {
		l.recomputeLocked()
	}

	if l.store != nil {
		if err := l.store.SaveHistory(l.history); err != nil {
			log.Warn().Err(err).Msg("learner: history save failed")
		}
		if l.patterns != nil {
			if err := l.store.SavePatterns(*l.patterns); err != nil {
				log.Warn().Err(err).Msg("learner: patterns save failed")
			}
		}
	}
}

// recomputeLocked rebuilds patterns from the current window. Caller holds mu.
func (l *Learner) recomputeLocked() {
	var wins, losses []Outcome
	for _, o := range l.history {
		if o.Win {
			wins = append(wins, o)
		} else {
			losses = append(losses, o)
		}
	}
	if len(wins) == 0 {
		return
	}

	p := Patterns{
		TotalTrades:     len(l.history),
		Wins:            len(wins),
		Losses:          len(losses),
		WinRate:         float64(len(wins)) / float64(len(l.history)),
		AvgWin:          mean(wins, func(o Outcome) float64 { return o.PnLPct }),
		OptimalSafety:   medianPositive(wins, func(o Outcome) float64 { return o.SafetyScore }),
		OptimalConf:     medianPositive(wins, func(o Outcome) float64 { return o.Confidence }),
		OptimalVirality: medianPositive(wins, func(o Outcome) float64 { return o.ViralityScore }),
		AvgHoldTime:     mean(wins, func(o Outcome) float64 { return o.HoldTimeMinutes }),
		LastUpdated:     time.Now(),
	}
	if len(losses) > 0 {
		p.AvgLoss = mean(losses, func(o Outcome) float64 { return o.PnLPct })
	}

	l.patterns = &p

	log.Info().
		Int("trades", p.TotalTrades).
		Float64("win_rate", p.WinRate).
		Msg("learner: patterns updated")
}

// RecommendThresholds returns the current gate recommendation. It never
// fails: without a sufficient sample it falls back to the configured
// defaults, and a broken persistence layer yields the defaults marked as a
// fallback.
func (l *Learner) RecommendThresholds() Thresholds {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.patterns == nil || l.patterns.TotalTrades < minTrades {
		source := SourceDefaults
		if l.loadErr != nil {
			source = SourceFallback
		}
		return Thresholds{
			SafetyScore:   l.defaults.SafetyScore,
			Confidence:    l.defaults.Confidence,
			ViralityScore: l.defaults.ViralityScore,
			Source:        source,
		}
	}

	t := Thresholds{
		SafetyScore:   l.patterns.OptimalSafety,
		Confidence:    l.patterns.OptimalConf,
		ViralityScore: l.patterns.OptimalVirality,
		Source:        SourceLearned,
		BasedOnTrades: l.patterns.TotalTrades,
		WinRate:       l.patterns.WinRate,
	}
	// A field without positive samples keeps its configured gate.
	if t.SafetyScore == 0 {
		t.SafetyScore = l.defaults.SafetyScore
	}
	if t.Confidence == 0 {
		t.Confidence = l.defaults.Confidence
	}
	if t.ViralityScore == 0 {
		t.ViralityScore = l.defaults.ViralityScore
	}
	return t
}

// Summary returns the learned patterns, or a zero value before any
// recompute has happened.
func (l *Learner) Summary() Patterns {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.patterns == nil {
		return Patterns{}
	}
	return *l.patterns
}

// HistoryLen returns the number of retained outcomes.
func (l *Learner) HistoryLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.history)
}

func mean(outcomes []Outcome, field func(Outcome) float64) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0.0
	for _, o := range outcomes {
		sum += field(o)
	}
	return sum / float64(len(outcomes))
}

// medianPositive returns the median of the positive field values, robust
// to outlier trades. Zero when no positive samples exist.
func medianPositive(outcomes []Outcome, field func(Outcome) float64) float64 {
	var values []float64
	for _, o := range outcomes {
		if v := field(o); v > 0 {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}
