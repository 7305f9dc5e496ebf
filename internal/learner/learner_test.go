package learner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkeye-trading/hawkeye/internal/chain"
)

// ---------- Test helpers ----------

func winningOutcome(pnl, safety, conf, virality float64) Outcome {
	return Outcome{
		Token:         "TokenWin",
		PnLPct:        pnl,
		SafetyScore:   safety,
		Confidence:    conf,
		ViralityScore: virality,
	}
}

func losingOutcome(pnl float64) Outcome {
	return Outcome{Token: "TokenLoss", PnLPct: pnl, SafetyScore: 60, Confidence: 0.4}
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) LoadHistory() ([]Outcome, error)  { return nil, errors.New("disk gone") }
func (brokenStore) SaveHistory([]Outcome) error      { return errors.New("disk gone") }
func (brokenStore) LoadPatterns() (*Patterns, error) { return nil, errors.New("disk gone") }
func (brokenStore) SavePatterns(Patterns) error      { return errors.New("disk gone") }

// memStore is an in-memory Store.
type memStore struct {
	history  []Outcome
	patterns *Patterns
}

func (s *memStore) LoadHistory() ([]Outcome, error) { return s.history, nil }

func (s *memStore) SaveHistory(h []Outcome) error {
	s.history = append([]Outcome(nil), h...)
	return nil
}

func (s *memStore) LoadPatterns() (*Patterns, error) { return s.patterns, nil }

func (s *memStore) SavePatterns(p Patterns) error {
	s.patterns = &p
	return nil
}

// ---------- Tests ----------

func TestRecommendDefaultsBeforeSample(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	rec := l.RecommendThresholds()
	assert.Equal(t, SourceDefaults, rec.Source)
	assert.Equal(t, 70.0, rec.SafetyScore)
	assert.Equal(t, 0.6, rec.Confidence)
	assert.Equal(t, 75.0, rec.ViralityScore)
}

func TestRecommendStaysDefaultUnderTenTrades(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	for i := 0; i < 9; i++ {
		l.Record(winningOutcome(50, 80, 0.7, 85))
	}

	assert.Equal(t, SourceDefaults, l.RecommendThresholds().Source)
}

func TestLearnsMedianOfWinners(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	// Five winners with distinct scores plus five losers; the learned
	// threshold is the median of the winners only.
	safetyScores := []float64{60, 70, 80, 90, 95}
	for i, s := range safetyScores {
		l.Record(winningOutcome(100+float64(i), s, 0.5+float64(i)*0.1, 70+float64(i)*5))
	}
	for i := 0; i < 5; i++ {
		l.Record(losingOutcome(-20))
	}

	rec := l.RecommendThresholds()
	require.Equal(t, SourceLearned, rec.Source)
	assert.Equal(t, 80.0, rec.SafetyScore)
	assert.InDelta(t, 0.7, rec.Confidence, 1e-9)
	assert.Equal(t, 80.0, rec.ViralityScore)
	assert.Equal(t, 10, rec.BasedOnTrades)
	assert.InDelta(t, 0.5, rec.WinRate, 1e-9)
}

func TestMedianEvenSample(t *testing.T) {
	values := []Outcome{
		winningOutcome(1, 60, 0, 0),
		winningOutcome(1, 80, 0, 0),
		winningOutcome(1, 90, 0, 0),
		winningOutcome(1, 100, 0, 0),
	}
	m := medianPositive(values, func(o Outcome) float64 { return o.SafetyScore })
	assert.Equal(t, 85.0, m)
}

func TestZeroValuedFieldKeepsDefault(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	// Winners that never carried a virality score: that gate keeps its
	// configured default while the others are learned.
	for i := 0; i < 10; i++ {
		l.Record(winningOutcome(50, 80, 0.7, 0))
	}

	rec := l.RecommendThresholds()
	require.Equal(t, SourceLearned, rec.Source)
	assert.Equal(t, 80.0, rec.SafetyScore)
	assert.Equal(t, 75.0, rec.ViralityScore)
}

func TestAllLossesNoPatterns(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	for i := 0; i < 15; i++ {
		l.Record(losingOutcome(-10))
	}

	assert.Equal(t, SourceDefaults, l.RecommendThresholds().Source)
}

func TestHistoryWindowEvictsOldest(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	for i := 0; i < maxHistory+50; i++ {
		o := winningOutcome(10, 80, 0.7, 80)
		o.Token = chain.Pubkey("Token" + fmt.Sprint(i))
		l.Record(o)
	}

	assert.Equal(t, maxHistory, l.HistoryLen())
	assert.Equal(t, maxHistory, l.Summary().TotalTrades)
}

func TestWinDerivedFromPnL(t *testing.T) {
	l := New(DefaultDefaults(), nil)

	for i := 0; i < 10; i++ {
		o := Outcome{PnLPct: 25, SafetyScore: 90, Win: false} // Win flag ignored
		l.Record(o)
	}

	summary := l.Summary()
	assert.Equal(t, 10, summary.Wins)
	assert.Equal(t, 0, summary.Losses)
	assert.InDelta(t, 25, summary.AvgWin, 1e-9)
}

func TestBrokenStoreFallsBack(t *testing.T) {
	l := New(DefaultDefaults(), brokenStore{})

	rec := l.RecommendThresholds()
	assert.Equal(t, SourceFallback, rec.Source)
	assert.Equal(t, 70.0, rec.SafetyScore)

	// Recording still works in memory despite save failures.
	for i := 0; i < 10; i++ {
		l.Record(winningOutcome(50, 80, 0.7, 85))
	}
	assert.Equal(t, SourceLearned, l.RecommendThresholds().Source)
}

func TestStoreRoundTrip(t *testing.T) {
	store := &memStore{}

	l := New(DefaultDefaults(), store)
	for i := 0; i < 12; i++ {
		l.Record(winningOutcome(40, 85, 0.65, 80))
	}

	// A fresh learner over the same store resumes with the sample.
	l2 := New(DefaultDefaults(), store)
	assert.Equal(t, 12, l2.HistoryLen())
	rec := l2.RecommendThresholds()
	assert.Equal(t, SourceLearned, rec.Source)
	assert.Equal(t, 85.0, rec.SafetyScore)
}
