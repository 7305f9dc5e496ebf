package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hawkeye-trading/hawkeye/internal/learner"
)

func TestJSONStoreHistoryRoundTrip(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	// Empty directory reads as empty history.
	history, err := store.LoadHistory()
	require.NoError(t, err)
	assert.Empty(t, history)

	outcomes := []learner.Outcome{
		{
			Timestamp:   time.Now().UTC().Truncate(time.Millisecond),
			Token:       "TokenA",
			PnLPct:      250,
			Win:         true,
			SafetyScore: 80,
			Confidence:  0.75,
			ExitReason:  "Take Profit",
		},
		{
			Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
			Token:      "TokenB",
			PnLPct:     -20,
			ExitReason: "Stop Loss",
		},
	}
	require.NoError(t, store.SaveHistory(outcomes))

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, outcomes[0].Token, loaded[0].Token)
	assert.Equal(t, outcomes[0].PnLPct, loaded[0].PnLPct)
	assert.Equal(t, "Stop Loss", loaded[1].ExitReason)
}

func TestJSONStorePatterns(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	// Missing patterns file yields nil, not an error.
	p, err := store.LoadPatterns()
	require.NoError(t, err)
	assert.Nil(t, p)

	saved := learner.Patterns{
		TotalTrades:   25,
		Wins:          15,
		Losses:        10,
		WinRate:       0.6,
		OptimalSafety: 80,
		LastUpdated:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.SavePatterns(saved))

	p, err = store.LoadPatterns()
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 25, p.TotalTrades)
	assert.Equal(t, 80.0, p.OptimalSafety)
}

func TestJSONStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, historyFile), []byte("not json"), 0o644))

	_, err = store.LoadHistory()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestJSONStoreAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveHistory([]learner.Outcome{{Token: "TokenA"}}))
	require.NoError(t, store.SaveHistory([]learner.Outcome{{Token: "TokenB"}}))

	// No temp file left behind after the rename.
	_, err = os.Stat(filepath.Join(dir, historyFile+".tmp"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := store.LoadHistory()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "TokenB", string(loaded[0].Token))
}
