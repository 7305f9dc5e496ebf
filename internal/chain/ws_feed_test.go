package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLaunchEvent_Raydium(t *testing.T) {
	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: InitializeInstruction2",
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 success",
	}

	assert.True(t, isLaunchEvent(logs))
}

func TestIsLaunchEvent_PumpFun(t *testing.T) {
	logs := []string{
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
		"Program log: Create",
		"Program log: InitializeMint2",
	}

	assert.True(t, isLaunchEvent(logs))
}

func TestIsLaunchEvent_PumpFunCreateAlone(t *testing.T) {
	// Create without InitializeMint2 is a different instruction.
	logs := []string{
		"Program 6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P invoke [1]",
		"Program log: Create",
	}

	assert.False(t, isLaunchEvent(logs))
}

func TestIsLaunchEvent_Swap(t *testing.T) {
	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: Swap",
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 success",
	}

	assert.False(t, isLaunchEvent(logs))
}

func TestVenueFromLogs(t *testing.T) {
	t.Run("raydium", func(t *testing.T) {
		logs := []string{"Program " + RaydiumAMMProgram + " invoke"}
		assert.Equal(t, VenueRaydium, venueFromLogs(logs))
	})

	t.Run("pumpfun", func(t *testing.T) {
		logs := []string{"Program " + PumpFunProgram + " invoke"}
		assert.Equal(t, VenuePumpFun, venueFromLogs(logs))
	})

	t.Run("unknown", func(t *testing.T) {
		logs := []string{"something else"}
		assert.Equal(t, VenueUnknown, venueFromLogs(logs))
	})
}

func TestVenueForProgram(t *testing.T) {
	assert.Equal(t, VenueRaydium, venueForProgram(RaydiumAMMProgram))
	assert.Equal(t, VenuePumpFun, venueForProgram(PumpFunProgram))
	assert.Equal(t, VenueUnknown, venueForProgram("not-a-program"))
}

func TestFeedConfig_Defaults(t *testing.T) {
	config := DefaultFeedConfig()

	assert.NotEmpty(t, config.WSEndpoint)
	assert.Len(t, config.ProgramIDs, 2)
	assert.Equal(t, 1000, config.ReconnectDelayMs)
	assert.Equal(t, 30, config.PingIntervalS)
	assert.Equal(t, 0, config.MaxReconnects) // 0 = unlimited reconnects
}

func TestNewLaunchFeed(t *testing.T) {
	feed := NewLaunchFeed(DefaultFeedConfig())

	assert.NotNil(t, feed)
	assert.False(t, feed.Connected())

	stats := feed.Stats()
	assert.False(t, stats.Connected)
	assert.Equal(t, int64(0), stats.LaunchesEmitted)
}

func launchNotification(t *testing.T, sig string, slot uint64, logs []string) []byte {
	t.Helper()

	payload := map[string]any{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]any{
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value": map[string]any{
					"signature": sig,
					"logs":      logs,
				},
			},
			"subscription": 1,
		},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

func TestHandleMessage_EmitsLaunch(t *testing.T) {
	feed := NewLaunchFeed(DefaultFeedConfig())

	logs := []string{
		"Program " + RaydiumAMMProgram + " invoke [1]",
		"Program log: InitializeInstruction2",
	}
	feed.handleMessage(launchNotification(t, "sig123", 42, logs))

	select {
	case ev := <-feed.eventChan:
		assert.Equal(t, "sig123", ev.Signature)
		assert.Equal(t, uint64(42), ev.Slot)
		assert.Equal(t, VenueRaydium, ev.Venue)
		assert.False(t, ev.DetectedAt.IsZero())
	default:
		t.Fatal("expected a launch event")
	}

	assert.Equal(t, int64(1), feed.Stats().LaunchesEmitted)
}

func TestHandleMessage_IgnoresNonLaunch(t *testing.T) {
	feed := NewLaunchFeed(DefaultFeedConfig())

	feed.handleMessage(launchNotification(t, "sig456", 43, []string{"Program log: Swap"}))
	feed.handleMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":7}`))
	feed.handleMessage([]byte(`not even json`))

	select {
	case <-feed.eventChan:
		t.Fatal("expected no events")
	default:
	}

	assert.Equal(t, int64(0), feed.Stats().LaunchesEmitted)
}

func TestFeed_EndToEnd(t *testing.T) {
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Read the logsSubscribe requests and confirm each.
		for i := 0; i < 2; i++ {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			assert.Equal(t, "logsSubscribe", req["method"])
			conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": i + 1})
		}

		logs := []string{
			"Program " + PumpFunProgram + " invoke [1]",
			"Program log: Create",
			"Program log: InitializeMint2",
		}
		conn.WriteMessage(websocket.TextMessage, launchNotification(t, "wire-sig", 99, logs))

		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer server.Close()

	config := DefaultFeedConfig()
	config.WSEndpoint = "ws" + strings.TrimPrefix(server.URL, "http")
	config.MaxReconnects = 1

	feed := NewLaunchFeed(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := feed.Start(ctx)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "wire-sig", ev.Signature)
		assert.Equal(t, uint64(99), ev.Slot)
		assert.Equal(t, VenuePumpFun, ev.Venue)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for launch event")
	}

	assert.True(t, feed.Connected())
	assert.GreaterOrEqual(t, feed.Stats().MessagesRecv, int64(1))
}
