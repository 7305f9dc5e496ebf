package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket Launch Feed — real-time token launch detection via logsSubscribe
// Subscribes to Raydium/Pump.fun program logs to detect mint creation
// ---------------------------------------------------------------------------

// FeedConfig configures the WebSocket launch feed.
type FeedConfig struct {
	WSEndpoint       string   `yaml:"ws_endpoint"`
	ProgramIDs       []string `yaml:"program_ids"`
	ReconnectDelayMs int      `yaml:"reconnect_delay_ms"`
	PingIntervalS    int      `yaml:"ping_interval_s"`
	MaxReconnects    int      `yaml:"max_reconnects"`
}

// DefaultFeedConfig returns defaults for mainnet monitoring.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		WSEndpoint: "wss://api.mainnet-beta.solana.com",
		ProgramIDs: []string{
			RaydiumAMMProgram,
			PumpFunProgram,
		},
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0, // 0 = unlimited reconnects
	}
}

// LaunchEvent is emitted when a token launch is detected on the wire.
// It carries only what the log stream provides; the pipeline enriches it
// into a full TokenSnapshot via RPC.
type LaunchEvent struct {
	Signature  string    `json:"signature"`
	Slot       uint64    `json:"slot"`
	Logs       []string  `json:"logs"`
	Venue      Venue     `json:"venue"`
	DetectedAt time.Time `json:"detected_at"`
}

// LaunchFeed monitors the chain WebSocket for token launch events.
type LaunchFeed struct {
	config FeedConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	eventChan chan LaunchEvent
	closed    atomic.Bool

	nextSubID atomic.Int64

	// Stats.
	messagesRecv    atomic.Int64
	launchesEmitted atomic.Int64
	reconnects      atomic.Int64
	connected       atomic.Bool
}

// NewLaunchFeed creates a new WebSocket launch feed.
func NewLaunchFeed(config FeedConfig) *LaunchFeed {
	return &LaunchFeed{
		config:    config,
		eventChan: make(chan LaunchEvent, 256),
	}
}

// Start connects and begins monitoring. Returns the event channel; the feed
// runs until ctx is cancelled.
func (f *LaunchFeed) Start(ctx context.Context) (<-chan LaunchEvent, error) {
	go f.runLoop(ctx)
	return f.eventChan, nil
}

// Connected reports whether the feed currently holds a live connection.
func (f *LaunchFeed) Connected() bool {
	return f.connected.Load()
}

func (f *LaunchFeed) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: runLoop panic recovered")
		}
		// Write lock synchronizes with handleMessage's channel send.
		f.mu.Lock()
		if f.closed.CompareAndSwap(false, true) {
			close(f.eventChan)
		}
		f.mu.Unlock()
	}()

	reconnectDelay := time.Duration(f.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			f.disconnect()
			return
		default:
		}

		if f.config.MaxReconnects > 0 && reconnectCount >= f.config.MaxReconnects {
			log.Error().Int("max", f.config.MaxReconnects).Msg("feed: max reconnects reached, cooling down")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				f.disconnect()
				return
			}
		}

		if err := f.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("feed: connection failed")
			reconnectCount++
			f.reconnects.Add(1)

			maxDelay := 30 * time.Second
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(f.config.ReconnectDelayMs) * time.Millisecond

		for _, programID := range f.config.ProgramIDs {
			if err := f.subscribe(programID); err != nil {
				log.Warn().Err(err).Str("program", shortAddr(programID)).Msg("feed: subscribe failed")
			}
		}

		f.readLoop(ctx)
	}
}

func (f *LaunchFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("feed: dial: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.connected.Store(true)

	log.Info().Str("endpoint", f.config.WSEndpoint).Msg("feed: connected")
	return nil
}

func (f *LaunchFeed) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected.Store(false)
}

// subscribe sends a logsSubscribe RPC request for a program.
func (f *LaunchFeed) subscribe(programID string) error {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("feed: not connected")
	}

	subID := f.nextSubID.Add(1)

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      subID,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{
				"mentions": []string{programID},
			},
			map[string]any{
				"commitment": "confirmed",
			},
		},
	}

	f.mu.Lock()
	err := f.conn.WriteJSON(req)
	f.mu.Unlock()

	if err != nil {
		return fmt.Errorf("feed: write subscribe: %w", err)
	}

	log.Info().
		Str("program", shortAddr(programID)).
		Str("venue", string(venueForProgram(programID))).
		Msg("feed: subscribed to program logs")

	return nil
}

func (f *LaunchFeed) readLoop(ctx context.Context) {
	pingInterval := time.Duration(f.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("feed: ping failed")
					return
				}
			}
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("feed: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("feed: read error, reconnecting")
			}
			f.connected.Store(false)
			return
		}

		f.messagesRecv.Add(1)
		f.handleMessage(message)
	}
}

func (f *LaunchFeed) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("feed: handleMessage panic recovered")
		}
	}()

	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string   `json:"signature"`
					Logs      []string `json:"logs"`
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
			Subscription int `json:"subscription"`
		} `json:"params"`
	}

	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}

	if notification.Method != "logsNotification" {
		var subResp struct {
			Result int `json:"result"`
		}
		if json.Unmarshal(data, &subResp) == nil && subResp.Result > 0 {
			log.Debug().Int("sub_id", subResp.Result).Msg("feed: subscription confirmed")
		}
		return
	}

	logs := notification.Params.Result.Value.Logs
	sig := notification.Params.Result.Value.Signature
	slot := notification.Params.Result.Context.Slot

	if !isLaunchEvent(logs) {
		return
	}

	event := LaunchEvent{
		Signature:  sig,
		Slot:       slot,
		Logs:       logs,
		Venue:      venueFromLogs(logs),
		DetectedAt: time.Now(),
	}

	f.launchesEmitted.Add(1)

	// Mutex-synchronized send guards against send-on-closed-channel
	// when runLoop shuts down concurrently.
	f.mu.RLock()
	if !f.closed.Load() {
		select {
		case f.eventChan <- event:
			log.Info().
				Str("sig", shortAddr(sig)).
				Str("venue", string(event.Venue)).
				Uint64("slot", slot).
				Msg("feed: NEW LAUNCH DETECTED")
		default:
			log.Warn().Msg("feed: event channel full, dropping launch")
		}
	}
	f.mu.RUnlock()
}

// isLaunchEvent checks logs for pool/mint initialization markers.
func isLaunchEvent(logs []string) bool {
	hasCreate := false
	hasInitMint := false

	for _, l := range logs {
		// Raydium AMM pool init.
		if strings.Contains(l, "InitializeInstruction2") || strings.Contains(l, "initialize2") {
			return true
		}
		// Pump.fun markers (may be on separate log lines).
		if strings.Contains(l, "Create") {
			hasCreate = true
		}
		if strings.Contains(l, "InitializeMint2") {
			hasInitMint = true
		}
	}

	// Pump.fun bonding curve creation requires both markers.
	return hasCreate && hasInitMint
}

// venueFromLogs determines which DEX produced the launch.
func venueFromLogs(logs []string) Venue {
	for _, l := range logs {
		if strings.Contains(l, RaydiumAMMProgram) {
			return VenueRaydium
		}
		if strings.Contains(l, PumpFunProgram) {
			return VenuePumpFun
		}
	}
	return VenueUnknown
}

func venueForProgram(programID string) Venue {
	switch programID {
	case RaydiumAMMProgram:
		return VenueRaydium
	case PumpFunProgram:
		return VenuePumpFun
	default:
		return VenueUnknown
	}
}

func shortAddr(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// FeedStats returns feed statistics.
type FeedStats struct {
	Connected       bool  `json:"connected"`
	MessagesRecv    int64 `json:"messages_recv"`
	LaunchesEmitted int64 `json:"launches_emitted"`
	Reconnects      int64 `json:"reconnects"`
}

func (f *LaunchFeed) Stats() FeedStats {
	return FeedStats{
		Connected:       f.connected.Load(),
		MessagesRecv:    f.messagesRecv.Load(),
		LaunchesEmitted: f.launchesEmitted.Load(),
		Reconnects:      f.reconnects.Load(),
	}
}
