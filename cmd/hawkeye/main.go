package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hawkeye-trading/hawkeye/internal/alerts"
	"github.com/hawkeye-trading/hawkeye/internal/chain"
	"github.com/hawkeye-trading/hawkeye/internal/config"
	"github.com/hawkeye-trading/hawkeye/internal/dedup"
	"github.com/hawkeye-trading/hawkeye/internal/execution"
	"github.com/hawkeye-trading/hawkeye/internal/history"
	"github.com/hawkeye-trading/hawkeye/internal/learner"
	"github.com/hawkeye-trading/hawkeye/internal/observability"
	"github.com/hawkeye-trading/hawkeye/internal/predict"
	"github.com/hawkeye-trading/hawkeye/internal/risk"
	"github.com/hawkeye-trading/hawkeye/internal/safety"
	"github.com/hawkeye-trading/hawkeye/internal/trader"
)

// controlState tracks the operational state for the control plane.
type controlState struct {
	paused atomic.Bool // soft pause: stop new entries, manage existing
	killed atomic.Bool // hard kill: close all, halt entries
}

func main() {
	// 1. Environment + flags.
	_ = godotenv.Load()

	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub RPC (no real chain connection)")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("Hawkeye Token Pipeline - Starting")
	log.Info().Msg("DETECT -> FILTER -> PREDICT -> EXECUTE -> LEARN")
	log.Info().Msg("=============================================")

	dryRun := cfg.Execution.DryRun
	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", dryRun).
		Bool("stub_mode", *stubMode).
		Float64("amount_sol", cfg.Execution.AmountSOL).
		Int("max_positions", cfg.Trading.MaxOpenPositions).
		Int("safety_threshold", cfg.Safety.Threshold).
		Float64("min_confidence", cfg.Entry.MinConfidence).
		Int("min_virality", cfg.Cascade.MinVirality).
		Msg("Configuration loaded")

	// 4. RPC client.
	var rpc chain.RPCClient
	var liveRPC *chain.LiveRPCClient
	if *stubMode {
		rpc = chain.NewStubRPCClient()
		log.Info().Msg("Chain RPC: STUB mode")
	} else {
		liveRPC = chain.NewLiveRPCClient(cfg.Chain.RPC())
		rpc = liveRPC
		defer liveRPC.Close()

		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rpc.Health(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.Chain.Endpoint).
				Msg("Chain RPC health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", cfg.Chain.Endpoint).Msg("Chain RPC: LIVE - connected")
		}
		healthCancel()
	}

	// 5. Seen-token store.
	seen := dedup.New(cfg.Dedup.Seen())
	if cfg.Dedup.RedisAddr != "" {
		log.Info().Str("addr", cfg.Dedup.RedisAddr).Msg("Seen store: Redis")
	} else {
		log.Info().Dur("ttl", cfg.Dedup.Seen().TTL).Msg("Seen store: in-memory")
	}

	// 6. Safety filter with HTTP oracles.
	filter := safety.NewFilter(cfg.Safety,
		safety.NewRugRiskClient(cfg.RugRisk),
		safety.NewHoneypotClient(cfg.Honeypot))
	log.Info().Int("threshold", cfg.Safety.Threshold).Msg("Safety filter initialized")

	// 7. Predictors.
	entry := predict.NewEntryPredictor(cfg.Entry)
	cascade := predict.NewCascadeSentinel(cfg.Cascade)
	log.Info().
		Bool("entry_enabled", cfg.Entry.Enabled).
		Bool("cascade_enabled", cfg.Cascade.Enabled).
		Msg("Predictors initialized")

	// 8. Execution gateway. Live submission goes through the wallet
	// collaborator; without one configured the stub wallet records
	// intents, so a non-dry-run session needs an external signer wired
	// in here.
	wallet := execution.NewStubWallet()
	if !dryRun {
		log.Warn().Msg("Live mode without an external wallet signer: submissions use the stub wallet")
	}
	gateway := execution.NewGateway(cfg.Execution.Gateway(), rpc, wallet)

	// 9. Risk engine.
	riskEngine := risk.New(cfg.Risk)

	// 10. Learner with JSON persistence and optional ClickHouse sink.
	store, err := history.NewJSONStore(cfg.Trading.HistoryDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Trading.HistoryDir).Msg("Failed to create history store")
	}
	outcomeLearner := learner.New(cfg.Learner, store)
	log.Info().
		Int("prior_trades", outcomeLearner.HistoryLen()).
		Str("dir", cfg.Trading.HistoryDir).
		Msg("Outcome learner initialized")

	var outcomeSink trader.OutcomeSink
	var chClient *history.Client
	var chWriter *history.OutcomeWriter
	if cfg.ClickHouse.Enabled {
		chClient, err = history.NewClient(cfg.ClickHouse.DSN)
		if err != nil {
			log.Warn().Err(err).Msg("ClickHouse unavailable, outcomes stay on the JSON store only")
		} else {
			schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := chClient.EnsureSchema(schemaCtx); err != nil {
				log.Warn().Err(err).Msg("ClickHouse schema setup failed")
			}
			schemaCancel()
			chWriter = history.NewOutcomeWriter(chClient,
				cfg.ClickHouse.BatchSize,
				time.Duration(cfg.ClickHouse.FlushIntervalS)*time.Second)
			outcomeSink = chWriter
			log.Info().Msg("ClickHouse outcome sink initialized")
		}
	}

	// 11. Telegram notifier.
	notifier := alerts.NewNotifier(cfg.Telegram)
	log.Info().Bool("enabled", notifier.Enabled()).Msg("Telegram alerts initialized")

	// 12. Controller.
	controller := trader.New(trader.Config{
		AmountSOL:         cfg.Execution.AmountSOL,
		InitialBalanceSOL: cfg.Trading.InitialBalanceSOL,
		MaxOpenPositions:  cfg.Trading.MaxOpenPositions,
		Monitor:           cfg.Exits,
	}, trader.Deps{
		RPC:      rpc,
		Seen:     seen,
		Filter:   filter,
		Entry:    entry,
		Cascade:  cascade,
		Gateway:  gateway,
		Risk:     riskEngine,
		Learner:  outcomeLearner,
		Notifier: notifier,
		Outcomes: outcomeSink,
	})

	// 13. Control state + health monitor.
	ctrl := &controlState{}

	healthMon := observability.NewHealthMonitor(30 * time.Second)
	healthMon.Register("rpc", observability.PingCheck(observability.PingFunc(rpc.Health)))
	if r, ok := seen.(*dedup.RedisSeen); ok {
		healthMon.Register("redis", observability.PingCheck(r))
	}
	if chClient != nil {
		healthMon.Register("clickhouse", observability.PingCheck(chClient))
	}

	var lastLaunchAt atomic.Int64
	healthMon.Register("launch_feed", observability.StalenessCheck(func() time.Time {
		ms := lastLaunchAt.Load()
		if ms == 0 {
			return time.Time{}
		}
		return time.UnixMilli(ms)
	}, 15*time.Minute))

	// 14. Context + signals.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	var wg sync.WaitGroup

	// 15. Launch detection. The WebSocket feed is the low-latency signal;
	// the RPC subscription is the polling fallback. Both resolve to full
	// token snapshots and funnel into one pipeline channel gated by the
	// control state. The seen-token store downstream absorbs the overlap.
	pipelineCh := make(chan chain.TokenSnapshot, 256)

	sendLaunch := func(snap chain.TokenSnapshot) {
		if ctrl.killed.Load() || ctrl.paused.Load() {
			return
		}
		select {
		case pipelineCh <- snap:
		default:
			log.Warn().Str("mint", string(snap.Address)).Msg("Pipeline backlog full, dropping launch")
		}
	}

	var feed *chain.LaunchFeed
	if !*stubMode {
		feed = chain.NewLaunchFeed(cfg.Feed)
		events, err := feed.Start(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Launch feed failed to start")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-events:
						if !ok {
							return
						}
						lastLaunchAt.Store(ev.DetectedAt.UnixMilli())

						resolveCtx, resolveCancel := context.WithTimeout(ctx, 15*time.Second)
						mint, err := rpc.ResolveLaunchMint(resolveCtx, ev.Signature)
						if err != nil {
							resolveCancel()
							log.Debug().Err(err).Str("signature", ev.Signature).Msg("Launch mint resolution failed")
							continue
						}
						snap, err := rpc.GetTokenSnapshot(resolveCtx, mint)
						resolveCancel()
						if err != nil {
							log.Debug().Err(err).Str("mint", string(mint)).Msg("Launch snapshot failed")
							continue
						}
						snap.Venue = ev.Venue
						snap.CreatedAt = ev.DetectedAt
						snap.DetectedAt = ev.DetectedAt

						log.Info().
							Str("mint", string(mint)).
							Str("venue", string(ev.Venue)).
							Uint64("slot", ev.Slot).
							Msg("Launch detected on the wire")
						sendLaunch(*snap)
					}
				}
			}()
		}
	}

	launches, err := rpc.SubscribeLaunches(ctx, chain.VenueRaydium)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to launches")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(pipelineCh)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-launches:
				if !ok {
					return
				}
				lastLaunchAt.Store(time.Now().UnixMilli())
				if snap.Address == "" {
					log.Debug().Msg("Launch without a resolved mint, skipping")
					continue
				}
				sendLaunch(snap)
			}
		}
	}()

	// 16. Start services.
	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.Run(ctx, pipelineCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		healthMon.Start(ctx)
	}()

	if chWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chWriter.Start(ctx)
		}()
	}

	// Drain health alerts into the log.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-healthMon.Alerts():
				evt := log.Info()
				if a.Level == "critical" {
					evt = log.Error()
				} else if a.Level == "warn" {
					evt = log.Warn()
				}
				evt.Str("component", a.Component).Str("message", a.Message).Msg("[HEALTH]")
			}
		}
	}()

	// 17. HTTP control plane.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			sys := healthMon.Check(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if sys.Status == observability.StatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(sys)
		})

		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			combined := map[string]any{
				"pipeline":  controller.Stats(),
				"execution": gateway.Stats(),
				"risk":      riskEngine.Stats(),
				"patterns":  outcomeLearner.Summary(),
				"dry_run":   dryRun,
				"paused":    ctrl.paused.Load(),
				"killed":    ctrl.killed.Load(),
			}
			if feed != nil {
				combined["feed"] = feed.Stats()
			}
			if liveRPC != nil {
				combined["rpc"] = liveRPC.Stats()
			}
			if chWriter != nil {
				flushes, errors, pending := chWriter.Stats()
				combined["clickhouse"] = map[string]any{
					"flushes": flushes, "errors": errors, "pending": pending,
				}
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(combined)
		})

		mux.HandleFunc("/positions", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(controller.Monitor().Open())
		})

		mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			ctrl.paused.Store(true)
			log.Warn().Msg("[CONTROL] System PAUSED - no new entries")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status":"paused"}`)
		})

		mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			riskEngine.Resume()
			ctrl.paused.Store(false)
			ctrl.killed.Store(false)
			log.Info().Msg("[CONTROL] System RESUMED")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status":"running"}`)
		})

		mux.HandleFunc("/control/kill", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			ctrl.killed.Store(true)
			ctrl.paused.Store(true)
			riskEngine.Kill()
			log.Error().Msg("[CONTROL] KILL SWITCH - closing all positions")

			go func() {
				killCtx, killCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer killCancel()
				for _, pos := range controller.Monitor().Open() {
					controller.Monitor().ForceClose(killCtx, pos.ID)
				}
			}()

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"status":"killed","action":"force_close_all"}`)
		})

		mux.HandleFunc("/control/status", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"paused":         ctrl.paused.Load(),
				"killed":         ctrl.killed.Load(),
				"dry_run":        dryRun,
				"open_positions": controller.Monitor().OpenCount(),
				"balance_sol":    controller.Balance().String(),
				"instance_id":    cfg.General.InstanceID,
			})
		})

		server := &http.Server{
			Addr:              cfg.General.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", cfg.General.ListenAddr).Msg("HTTP server started (health + stats + control)")

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	// 18. Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := time.Duration(cfg.Trading.StatsIntervalS) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ps := controller.Stats()
				gs := gateway.Stats()
				log.Info().
					Int64("tokens_seen", ps.TokensSeen).
					Int64("duplicates", ps.Duplicates).
					Int64("unsafe_skips", ps.UnsafeSkips).
					Int64("entry_skips", ps.EntrySkips).
					Int64("cascade_skips", ps.CascadeSkips).
					Int64("buys", ps.Buys).
					Int64("wins", ps.Wins).
					Int64("losses", ps.Losses).
					Int("open", ps.OpenPositions).
					Str("balance_sol", ps.BalanceSOL).
					Str("tips_sol", gs.TotalTipSOL).
					Bool("paused", ctrl.paused.Load()).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("Hawkeye Token Pipeline - Running")
	log.Info().Msg("Pipeline: Launch -> Dedup -> Safety -> LEP -> Cascade -> Risk -> Buy -> Monitor -> Learn")

	// 19. Block until shutdown.
	<-ctx.Done()

	log.Info().Msg("Shutting down...")

	// Close open positions with a bounded context, then wait for the
	// monitor's watchers to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, pos := range controller.Monitor().Open() {
		controller.Monitor().ForceClose(shutdownCtx, pos.ID)
	}
	shutdownCancel()
	controller.Monitor().Wait()

	if chWriter != nil {
		if err := chWriter.Close(); err != nil {
			log.Warn().Err(err).Msg("ClickHouse writer close failed")
		}
	}
	if chClient != nil {
		chClient.Close()
	}
	if r, ok := seen.(*dedup.RedisSeen); ok {
		r.Close()
	}

	wg.Wait()

	// Final summary.
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	summaryCtx, summaryCancel := context.WithTimeout(context.Background(), 10*time.Second)
	notifier.SendSummary(summaryCtx, controller.Summary(mode))
	summaryCancel()

	final := controller.Stats()
	log.Info().
		Int64("tokens_seen", final.TokensSeen).
		Int64("buys", final.Buys).
		Int64("wins", final.Wins).
		Int64("losses", final.Losses).
		Str("balance_sol", final.BalanceSOL).
		Msg("Hawkeye Token Pipeline - Final Statistics")

	log.Info().Msg("Hawkeye Token Pipeline - Shutdown complete")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "hawkeye").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "hawkeye").
			Str("instance", general.InstanceID).Logger()
	}
}
