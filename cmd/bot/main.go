// Package main runs the launch and liquidate cycle bot until interrupted.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pump-cycle-bot/internal/config"
	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/idhash"
	"pump-cycle-bot/internal/ledger"
	"pump-cycle-bot/internal/logging"
	"pump-cycle-bot/internal/metadata"
	"pump-cycle-bot/internal/monitor"
	"pump-cycle-bot/internal/observability"
	"pump-cycle-bot/internal/orchestrator"
	"pump-cycle-bot/internal/retry"
	"pump-cycle-bot/internal/solana"
	"pump-cycle-bot/internal/storage"
	chstore "pump-cycle-bot/internal/storage/clickhouse"
	"pump-cycle-bot/internal/storage/migrations"
	pgstore "pump-cycle-bot/internal/storage/postgres"
	"pump-cycle-bot/internal/submitter"
	"pump-cycle-bot/internal/wallet"
)

const forceExitTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "YAML configuration file (optional)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logrus.WithError(err).Fatal("load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	log, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.WithError(err).Fatal("configure logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := idhash.NewSessionID()
	log.WithFields(logrus.Fields{
		"session": sessionID,
		"rpc":     cfg.RPCEndpoint,
		"ledger":  cfg.LedgerPath,
	}).Info("starting")

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint,
		solana.WithLatencyObserver(observability.RecordRPCLatency),
		solana.WithMaxRetries(cfg.RetryAttempts),
		solana.WithRetryDelay(cfg.RetryDelay()),
		// The submitter retries these with a fresh blockhash per attempt.
		solana.WithSingleAttempt("sendTransaction", "getLatestBlockhash"),
	)

	var ws monitor.Subscriber
	if cfg.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = log
		client, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			log.WithError(err).Warn("websocket unavailable, monitoring by polling only")
		} else {
			defer client.Close()
			ws = client
		}
	}

	mirror, recorder, closeStores := openMirrors(ctx, cfg, sessionID, log)
	defer closeStores()

	sub := submitter.New(submitter.Options{
		RPC:                 rpc,
		ConfirmationTimeout: cfg.ConfirmationTimeout(),
		SkipPreflight:       cfg.SkipPreflight,
		Retry: retry.Policy{
			Attempts:   cfg.RetryAttempts,
			BaseDelay:  cfg.RetryDelay(),
			MaxDelay:   retry.DefaultMaxDelay,
			Multiplier: retry.DefaultMultiplier,
		},
		Logger: log,
	})

	wallets := wallet.New(wallet.Options{
		Dir:        cfg.WalletDir,
		RPC:        rpc,
		Submitter:  sub,
		FeeReserve: cfg.FeeReserveLamports,
		Logger:     log,
	})
	if err := ensureFundingIdentity(wallets, log); err != nil {
		log.WithError(err).Fatal("prepare wallet directory")
	}

	mon := monitor.New(monitor.Options{
		RPC:                 rpc,
		WS:                  ws,
		ScanLimit:           cfg.ScanLimit,
		ScanDelay:           cfg.ScanDelay(),
		PollInterval:        cfg.PollInterval(),
		MaxEventAge:         cfg.MaxEventAge(),
		IndeterminatePolicy: domain.IndeterminatePolicy(cfg.IndeterminatePolicy),
		Logger:              log,
	})

	ledg := ledger.New(ledger.Options{
		Path:      cfg.LedgerPath,
		Mirror:    mirror,
		SessionID: sessionID,
		Logger:    log,
	})

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	var observers []orchestrator.Observer
	if recorder != nil {
		observers = append(observers, recorder)
	}

	orch := orchestrator.New(orchestrator.Options{
		Wallets:           wallets,
		Submitter:         sub,
		Rent:              rpc,
		Metadata:          metadata.NewPoolGenerator(cfg.Metadata.Names, cfg.Metadata.Symbols, cfg.Metadata.URIs, rnd),
		StartMonitor:      orchestrator.MonitorStarter(mon),
		Ledger:            ledg,
		Observers:         observers,
		MinPurchase:       cfg.MinPurchaseLamports(),
		MaxPurchase:       cfg.MaxPurchaseLamports(),
		SlippageBps:       uint16(cfg.SlippageBps),
		FeeBps:            uint16(cfg.FeeBps),
		FeeBuffer:         cfg.FeeBufferLamports,
		SellTimeout:       cfg.SellTimeout(),
		RestartDelay:      cfg.RestartDelay(),
		ErrorRestartDelay: cfg.ErrorRestartDelay(),
		Logger:            log,
		Rand:              rnd,
	})

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("initiating graceful shutdown")

		go func() {
			select {
			case sig := <-sigCh:
				log.WithField("signal", sig.String()).Error("second signal, forcing exit")
				os.Exit(1)
			case <-done:
			}
		}()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), forceExitTimeout)
		defer cancelShutdown()
		if err := orch.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	srv := startHTTPServer(cfg.MetricsAddr, orch, log)

	if err := orch.Run(ctx); err != nil {
		log.WithError(err).Error("orchestrator stopped")
	}
	close(done)

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http server shutdown")
		}
	}

	if f, err := ledg.Load(); err == nil {
		log.WithFields(logrus.Fields{
			"cycles":       len(f.Cycles),
			"total_profit": f.TotalProfit,
		}).Info("shutdown complete")
	}
}

// openMirrors connects the optional Postgres and ClickHouse sinks. Either
// failing to connect is logged and the bot runs without it.
func openMirrors(ctx context.Context, cfg *config.Config, sessionID string, log logrus.FieldLogger) (storage.ProfitStore, *ledger.EventRecorder, func()) {
	var closers []func()
	var mirror storage.ProfitStore
	var recorder *ledger.EventRecorder

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		switch {
		case err != nil:
			log.WithError(err).Warn("postgres unavailable, profit mirror disabled")
		default:
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				log.WithError(err).Warn("postgres migrations failed, profit mirror disabled")
				pool.Close()
				break
			}
			mirror = pgstore.NewProfitStore(pool)
			closers = append(closers, pool.Close)
			log.Info("profit mirror enabled")
		}
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			log.WithError(err).Warn("clickhouse unavailable, cycle events disabled")
		} else {
			recorder = ledger.NewEventRecorder(chstore.NewCycleEventStore(conn), sessionID, log)
			closers = append(closers, func() { conn.Close() })
			log.Info("cycle event stream enabled")
		}
	}

	return mirror, recorder, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

// ensureFundingIdentity creates and persists a first identity when the wallet
// directory is empty so the operator has an address to fund.
func ensureFundingIdentity(w *wallet.Store, log logrus.FieldLogger) error {
	prior, err := w.FindPrior("")
	if err != nil {
		return err
	}
	if len(prior) > 0 {
		return nil
	}
	id, err := w.Create()
	if err != nil {
		return err
	}
	if _, err := w.Persist(id); err != nil {
		return err
	}
	log.WithField("address", id.Address()).Warn("no identities found, fund this address to start cycling")
	return nil
}

// startHTTPServer serves metrics, health and the current cycle. An empty
// address disables it.
func startHTTPServer(addr string, orch *orchestrator.Orchestrator, log logrus.FieldLogger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if orch.ShuttingDown() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("shutting down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orch.Snapshot())
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
		}
	}()
	return srv
}
