package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spot-matching/internal/account"
	"spot-matching/internal/api"
	"spot-matching/internal/config"
	"spot-matching/internal/engine"
	"spot-matching/internal/events"
	"spot-matching/internal/logger"
	"spot-matching/internal/matching"
	"spot-matching/internal/persistence"
	"spot-matching/internal/projection"
)

func main() {
	configPath := flag.String("config", os.Getenv("MATCHING_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pairs, err := cfg.PairRegistry()
	if err != nil {
		return err
	}
	algorithm, err := cfg.Algorithm()
	if err != nil {
		return err
	}
	schedule, err := cfg.FeeSchedule()
	if err != nil {
		return err
	}
	fees, err := matching.NewFeeCalculator(schedule)
	if err != nil {
		return err
	}

	ledger := account.NewMemoryService(account.WithFeeAccount(cfg.Fees.AccountID))

	journal, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	var snapshots *persistence.FileSnapshotStore
	if journal != nil {
		defer func() { _ = journal.Close() }()
		snapshots, err = persistence.NewFileSnapshotStore(cfg.Snapshot.Dir, cfg.Snapshot.Keep)
		if err != nil {
			return err
		}
		defer func() { _ = snapshots.Close() }()
	}

	orders := projection.NewMemoryOrderRepository()
	trades := projection.NewMemoryTradeRepository()
	projector := projection.NewProjector(orders, trades)
	bus := events.NewBus(log.Named("events"))
	bus.Subscribe("projection", projector.Handle)

	publishers := events.MultiPublisher{bus}
	if cfg.Kafka.Enabled {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kafka.Close() }()
		publishers = append(publishers, kafka)
		log.Info("kafka publisher enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	deps := engine.Dependencies{
		Pairs:     pairs,
		Algorithm: algorithm,
		Fees:      fees,
		Ledger:    ledger,
		Publisher: publishers,
		Logger:    log.Named("engine"),
	}
	if journal != nil {
		deps.Journal = journal
		deps.Snapshots = snapshots
	}
	eng, err := engine.NewEngine(&engine.EngineConfig{
		QueueSize:               cfg.Engine.QueueSize,
		IdempotencyTTL:          cfg.Engine.IdempotencyTTL,
		RejectMarketOnEmptyBook: cfg.Engine.RejectMarketOnEmptyBook,
		SnapshotEvery:           cfg.Engine.SnapshotEvery,
		RetainTerminalOrders:    cfg.Engine.RetainTerminalOrders,
	}, deps)
	if err != nil {
		return err
	}

	if journal != nil {
		if err := eng.Recover(ctx, persistence.NewJournalRecoveryService(journal, snapshots)); err != nil {
			return err
		}
	}
	eng.Start()
	defer eng.Stop()

	// The read model starts empty; skip it past events emitted before this process.
	for _, pair := range eng.Pairs() {
		snap, err := eng.BookSnapshot(ctx, pair, 0)
		if err != nil {
			return err
		}
		if snap.Sequence() > 0 {
			if err := projector.Resume(ctx, pair, snap.Sequence()); err != nil {
				return err
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Dependencies{
		Engine:   eng,
		Accounts: ledger,
		Pairs:    pairs,
		Orders:   orders,
		Trades:   trades,
		Logger:   log.Named("api"),
	})
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openJournal opens the configured journal, or returns nil when journaling is disabled.
func openJournal(cfg config.JournalConfig) (persistence.Journal, error) {
	switch cfg.Driver {
	case "file":
		return persistence.NewFileJournal(cfg.Dir)
	case "pebble":
		return persistence.OpenPebbleJournal(cfg.Dir)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}
