package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/health"
	"github.com/vladislavdragonenkov/dropship/internal/reconcile"
	"github.com/vladislavdragonenkov/dropship/internal/service/ledger"
	"github.com/vladislavdragonenkov/dropship/internal/service/outbox"
	"github.com/vladislavdragonenkov/dropship/internal/sourcing"
	"github.com/vladislavdragonenkov/dropship/internal/sweep"
	transport "github.com/vladislavdragonenkov/dropship/internal/transport/http"
	"github.com/vladislavdragonenkov/dropship/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run собирает сервис и работает до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, keeping default")
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	dispatcher := reconcile.NewDispatcher(reconcile.Config{
		Lots:          deps.Lots,
		Events:        deps.Events,
		PaymentOrders: deps.PayOrders,
		Outbox:        deps.Outbox,
		History:       deps.History,
		Gateway:       deps.Gateway,
		Supplier:      deps.Supplier,
		Buyers:        deps.Buyers,
		Alerts:        deps.Alerts,
		Logger:        logger.WithField("component", "dispatcher"),
		Metrics:       deps.Metrics,
		LedgerTTL:     cfg.LedgerTTL,
	})

	sweeper := sweep.NewSweeper(sweep.Config{
		Lots:      deps.Lots,
		PayOrders: deps.PayOrders,
		Outbox:    deps.Outbox,
		History:   deps.History,
		Auction:   deps.Auction,
		Gateway:   deps.Gateway,
		Fulfiller: dispatcher,
		Alerts:    deps.Alerts,
		Logger:    logger.WithField("component", "sweep"),
		Metrics:   deps.Metrics,
		Staleness: cfg.SweepStaleness,
	})

	sourcer := sourcing.NewOrchestrator(sourcing.Config{
		Lots:     deps.Lots,
		History:  deps.History,
		Supplier: deps.Supplier,
		Auction:  deps.Auction,
		Logger:   logger.WithField("component", "sourcing"),
		Metrics:  deps.Metrics,
		Quota:    cfg.SourcingQuota,
		Query:    cfg.CatalogQuery(),
		Fees:     cfg.Fees(),
	})

	healthHandler := health.NewHandler(version.String())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(pingCtx)
		}))
	}
	healthHandler.RegisterChecker("outbox", health.NewSimpleChecker("outbox", func() error {
		_, err := deps.Outbox.Stats()
		return err
	}))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup

	if deps.Publisher != nil {
		worker := outbox.NewWorker(
			deps.Outbox,
			deps.Publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(deps.DLQPublisher),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Warn("kafka is not configured, outbox messages will accumulate unpublished")
	}

	cleanup := ledger.NewCleanupWorker(
		deps.Events,
		ledger.WithLogger(logger.WithField("component", "ledger-cleanup-worker")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(workerCtx)
	}()

	runner := sweep.NewRunner(sweeper, cfg.SweepInterval, logger.WithField("component", "sweep-runner"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(workerCtx)
	}()

	if cfg.SourcingInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSourcingLoop(workerCtx, sourcer, cfg.SourcingInterval, logger)
		}()
	}

	server := transport.NewServer(transport.Config{
		Dispatcher:     dispatcher,
		Sweeper:        sweeper,
		Health:         healthHandler,
		Logger:         logger.WithField("component", "http"),
		PaymentSecret:  cfg.PaymentWebhookSecret,
		SupplierSecret: cfg.SupplierWebhookSecret,
		SweepSecret:    cfg.SweepSecret,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP сервер слушает %s", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		shutdownHTTP(httpSrv, logger)
		stopWorkers()
		wg.Wait()
		return ctx.Err()
	case err := <-errCh:
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runSourcingLoop периодически пополняет пайплайн новыми лотами до квоты.
func runSourcingLoop(ctx context.Context, sourcer *sourcing.Orchestrator, interval time.Duration, logger *log.Entry) {
	run := func() {
		published, err := sourcer.Run()
		if err != nil {
			logger.WithError(err).Warn("sourcing pass failed")
			return
		}
		if published > 0 {
			logger.WithField("published", published).Info("sourcing pass completed")
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
