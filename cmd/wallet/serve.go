package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wallet/internal/amqp"
	"wallet/internal/cache"
	"wallet/internal/cli"
	"wallet/internal/events"
	apphttp "wallet/internal/http"
	"wallet/internal/log"
	"wallet/internal/middleware/ratelimit"
	"wallet/internal/services"
	"wallet/internal/view"
	"wallet/internal/worker"
)

const cacheSweepInterval = time.Minute

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the storage-imported listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg, logger := a.cfg, a.logger
	logger.Info("Starting wallet server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		log.FieldKey, cfg.StorageKey)

	store, res, err := a.openLedger(parent, cfg.OnMalformed)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("Closing backend", log.FieldError, err)
		}
	}()
	logger.Info("Ledger loaded", log.FieldCount, store.Len())

	bus := events.NewBus()
	store.OnExternalReplace(bus)

	rows := cache.NewLRUCache[[]view.Row](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(rows)

	svc := services.NewWalletService(store, rows, logger)
	srv := apphttp.NewServer(apphttp.Options{
		Addr:      cfg.Addr(),
		Service:   svc,
		Publisher: bus,
		Hub:       apphttp.NewHub(store, logger),
		Limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMin}),
		RowsCache: rows,
		Ready:     res.Ping,
		Logger:    logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	runCtx, stop := context.WithCancel(parent)
	defer stop()
	ctx, done := cli.GracefulShutdown(runCtx, logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		return caches.Run(gctx, cacheSweepInterval)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			stop()
			<-done
			return err
		}
		defer client.Close()
		g.Go(func() error {
			relay := worker.NewImportWorker(store.Key(), bus, logger)
			err := client.ConsumeStorageImported(gctx, relay.HandleImportMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, storage-imported only accepted over HTTP")
	}

	// Whatever ends first takes the rest down with it.
	g.Go(func() error {
		<-gctx.Done()
		stop()
		return nil
	})

	err = g.Wait()
	<-done
	return err
}
