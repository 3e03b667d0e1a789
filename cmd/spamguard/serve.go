package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/totegamma/spamguard/internal/infrastructure/events"
	"github.com/totegamma/spamguard/internal/infrastructure/providers"
	"github.com/totegamma/spamguard/internal/present/rest"
	authmw "github.com/totegamma/spamguard/internal/present/rest/middleware"
	"github.com/totegamma/spamguard/internal/usecase"
)

var (
	serveMigrate      bool
	serveScanInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the moderation API, the content event consumer and the ring scan workers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply database migrations before starting")
	serveCmd.Flags().DurationVar(&serveScanInterval, "scan-interval", 0, "Periodically queue reaction ring scans (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint, "spamguard")
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	s, err := buildStack(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if serveMigrate {
		if err := providers.MigrateDatabase(s.infra.DB); err != nil {
			return err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("spamguard"))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := rest.NewHandler(
		s.app.SpamHandler,
		s.app.DomainDetector,
		s.app.RingDetector,
		s.app.Moderation,
		s.app.Flags,
		s.app.Signal,
		logger,
	)
	auth := authmw.NewAuthMiddleware(s.app.Auth)
	handler.RegisterRoutes(e, auth.RequireAdmin)

	var worker *events.ConsumerWorker
	if len(conf.Kafka.Brokers) > 0 {
		consumer, err := providers.NewKafkaConsumer(conf.Kafka)
		if err != nil {
			return err
		}
		defer consumer.Close()

		dedup := events.NewRedisDeduplicator(s.infra.Redis, conf.Kafka.DedupTTL)
		worker = events.NewConsumerWorker(logger, consumer, s.app.SpamHandler, s.app.DomainDetector, dedup, conf.Kafka.PollInterval)
	} else {
		logger.Warn("no kafka brokers configured, content events are not consumed")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", conf.Server.Listen))
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if worker != nil {
		g.Go(func() error {
			return ignoreCanceled(worker.Run(gctx))
		})
	}

	if s.rmq != nil {
		g.Go(func() error {
			return ignoreCanceled(s.rmq.StartRingConsumer(gctx, s.app.RingDetector))
		})
		if serveScanInterval > 0 {
			g.Go(func() error {
				return ignoreCanceled(enqueueRingScans(gctx, s.app.RingScanner, serveScanInterval))
			})
		}
	}

	return g.Wait()
}

// enqueueRingScans queues a scan of the users active during the ring
// window every interval.
func enqueueRingScans(ctx context.Context, scanner *usecase.RingScanner, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	window := conf.RingThresholds().Window

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := scanner.Enqueue(ctx, time.Now().Add(-window)); err != nil {
			logger.Error("failed to queue ring scans", zap.Error(err))
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
