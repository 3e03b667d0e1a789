package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/totegamma/spamguard/internal/config"
	"github.com/totegamma/spamguard/internal/infrastructure/database"
	"github.com/totegamma/spamguard/internal/infrastructure/providers"
	"github.com/totegamma/spamguard/internal/infrastructure/queue"
	"github.com/totegamma/spamguard/internal/usecase"
)

var (
	configPath string
	debug      bool

	conf   config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spamguard",
	Short: "Automated spam moderation for a Forem community",
	Long: `spamguard detects spam content, blocks email domains that only produce
spam accounts and penalizes reaction rings.

It runs as a server consuming content events, or as one-off commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if debug {
			zapConfig = zap.NewDevelopmentConfig()
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)

		conf, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SPAMGUARD_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(checkDomainCmd)
	rootCmd.AddCommand(handleCmd)
	rootCmd.AddCommand(scanRingsCmd)
	rootCmd.AddCommand(flagCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// stack bundles the wired app with the clients that need closing.
type stack struct {
	app   *providers.App
	infra providers.Infra
	rmq   *queue.RabbitMQ
}

func (r *stack) Close() {
	if r.rmq != nil {
		r.rmq.Close()
	}
	if r.infra.Redis != nil {
		r.infra.Redis.Close()
	}
	if r.infra.DB != nil {
		if sqlDB, err := r.infra.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// buildStack connects every configured backend. The queue is only
// dialed when withQueue is set and a URL is configured.
func buildStack(ctx context.Context, withQueue bool) (*stack, error) {
	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	classifiers, err := providers.NewClassifiers(ctx, conf.AI, logger)
	if err != nil {
		return nil, err
	}

	r := &stack{
		infra: providers.Infra{
			DB:          db,
			Redis:       providers.NewRedis(conf.Server),
			Memcache:    providers.NewMemcache(conf.Server),
			Classifiers: classifiers,
		},
	}

	if err := database.PingRedis(ctx, r.infra.Redis); err != nil {
		logger.Warn("redis is not reachable, flags and counters use defaults", zap.Error(err))
	}

	var jobs usecase.RingJobPublisher
	if withQueue && conf.RabbitMQ.URL != "" {
		r.rmq, err = providers.NewRabbitMQ(conf.RabbitMQ, logger)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to connect rabbitmq: %w", err)
		}
		jobs = r.rmq
	}

	r.app = providers.NewApp(conf, r.infra, jobs, logger)
	return r, nil
}
