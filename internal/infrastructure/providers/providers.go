package providers

import (
	"context"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/totegamma/spamguard/internal/config"
	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/database"
	"github.com/totegamma/spamguard/internal/infrastructure/events"
	"github.com/totegamma/spamguard/internal/infrastructure/gateway"
	"github.com/totegamma/spamguard/internal/infrastructure/queue"
	"github.com/totegamma/spamguard/internal/infrastructure/repository"
	"github.com/totegamma/spamguard/internal/service"
	"github.com/totegamma/spamguard/internal/usecase"
)

// NewDatabase opens a Postgres connection using the configured DSN.
func NewDatabase(conf config.Server) (*gorm.DB, error) {
	return database.NewPostgres(conf.PostgresDsn)
}

// MigrateDatabase applies migrations for the application models.
func MigrateDatabase(db *gorm.DB) error {
	return database.Migrate(db)
}

func NewRedis(conf config.Server) *redis.Client {
	return database.NewRedis(conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
}

// NewMemcache creates a memcache client, or nil when none is configured.
func NewMemcache(conf config.Server) *memcache.Client {
	return database.NewMemcached(conf.MemcachedAddr)
}

// NewClassifiers constructs the Gemini classifiers for every content kind.
func NewClassifiers(ctx context.Context, conf config.AI, logger *zap.Logger) (map[domain.ContentKind]usecase.ContentClassifier, error) {
	return gateway.NewGeminiClassifiers(ctx, conf.APIKey, conf.Model, conf.CacheTTL, logger)
}

func NewKafkaConsumer(conf config.Kafka) (*events.KafkaConsumer, error) {
	return events.NewKafkaConsumer(conf.Brokers, conf.GroupID, conf.Topics)
}

func NewRabbitMQ(conf config.RabbitMQ, logger *zap.Logger) (*queue.RabbitMQ, error) {
	return queue.NewRabbitMQ(conf.URL, conf.InstanceID, logger)
}

// Infra holds the shared clients every command builds on.
type Infra struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Memcache    *memcache.Client
	Classifiers map[domain.ContentKind]usecase.ContentClassifier
}

// App is the fully wired set of repositories, services and detectors.
type App struct {
	Users      *repository.UserRepository
	Content    *repository.ContentRepository
	Reactions  *repository.ReactionRepository
	Graph      *repository.SocialGraphRepository
	Moderation *repository.ModerationRepository

	Trigger *service.RateLimitChecker
	Flags   *service.FeatureFlags
	Signal  *service.SignalService
	Auth    *service.AuthService

	DomainDetector *usecase.DomainDetector
	SpamHandler    *usecase.SpamHandler
	RingDetector   *usecase.ReactionRingDetector
	RingScanner    *usecase.RingScanner
}

// NewApp wires the detectors. jobs may be nil when no queue is configured.
func NewApp(conf config.Config, infra Infra, jobs usecase.RingJobPublisher, logger *zap.Logger) *App {
	spamConfig := conf.SpamConfig()

	app := &App{
		Users:      repository.NewUserRepository(infra.DB),
		Content:    repository.NewContentRepository(infra.DB),
		Reactions:  repository.NewReactionRepository(infra.DB),
		Graph:      repository.NewSocialGraphRepository(infra.DB),
		Moderation: repository.NewModerationRepository(infra.DB, infra.Memcache),

		Trigger: service.NewRateLimitChecker(spamConfig.SpamTriggerTerms, infra.Redis, logger),
		Flags:   service.NewFeatureFlags(infra.Redis, conf.Spam.Flags, conf.Spam.FlagCacheTTL, logger),
		Signal:  service.NewSignalService(infra.Redis, conf.Server.SignalChannel, logger),
		Auth:    service.NewAuthService(conf.Server.AdminToken),
	}

	app.DomainDetector = usecase.NewDomainDetector(app.Users, app.Moderation, app.Signal, spamConfig, logger)
	app.SpamHandler = usecase.NewSpamHandler(
		app.Users,
		app.Content,
		app.Reactions,
		app.Moderation,
		app.Trigger,
		infra.Classifiers,
		app.Flags,
		app.Signal,
		spamConfig,
		logger,
	)
	app.RingDetector = usecase.NewReactionRingDetector(
		app.Users,
		app.Reactions,
		app.Graph,
		app.Moderation,
		app.Signal,
		spamConfig,
		conf.RingThresholds(),
		logger,
	)
	app.RingScanner = usecase.NewRingScanner(app.Reactions, app.RingDetector, jobs, conf.Ring.ScanConcurrency, logger)

	return app
}
