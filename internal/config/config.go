package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/usecase"
)

const envPrefix = "SPAMGUARD_"

type Config struct {
	Server   Server   `yaml:"server"`
	Spam     Spam     `yaml:"spam"`
	AI       AI       `yaml:"ai"`
	Kafka    Kafka    `yaml:"kafka"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Ring     Ring     `yaml:"ring"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
	AdminToken    string `yaml:"adminToken"`
	SignalChannel string `yaml:"signalChannel"`
}

type Spam struct {
	TriggerTerms               []string        `yaml:"triggerTerms"`
	MascotUserID               int64           `yaml:"mascotUserID"`
	ArticleBadgeTrustThreshold *int            `yaml:"articleBadgeTrustThreshold"`
	CommentBadgeTrustThreshold *int            `yaml:"commentBadgeTrustThreshold"`
	SpammyReactionThreshold    *int64          `yaml:"spammyReactionThreshold"`
	Flags                      map[string]bool `yaml:"flags"`
	FlagCacheTTL               time.Duration   `yaml:"flagCacheTTL"`
}

type AI struct {
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	GroupID      string        `yaml:"groupID"`
	Topics       []string      `yaml:"topics"`
	PollInterval time.Duration `yaml:"pollInterval"`
	DedupTTL     time.Duration `yaml:"dedupTTL"`
}

type RabbitMQ struct {
	URL        string `yaml:"url"`
	InstanceID string `yaml:"instanceID"`
}

// Ring overrides individual reaction ring thresholds; zero values keep the
// defaults.
type Ring struct {
	Window               time.Duration `yaml:"window"`
	MinReactions         int64         `yaml:"minReactions"`
	TargetAuthorShare    float64       `yaml:"targetAuthorShare"`
	MaxTargetAuthors     int           `yaml:"maxTargetAuthors"`
	MinConcentration     float64       `yaml:"minConcentration"`
	MinSharedReactions   int64         `yaml:"minSharedReactions"`
	MinSharedAuthors     int           `yaml:"minSharedAuthors"`
	MinCandidateShare    float64       `yaml:"minCandidateShare"`
	MaxSelfReactionShare float64       `yaml:"maxSelfReactionShare"`
	MinRingSize          int           `yaml:"minRingSize"`
	PenaltyFactor        float64       `yaml:"penaltyFactor"`
	ScanConcurrency      int           `yaml:"scanConcurrency"`
}

// Load reads the YAML file at path and applies SPAMGUARD_* environment
// overrides. An empty path yields a config built from the environment only.
func Load(path string) (Config, error) {

	var config Config
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()

		err = yaml.NewDecoder(file).Decode(&config)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse %s", path)
		}
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// validate rejects negative thresholds. Zero is allowed and means any
// badge trusts an author, or a single spam reaction suspends them.
func (c *Config) validate() error {
	if t := c.Spam.ArticleBadgeTrustThreshold; t != nil && *t < 0 {
		return errors.Errorf("spam.articleBadgeTrustThreshold must not be negative, got %d", *t)
	}
	if t := c.Spam.CommentBadgeTrustThreshold; t != nil && *t < 0 {
		return errors.Errorf("spam.commentBadgeTrustThreshold must not be negative, got %d", *t)
	}
	if t := c.Spam.SpammyReactionThreshold; t != nil && *t < 0 {
		return errors.Errorf("spam.spammyReactionThreshold must not be negative, got %d", *t)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	strs := map[string]*string{
		"POSTGRES_DSN":   &c.Server.PostgresDsn,
		"REDIS_ADDR":     &c.Server.RedisAddr,
		"REDIS_PASSWORD": &c.Server.RedisPassword,
		"MEMCACHED_ADDR": &c.Server.MemcachedAddr,
		"ADMIN_TOKEN":    &c.Server.AdminToken,
		"LISTEN":         &c.Server.Listen,
		"AI_API_KEY":     &c.AI.APIKey,
		"RABBITMQ_URL":   &c.RabbitMQ.URL,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "spamguard"
	}
	if c.RabbitMQ.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "spamguard"
		}
		c.RabbitMQ.InstanceID = host
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SpamConfig maps the spam section onto the detectors' settings. Unset
// thresholds keep their defaults.
func (c Config) SpamConfig() domain.SpamConfig {
	spam := domain.DefaultSpamConfig()
	spam.SpamTriggerTerms = c.Spam.TriggerTerms
	spam.MascotUserID = c.Spam.MascotUserID
	spam.AIAPIKeyPresent = c.AI.APIKey != ""
	spam.UnpublishOnAutoSuspend = c.Spam.Flags[domain.FlagUnpublishOnAutoSuspend]
	spam.MoreRigorousProfileCheck = c.Spam.Flags[domain.FlagMoreRigorousProfileChecking]
	spam.AITimeout = c.AI.Timeout
	if t := c.Spam.ArticleBadgeTrustThreshold; t != nil {
		spam.ArticleBadgeTrustThreshold = *t
	}
	if t := c.Spam.CommentBadgeTrustThreshold; t != nil {
		spam.CommentBadgeTrustThreshold = *t
	}
	if t := c.Spam.SpammyReactionThreshold; t != nil {
		spam.SpammyReactionThreshold = *t
	}
	return spam.WithDefaults()
}

// RingThresholds returns the default thresholds with configured overrides.
func (c Config) RingThresholds() usecase.RingThresholds {
	t := usecase.DefaultRingThresholds()
	r := c.Ring
	if r.Window > 0 {
		t.Window = r.Window
	}
	if r.MinReactions > 0 {
		t.MinReactions = r.MinReactions
	}
	if r.TargetAuthorShare > 0 {
		t.TargetAuthorShare = r.TargetAuthorShare
	}
	if r.MaxTargetAuthors > 0 {
		t.MaxTargetAuthors = r.MaxTargetAuthors
	}
	if r.MinConcentration > 0 {
		t.MinConcentration = r.MinConcentration
	}
	if r.MinSharedReactions > 0 {
		t.MinSharedReactions = r.MinSharedReactions
	}
	if r.MinSharedAuthors > 0 {
		t.MinSharedAuthors = r.MinSharedAuthors
	}
	if r.MinCandidateShare > 0 {
		t.MinCandidateShare = r.MinCandidateShare
	}
	if r.MaxSelfReactionShare > 0 {
		t.MaxSelfReactionShare = r.MaxSelfReactionShare
	}
	if r.MinRingSize > 0 {
		t.MinRingSize = r.MinRingSize
	}
	if r.PenaltyFactor > 0 {
		t.PenaltyFactor = r.PenaltyFactor
	}
	return t
}
