package service

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const featureFlagsKey = "spamguard:feature_flags"

// FeatureFlags reads flags from a redis hash, falling back to configured
// defaults. Lookups are cached locally for a short time.
type FeatureFlags struct {
	rdb      *redis.Client
	local    *cache.Cache
	defaults map[string]bool
	logger   *zap.Logger
}

func NewFeatureFlags(rdb *redis.Client, defaults map[string]bool, ttl time.Duration, logger *zap.Logger) *FeatureFlags {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FeatureFlags{
		rdb:      rdb,
		local:    cache.New(ttl, 2*ttl),
		defaults: defaults,
		logger:   logger.With(zap.String("module", "feature_flags")),
	}
}

func (f *FeatureFlags) Enabled(ctx context.Context, name string) bool {
	if cached, found := f.local.Get(name); found {
		return cached.(bool)
	}
	if f.rdb == nil {
		return f.defaults[name]
	}

	raw, err := f.rdb.HGet(ctx, featureFlagsKey, name).Result()
	if errors.Is(err, redis.Nil) {
		f.local.Set(name, f.defaults[name], cache.DefaultExpiration)
		return f.defaults[name]
	}
	if err != nil {
		f.logger.Warn("feature flag lookup failed, using default", zap.String("flag", name), zap.Error(err))
		return f.defaults[name]
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		f.logger.Warn("invalid feature flag value", zap.String("flag", name), zap.String("value", raw))
		enabled = f.defaults[name]
	}
	f.local.Set(name, enabled, cache.DefaultExpiration)
	return enabled
}

// Set stores a flag value in redis.
func (f *FeatureFlags) Set(ctx context.Context, name string, enabled bool) error {
	if f.rdb == nil {
		return errors.New("feature flags: redis is not configured")
	}
	if err := f.rdb.HSet(ctx, featureFlagsKey, name, strconv.FormatBool(enabled)).Err(); err != nil {
		return errors.Wrap(err, "feature flags: set")
	}
	f.local.Delete(name)
	return nil
}
