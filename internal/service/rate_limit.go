package service

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const triggerHitsKey = "spamguard:trigger_hits"

// RateLimitChecker flags text containing any configured spam trigger term.
// Terms match case-insensitively and only as whole words.
type RateLimitChecker struct {
	pattern *regexp.Regexp
	rdb     *redis.Client
	logger  *zap.Logger
}

// NewRateLimitChecker compiles terms into one pattern. rdb may be nil; when
// set, hits are counted per term.
func NewRateLimitChecker(terms []string, rdb *redis.Client, logger *zap.Logger) *RateLimitChecker {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}

	var pattern *regexp.Regexp
	if len(quoted) > 0 {
		pattern = regexp.MustCompile(`(?i)(?:^|\W)(` + strings.Join(quoted, "|") + `)(?:\W|$)`)
	}
	return &RateLimitChecker{
		pattern: pattern,
		rdb:     rdb,
		logger:  logger.With(zap.String("module", "rate_limit_checker")),
	}
}

func (c *RateLimitChecker) TriggerSpamFor(ctx context.Context, text string) bool {
	if c.pattern == nil || text == "" {
		return false
	}
	match := c.pattern.FindStringSubmatch(text)
	if match == nil {
		return false
	}
	c.countHit(ctx, strings.ToLower(match[1]))
	return true
}

func (c *RateLimitChecker) countHit(ctx context.Context, term string) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.HIncrBy(ctx, triggerHitsKey, term, 1).Err(); err != nil {
		c.logger.Debug("failed to count trigger hit", zap.String("term", term), zap.Error(err))
	}
}

// Hits returns how often each term has triggered.
func (c *RateLimitChecker) Hits(ctx context.Context) (map[string]int64, error) {
	hits := map[string]int64{}
	if c.rdb == nil {
		return hits, nil
	}
	raw, err := c.rdb.HGetAll(ctx, triggerHitsKey).Result()
	if err != nil {
		return nil, err
	}
	for term, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		hits[term] = n
	}
	return hits, nil
}
