package domain

import "time"

// SpamConfig carries every setting the detectors need. It is injected at
// construction; nothing reads global settings.
type SpamConfig struct {
	SpamTriggerTerms           []string
	MascotUserID               int64
	AIAPIKeyPresent            bool
	UnpublishOnAutoSuspend     bool
	MoreRigorousProfileCheck   bool
	ArticleBadgeTrustThreshold int
	CommentBadgeTrustThreshold int
	SpammyReactionThreshold    int64
	AITimeout                  time.Duration
}

func DefaultSpamConfig() SpamConfig {
	return SpamConfig{
		MascotUserID:               1,
		ArticleBadgeTrustThreshold: 6,
		CommentBadgeTrustThreshold: 6,
		SpammyReactionThreshold:    2,
		AITimeout:                  5 * time.Second,
	}
}

// WithDefaults fills a missing mascot or AI timeout from
// DefaultSpamConfig. Thresholds are used as given; zero is a valid
// threshold.
func (c SpamConfig) WithDefaults() SpamConfig {
	d := DefaultSpamConfig()
	if c.MascotUserID == 0 {
		c.MascotUserID = d.MascotUserID
	}
	if c.AITimeout <= 0 {
		c.AITimeout = d.AITimeout
	}
	return c
}
