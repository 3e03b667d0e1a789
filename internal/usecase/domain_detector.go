package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

var tracer = otel.Tracer("spam")

const (
	DomainSpamThreshold = 3
	DomainRecentWindow  = 14 * 24 * time.Hour
)

// skippedDomains are shared public providers that are never blocked.
var skippedDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"hotmail.com":    {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"aol.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"mail.com":       {},
	"gmx.com":        {},
	"yandex.com":     {},
	"zoho.com":       {},
	"qq.com":         {},
	"163.com":        {},
}

// ExtractDomain returns the lower-cased part after the last "@", or "" when
// email is blank or malformed.
func ExtractDomain(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	d := strings.ToLower(email[at+1:])
	if strings.ContainsAny(d, " \t@") || !strings.Contains(d, ".") {
		return ""
	}
	return d
}

func ShouldSkipDomain(emailDomain string) bool {
	_, ok := skippedDomains[strings.ToLower(strings.TrimSpace(emailDomain))]
	return ok
}

// DomainDetector blocks email domains that only ever produced spam accounts.
type DomainDetector struct {
	users      UserRepository
	moderation ModerationRepository
	signal     SignalPublisher
	config     domain.SpamConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewDomainDetector(
	users UserRepository,
	moderation ModerationRepository,
	signal SignalPublisher,
	config domain.SpamConfig,
	logger *zap.Logger,
) *DomainDetector {
	return &DomainDetector{
		users:      users,
		moderation: moderation,
		signal:     signal,
		config:     config.WithDefaults(),
		logger:     logger.With(zap.String("module", "domain_detector")),
		now:        time.Now,
	}
}

// CheckUser loads the user and runs CheckAndBlockDomain on them.
func (d *DomainDetector) CheckUser(ctx context.Context, userID int64) (bool, error) {
	user, err := d.users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return d.CheckAndBlockDomain(ctx, user)
}

// CheckAndBlockDomain decides whether the subject's email domain is a spam
// source. When it is, the domain is blocked and every user on it suspended.
func (d *DomainDetector) CheckAndBlockDomain(ctx context.Context, subject domain.User) (bool, error) {
	ctx, span := tracer.Start(ctx, "Spam.DomainDetector.CheckAndBlockDomain")
	defer span.End()

	emailDomain := ExtractDomain(subject.Email)
	if emailDomain == "" || ShouldSkipDomain(emailDomain) {
		return false, nil
	}
	span.SetAttributes(attribute.String("domain", emailDomain))

	blocked, err := d.moderation.IsDomainBlocked(ctx, emailDomain)
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "DomainDetector.CheckAndBlockDomain: lookup blocked domain")
	}
	if blocked {
		return false, nil
	}

	users, err := d.users.ListByEmailDomain(ctx, emailDomain)
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "DomainDetector.CheckAndBlockDomain: list users")
	}

	windowStart := d.now().Add(-DomainRecentWindow)
	recentSpam := 0
	for _, u := range users {
		spam := u.HasRole(domain.RoleSpam)
		if !spam && u.CreatedAt.Before(windowStart) {
			d.logger.Debug("legitimate user on domain, not blocking",
				zap.String("domain", emailDomain),
				zap.Int64("user_id", u.ID),
			)
			return false, nil
		}
		if spam && (u.CreatedAt.After(windowStart) || u.UpdatedAt.After(windowStart)) {
			recentSpam++
		}
	}
	if recentSpam < DomainSpamThreshold {
		return false, nil
	}

	result, err := d.moderation.BlockDomainAndSuspend(ctx, DomainBlock{
		Domain:   emailDomain,
		AuthorID: d.config.MascotUserID,
		Reason:   domain.ReasonAutomaticSuspend,
		Content:  fmt.Sprintf("Automatically suspended: spam patterns detected from email domain %s", emailDomain),
	})
	if err != nil {
		span.RecordError(err)
		return false, errors.Wrap(err, "DomainDetector.CheckAndBlockDomain: block")
	}
	if !result.Blocked {
		return false, nil
	}

	d.logger.Info("blocked email domain",
		zap.String("domain", emailDomain),
		zap.Int("recent_spam", recentSpam),
		zap.Int("suspended", len(result.Suspended)),
	)
	publish(ctx, d.signal, d.logger, domain.ModerationSignal{
		Type:      domain.SignalDomainBlocked,
		Subject:   domain.UserRef(subject.ID),
		UserIDs:   result.Suspended,
		Domain:    emailDomain,
		Reason:    domain.ReasonAutomaticSuspend,
		Message:   fmt.Sprintf("Blocked email domain %s and suspended %d users", emailDomain, len(result.Suspended)),
		Timestamp: d.now(),
	})
	return true, nil
}

// publish delivers a signal without letting a sink failure undo moderation.
func publish(ctx context.Context, signal SignalPublisher, logger *zap.Logger, s domain.ModerationSignal) {
	if signal == nil {
		return
	}
	if err := signal.Publish(ctx, s); err != nil {
		logger.Warn("failed to publish moderation signal",
			zap.String("type", string(s.Type)),
			zap.Error(err),
		)
	}
}
