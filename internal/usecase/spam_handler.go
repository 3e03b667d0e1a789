package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

// ErrClassifierUnavailable means the AI classifier cannot be consulted.
var ErrClassifierUnavailable = errors.New("content classifier unavailable")

// Outcome is the result of handling one piece of content.
type Outcome string

const (
	OutcomeNotSpam   Outcome = "not_spam"
	OutcomeFlagged   Outcome = "flagged"
	OutcomeSuspended Outcome = "suspended"
)

type HandleUserOptions struct {
	// Rigorous forces profile checking even when the feature flag is off.
	Rigorous bool
}

// SpamHandler classifies one piece of content and applies escalating
// consequences to its author.
type SpamHandler struct {
	users       UserRepository
	content     ContentRepository
	reactions   ReactionRepository
	moderation  ModerationRepository
	trigger     SpamTrigger
	classifiers map[domain.ContentKind]ContentClassifier
	flags       FeatureFlags
	signal      SignalPublisher
	config      domain.SpamConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewSpamHandler(
	users UserRepository,
	content ContentRepository,
	reactions ReactionRepository,
	moderation ModerationRepository,
	trigger SpamTrigger,
	classifiers map[domain.ContentKind]ContentClassifier,
	flags FeatureFlags,
	signal SignalPublisher,
	config domain.SpamConfig,
	logger *zap.Logger,
) *SpamHandler {
	return &SpamHandler{
		users:       users,
		content:     content,
		reactions:   reactions,
		moderation:  moderation,
		trigger:     trigger,
		classifiers: classifiers,
		flags:       flags,
		signal:      signal,
		config:      config.WithDefaults(),
		logger:      logger.With(zap.String("module", "spam_handler")),
		now:         time.Now,
	}
}

func (h *SpamHandler) HandleArticle(ctx context.Context, articleID int64) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Spam.Handler.HandleArticle")
	defer span.End()
	span.SetAttributes(attribute.Int64("article_id", articleID))

	article, err := h.content.GetArticle(ctx, articleID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNotSpam, err
	}
	author, err := h.users.Get(ctx, article.UserID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNotSpam, err
	}
	if h.trusted(author, h.config.ArticleBadgeTrustThreshold) {
		return OutcomeNotSpam, nil
	}

	spam := h.trigger.TriggerSpamFor(ctx, article.Text()) ||
		h.classifierSaysSpam(ctx, ClassifierInput{
			Kind:  domain.KindArticle,
			Title: article.Title,
			Body:  firstNonEmpty(article.ProcessedHTML, article.BodyMarkdown),
		})
	if !spam {
		return OutcomeNotSpam, nil
	}

	return h.punish(ctx, domain.ArticleRef(article.ID), author, domain.KindArticle, false)
}

func (h *SpamHandler) HandleComment(ctx context.Context, commentID int64) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Spam.Handler.HandleComment")
	defer span.End()
	span.SetAttributes(attribute.Int64("comment_id", commentID))

	comment, err := h.content.GetComment(ctx, commentID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNotSpam, err
	}
	author, err := h.users.Get(ctx, comment.UserID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNotSpam, err
	}
	if h.trusted(author, h.config.CommentBadgeTrustThreshold) {
		return OutcomeNotSpam, nil
	}

	spam := h.trigger.TriggerSpamFor(ctx, comment.Text()) ||
		h.classifierSaysSpam(ctx, ClassifierInput{
			Kind: domain.KindComment,
			Body: firstNonEmpty(comment.ProcessedHTML, comment.BodyMarkdown),
		})
	if !spam {
		return OutcomeNotSpam, nil
	}

	return h.punish(ctx, domain.CommentRef(comment.ID), author, domain.KindComment, false)
}

func (h *SpamHandler) HandleUser(ctx context.Context, userID int64, opts HandleUserOptions) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "Spam.Handler.HandleUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	if !opts.Rigorous && !h.flagEnabled(ctx, domain.FlagMoreRigorousProfileChecking, h.config.MoreRigorousProfileCheck) {
		return OutcomeNotSpam, nil
	}

	user, err := h.users.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return OutcomeNotSpam, err
	}
	if user.HasAnyRole(domain.RoleBaseSubscriber, domain.RoleSubscriber, domain.RoleAdmin, domain.RoleTrusted) {
		return OutcomeNotSpam, nil
	}

	spam := h.trigger.TriggerSpamFor(ctx, user.ProfileText()) ||
		h.classifierSaysSpam(ctx, ClassifierInput{
			Kind:  domain.KindUser,
			Title: user.Name,
			Body:  user.ProfileText(),
		})
	if !spam {
		return OutcomeNotSpam, nil
	}

	return h.punish(ctx, domain.UserRef(user.ID), user, domain.KindArticle, true)
}

func (h *SpamHandler) trusted(author domain.User, badgeThreshold int) bool {
	if author.BadgeAchievementsCount > badgeThreshold {
		return true
	}
	return author.HasAnyRole(domain.RoleBaseSubscriber, domain.RoleSubscriber)
}

// classifierSaysSpam consults the AI classifier for the kind and falls back
// to "not spam" when it is missing, unavailable or failing.
func (h *SpamHandler) classifierSaysSpam(ctx context.Context, in ClassifierInput) bool {
	classifier, ok := h.classifiers[in.Kind]
	if !ok || classifier == nil || !h.config.AIAPIKeyPresent {
		return false
	}
	if in.Body == "" && in.Title == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.AITimeout)
	defer cancel()

	spam, err := classifier.IsSpam(ctx, in)
	if err != nil {
		if !errors.Is(err, ErrClassifierUnavailable) {
			h.logger.Warn("ai classifier failed, skipping signal",
				zap.String("kind", string(in.Kind)),
				zap.Error(err),
			)
		}
		return false
	}
	return spam
}

func (h *SpamHandler) flagEnabled(ctx context.Context, name string, fallback bool) bool {
	if h.flags == nil {
		return fallback
	}
	return h.flags.Enabled(ctx, name)
}

// punish flags the content with a mascot vomit reaction and suspends the
// author when they have collected too many of them.
func (h *SpamHandler) punish(ctx context.Context, target domain.Ref, author domain.User, kind domain.ContentKind, includeProfile bool) (Outcome, error) {
	_, created, err := h.reactions.CreateModerationReaction(ctx, domain.Reaction{
		UserID:    h.config.MascotUserID,
		Reactable: target,
		Category:  domain.CategoryVomit,
		Status:    domain.StatusValid,
	})
	if err != nil {
		return OutcomeNotSpam, errors.Wrap(err, "SpamHandler.punish: create reaction")
	}
	if created {
		h.logger.Info("flagged content as spam",
			zap.String("target", target.String()),
			zap.Int64("user_id", author.ID),
		)
		publish(ctx, h.signal, h.logger, domain.ModerationSignal{
			Type:      domain.SignalSpamFlagged,
			Subject:   target,
			UserIDs:   []int64{author.ID},
			Message:   "Content flagged as spam by automatic detection",
			Timestamp: h.now(),
		})
	}

	count, err := h.reactions.CountSpamReactions(ctx, author.ID, kind, includeProfile)
	if err != nil {
		return OutcomeFlagged, errors.Wrap(err, "SpamHandler.punish: count spam reactions")
	}
	if count <= h.config.SpammyReactionThreshold {
		return OutcomeFlagged, nil
	}

	if author.Suspended() {
		return OutcomeSuspended, nil
	}

	unpublish := false
	if kind != domain.KindUser && !includeProfile {
		unpublish = h.flagEnabled(ctx, domain.FlagUnpublishOnAutoSuspend, h.config.UnpublishOnAutoSuspend)
	}

	applied, err := h.moderation.AutoSuspend(ctx, AutoSuspension{
		UserID:            author.ID,
		AuthorID:          h.config.MascotUserID,
		Reason:            domain.ReasonAutomaticSuspend,
		Content:           suspendNoteContent(kind, includeProfile),
		UnpublishArticles: unpublish,
	})
	if err != nil {
		return OutcomeFlagged, errors.Wrap(err, "SpamHandler.punish: auto suspend")
	}
	if applied {
		h.logger.Info("auto-suspended user",
			zap.Int64("user_id", author.ID),
			zap.Int64("spam_reactions", count),
			zap.Bool("unpublished", unpublish),
		)
		publish(ctx, h.signal, h.logger, domain.ModerationSignal{
			Type:      domain.SignalAutoSuspended,
			Subject:   domain.UserRef(author.ID),
			UserIDs:   []int64{author.ID},
			Reason:    domain.ReasonAutomaticSuspend,
			Message:   suspendNoteContent(kind, includeProfile),
			Timestamp: h.now(),
		})
	}
	return OutcomeSuspended, nil
}

func suspendNoteContent(kind domain.ContentKind, includeProfile bool) string {
	what := "articles"
	switch {
	case includeProfile:
		what = "articles and profile content"
	case kind == domain.KindComment:
		what = "comments"
	}
	return "User suspended for too many spammy " + what + ", triggered by autovomit."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
