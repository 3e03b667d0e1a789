package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/usecase"
)

var tracer = otel.Tracer("events")

// errInvalidEvent marks events that can never be handled.
var errInvalidEvent = errors.New("invalid content event")

const (
	TypeArticleCreated = "article.created"
	TypeArticleUpdated = "article.updated"
	TypeCommentCreated = "comment.created"
	TypeCommentUpdated = "comment.updated"
	TypeUserRegistered = "user.registered"
	TypeUserUpdated    = "user.updated"
)

// ContentEvent is the payload carried on the content topic.
type ContentEvent struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	EntityID int64  `json:"entity_id"`
}

// SpamHandler is the part of usecase.SpamHandler the worker drives.
type SpamHandler interface {
	HandleArticle(ctx context.Context, articleID int64) (usecase.Outcome, error)
	HandleComment(ctx context.Context, commentID int64) (usecase.Outcome, error)
	HandleUser(ctx context.Context, userID int64, opts usecase.HandleUserOptions) (usecase.Outcome, error)
}

// DomainChecker is the part of usecase.DomainDetector the worker drives.
type DomainChecker interface {
	CheckUser(ctx context.Context, userID int64) (bool, error)
}

type ConsumerWorker struct {
	logger   *zap.Logger
	consumer Consumer
	handler  SpamHandler
	domains  DomainChecker
	dedup    Deduplicator
	interval time.Duration

	// pending holds polled but uncommitted messages, starting with the one
	// whose handling failed.
	pending []Message
}

func NewConsumerWorker(
	logger *zap.Logger,
	consumer Consumer,
	handler SpamHandler,
	domains DomainChecker,
	dedup Deduplicator,
	interval time.Duration,
) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ConsumerWorker{
		logger:   logger.With(zap.String("module", "events.consumer_worker")),
		consumer: consumer,
		handler:  handler,
		domains:  domains,
		dedup:    dedup,
		interval: interval,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer iteration failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processOnce handles a batch in order, committing each message once it is
// handled or can never be. On a failure the rest of the batch stays
// uncommitted and is retried from the failed message on the next call.
func (w *ConsumerWorker) processOnce(ctx context.Context) error {
	var pollErr error
	msgs := w.pending
	w.pending = nil
	if len(msgs) == 0 {
		msgs, pollErr = w.consumer.Poll(ctx, 50)
	}

	for i, msg := range msgs {
		if err := w.handleMessage(ctx, msg); err != nil {
			w.pending = msgs[i:]
			return err
		}
		if err := w.consumer.Commit(ctx, msg); err != nil {
			w.pending = msgs[i+1:]
			return fmt.Errorf("commit content event: %w", err)
		}
	}
	return pollErr
}

func (w *ConsumerWorker) handleMessage(ctx context.Context, msg Message) error {
	var event ContentEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.logger.Warn("dropping malformed content event", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}

	err := w.handle(ctx, event)
	if errors.Is(err, errInvalidEvent) {
		w.logger.Warn("dropping invalid content event", zap.String("event_id", event.ID), zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("handle %s event %q: %w", event.Type, event.ID, err)
	}
	return nil
}

func (w *ConsumerWorker) handle(ctx context.Context, event ContentEvent) error {
	ctx, span := tracer.Start(ctx, "Events.ConsumerWorker.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("type", event.Type), attribute.Int64("entity_id", event.EntityID))

	if event.EntityID <= 0 {
		return fmt.Errorf("%w: event %q has no entity id", errInvalidEvent, event.ID)
	}

	if event.ID != "" && w.dedup != nil {
		first, err := w.dedup.Claim(ctx, event.ID)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !first {
			w.logger.Debug("dropping duplicate event", zap.String("event_id", event.ID))
			return nil
		}
	}

	err := w.dispatch(ctx, event)
	if err != nil {
		span.RecordError(err)
		if event.ID != "" && w.dedup != nil {
			if releaseErr := w.dedup.Release(ctx, event.ID); releaseErr != nil {
				w.logger.Warn("failed to release event claim", zap.String("event_id", event.ID), zap.Error(releaseErr))
			}
		}
	}
	return err
}

func (w *ConsumerWorker) dispatch(ctx context.Context, event ContentEvent) error {
	id := event.EntityID
	switch event.Type {
	case TypeArticleCreated, TypeArticleUpdated:
		return w.logOutcome(domain.KindArticle, id)(w.handler.HandleArticle(ctx, id))
	case TypeCommentCreated, TypeCommentUpdated:
		return w.logOutcome(domain.KindComment, id)(w.handler.HandleComment(ctx, id))
	case TypeUserRegistered:
		if err := w.checkDomain(ctx, id); err != nil {
			return err
		}
		return w.logOutcome(domain.KindUser, id)(w.handler.HandleUser(ctx, id, usecase.HandleUserOptions{}))
	case TypeUserUpdated:
		if err := w.logOutcome(domain.KindUser, id)(w.handler.HandleUser(ctx, id, usecase.HandleUserOptions{})); err != nil {
			return err
		}
		return w.checkDomain(ctx, id)
	default:
		w.logger.Debug("ignoring event type", zap.String("type", event.Type))
		return nil
	}
}

func (w *ConsumerWorker) checkDomain(ctx context.Context, userID int64) error {
	blocked, err := w.domains.CheckUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if blocked {
		w.logger.Info("blocked email domain", zap.Int64("user_id", userID))
	}
	return nil
}

func (w *ConsumerWorker) logOutcome(kind domain.ContentKind, id int64) func(usecase.Outcome, error) error {
	return func(outcome usecase.Outcome, err error) error {
		if err != nil {
			// content deleted before the event was consumed
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}
		if outcome != usecase.OutcomeNotSpam {
			w.logger.Info("spam handled",
				zap.String("kind", string(kind)),
				zap.Int64("id", id),
				zap.String("outcome", string(outcome)),
			)
		}
		return nil
	}
}
