package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

const DefaultSignalChannel = "spamguard:moderation"

// SignalService fans moderation signals out to moderators over redis
// pub/sub.
type SignalService struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewSignalService(redisClient *redis.Client, channel string, logger *zap.Logger) *SignalService {
	if channel == "" {
		channel = DefaultSignalChannel
	}
	return &SignalService{
		rdb:     redisClient,
		channel: channel,
		logger:  logger.With(zap.String("module", "signal")),
	}
}

func (s *SignalService) Publish(ctx context.Context, signal domain.ModerationSignal) error {

	jsonstr, err := json.Marshal(signal)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, s.channel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards published signals to output until ctx is done. Each
// value received on input replaces the set of signal types to forward; an
// empty set forwards everything.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.ModerationSignal) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	filter := map[domain.SignalType]bool{}

	for {
		select {
		case <-ctx.Done():
			return
		case types, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			filter = make(map[domain.SignalType]bool, len(types))
			for _, t := range types {
				filter[domain.SignalType(t)] = true
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var signal domain.ModerationSignal
			if err := json.Unmarshal([]byte(msg.Payload), &signal); err != nil {
				s.logger.Error("malformed moderation signal", zap.Error(err))
				continue
			}
			if len(filter) > 0 && !filter[signal.Type] {
				continue
			}
			select {
			case output <- signal:
			case <-ctx.Done():
				return
			}
		}
	}
}
