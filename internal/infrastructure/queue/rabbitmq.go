package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("queue")

const (
	ExchangeName      = "spamguard"
	QueueReactionRing = "spamguard.reaction_ring"
)

// RingScanJob asks a worker to run reaction ring detection for one user.
type RingScanJob struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RingDetector is the part of usecase.ReactionRingDetector the consumer runs.
type RingDetector interface {
	Call(ctx context.Context, userID int64) (bool, error)
}

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	instanceID string
	logger     *zap.Logger
}

func NewRabbitMQ(url, instanceID string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:       conn,
		channel:    ch,
		instanceID: instanceID,
		logger:     logger.With(zap.String("module", "queue")),
	}

	if err := rmq.setup(); err != nil {
		rmq.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	return rmq, nil
}

func (rmq *RabbitMQ) setup() error {
	if err := rmq.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err := rmq.channel.QueueDeclare(
		QueueReactionRing,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(24 * time.Hour / time.Millisecond),
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", QueueReactionRing, err)
	}

	if err := rmq.channel.QueueBind(QueueReactionRing, QueueReactionRing, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", QueueReactionRing, err)
	}

	// ring detection is query heavy; keep the prefetch small
	if err := rmq.channel.Qos(4, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	return nil
}

func (rmq *RabbitMQ) Close() error {
	if rmq.channel != nil {
		rmq.channel.Close()
	}
	if rmq.conn != nil {
		return rmq.conn.Close()
	}
	return nil
}

func (rmq *RabbitMQ) Health(ctx context.Context) error {
	if rmq.conn == nil || rmq.conn.IsClosed() {
		return fmt.Errorf("connection closed")
	}
	return nil
}

// PublishRingScan queues a ring scan for userID.
func (rmq *RabbitMQ) PublishRingScan(ctx context.Context, userID int64) error {
	ctx, span := tracer.Start(ctx, "Queue.RabbitMQ.PublishRingScan")
	defer span.End()

	job := RingScanJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	err = rmq.channel.PublishWithContext(
		ctx,
		ExchangeName,
		QueueReactionRing,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Timestamp:    job.EnqueuedAt,
			AppId:        rmq.instanceID,
		},
	)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// StartRingConsumer consumes ring scan jobs until ctx is done or the
// channel closes.
func (rmq *RabbitMQ) StartRingConsumer(ctx context.Context, detector RingDetector) error {
	msgs, err := rmq.channel.Consume(
		QueueReactionRing,
		rmq.instanceID+"-"+QueueReactionRing,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	rmq.logger.Info("started ring scan consumer", zap.String("instance", rmq.instanceID))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				rmq.logger.Warn("channel closed, stopping consumer")
				return nil
			}
			rmq.deliver(ctx, msg, detector)
		}
	}
}

func (rmq *RabbitMQ) deliver(ctx context.Context, msg amqp.Delivery, detector RingDetector) {
	var err error
	switch handleRingScan(ctx, msg.Body, detector, rmq.logger) {
	case ack:
		err = msg.Ack(false)
	case reject:
		err = msg.Nack(false, false)
	case requeue:
		err = msg.Nack(false, true)
	}
	if err != nil {
		rmq.logger.Error("failed to settle delivery", zap.Error(err))
	}
}

type settlement int

const (
	ack settlement = iota
	reject
	requeue
)

// handleRingScan runs one job. Malformed jobs are dropped; detector
// failures are requeued. Members already penalized within the ring window
// are not penalized again, so a redelivered job changes nothing.
func handleRingScan(ctx context.Context, body []byte, detector RingDetector, logger *zap.Logger) settlement {
	ctx, span := tracer.Start(ctx, "Queue.RabbitMQ.HandleRingScan")
	defer span.End()

	var job RingScanJob
	if err := json.Unmarshal(body, &job); err != nil || job.UserID <= 0 {
		logger.Warn("dropping malformed ring scan job", zap.ByteString("body", body), zap.Error(err))
		return reject
	}

	ring, err := detector.Call(ctx, job.UserID)
	if err != nil {
		span.RecordError(err)
		logger.Error("ring scan failed", zap.String("job_id", job.ID), zap.Int64("user_id", job.UserID), zap.Error(err))
		return requeue
	}
	if ring {
		logger.Info("reaction ring detected", zap.String("job_id", job.ID), zap.Int64("user_id", job.UserID))
	}
	return ack
}
