package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RingJobPublisher queues a ring scan for one user.
type RingJobPublisher interface {
	PublishRingScan(ctx context.Context, userID int64) error
}

// RingScanReport summarizes one batch scan.
type RingScanReport struct {
	Scanned  int     `json:"scanned"`
	Detected []int64 `json:"detected"`
	Failed   int     `json:"failed"`
}

// RingScanner runs reaction ring detection over every active reactor.
type RingScanner struct {
	reactions   ReactionRepository
	detector    *ReactionRingDetector
	jobs        RingJobPublisher
	concurrency int
	logger      *zap.Logger
}

func NewRingScanner(
	reactions ReactionRepository,
	detector *ReactionRingDetector,
	jobs RingJobPublisher,
	concurrency int,
	logger *zap.Logger,
) *RingScanner {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &RingScanner{
		reactions:   reactions,
		detector:    detector,
		jobs:        jobs,
		concurrency: concurrency,
		logger:      logger.With(zap.String("module", "ring_scanner")),
	}
}

func (s *RingScanner) candidates(ctx context.Context, since time.Time) ([]int64, error) {
	ids, err := s.reactions.ActiveReactors(ctx, since, s.detector.thresholds.MinReactions)
	if err != nil {
		return nil, errors.Wrap(err, "RingScanner: active reactors")
	}
	return ids, nil
}

// ScanRecent runs the detector for every user with enough reactions since
// the given time. A failure for one user does not stop the others; all
// failures are returned joined.
func (s *RingScanner) ScanRecent(ctx context.Context, since time.Time) (RingScanReport, error) {
	ctx, span := tracer.Start(ctx, "Spam.RingScanner.ScanRecent")
	defer span.End()

	ids, err := s.candidates(ctx, since)
	if err != nil {
		span.RecordError(err)
		return RingScanReport{}, err
	}
	span.SetAttributes(attribute.Int("candidates", len(ids)))

	var (
		mu     sync.Mutex
		report = RingScanReport{Scanned: len(ids), Detected: []int64{}}
		errs   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ring, err := s.detector.Call(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				errs = multierr.Append(errs, errors.Wrapf(err, "user %d", id))
				s.logger.Warn("ring scan failed", zap.Int64("user_id", id), zap.Error(err))
				return nil
			}
			if ring {
				report.Detected = append(report.Detected, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}

	s.logger.Info("ring scan finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("detected", len(report.Detected)),
		zap.Int("failed", report.Failed),
	)
	if errs != nil {
		span.RecordError(errs)
	}
	return report, errs
}

// Enqueue publishes one scan job per active reactor and returns how many
// were queued.
func (s *RingScanner) Enqueue(ctx context.Context, since time.Time) (int, error) {
	ctx, span := tracer.Start(ctx, "Spam.RingScanner.Enqueue")
	defer span.End()

	if s.jobs == nil {
		return 0, errors.New("RingScanner.Enqueue: no job publisher configured")
	}

	ids, err := s.candidates(ctx, since)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	queued := 0
	for _, id := range ids {
		if err := s.jobs.PublishRingScan(ctx, id); err != nil {
			span.RecordError(err)
			return queued, errors.Wrapf(err, "RingScanner.Enqueue: user %d", id)
		}
		queued++
	}
	s.logger.Info("queued ring scans", zap.Int("count", queued))
	return queued, nil
}
