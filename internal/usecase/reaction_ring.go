package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

// RingThresholds are the tunables of reaction ring detection.
type RingThresholds struct {
	Window               time.Duration
	MinReactions         int64
	TargetAuthorShare    float64
	MaxTargetAuthors     int
	MinConcentration     float64
	MinSharedReactions   int64
	MinSharedAuthors     int
	MinCandidateShare    float64
	MaxSelfReactionShare float64
	MinRingSize          int
	PenaltyFactor        float64
}

func DefaultRingThresholds() RingThresholds {
	return RingThresholds{
		Window:               90 * 24 * time.Hour,
		MinReactions:         50,
		TargetAuthorShare:    0.15,
		MaxTargetAuthors:     3,
		MinConcentration:     0.70,
		MinSharedReactions:   10,
		MinSharedAuthors:     2,
		MinCandidateShare:    0.50,
		MaxSelfReactionShare: 0.30,
		MinRingSize:          3,
		PenaltyFactor:        0.5,
	}
}

// RingAnalysis explains a detection run.
type RingAnalysis struct {
	SubjectID     int64   `json:"subjectId"`
	Reactions     int64   `json:"reactions"`
	TargetAuthors []int64 `json:"targetAuthors,omitempty"`
	Concentration float64 `json:"concentration"`
	Candidates    []int64 `json:"candidates,omitempty"`
	Members       []int64 `json:"members,omitempty"`
	Detected      bool    `json:"detected"`
	Reason        string  `json:"reason"`
}

// ReactionRingDetector finds groups of accounts amplifying the same few
// authors and halves their reputation modifier.
type ReactionRingDetector struct {
	users      UserRepository
	reactions  ReactionRepository
	graph      SocialGraphRepository
	moderation ModerationRepository
	signal     SignalPublisher
	config     domain.SpamConfig
	thresholds RingThresholds
	logger     *zap.Logger
	now        func() time.Time
}

func NewReactionRingDetector(
	users UserRepository,
	reactions ReactionRepository,
	graph SocialGraphRepository,
	moderation ModerationRepository,
	signal SignalPublisher,
	config domain.SpamConfig,
	thresholds RingThresholds,
	logger *zap.Logger,
) *ReactionRingDetector {
	if thresholds == (RingThresholds{}) {
		thresholds = DefaultRingThresholds()
	}
	return &ReactionRingDetector{
		users:      users,
		reactions:  reactions,
		graph:      graph,
		moderation: moderation,
		signal:     signal,
		config:     config.WithDefaults(),
		thresholds: thresholds,
		logger:     logger.With(zap.String("module", "reaction_ring_detector")),
		now:        time.Now,
	}
}

// Call runs detection for one user and penalizes a confirmed ring.
func (d *ReactionRingDetector) Call(ctx context.Context, userID int64) (bool, error) {
	analysis, err := d.Analyze(ctx, userID)
	if err != nil {
		return false, err
	}
	if !analysis.Detected {
		return false, nil
	}
	if err := d.penalize(ctx, analysis); err != nil {
		return false, err
	}
	return true, nil
}

// Analyze runs detection for one user without side effects.
func (d *ReactionRingDetector) Analyze(ctx context.Context, userID int64) (RingAnalysis, error) {
	ctx, span := tracer.Start(ctx, "Spam.ReactionRingDetector.Analyze")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	t := d.thresholds
	since := d.now().Add(-t.Window)
	analysis := RingAnalysis{SubjectID: userID}

	count, err := d.reactions.CountOrganicReactions(ctx, userID, since)
	if err != nil {
		span.RecordError(err)
		return analysis, errors.Wrap(err, "ReactionRingDetector.Analyze: count reactions")
	}
	analysis.Reactions = count
	if count < t.MinReactions {
		analysis.Reason = "insufficient reaction volume"
		return analysis, nil
	}

	subject, err := d.users.Get(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return analysis, err
	}
	if subject.HasAnyRole(domain.RoleAdmin, domain.RoleSuperAdmin, domain.RoleTrusted) {
		analysis.Reason = "trusted subject"
		return analysis, nil
	}

	facts, err := d.reactions.ReactionFactsByUser(ctx, userID, since)
	if err != nil {
		span.RecordError(err)
		return analysis, errors.Wrap(err, "ReactionRingDetector.Analyze: subject reactions")
	}
	targets, concentration := targetAuthors(userID, facts, t)
	analysis.TargetAuthors = targets
	analysis.Concentration = concentration
	if len(targets) == 0 || concentration < t.MinConcentration {
		analysis.Reason = "reactions not concentrated"
		return analysis, nil
	}

	onTargets, err := d.reactions.ReactionFactsOnAuthors(ctx, targets, since)
	if err != nil {
		span.RecordError(err)
		return analysis, errors.Wrap(err, "ReactionRingDetector.Analyze: reactions on targets")
	}
	candidates := sharedReactors(userID, targets, onTargets, t)
	if len(candidates) < t.MinRingSize {
		analysis.Candidates = sortedKeys(candidates)
		analysis.Reason = "too few overlapping reactors"
		return analysis, nil
	}

	candidates, err = d.filterCandidates(ctx, userID, candidates)
	if err != nil {
		span.RecordError(err)
		return analysis, err
	}
	analysis.Candidates = sortedKeys(candidates)
	if len(candidates) < t.MinRingSize {
		analysis.Reason = "too few ring members after filtering"
		return analysis, nil
	}

	analysis.Members = append([]int64{userID}, analysis.Candidates...)
	analysis.Detected = true
	analysis.Reason = "reaction ring detected"
	return analysis, nil
}

// filterCandidates drops candidates whose overlap with the subject is
// explained by broad activity, self-promotion, trust or a social tie.
func (d *ReactionRingDetector) filterCandidates(ctx context.Context, subjectID int64, candidates map[int64]int64) (map[int64]int64, error) {
	t := d.thresholds
	since := d.now().Add(-t.Window)
	ids := sortedKeys(candidates)

	totals, err := d.reactions.ReactionTotals(ctx, ids, since)
	if err != nil {
		return nil, errors.Wrap(err, "ReactionRingDetector.filterCandidates: totals")
	}
	trusted, err := d.graph.UsersWithRoles(ctx, ids, domain.RoleAdmin, domain.RoleSuperAdmin, domain.RoleTrusted)
	if err != nil {
		return nil, errors.Wrap(err, "ReactionRingDetector.filterCandidates: roles")
	}
	sameOrg, err := d.graph.SharedOrganizationMembers(ctx, subjectID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "ReactionRingDetector.filterCandidates: organizations")
	}
	follows, err := d.graph.FollowConnected(ctx, subjectID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "ReactionRingDetector.filterCandidates: follows")
	}

	kept := make(map[int64]int64, len(candidates))
	for _, id := range ids {
		shared := candidates[id]
		total := totals[id]
		switch {
		case total.Total == 0:
			continue
		case float64(shared)/float64(total.Total) < t.MinCandidateShare:
			continue
		case float64(total.Self)/float64(total.Total) > t.MaxSelfReactionShare:
			continue
		case trusted[id], sameOrg[id], follows[id]:
			continue
		}
		kept[id] = shared
	}
	return kept, nil
}

func (d *ReactionRingDetector) penalize(ctx context.Context, analysis RingAnalysis) error {
	ctx, span := tracer.Start(ctx, "Spam.ReactionRingDetector.penalize")
	defer span.End()

	content := fmt.Sprintf(
		"Reaction ring detected: %d accounts concentrating reactions on authors %v. Reputation modifier multiplied by %.2f.",
		len(analysis.Members), analysis.TargetAuthors, d.thresholds.PenaltyFactor,
	)
	penalized, err := d.moderation.ApplyRingPenalty(ctx, RingPenalty{
		MemberIDs: analysis.Members,
		Factor:    d.thresholds.PenaltyFactor,
		AuthorID:  d.config.MascotUserID,
		Reason:    domain.ReasonReactionRingDetection,
		Content:   content,
		Since:     d.now().Add(-d.thresholds.Window),
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "ReactionRingDetector.penalize")
	}
	if len(penalized) == 0 {
		d.logger.Debug("reaction ring already penalized",
			zap.Int64("user_id", analysis.SubjectID),
			zap.Int64s("members", analysis.Members),
		)
		return nil
	}

	d.logger.Info("penalized reaction ring",
		zap.Int64("user_id", analysis.SubjectID),
		zap.Int64s("members", penalized),
		zap.Int64s("target_authors", analysis.TargetAuthors),
	)
	publish(ctx, d.signal, d.logger, domain.ModerationSignal{
		Type:      domain.SignalRingPenalized,
		Subject:   domain.UserRef(analysis.SubjectID),
		UserIDs:   penalized,
		Reason:    domain.ReasonReactionRingDetection,
		Message:   content,
		Timestamp: d.now(),
	})
	return nil
}

// targetAuthors returns the authors taking a disproportionate share of the
// subject's reactions, and the share they take together.
func targetAuthors(subjectID int64, facts []domain.ReactionFact, t RingThresholds) ([]int64, float64) {
	perAuthor := make(map[int64]int64)
	var total int64
	for _, f := range facts {
		if f.AuthorID == subjectID {
			continue
		}
		perAuthor[f.AuthorID]++
		total++
	}
	if total == 0 {
		return nil, 0
	}

	authors := sortedKeys(perAuthor)
	sort.SliceStable(authors, func(i, j int) bool {
		return perAuthor[authors[i]] > perAuthor[authors[j]]
	})

	var targets []int64
	var covered int64
	for _, a := range authors {
		if len(targets) >= t.MaxTargetAuthors {
			break
		}
		if float64(perAuthor[a])/float64(total) < t.TargetAuthorShare {
			break
		}
		targets = append(targets, a)
		covered += perAuthor[a]
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets, float64(covered) / float64(total)
}

// sharedReactors returns, per other user, how many reactions they gave the
// target authors, keeping only users overlapping enough with the subject.
func sharedReactors(subjectID int64, targets []int64, facts []domain.ReactionFact, t RingThresholds) map[int64]int64 {
	isTarget := make(map[int64]bool, len(targets))
	for _, a := range targets {
		isTarget[a] = true
	}

	counts := make(map[int64]int64)
	authors := make(map[int64]map[int64]struct{})
	for _, f := range facts {
		if f.ReactorID == subjectID || isTarget[f.ReactorID] || !isTarget[f.AuthorID] {
			continue
		}
		counts[f.ReactorID]++
		if authors[f.ReactorID] == nil {
			authors[f.ReactorID] = make(map[int64]struct{})
		}
		authors[f.ReactorID][f.AuthorID] = struct{}{}
	}

	minAuthors := t.MinSharedAuthors
	if len(targets) < minAuthors {
		minAuthors = len(targets)
	}

	out := make(map[int64]int64)
	for id, n := range counts {
		if n < t.MinSharedReactions || len(authors[id]) < minAuthors {
			continue
		}
		out[id] = n
	}
	return out
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
