package usecase

import (
	"context"
	"time"

	"github.com/totegamma/spamguard/internal/domain"
)

// UserRepository defines lookup for users.
type UserRepository interface {
	Get(ctx context.Context, id int64) (domain.User, error)
	ListByEmailDomain(ctx context.Context, emailDomain string) ([]domain.User, error)
}

// ContentRepository defines lookup for articles and comments.
type ContentRepository interface {
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	GetComment(ctx context.Context, id int64) (domain.Comment, error)
}

// ReactionRepository defines the reaction reads and writes the detectors need.
type ReactionRepository interface {
	// CreateModerationReaction inserts r unless an identical
	// (user, reactable, category) reaction exists. The stored reaction is
	// returned either way.
	CreateModerationReaction(ctx context.Context, r domain.Reaction) (domain.Reaction, bool, error)
	// CountSpamReactions counts valid or confirmed vomit reactions on
	// content of the given kind owned by authorID.
	CountSpamReactions(ctx context.Context, authorID int64, kind domain.ContentKind, includeProfile bool) (int64, error)
	CountOrganicReactions(ctx context.Context, userID int64, since time.Time) (int64, error)
	ReactionFactsByUser(ctx context.Context, userID int64, since time.Time) ([]domain.ReactionFact, error)
	ReactionFactsOnAuthors(ctx context.Context, authorIDs []int64, since time.Time) ([]domain.ReactionFact, error)
	ReactionTotals(ctx context.Context, userIDs []int64, since time.Time) (map[int64]domain.ReactionTotals, error)
	ActiveReactors(ctx context.Context, since time.Time, minReactions int64) ([]int64, error)
}

// SocialGraphRepository answers the legitimacy questions of ring detection.
type SocialGraphRepository interface {
	SharedOrganizationMembers(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error)
	FollowConnected(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error)
	UsersWithRoles(ctx context.Context, userIDs []int64, roles ...domain.Role) (map[int64]bool, error)
}

// DomainBlock describes blocking one email domain.
type DomainBlock struct {
	Domain   string
	AuthorID int64
	Reason   string
	Content  string
}

// DomainBlockResult reports what BlockDomainAndSuspend changed.
type DomainBlockResult struct {
	Blocked   bool
	Suspended []int64
}

// AutoSuspension describes suspending one author.
type AutoSuspension struct {
	UserID            int64
	AuthorID          int64
	Reason            string
	Content           string
	UnpublishArticles bool
}

// RingPenalty describes the penalty applied to a confirmed ring. Members
// already noted for Reason since Since are not penalized again.
type RingPenalty struct {
	MemberIDs []int64
	Factor    float64
	AuthorID  int64
	Reason    string
	Content   string
	Since     time.Time
}

// ModerationRepository applies moderation actions. Each method is a single
// transaction.
type ModerationRepository interface {
	IsDomainBlocked(ctx context.Context, emailDomain string) (bool, error)
	// BlockDomainAndSuspend records the domain, suspends every user on it
	// and notes each newly suspended user. Blocked is false when the domain
	// was already recorded, in which case nothing changes.
	BlockDomainAndSuspend(ctx context.Context, block DomainBlock) (DomainBlockResult, error)
	// AutoSuspend suspends the user and writes the note. It reports false,
	// changing nothing, when the user was already suspended.
	AutoSuspend(ctx context.Context, s AutoSuspension) (bool, error)
	// ApplyRingPenalty penalizes and notes the members not yet penalized in
	// the window, and returns their ids.
	ApplyRingPenalty(ctx context.Context, p RingPenalty) ([]int64, error)
}

// SpamTrigger is the keyword/rate-limit classifier.
type SpamTrigger interface {
	TriggerSpamFor(ctx context.Context, text string) bool
}

// ClassifierInput is what an AI classifier sees.
type ClassifierInput struct {
	Kind  domain.ContentKind
	Title string
	Body  string
}

// ContentClassifier is an AI-backed spam classifier for one content kind.
type ContentClassifier interface {
	IsSpam(ctx context.Context, in ClassifierInput) (bool, error)
}

// FeatureFlags answers feature flag lookups.
type FeatureFlags interface {
	Enabled(ctx context.Context, name string) bool
}

// SignalPublisher forwards moderation signals to human moderators.
type SignalPublisher interface {
	Publish(ctx context.Context, signal domain.ModerationSignal) error
}
