package domain

import "time"

type Reaction struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Reactable Ref              `json:"reactable"`
	Category  ReactionCategory `json:"category"`
	Status    ReactionStatus   `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

type Note struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"authorId"`
	Noteable  Ref       `json:"noteable"`
	Reason    string    `json:"reason"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type BlockedEmailDomain struct {
	ID        int64     `json:"id"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionFact is one organic reaction resolved to the author of the
// reacted content.
type ReactionFact struct {
	ReactorID int64     `json:"reactorId"`
	AuthorID  int64     `json:"authorId"`
	Reactable Ref       `json:"reactable"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReactionTotals summarizes one user's organic reactions in a window.
type ReactionTotals struct {
	Total int64 `json:"total"`
	Self  int64 `json:"self"`
}

type SignalType string

const (
	SignalSpamFlagged   SignalType = "spam.flagged"
	SignalAutoSuspended SignalType = "spam.auto_suspended"
	SignalDomainBlocked SignalType = "spam.domain_blocked"
	SignalRingPenalized SignalType = "spam.ring_penalized"
)

// ModerationSignal is what human moderators see on the realtime feed.
type ModerationSignal struct {
	Type      SignalType `json:"type"`
	Subject   Ref        `json:"subject"`
	UserIDs   []int64    `json:"userIds,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
