package models

import (
	"time"
)

// Reaction is unique per (user, reactable, category) so that moderation
// reactions can be inserted idempotently.
type Reaction struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	UserID        int64     `json:"userId" gorm:"uniqueIndex:idx_reactions_unique,priority:1;index:idx_reactions_user_created,priority:1"`
	ReactableID   int64     `json:"reactableId" gorm:"uniqueIndex:idx_reactions_unique,priority:2"`
	ReactableType string    `json:"reactableType" gorm:"type:text;uniqueIndex:idx_reactions_unique,priority:3"`
	Category      string    `json:"category" gorm:"type:text;uniqueIndex:idx_reactions_unique,priority:4"`
	Points        float64   `json:"points" gorm:"not null;default:1"`
	Status        string    `json:"status" gorm:"type:text;not null;default:'valid'"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime;index:idx_reactions_user_created,priority:2"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

type Note struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	AuthorID     int64     `json:"authorId"`
	NoteableID   int64     `json:"noteableId" gorm:"index:idx_notes_noteable"`
	NoteableType string    `json:"noteableType" gorm:"type:text;index:idx_notes_noteable"`
	Reason       string    `json:"reason" gorm:"type:text"`
	Content      string    `json:"content" gorm:"type:text"`
	CreatedAt    time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

type BlockedEmailDomain struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Domain    string    `json:"domain" gorm:"type:text;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
