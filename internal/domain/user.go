package domain

import (
	"strings"
	"time"
)

// User is the subject of every moderation decision.
type User struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Username               string    `json:"username"`
	Email                  string    `json:"email"`
	Summary                string    `json:"summary,omitempty"`
	WebsiteURL             string    `json:"websiteUrl,omitempty"`
	ReputationModifier     float64   `json:"reputationModifier"`
	BadgeAchievementsCount int       `json:"badgeAchievementsCount"`
	Roles                  []Role    `json:"roles"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func (u User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

func (u User) Suspended() bool {
	return u.HasRole(RoleSuspended)
}

// ProfileText is the text the keyword trigger sees for a user profile.
func (u User) ProfileText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{u.Name, u.Username, u.Summary, u.WebsiteURL} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}
