package models

import (
	"time"
)

type User struct {
	ID                     int64      `json:"id" gorm:"primaryKey"`
	Name                   string     `json:"name" gorm:"type:text"`
	Username               string     `json:"username" gorm:"type:text;index"`
	Email                  string     `json:"email" gorm:"type:text;index"`
	Summary                string     `json:"summary" gorm:"type:text"`
	WebsiteURL             string     `json:"websiteUrl" gorm:"type:text"`
	ReputationModifier     float64    `json:"reputationModifier" gorm:"not null;default:1"`
	BadgeAchievementsCount int        `json:"badgeAchievementsCount" gorm:"not null;default:0"`
	Roles                  []UserRole `json:"roles" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
	CreatedAt              time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt              time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

type UserRole struct {
	UserID    int64     `json:"userId" gorm:"primaryKey;autoIncrement:false"`
	Name      string    `json:"name" gorm:"primaryKey;type:text"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

type Organization struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:text"`
	Slug      string    `json:"slug" gorm:"type:text;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

type OrganizationMembership struct {
	UserID         int64     `json:"userId" gorm:"primaryKey;autoIncrement:false"`
	OrganizationID int64     `json:"organizationId" gorm:"primaryKey;autoIncrement:false;index"`
	Type           string    `json:"type" gorm:"type:text;default:'member'"`
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

type Follow struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	FollowerID     int64     `json:"followerId" gorm:"index"`
	FollowableID   int64     `json:"followableId" gorm:"index:idx_follows_followable"`
	FollowableType string    `json:"followableType" gorm:"type:text;index:idx_follows_followable"`
	Blocked        bool      `json:"blocked" gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
