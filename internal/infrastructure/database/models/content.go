package models

import (
	"time"
)

type Article struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	UserID        int64     `json:"userId" gorm:"index"`
	Title         string    `json:"title" gorm:"type:text"`
	BodyMarkdown  string    `json:"bodyMarkdown" gorm:"type:text"`
	ProcessedHTML string    `json:"processedHtml" gorm:"type:text"`
	Published     bool      `json:"published" gorm:"not null;default:false"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

type Comment struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	UserID        int64     `json:"userId" gorm:"index"`
	ArticleID     int64     `json:"articleId" gorm:"index"`
	BodyMarkdown  string    `json:"bodyMarkdown" gorm:"type:text"`
	ProcessedHTML string    `json:"processedHtml" gorm:"type:text"`
	CreatedAt     time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}
