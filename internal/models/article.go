package models

import (
	"time"
)

type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
	ArticleStatusArchived  ArticleStatus = "archived"
)

// Article is owned by the publishing workflow; this service only reads it.
type Article struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	Slug      string        `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	Title     string        `gorm:"not null" json:"title"`
	Status    ArticleStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (a *Article) IsPublished() bool {
	return a.Status == ArticleStatusPublished
}
