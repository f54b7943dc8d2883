package models

import (
	"time"
)

type CommentStatus string

const (
	CommentStatusPending   CommentStatus = "pending" // 预留给审核流程，目前创建时一律 published
	CommentStatusPublished CommentStatus = "published"
	CommentStatusDeleted   CommentStatus = "deleted"
)

type Comment struct {
	ID        string        `gorm:"primaryKey;size:32" json:"id"`
	ArticleID uint          `gorm:"not null;index:idx_comments_article_created,priority:1" json:"article_id"`
	AuthorID  uint          `gorm:"not null;index" json:"author_id"`
	Author    User          `gorm:"foreignKey:AuthorID" json:"author"`
	ParentID  *string       `gorm:"size:32;index" json:"parent_id"` // Nullable for top-level comments
	Body      string        `gorm:"type:text;not null" json:"body"`
	Status    CommentStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt time.Time     `gorm:"index:idx_comments_article_created,priority:2" json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	// Not gorm.DeletedAt: deleted rows must stay queryable as tombstones.
	DeletedAt *time.Time `json:"deleted_at"`
}

// IsDeleted reports whether the comment has been soft-deleted.
func (c *Comment) IsDeleted() bool {
	return c.DeletedAt != nil || c.Status == CommentStatusDeleted
}

// IsRoot reports whether the comment was posted directly on the article.
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}

// Edited reports whether the body was changed after creation.
func (c *Comment) Edited() bool {
	return c.UpdatedAt.After(c.CreatedAt)
}
