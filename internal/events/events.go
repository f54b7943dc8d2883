package events

import (
	"context"
	"time"
)

const (
	TopicCommentCreated = "comments.comment.created"
	TopicCommentEdited  = "comments.comment.edited"
	TopicCommentDeleted = "comments.comment.deleted"
)

// CommentEvent is emitted after a comment write has committed.
// Consumers are notification and search collaborators.
type CommentEvent struct {
	CommentID  string    `json:"comment_id"`
	ArticleID  uint      `json:"article_id"`
	ParentID   *string   `json:"parent_id,omitempty"`
	AuthorID   uint      `json:"author_id"`
	ActorID    uint      `json:"actor_id"` // differs from AuthorID for moderator actions
	Excerpt    string    `json:"excerpt,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
