package thread

import (
	"zhutalk/internal/models"
)

// TombstoneText is shown in place of a deleted comment's body.
const TombstoneText = "该评论已删除。"

// Body is either Visible or Tombstone. Consumers switch on the concrete type
// so a deleted body can never leak through a forgotten nil check.
type Body interface {
	isBody()
}

type Visible struct {
	Text string
}

type Tombstone struct{}

func (Visible) isBody()   {}
func (Tombstone) isBody() {}

// BodyOf returns the render-time body of a comment.
func BodyOf(c *models.Comment) Body {
	if c.IsDeleted() {
		return Tombstone{}
	}
	return Visible{Text: c.Body}
}

// DisplayDepth caps depth for indentation. The tree itself is never
// truncated; replies past the cap are drawn at the cap.
func DisplayDepth(depth, maxDepth int) int {
	if maxDepth > 0 && depth > maxDepth {
		return maxDepth
	}
	return depth
}
