package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"zhutalk/internal/models"
)

// normalizeBody trims the body and checks its length in characters.
func normalizeBody(body string, maxLen int) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", newError(KindValidation, "评论内容不能为空")
	}
	if n := utf8.RuneCountInString(body); n > maxLen {
		return "", newError(KindValidation, fmt.Sprintf("评论内容不能超过 %d 个字符（当前 %d）", maxLen, n))
	}
	return body, nil
}

// checkEdit allows the author inside the edit window and elevated roles at
// any time. The window is half-open: at exactly created_at+window the edit
// is rejected.
func checkEdit(c *models.Comment, v *Viewer, now time.Time, window time.Duration) error {
	if v == nil {
		return newError(KindUnauthenticated, "请先登录")
	}
	if c.IsDeleted() {
		return newError(KindNotFound, "评论不存在")
	}
	if v.Elevated {
		return nil
	}
	if c.AuthorID != v.ID {
		return newError(KindUnauthorized, "只能编辑自己的评论")
	}
	if now.Sub(c.CreatedAt) >= window {
		return newError(KindEditWindowExpired, fmt.Sprintf("评论发布超过 %s，已无法编辑", window))
	}
	return nil
}

func checkDelete(c *models.Comment, v *Viewer) error {
	if v == nil {
		return newError(KindUnauthenticated, "请先登录")
	}
	if c.IsDeleted() {
		return newError(KindNotFound, "评论不存在")
	}
	if !v.Elevated && c.AuthorID != v.ID {
		return newError(KindUnauthorized, "只能删除自己的评论")
	}
	return nil
}

// checkParent validates the reply target of a new comment.
func checkParent(parent *models.Comment, articleID uint) error {
	if parent.ArticleID != articleID {
		return newError(KindInvalidParent, "回复的评论不属于该文章")
	}
	if parent.IsDeleted() {
		return newError(KindInvalidParent, "不能回复已删除的评论")
	}
	return nil
}
