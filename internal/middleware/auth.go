package middleware

import (
	"context"
	"errors"
	"net/http"

	"zhutalk/internal/models"
	"zhutalk/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const CheckUserKey = "user"

// SessionUserKey is the session field holding the logged-in user id.
const SessionUserKey = "user_id"

type UserLoader interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// AuthRequired rejects requests without a logged-in user. It must run after LoadUser.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "error": "请先登录"})
			return
		}
		c.Next()
	}
}

// LoadUser retrieves user from session and sets to context
func LoadUser(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, ok := sessionUserID(session.Get(SessionUserKey))
		if ok {
			user, err := users.GetUser(c.Request.Context(), id)
			switch {
			case err == nil:
				c.Set(CheckUserKey, user)
			case errors.Is(err, store.ErrNotFound):
				// 用户已不存在，清理会话
				session.Delete(SessionUserKey)
				_ = session.Save()
			default:
				zerolog.Ctx(c.Request.Context()).Error().Err(err).Uint("user_id", id).Msg("failed to load session user")
			}
		}
		c.Next()
	}
}

// CurrentUser returns the logged-in user or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CheckUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

func sessionUserID(v any) (uint, bool) {
	switch id := v.(type) {
	case uint:
		return id, id > 0
	case int:
		return uint(id), id > 0
	case int64:
		return uint(id), id > 0
	case uint64:
		return uint(id), id > 0
	default:
		return 0, false
	}
}
