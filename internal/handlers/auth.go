package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"zhutalk/internal/middleware"
	"zhutalk/internal/models"
	"zhutalk/internal/services"
	"zhutalk/internal/store"
	"zhutalk/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type UserFinder interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthHandler 会话登录，只负责把用户 ID 写入会话
type AuthHandler struct {
	users UserFinder
}

func NewAuthHandler(users UserFinder) *AuthHandler {
	return &AuthHandler{users: users}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
}

func toSessionUser(u *models.User) sessionUser {
	return sessionUser{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Role: u.Role}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "请求格式错误")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		validationError(c, "邮箱和密码不能为空")
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(c, &services.Error{Kind: services.KindInternal, Message: "登录失败", Err: err})
		return
	}
	if user == nil || !utils.CheckPasswordHash(req.Password, user.Password) {
		writeError(c, &services.Error{Kind: services.KindUnauthenticated, Message: "邮箱或密码错误"})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		writeError(c, &services.Error{Kind: services.KindInternal, Message: "登录失败", Err: err})
		return
	}
	zerolog.Ctx(c.Request.Context()).Info().Uint("user_id", user.ID).Msg("user logged in")
	c.JSON(http.StatusOK, toSessionUser(user))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

// Me returns the logged-in user. AuthRequired guards it.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionUser(middleware.CurrentUser(c)))
}
