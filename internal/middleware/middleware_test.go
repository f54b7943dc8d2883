package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"zhutalk/internal/models"
	"zhutalk/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type users map[uint]*models.User

func (u users) GetUser(_ context.Context, id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, store.ErrNotFound
}

func newEngine(loader UserLoader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("secret"))))
	r.Use(LoadUser(loader))
	r.GET("/login/:id", func(c *gin.Context) {
		s := sessions.Default(c)
		s.Set(SessionUserKey, uint(len(c.Param("id"))))
		_ = s.Save()
		c.Status(http.StatusNoContent)
	})
	r.GET("/me", AuthRequired(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).Username)
	})
	return r
}

func TestAuthRequiredRejectsAnonymous(t *testing.T) {
	r := newEngine(users{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestLoadUserFromSession(t *testing.T) {
	r := newEngine(users{1: {ID: 1, Username: "alice"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/x", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestLoadUserDropsVanishedUser(t *testing.T) {
	r := newEngine(users{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login/xy", nil))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/items/:id", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside")
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/items/9", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var access map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &access))
	assert.Equal(t, "req-123", access["request_id"])
	assert.Equal(t, "/items/:id", access["route"])
	assert.Equal(t, float64(http.StatusTeapot), access["status"])
	assert.Contains(t, string(lines[0]), `"request_id":"req-123"`)
}

func TestRequestLoggerGeneratesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}
