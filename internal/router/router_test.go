package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zhutalk/internal/config"
	"zhutalk/internal/metrics"
	"zhutalk/internal/models"
	"zhutalk/internal/services"
	"zhutalk/internal/store/storetest"
	"zhutalk/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	srv     *httptest.Server
	mem     *storetest.Memory
	now     time.Time
	pingErr error
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := utils.HashPassword("pw")
	require.NoError(t, err)

	e := &env{mem: storetest.NewMemory(), now: t0}
	e.mem.AddUser(models.User{ID: 1, Username: "alice", Email: "alice@example.com", Password: hash, Avatar: "🌱", Role: models.RoleUser})
	e.mem.AddUser(models.User{ID: 2, Username: "bob", Email: "bob@example.com", Password: hash, Avatar: "🐼", Role: models.RoleUser})
	e.mem.AddUser(models.User{ID: 3, Username: "mod", Email: "mod@example.com", Password: hash, Role: models.RoleModerator})
	e.mem.AddArticle(models.Article{ID: 1, Slug: "a", Title: "A", Status: models.ArticleStatusPublished})
	e.mem.AddArticle(models.Article{ID: 2, Slug: "draft", Title: "Draft", Status: models.ArticleStatusDraft})

	cfg := config.Defaults()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	seq := 0
	svc := services.NewCommentService(e.mem, e.mem, cfg.Policy,
		services.WithClock(func() time.Time { return e.now }),
		services.WithMetrics(m),
		services.WithIDGenerator(func() (string, error) {
			seq++
			return fmt.Sprintf("c_%04d", seq), nil
		}),
	)

	engine, err := New(Deps{
		Config:   cfg,
		Comments: svc,
		Users:    e.mem,
		Ping:     func(context.Context) error { return e.pingErr },
		Metrics:  m,
		Gatherer: reg,
	})
	require.NoError(t, err)

	e.srv = httptest.NewServer(engine)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) client(t *testing.T, email string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &http.Client{Jar: jar}
	if email == "" {
		return c
	}
	resp := do(t, c, http.MethodPost, e.srv.URL+"/api/session", map[string]string{"email": email, "password": "pw"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return c
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r response) json(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, v), string(r.Body))
}

func do(t *testing.T, c *http.Client, method, url string, body any, header map[string]string) response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
}

type node struct {
	ID          string  `json:"id"`
	ParentID    *string `json:"parent_id"`
	State       string  `json:"state"`
	Content     string  `json:"content"`
	ContentHTML string  `json:"content_html"`
	Depth       int     `json:"depth"`
	Edited      bool    `json:"edited"`
	Author      struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"author"`
	Replies []node `json:"replies"`
}

type page struct {
	Comments   []node `json:"comments"`
	TotalCount int    `json:"total_count"`
	HasMore    bool   `json:"has_more"`
	NextOffset *int   `json:"next_offset"`
	Sort       string `json:"sort"`
	Limit      int    `json:"limit"`
}

type apiError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (e *env) post(t *testing.T, c *http.Client, article uint, parent, content string) node {
	t.Helper()
	resp := do(t, c, http.MethodPost, fmt.Sprintf("%s/api/articles/%d/comments", e.srv.URL, article),
		map[string]string{"content": content, "parent_comment_id": parent}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.Body))
	var n node
	resp.json(t, &n)
	return n
}

func (e *env) list(t *testing.T, c *http.Client, query string) (page, response) {
	t.Helper()
	resp := do(t, c, http.MethodGet, e.srv.URL+"/api/articles/1/comments?"+query, nil, nil)
	var p page
	if resp.StatusCode == http.StatusOK {
		resp.json(t, &p)
	}
	return p, resp
}

func TestPaginationScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")
	anon := e.client(t, "")

	c1 := e.post(t, alice, 1, "", "C1")
	e.now = t0.Add(time.Second)
	c2 := e.post(t, alice, 1, "", "C2")
	e.now = t0.Add(2 * time.Second)
	c3 := e.post(t, alice, 1, c1.ID, "C3")

	p, resp := e.list(t, anon, "sort=oldest&limit=1&offset=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, p.Comments, 1)
	assert.Equal(t, c1.ID, p.Comments[0].ID)
	require.Len(t, p.Comments[0].Replies, 1)
	assert.Equal(t, c3.ID, p.Comments[0].Replies[0].ID)
	assert.Equal(t, 1, p.Comments[0].Replies[0].Depth)
	assert.Equal(t, 2, p.TotalCount)
	assert.True(t, p.HasMore)
	require.NotNil(t, p.NextOffset)
	assert.Equal(t, 1, *p.NextOffset)

	p, _ = e.list(t, anon, "sort=oldest&limit=1&offset=1")
	require.Len(t, p.Comments, 1)
	assert.Equal(t, c2.ID, p.Comments[0].ID)
	assert.False(t, p.HasMore)
	assert.Nil(t, p.NextOffset)
}

func TestDeleteThenEditScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")
	bob := e.client(t, "bob@example.com")

	c1 := e.post(t, alice, 1, "", "C1 secret")
	c3 := e.post(t, bob, 1, c1.ID, "C3")

	resp := do(t, alice, http.MethodDelete, e.srv.URL+"/api/comments/"+c1.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Body)

	resp = do(t, alice, http.MethodPatch, e.srv.URL+"/api/comments/"+c1.ID, map[string]string{"content": "again"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var apiErr apiError
	resp.json(t, &apiErr)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	p, listResp := e.list(t, e.client(t, ""), "")
	require.Len(t, p.Comments, 1)
	tomb := p.Comments[0]
	assert.Equal(t, c1.ID, tomb.ID)
	assert.Equal(t, "tombstone", tomb.State)
	assert.Empty(t, tomb.Content)
	assert.Equal(t, "alice", tomb.Author.Username)
	require.Len(t, tomb.Replies, 1)
	assert.Equal(t, c3.ID, tomb.Replies[0].ID)
	assert.NotContains(t, string(listResp.Body), "C1 secret")
}

func TestWireErrorCodes(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")
	bob := e.client(t, "bob@example.com")
	anon := e.client(t, "")
	c := e.post(t, alice, 1, "", "mine")

	tests := []struct {
		name   string
		client *http.Client
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"create anonymous", anon, http.MethodPost, "/api/articles/1/comments", map[string]string{"content": "x"}, 401, "UNAUTHENTICATED"},
		{"create empty", alice, http.MethodPost, "/api/articles/1/comments", map[string]string{"content": "  "}, 400, "VALIDATION_ERROR"},
		{"create too long", alice, http.MethodPost, "/api/articles/1/comments", map[string]string{"content": strings.Repeat("a", 5001)}, 400, "VALIDATION_ERROR"},
		{"create on draft", alice, http.MethodPost, "/api/articles/2/comments", map[string]string{"content": "x"}, 403, "NOT_PUBLISHED"},
		{"create on missing article", alice, http.MethodPost, "/api/articles/99/comments", map[string]string{"content": "x"}, 404, "NOT_FOUND"},
		{"create missing parent", alice, http.MethodPost, "/api/articles/1/comments", map[string]string{"content": "x", "parent_comment_id": "c_zzz"}, 404, "NOT_FOUND"},
		{"create bad json", alice, http.MethodPost, "/api/articles/1/comments", "not an object", 400, "VALIDATION_ERROR"},
		{"edit other", bob, http.MethodPatch, "/api/comments/" + c.ID, map[string]string{"content": "x"}, 403, "UNAUTHORIZED"},
		{"delete other", bob, http.MethodDelete, "/api/comments/" + c.ID, nil, 403, "UNAUTHORIZED"},
		{"delete anonymous", anon, http.MethodDelete, "/api/comments/" + c.ID, nil, 401, "UNAUTHENTICATED"},
		{"delete missing", alice, http.MethodDelete, "/api/comments/c_zzz", nil, 404, "NOT_FOUND"},
		{"read draft", anon, http.MethodGet, "/api/articles/2/comments", nil, 403, "NOT_PUBLISHED"},
		{"read bad sort", anon, http.MethodGet, "/api/articles/1/comments?sort=top", nil, 400, "VALIDATION_ERROR"},
		{"read bad limit", anon, http.MethodGet, "/api/articles/1/comments?limit=ten", nil, 400, "VALIDATION_ERROR"},
		{"read negative offset", anon, http.MethodGet, "/api/articles/1/comments?offset=-2", nil, 400, "VALIDATION_ERROR"},
		{"read bad article id", anon, http.MethodGet, "/api/articles/abc/comments", nil, 404, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.client, tt.method, e.srv.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode, string(resp.Body))
			var apiErr apiError
			resp.json(t, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.Error)
		})
	}
}

func TestEditWindowOverWire(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")
	mod := e.client(t, "mod@example.com")
	c := e.post(t, alice, 1, "", "draft text")

	e.now = t0.Add(15 * time.Minute)
	resp := do(t, alice, http.MethodPatch, e.srv.URL+"/api/comments/"+c.ID, map[string]string{"content": "late"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var apiErr apiError
	resp.json(t, &apiErr)
	assert.Equal(t, "EDIT_WINDOW_EXPIRED", apiErr.Code)

	resp = do(t, mod, http.MethodPatch, e.srv.URL+"/api/comments/"+c.ID, map[string]string{"content": "**moderated**"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var n node
	resp.json(t, &n)
	assert.Equal(t, "**moderated**", n.Content)
	assert.Contains(t, n.ContentHTML, "<strong>moderated</strong>")
	assert.True(t, n.Edited)
}

func TestLimitIsClamped(t *testing.T) {
	e := newEnv(t)
	p, resp := e.list(t, e.client(t, ""), "limit=1000")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, "newest", p.Sort)
	assert.NotNil(t, p.Comments)
}

func TestSessionEndpoints(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "")

	resp := do(t, c, http.MethodPost, e.srv.URL+"/api/session", map[string]string{"email": "alice@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c = e.client(t, "mod@example.com")
	resp = do(t, c, http.MethodGet, e.srv.URL+"/api/session", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me map[string]any
	resp.json(t, &me)
	assert.Equal(t, "moderator", me["role"])

	resp = do(t, c, http.MethodDelete, e.srv.URL+"/api/session", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, c, http.MethodGet, e.srv.URL+"/api/session", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestThreadFragment(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")

	parent := ""
	for i := range 9 {
		n := e.post(t, alice, 1, parent, fmt.Sprintf("level %d", i))
		parent = n.ID
	}
	resp := do(t, alice, http.MethodDelete, e.srv.URL+"/api/comments/c_0001", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, e.client(t, ""), http.MethodGet, e.srv.URL+"/a/1/thread?sort=oldest", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := string(resp.Body)

	assert.Contains(t, html, "该评论已删除。")
	assert.NotContains(t, html, "level 0")
	assert.Contains(t, html, "level 8")
	assert.Contains(t, html, `data-depth="8"`)
	assert.Contains(t, html, "margin-left: 9rem", "depth 8 is drawn at the display cap of 6")
	assert.NotContains(t, html, "margin-left: 12rem")

	resp = do(t, e.client(t, ""), http.MethodGet, e.srv.URL+"/a/2/thread", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "重试")
}

func TestIdempotentCreateOverWire(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice@example.com")

	// no idempotency store configured: the header is ignored
	headers := map[string]string{"Idempotency-Key": "retry-1"}
	url := e.srv.URL + "/api/articles/1/comments"
	r1 := do(t, alice, http.MethodPost, url, map[string]string{"content": "x"}, headers)
	r2 := do(t, alice, http.MethodPost, url, map[string]string{"content": "x"}, headers)
	assert.Equal(t, http.StatusCreated, r1.StatusCode)
	assert.Equal(t, http.StatusCreated, r2.StatusCode)
	assert.Empty(t, r2.Header.Get("Idempotent-Replay"))
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	c := e.client(t, "")

	resp := do(t, c, http.MethodGet, e.srv.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	e.pingErr = fmt.Errorf("down")
	resp = do(t, c, http.MethodGet, e.srv.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, _ = e.list(t, c, "")
	resp = do(t, c, http.MethodGet, e.srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := string(resp.Body)
	assert.Contains(t, body, `zhutalk_comment_operations_total{operation="list",result="ok"}`)
	assert.Contains(t, body, `zhutalk_http_requests_total{method="GET",route="/api/articles/:id/comments",status="200"}`)
}

func TestResponsesAreCompressed(t *testing.T) {
	e := newEnv(t)
	c := &http.Client{Transport: &http.Transport{DisableCompression: true}}

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/articles/1/comments", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
}
