// Package client talks to the comment API over HTTP and keeps a local view
// of one article's thread.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Error codes returned in the "code" field of API error bodies.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeNotPublished      = "NOT_PUBLISHED"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidParent     = "INVALID_PARENT"
	CodeEditWindowExpired = "EDIT_WINDOW_EXPIRED"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeInternal          = "INTERNAL_ERROR"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayHeader         = "Idempotent-Replay"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Author struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Node is one comment as the server renders it, with its replies nested.
type Node struct {
	ID          string    `json:"id"`
	ArticleID   uint      `json:"article_id"`
	ParentID    *string   `json:"parent_id"`
	Author      Author    `json:"author"`
	State       string    `json:"state"`
	Content     string    `json:"content,omitempty"`
	ContentHTML string    `json:"content_html,omitempty"`
	Status      string    `json:"status"`
	Depth       int       `json:"depth"`
	Edited      bool      `json:"edited"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Replies     []*Node   `json:"replies"`
}

const (
	StateVisible   = "visible"
	StateTombstone = "tombstone"
)

func (n *Node) IsTombstone() bool { return n.State == StateTombstone }

type Page struct {
	Comments   []*Node `json:"comments"`
	TotalCount int     `json:"total_count"`
	HasMore    bool    `json:"has_more"`
	NextOffset *int    `json:"next_offset,omitempty"`
	Sort       string  `json:"sort"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

type ListOptions struct {
	Sort   string
	Limit  int
	Offset int
}

type CreateRequest struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parent_comment_id,omitempty"`

	IdempotencyKey string `json:"-"`
}

// CreateResult carries the new comment and whether the server replayed an
// earlier request with the same idempotency key.
type CreateResult struct {
	Comment  *Node
	Replayed bool
}

type SessionUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
}

// HTTPClient calls the comment API. The session cookie set by Login is kept
// in a cookie jar and sent on every later request.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
}

// Cookies returns the session cookies for persisting between CLI runs.
func (c *HTTPClient) Cookies() []*http.Cookie {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil
	}
	return c.httpClient.Jar.Cookies(u)
}

// SetCookies restores cookies saved by Cookies.
func (c *HTTPClient) SetCookies(cookies []*http.Cookie) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parsing base url: %w", err)
	}
	c.httpClient.Jar.SetCookies(u, cookies)
	return nil
}

// --- Session ---

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*SessionUser, error) {
	body := map[string]string{"email": email, "password": password}
	var user SessionUser
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/session", body, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/session", nil, nil, nil)
	return err
}

func (c *HTTPClient) Me(ctx context.Context) (*SessionUser, error) {
	var user SessionUser
	if _, err := c.doJSON(ctx, http.MethodGet, "/api/session", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// --- Comments ---

func (c *HTTPClient) ListComments(ctx context.Context, articleID uint, opts ListOptions) (*Page, error) {
	q := url.Values{}
	if opts.Sort != "" {
		q.Set("sort", opts.Sort)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := articlePath(articleID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page Page
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *HTTPClient) CreateComment(ctx context.Context, articleID uint, req *CreateRequest) (*CreateResult, error) {
	var header http.Header
	if req.IdempotencyKey != "" {
		header = http.Header{idempotencyKeyHeader: []string{req.IdempotencyKey}}
	}
	var node Node
	respHeader, err := c.doJSON(ctx, http.MethodPost, articlePath(articleID), req, header, &node)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Comment: &node, Replayed: respHeader.Get(replayHeader) == "true"}, nil
}

func (c *HTTPClient) EditComment(ctx context.Context, id, content string) (*Node, error) {
	var node Node
	body := map[string]string{"content": content}
	if _, err := c.doJSON(ctx, http.MethodPatch, "/api/comments/"+url.PathEscape(id), body, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *HTTPClient) DeleteComment(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, "/api/comments/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func articlePath(articleID uint) string {
	return "/api/articles/" + strconv.FormatUint(uint64(articleID), 10) + "/comments"
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, header http.Header, result any) (http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return resp.Header, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.Header, nil
}
