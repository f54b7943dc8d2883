package handlers

import (
	"errors"
	"net/http"
	"time"

	"zhutalk/internal/middleware"
	"zhutalk/internal/models"
	"zhutalk/internal/services"
	"zhutalk/internal/thread"
	"zhutalk/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Render helper to inject common variables like 'current user'
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	if user := middleware.CurrentUser(c); user != nil {
		obj["CurrentUser"] = user
	}
	obj["CurrentPath"] = c.Request.URL.Path
	c.HTML(code, name, obj)
}

func statusOf(kind services.Kind) int {
	switch kind {
	case services.KindUnauthenticated:
		return http.StatusUnauthorized
	case services.KindUnauthorized, services.KindEditWindowExpired, services.KindNotPublished:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindValidation, services.KindInvalidParent:
		return http.StatusBadRequest
	case services.KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its status and JSON body. Internal
// causes are logged and never sent to the client.
func writeError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	msg := "服务器内部错误"
	var se *services.Error
	if errors.As(err, &se) && kind != services.KindInternal {
		msg = se.Message
	}
	if kind == services.KindInternal {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusOf(kind), gin.H{"code": kind, "error": msg})
}

func validationError(c *gin.Context, msg string) {
	writeError(c, &services.Error{Kind: services.KindValidation, Message: msg})
}

type authorDTO struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type nodeDTO struct {
	ID          string     `json:"id"`
	ArticleID   uint       `json:"article_id"`
	ParentID    *string    `json:"parent_id"`
	Author      authorDTO  `json:"author"`
	State       string     `json:"state"`
	Content     string     `json:"content,omitempty"`
	ContentHTML string     `json:"content_html,omitempty"`
	Status      string     `json:"status"`
	Depth       int        `json:"depth"`
	Edited      bool       `json:"edited"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Replies     []*nodeDTO `json:"replies"`
}

type pageDTO struct {
	Comments   []*nodeDTO `json:"comments"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
	NextOffset *int       `json:"next_offset,omitempty"`
	Sort       string     `json:"sort"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

func newNodeDTO(c *models.Comment, depth int) *nodeDTO {
	d := &nodeDTO{
		ID:        c.ID,
		ArticleID: c.ArticleID,
		ParentID:  c.ParentID,
		Author:    authorDTO{ID: c.Author.ID, Username: c.Author.Username, Avatar: c.Author.Avatar},
		Status:    string(c.Status),
		Depth:     depth,
		Edited:    c.Edited(),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Replies:   []*nodeDTO{},
	}
	switch b := thread.BodyOf(c).(type) {
	case thread.Visible:
		d.State = "visible"
		d.Content = b.Text
		d.ContentHTML = string(utils.RenderMarkdown(b.Text))
	case thread.Tombstone:
		d.State = "tombstone"
	}
	return d
}

// toNodes converts the tree without recursion; reply chains can be deep.
func toNodes(roots []*thread.Node) []*nodeDTO {
	type item struct {
		n *thread.Node
		d *nodeDTO
	}
	out := make([]*nodeDTO, len(roots))
	stack := make([]item, 0, len(roots))
	for i, r := range roots {
		out[i] = newNodeDTO(r.Comment, r.Depth)
		stack = append(stack, item{r, out[i]})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		it.d.Replies = make([]*nodeDTO, len(it.n.Children))
		for i, child := range it.n.Children {
			d := newNodeDTO(child.Comment, child.Depth)
			it.d.Replies[i] = d
			stack = append(stack, item{child, d})
		}
	}
	return out
}

func toPage(p thread.Page) pageDTO {
	return pageDTO{
		Comments:   toNodes(p.Roots),
		TotalCount: p.TotalCount,
		HasMore:    p.HasMore,
		NextOffset: p.NextOffset,
		Sort:       string(p.Sort),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
}
