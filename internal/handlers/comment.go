package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"zhutalk/internal/config"
	"zhutalk/internal/middleware"
	"zhutalk/internal/services"
	"zhutalk/internal/thread"
	"zhutalk/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayHeader         = "Idempotent-Replay"
)

type CommentHandler struct {
	svc    *services.CommentService
	policy config.Policy
}

func NewCommentHandler(svc *services.CommentService, policy config.Policy) *CommentHandler {
	return &CommentHandler{svc: svc, policy: policy}
}

func (h *CommentHandler) articleID(c *gin.Context) (uint, bool) {
	id, ok := utils.ParseUintID(c.Param("id"))
	if !ok {
		writeError(c, &services.Error{Kind: services.KindNotFound, Message: "文章不存在"})
	}
	return id, ok
}

func (h *CommentHandler) listQuery(c *gin.Context) (services.ListQuery, bool) {
	limit, err := utils.QueryInt(c.Query("limit"), 0)
	if err != nil {
		validationError(c, "limit: "+err.Error())
		return services.ListQuery{}, false
	}
	offset, err := utils.QueryInt(c.Query("offset"), 0)
	if err != nil {
		validationError(c, "offset: "+err.Error())
		return services.ListQuery{}, false
	}
	return services.ListQuery{Sort: c.Query("sort"), Limit: limit, Offset: offset}, true
}

// List 获取文章的评论树（按根评论分页）
func (h *CommentHandler) List(c *gin.Context) {
	articleID, ok := h.articleID(c)
	if !ok {
		return
	}
	q, ok := h.listQuery(c)
	if !ok {
		return
	}
	page, err := h.svc.ListThread(c.Request.Context(), articleID, middleware.CurrentUser(c), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPage(page))
}

type createRequest struct {
	Content         string `json:"content"`
	ParentCommentID string `json:"parent_comment_id"`
}

// Create 发表评论或回复
func (h *CommentHandler) Create(c *gin.Context) {
	articleID, ok := h.articleID(c)
	if !ok {
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "请求格式错误")
		return
	}

	res, err := h.svc.Create(c.Request.Context(), middleware.CurrentUser(c), services.CreateInput{
		ArticleID:      articleID,
		ParentID:       req.ParentCommentID,
		Body:           req.Content,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Replayed {
		c.Header(ReplayHeader, "true")
		c.JSON(http.StatusOK, newNodeDTO(res.Comment, 0))
		return
	}
	c.JSON(http.StatusCreated, newNodeDTO(res.Comment, 0))
}

type updateRequest struct {
	Content string `json:"content"`
}

// Update 编辑评论
func (h *CommentHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "请求格式错误")
		return
	}
	comment, err := h.svc.Edit(c.Request.Context(), middleware.CurrentUser(c), c.Param("cid"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newNodeDTO(comment, 0))
}

// Delete 软删除评论，保留位置与作者
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUser(c), c.Param("cid")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// threadRow is one comment of the rendered fragment, flattened in
// pre-order with its indentation already capped.
type threadRow struct {
	ID           string
	ParentID     string
	Username     string
	Avatar       string
	Tombstone    bool
	HTML         template.HTML
	Depth        int
	DisplayDepth int
	Edited       bool
	CreatedAt    time.Time
}

func flatten(roots []*thread.Node, maxDepth int) []threadRow {
	var rows []threadRow
	thread.Walk(roots, func(n *thread.Node) bool {
		c := n.Comment
		row := threadRow{
			ID:           c.ID,
			Username:     c.Author.Username,
			Avatar:       c.Author.Avatar,
			Depth:        n.Depth,
			DisplayDepth: thread.DisplayDepth(n.Depth, maxDepth),
			Edited:       c.Edited(),
			CreatedAt:    c.CreatedAt,
		}
		if c.ParentID != nil {
			row.ParentID = *c.ParentID
		}
		switch b := thread.BodyOf(c).(type) {
		case thread.Visible:
			row.HTML = utils.RenderMarkdown(b.Text)
		case thread.Tombstone:
			row.Tombstone = true
		}
		rows = append(rows, row)
		return true
	})
	return rows
}

// ThreadFragment 渲染评论区 HTML 片段（HTMX 加载）
func (h *CommentHandler) ThreadFragment(c *gin.Context) {
	articleID, ok := utils.ParseUintID(c.Param("id"))
	if !ok {
		Render(c, http.StatusNotFound, "comment/error.html", gin.H{"Error": "文章不存在"})
		return
	}
	q, ok := h.fragmentQuery(c)
	if !ok {
		return
	}
	page, err := h.svc.ListThread(c.Request.Context(), articleID, middleware.CurrentUser(c), q)
	if err != nil {
		kind := services.KindOf(err)
		msg := "评论加载失败，请重试"
		var se *services.Error
		if errors.As(err, &se) && kind != services.KindInternal {
			msg = se.Message
		}
		Render(c, statusOf(kind), "comment/error.html", gin.H{"Error": msg, "ArticleID": articleID})
		return
	}

	Render(c, http.StatusOK, "comment/thread.html", gin.H{
		"ArticleID":     articleID,
		"Rows":          flatten(page.Roots, h.policy.MaxDisplayDepth),
		"TotalCount":    page.TotalCount,
		"HasMore":       page.HasMore,
		"NextOffset":    nextOffset(page),
		"Sort":          string(page.Sort),
		"TombstoneText": thread.TombstoneText,
	})
}

func nextOffset(p thread.Page) int {
	if p.NextOffset == nil {
		return 0
	}
	return *p.NextOffset
}

func (h *CommentHandler) fragmentQuery(c *gin.Context) (services.ListQuery, bool) {
	limit, err1 := utils.QueryInt(c.Query("limit"), 0)
	offset, err2 := utils.QueryInt(c.Query("offset"), 0)
	if err1 != nil || err2 != nil {
		Render(c, http.StatusBadRequest, "comment/error.html", gin.H{"Error": "分页参数错误"})
		return services.ListQuery{}, false
	}
	return services.ListQuery{Sort: c.Query("sort"), Limit: limit, Offset: offset}, true
}
