package router

import (
	"context"

	"zhutalk/internal/config"
	"zhutalk/internal/handlers"
	"zhutalk/internal/metrics"
	"zhutalk/internal/middleware"
	"zhutalk/internal/services"
	"zhutalk/web"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionName = "zhutalk_session"

type Users interface {
	middleware.UserLoader
	handlers.UserFinder
}

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config   config.Config
	Comments *services.CommentService
	Users    Users
	Ping     func(ctx context.Context) error
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // nil means the default registry
}

// New builds the gin engine with sessions, templates and every route.
func New(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(d.Metrics.Middleware())
	// promhttp 自己处理压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	store := cookie.NewStore([]byte(d.Config.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 30 * 24 * 3600, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.LoadUser(d.Users))

	renderer, err := loadTemplates(web.Templates)
	if err != nil {
		return nil, err
	}
	r.HTMLRender = renderer

	RegisterRoutes(r, d)
	return r, nil
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	commentHandler := handlers.NewCommentHandler(d.Comments, d.Config.Policy)
	authHandler := handlers.NewAuthHandler(d.Users)
	healthHandler := handlers.NewHealthHandler(d.Ping)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// 公共路由 (Public Routes)
	r.GET("/healthz", healthHandler.Check)                                              // 健康检查
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))) // Prometheus 指标
	r.GET("/a/:id/thread", commentHandler.ThreadFragment)                               // 评论区 HTML 片段

	api := r.Group("/api")
	{
		api.GET("/articles/:id/comments", commentHandler.List) // 评论树（分页）
		api.POST("/session", authHandler.Login)               // 登录
		api.DELETE("/session", authHandler.Logout)            // 退出登录
	}

	// 受保护路由 (Protected Routes)
	authorized := api.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.GET("/session", authHandler.Me)                        // 当前用户
		authorized.POST("/articles/:id/comments", commentHandler.Create) // 发表评论
		authorized.PATCH("/comments/:cid", commentHandler.Update)        // 编辑评论
		authorized.DELETE("/comments/:cid", commentHandler.Delete)       // 删除评论
	}
}
