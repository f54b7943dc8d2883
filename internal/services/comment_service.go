package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"zhutalk/internal/config"
	"zhutalk/internal/events"
	"zhutalk/internal/metrics"
	"zhutalk/internal/models"
	"zhutalk/internal/store"
	"zhutalk/internal/thread"
	"zhutalk/internal/utils"

	"github.com/rs/zerolog"
)

type CommentRepository interface {
	ListByArticle(ctx context.Context, articleID uint) ([]models.Comment, error)
	Get(ctx context.Context, id string) (*models.Comment, error)
	Create(ctx context.Context, c *models.Comment) error
	UpdateBody(ctx context.Context, id, body string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type ArticleRepository interface {
	GetArticle(ctx context.Context, id uint) (*models.Article, error)
}

const excerptLength = 140

// CommentService runs the read pipeline (filter, build, paginate) and the
// mutation policy in front of the comment store.
type CommentService struct {
	comments  CommentRepository
	articles  ArticleRepository
	policy    config.Policy
	publisher events.Publisher
	idem      IdempotencyStore
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() (string, error)
}

type Option func(*CommentService)

func WithPublisher(p events.Publisher) Option {
	return func(s *CommentService) { s.publisher = p }
}

func WithIdempotency(store IdempotencyStore) Option {
	return func(s *CommentService) { s.idem = store }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CommentService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *CommentService) { s.now = now }
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *CommentService) { s.newID = gen }
}

func NewCommentService(comments CommentRepository, articles ArticleRepository, policy config.Policy, opts ...Option) *CommentService {
	s := &CommentService{
		comments:  comments,
		articles:  articles,
		policy:    policy,
		publisher: events.NoopPublisher{},
		now:       time.Now,
		newID:     utils.NewCommentID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CommentService) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	s.metrics.RecordOperation(op, result, s.now().Sub(start))
}

// publishedArticle loads the article and requires it to be publicly visible.
func (s *CommentService) publishedArticle(ctx context.Context, id uint) (*models.Article, error) {
	a, err := s.articles.GetArticle(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "文章不存在")
	}
	if err != nil {
		return nil, internal(err, "读取文章失败")
	}
	if !a.IsPublished() {
		return nil, newError(KindNotPublished, "文章未发布")
	}
	return a, nil
}

// ListQuery holds the raw read parameters. Zero values mean defaults.
type ListQuery struct {
	Sort   string
	Limit  int
	Offset int
}

func (s *CommentService) normalizeQuery(q ListQuery) (thread.SortKey, int, int, error) {
	key, ok := thread.ParseSort(q.Sort)
	if !ok {
		return "", 0, 0, newError(KindValidation, "sort 只能是 newest 或 oldest")
	}
	if q.Offset < 0 {
		return "", 0, 0, newError(KindValidation, "offset 不能为负数")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.policy.DefaultPageLimit
	}
	if limit > s.policy.MaxPageLimit {
		limit = s.policy.MaxPageLimit
	}
	return key, limit, q.Offset, nil
}

// ListThread returns one page of root threads of the article as seen by viewer.
func (s *CommentService) ListThread(ctx context.Context, articleID uint, viewer *models.User, q ListQuery) (page thread.Page, err error) {
	start := s.now()
	defer func() { s.observe("list", start, err) }()

	key, limit, offset, err := s.normalizeQuery(q)
	if err != nil {
		return thread.Page{}, err
	}
	if _, err = s.publishedArticle(ctx, articleID); err != nil {
		return thread.Page{}, err
	}

	all, err := s.comments.ListByArticle(ctx, articleID)
	if err != nil {
		return thread.Page{}, internal(err, "读取评论失败")
	}

	roots, stats := thread.Build(FilterVisible(all, ViewerOf(viewer)))
	s.metrics.RecordTree(stats.Nodes, stats.Orphans)
	if stats.Cycles > 0 {
		zerolog.Ctx(ctx).Warn().Uint("article_id", articleID).Int("cycles", stats.Cycles).Msg("broke corrupt parent chains")
	}

	return thread.Paginate(roots, key, limit, offset), nil
}

type CreateInput struct {
	ArticleID      uint
	ParentID       string // empty for a root comment
	Body           string
	IdempotencyKey string
}

// CreateResult carries the comment and whether it is a replay of an earlier
// request with the same idempotency key.
type CreateResult struct {
	Comment  *models.Comment
	Replayed bool
}

func (s *CommentService) Create(ctx context.Context, author *models.User, in CreateInput) (res CreateResult, err error) {
	start := s.now()
	defer func() { s.observe("create", start, err) }()
	logger := zerolog.Ctx(ctx)

	if author == nil {
		return CreateResult{}, newError(KindUnauthenticated, "请先登录")
	}
	if _, err = s.publishedArticle(ctx, in.ArticleID); err != nil {
		return CreateResult{}, err
	}
	body, err := normalizeBody(in.Body, s.policy.MaxBodyLength)
	if err != nil {
		return CreateResult{}, err
	}

	var parentID *string
	if pid := strings.TrimSpace(in.ParentID); pid != "" {
		parent, gerr := s.comments.Get(ctx, pid)
		if errors.Is(gerr, store.ErrNotFound) {
			return CreateResult{}, newError(KindNotFound, "回复的评论不存在")
		}
		if gerr != nil {
			return CreateResult{}, internal(gerr, "读取评论失败")
		}
		if err = checkParent(parent, in.ArticleID); err != nil {
			return CreateResult{}, err
		}
		parentID = &parent.ID
	}

	var reservedKey string
	if in.IdempotencyKey != "" && s.idem != nil {
		scoped := scopeKey(author.ID, in.IdempotencyKey)
		existing, reserved, rerr := s.idem.Reserve(ctx, scoped)
		switch {
		case rerr != nil:
			// 幂等存储不可用时照常创建
			logger.Warn().Err(rerr).Msg("idempotency store unavailable")
		case existing != "":
			c, gerr := s.comments.Get(ctx, existing)
			if gerr != nil && !errors.Is(gerr, store.ErrNotFound) {
				return CreateResult{}, internal(gerr, "读取评论失败")
			}
			// 同一个键只能重放同一篇文章下仍然存在的评论
			if gerr != nil || c.ArticleID != in.ArticleID || c.IsDeleted() {
				return CreateResult{}, newError(KindValidation, "幂等键已被其他请求使用")
			}
			return CreateResult{Comment: c, Replayed: true}, nil
		case !reserved:
			return CreateResult{}, newError(KindAlreadyExists, "相同的请求正在处理中")
		default:
			reservedKey = scoped
		}
	}

	id, err := s.newID()
	if err != nil {
		s.release(ctx, reservedKey)
		return CreateResult{}, internal(err, "生成评论 ID 失败")
	}
	if parentID != nil && *parentID == id {
		s.release(ctx, reservedKey)
		return CreateResult{}, newError(KindInvalidParent, "评论不能回复自己")
	}

	now := s.now()
	c := &models.Comment{
		ID:        id,
		ArticleID: in.ArticleID,
		AuthorID:  author.ID,
		Author:    *author,
		ParentID:  parentID,
		Body:      body,
		Status:    models.CommentStatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.comments.Create(ctx, c); err != nil {
		s.release(ctx, reservedKey)
		return CreateResult{}, internal(err, "保存评论失败")
	}
	if reservedKey != "" {
		if cerr := s.idem.Complete(ctx, reservedKey, c.ID); cerr != nil {
			logger.Warn().Err(cerr).Str("comment_id", c.ID).Msg("failed to record idempotency key")
		}
	}

	logger.Info().Str("comment_id", c.ID).Uint("article_id", c.ArticleID).Uint("author_id", author.ID).Msg("comment created")
	s.publish(ctx, events.TopicCommentCreated, c, author.ID, true)
	return CreateResult{Comment: c}, nil
}

func (s *CommentService) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to release idempotency key")
	}
}

// loadForMutation returns the comment or NOT_FOUND.
func (s *CommentService) loadForMutation(ctx context.Context, id string) (*models.Comment, error) {
	c, err := s.comments.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindNotFound, "评论不存在")
	}
	if err != nil {
		return nil, internal(err, "读取评论失败")
	}
	return c, nil
}

// Edit replaces the body of a comment. Concurrent edits are last-write-wins.
func (s *CommentService) Edit(ctx context.Context, actor *models.User, commentID, body string) (c *models.Comment, err error) {
	start := s.now()
	defer func() { s.observe("edit", start, err) }()
	logger := zerolog.Ctx(ctx)

	if actor == nil {
		return nil, newError(KindUnauthenticated, "请先登录")
	}
	c, err = s.loadForMutation(ctx, commentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err = checkEdit(c, ViewerOf(actor), now, s.policy.EditWindow); err != nil {
		logger.Warn().Str("comment_id", commentID).Uint("actor_id", actor.ID).Str("kind", string(KindOf(err))).Msg("edit denied")
		return nil, err
	}
	if body, err = normalizeBody(body, s.policy.MaxBodyLength); err != nil {
		return nil, err
	}

	if err = s.comments.UpdateBody(ctx, c.ID, body, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindNotFound, "评论不存在")
		}
		return nil, internal(err, "更新评论失败")
	}
	c.Body = body
	c.UpdatedAt = now

	logger.Info().Str("comment_id", c.ID).Uint("actor_id", actor.ID).Msg("comment edited")
	s.publish(ctx, events.TopicCommentEdited, c, actor.ID, true)
	return c, nil
}

// Delete soft-deletes a comment. Deleting twice is NOT_FOUND.
func (s *CommentService) Delete(ctx context.Context, actor *models.User, commentID string) (err error) {
	start := s.now()
	defer func() { s.observe("delete", start, err) }()
	logger := zerolog.Ctx(ctx)

	if actor == nil {
		return newError(KindUnauthenticated, "请先登录")
	}
	c, err := s.loadForMutation(ctx, commentID)
	if err != nil {
		return err
	}
	if err = checkDelete(c, ViewerOf(actor)); err != nil {
		logger.Warn().Str("comment_id", commentID).Uint("actor_id", actor.ID).Str("kind", string(KindOf(err))).Msg("delete denied")
		return err
	}

	now := s.now()
	if err = s.comments.SoftDelete(ctx, c.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(KindNotFound, "评论不存在")
		}
		return internal(err, "删除评论失败")
	}
	c.DeletedAt = &now
	c.Status = models.CommentStatusDeleted

	logger.Info().Str("comment_id", c.ID).Uint("actor_id", actor.ID).Msg("comment deleted")
	s.publish(ctx, events.TopicCommentDeleted, c, actor.ID, false)
	return nil
}

// publish emits the event after the write committed. Failures are logged only.
func (s *CommentService) publish(ctx context.Context, topic string, c *models.Comment, actorID uint, withExcerpt bool) {
	ev := events.CommentEvent{
		CommentID:  c.ID,
		ArticleID:  c.ArticleID,
		ParentID:   c.ParentID,
		AuthorID:   c.AuthorID,
		ActorID:    actorID,
		OccurredAt: s.now(),
	}
	if withExcerpt {
		ev.Excerpt = utils.PlainExcerpt(string(utils.RenderMarkdown(c.Body)), excerptLength)
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), topic, ev); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("topic", topic).Str("comment_id", c.ID).Msg("failed to publish event")
	}
}
