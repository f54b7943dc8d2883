package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"zhutalk/internal/models"
	"zhutalk/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a row does not exist, or for comment
// mutations when the row was already soft-deleted.
var ErrNotFound = errors.New("not found")

func wrap(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CommentStore persists comments with gorm.
type CommentStore struct {
	db *gorm.DB
}

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

// ListByArticle returns every comment of the article, deleted rows included,
// ordered by creation time with id as tie-break.
func (s *CommentStore) ListByArticle(ctx context.Context, articleID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("article_id = ?", articleID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *CommentStore) Get(ctx context.Context, id string) (*models.Comment, error) {
	var c models.Comment
	if err := s.db.WithContext(ctx).Preload("Author").Where("id = ?", id).Take(&c).Error; err != nil {
		return nil, wrap(err, "get comment")
	}
	return &c, nil
}

// Create inserts the comment. The Author association is never written.
func (s *CommentStore) Create(ctx context.Context, c *models.Comment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// UpdateBody replaces the body of a live comment.
func (s *CommentStore) UpdateBody(ctx context.Context, id, body string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumns(map[string]any{"body": body, "updated_at": at})
	if res.Error != nil {
		return fmt.Errorf("update comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a live comment deleted. The body is kept.
func (s *CommentStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumns(map[string]any{"deleted_at": at, "status": models.CommentStatusDeleted})
	if res.Error != nil {
		return fmt.Errorf("delete comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ArticleStore reads articles owned by the publishing workflow.
type ArticleStore struct {
	db *gorm.DB
}

func NewArticleStore(db *gorm.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) GetArticle(ctx context.Context, id uint) (*models.Article, error) {
	var a models.Article
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error; err != nil {
		return nil, wrap(err, "get article")
	}
	return &a, nil
}

type articleGetter interface {
	GetArticle(ctx context.Context, id uint) (*models.Article, error)
}

// CachedArticleStore keeps recently read articles in memory. Misses are not
// cached so a newly published article shows up immediately.
type CachedArticleStore struct {
	next  articleGetter
	cache *utils.TTLCache[models.Article]
	ttl   time.Duration
}

func NewCachedArticleStore(next articleGetter, size int, ttl time.Duration) (*CachedArticleStore, error) {
	cache, err := utils.NewTTLCache[models.Article](size)
	if err != nil {
		return nil, err
	}
	return &CachedArticleStore{next: next, cache: cache, ttl: ttl}, nil
}

func (s *CachedArticleStore) GetArticle(ctx context.Context, id uint) (*models.Article, error) {
	key := strconv.FormatUint(uint64(id), 10)
	if a, ok := s.cache.Get(key); ok {
		return &a, nil
	}
	a, err := s.next.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, *a, s.ttl)
	return a, nil
}

// UserStore reads accounts for session resolution and login.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, wrap(err, "get user")
	}
	return &u, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error; err != nil {
		return nil, wrap(err, "get user by email")
	}
	return &u, nil
}
