// Package storetest provides in-memory stores for tests of the layers above
// the database.
package storetest

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"zhutalk/internal/models"
	"zhutalk/internal/store"
)

// Memory implements the comment, article and user stores.
type Memory struct {
	mu       sync.Mutex
	comments map[string]models.Comment
	articles map[uint]models.Article
	users    map[uint]models.User

	// FailWith, when set, is returned by every comment method.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{
		comments: map[string]models.Comment{},
		articles: map[uint]models.Article{},
		users:    map[uint]models.User{},
	}
}

func (m *Memory) AddArticle(a models.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = a
}

func (m *Memory) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// AddComment inserts a row as-is, bypassing every policy check.
func (m *Memory) AddComment(c models.Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ID] = c
}

// Comment returns the stored row.
func (m *Memory) Comment(id string) (models.Comment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[id]
	return c, ok
}

func (m *Memory) withAuthor(c models.Comment) models.Comment {
	if u, ok := m.users[c.AuthorID]; ok {
		c.Author = u
	}
	return c
}

func (m *Memory) ListByArticle(_ context.Context, articleID uint) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []models.Comment
	for _, c := range m.comments {
		if c.ArticleID == articleID {
			out = append(out, m.withAuthor(c))
		}
	}
	slices.SortFunc(out, func(a, b models.Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	c, ok := m.comments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c = m.withAuthor(c)
	return &c, nil
}

func (m *Memory) Create(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.comments[c.ID]; ok {
		return errors.New("duplicate key value violates unique constraint")
	}
	row := *c
	row.Author = models.User{}
	m.comments[c.ID] = row
	return nil
}

func (m *Memory) UpdateBody(_ context.Context, id, body string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	c, ok := m.comments[id]
	if !ok || c.DeletedAt != nil {
		return store.ErrNotFound
	}
	c.Body = body
	c.UpdatedAt = at
	m.comments[id] = c
	return nil
}

func (m *Memory) SoftDelete(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	c, ok := m.comments[id]
	if !ok || c.DeletedAt != nil {
		return store.ErrNotFound
	}
	c.DeletedAt = &at
	c.Status = models.CommentStatusDeleted
	m.comments[id] = c
	return nil
}

func (m *Memory) GetArticle(_ context.Context, id uint) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) GetUser(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}
