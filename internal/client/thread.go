package client

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// API is the part of HTTPClient the Thread hook drives.
type API interface {
	ListComments(ctx context.Context, articleID uint, opts ListOptions) (*Page, error)
	CreateComment(ctx context.Context, articleID uint, req *CreateRequest) (*CreateResult, error)
	EditComment(ctx context.Context, id, content string) (*Node, error)
	DeleteComment(ctx context.Context, id string) error
}

var ErrNotLoaded = errors.New("thread not loaded")

// Thread caches the loaded roots of one article and wraps every mutation
// with optimistic update, rollback on failure and a page-1 refetch on
// success. Operations are serialized; a failed operation leaves the cached
// tree as it was and records the error in Err.
type Thread struct {
	api       API
	articleID uint
	limit     int

	sort       string
	roots      []*Node
	total      int
	hasMore    bool
	nextOffset int
	loaded     bool
	err        error

	sem chan struct{}
}

type ThreadOption func(*Thread)

// WithPageSize sets the number of roots fetched per page; 0 leaves it to the server.
func WithPageSize(n int) ThreadOption {
	return func(t *Thread) { t.limit = n }
}

// WithSort sets the initial sort key.
func WithSort(sort string) ThreadOption {
	return func(t *Thread) { t.sort = sort }
}

func NewThread(api API, articleID uint, opts ...ThreadOption) *Thread {
	t := &Thread{
		api:       api,
		articleID: articleID,
		sort:      "newest",
		sem:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Thread) lock(ctx context.Context) error {
	select {
	case t.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Thread) unlock() { <-t.sem }

// State is a copy of the hook's cached view.
type State struct {
	Roots      []*Node
	Sort       string
	TotalCount int
	HasMore    bool
	Loaded     bool
	Err        error
}

// State returns a deep copy of the cached view. It waits for a running
// operation to finish.
func (t *Thread) State() State {
	t.sem <- struct{}{}
	defer t.unlock()
	return State{
		Roots:      cloneNodes(t.roots),
		Sort:       t.sort,
		TotalCount: t.total,
		HasMore:    t.hasMore,
		Loaded:     t.loaded,
		Err:        t.err,
	}
}

// Err returns the error of the last operation, nil if it succeeded.
func (t *Thread) Err() error {
	t.sem <- struct{}{}
	defer t.unlock()
	return t.err
}

// Load fetches the first page, replacing whatever was cached.
func (t *Thread) Load(ctx context.Context) error {
	if err := t.lock(ctx); err != nil {
		return err
	}
	defer t.unlock()
	return t.fail(t.reload(ctx, t.sort))
}

// LoadMore appends the next page of roots. It is a no-op when the server
// reported no more roots.
func (t *Thread) LoadMore(ctx context.Context) error {
	if err := t.lock(ctx); err != nil {
		return err
	}
	defer t.unlock()
	if !t.loaded {
		return t.fail(ErrNotLoaded)
	}
	if !t.hasMore {
		return t.fail(nil)
	}

	page, err := t.api.ListComments(ctx, t.articleID, ListOptions{Sort: t.sort, Limit: t.limit, Offset: t.nextOffset})
	if err != nil {
		return t.fail(err)
	}

	// 新评论可能让根评论跨页移动，跳过已缓存的
	seen := make(map[string]bool, len(t.roots))
	for _, r := range t.roots {
		seen[r.ID] = true
	}
	for _, r := range page.Comments {
		if !seen[r.ID] {
			t.roots = append(t.roots, r)
		}
	}
	t.applyPaging(page)
	return t.fail(nil)
}

// SetSort switches the sort key and reloads from the first page. On failure
// the previous sort and roots stay in place.
func (t *Thread) SetSort(ctx context.Context, sort string) error {
	if err := t.lock(ctx); err != nil {
		return err
	}
	defer t.unlock()
	return t.fail(t.reload(ctx, sort))
}

// Create posts a comment or reply under a fresh idempotency key and reloads
// the first page.
func (t *Thread) Create(ctx context.Context, parentID, content string) (*Node, error) {
	return t.CreateWithKey(ctx, uuid.NewString(), parentID, content)
}

// CreateWithKey posts a comment under the given idempotency key. A request
// that fails in transit is sent once more with the same key, so a write that
// was committed before the connection dropped is replayed rather than
// duplicated. Callers that give up can call CreateWithKey again with the same
// key later. ALREADY_EXISTS means an earlier attempt is still being committed
// and counts as success.
func (t *Thread) CreateWithKey(ctx context.Context, key, parentID, content string) (*Node, error) {
	if err := t.lock(ctx); err != nil {
		return nil, err
	}
	defer t.unlock()

	req := &CreateRequest{
		Content:         content,
		ParentCommentID: parentID,
		IdempotencyKey:  key,
	}
	res, err := t.api.CreateComment(ctx, t.articleID, req)
	if isTransportError(ctx, err) {
		res, err = t.api.CreateComment(ctx, t.articleID, req)
	}
	if err != nil && !HasCode(err, CodeAlreadyExists) {
		return nil, t.fail(err)
	}
	var created *Node
	if res != nil {
		created = res.Comment
	}
	return created, t.fail(t.reload(ctx, t.sort))
}

// isTransportError reports whether err came from the connection rather than
// from the server, and ctx still allows another attempt.
func isTransportError(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	return !errors.As(err, &apiErr)
}

// Edit replaces the body of a comment in place, then reloads.
func (t *Thread) Edit(ctx context.Context, id, content string) error {
	return t.mutate(ctx, id, func(n *Node) {
		n.Content = content
		n.ContentHTML = ""
		n.Edited = true
	}, func() error {
		_, err := t.api.EditComment(ctx, id, content)
		return err
	})
}

// Delete turns the comment into a tombstone in place, then reloads.
func (t *Thread) Delete(ctx context.Context, id string) error {
	return t.mutate(ctx, id, func(n *Node) {
		n.State = StateTombstone
		n.Content = ""
		n.ContentHTML = ""
	}, func() error {
		return t.api.DeleteComment(ctx, id)
	})
}

func (t *Thread) mutate(ctx context.Context, id string, apply func(*Node), call func() error) error {
	if err := t.lock(ctx); err != nil {
		return err
	}
	defer t.unlock()

	snapshot := cloneNodes(t.roots)
	if n := findNode(t.roots, id); n != nil {
		apply(n)
	}
	if err := call(); err != nil {
		t.roots = snapshot
		return t.fail(err)
	}
	// the write is committed; a failed refresh keeps the optimistic view
	return t.fail(t.reload(ctx, t.sort))
}

func (t *Thread) reload(ctx context.Context, sort string) error {
	page, err := t.api.ListComments(ctx, t.articleID, ListOptions{Sort: sort, Limit: t.limit})
	if err != nil {
		return err
	}
	t.sort = sort
	t.roots = page.Comments
	t.loaded = true
	t.applyPaging(page)
	return nil
}

func (t *Thread) applyPaging(page *Page) {
	t.total = page.TotalCount
	t.hasMore = page.HasMore
	t.nextOffset = 0
	if page.NextOffset != nil {
		t.nextOffset = *page.NextOffset
	}
}

func (t *Thread) fail(err error) error {
	t.err = err
	return err
}

func findNode(roots []*Node, id string) *Node {
	stack := append([]*Node(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.ID == id {
			return n
		}
		stack = append(stack, n.Replies...)
	}
	return nil
}

// cloneNodes deep-copies a forest without recursion.
func cloneNodes(roots []*Node) []*Node {
	if roots == nil {
		return nil
	}
	type item struct{ src, dst *Node }
	out := make([]*Node, len(roots))
	stack := make([]item, 0, len(roots))
	for i, r := range roots {
		out[i] = cloneNode(r)
		stack = append(stack, item{r, out[i]})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.src.Replies == nil {
			continue
		}
		it.dst.Replies = make([]*Node, len(it.src.Replies))
		for i, child := range it.src.Replies {
			it.dst.Replies[i] = cloneNode(child)
			stack = append(stack, item{child, it.dst.Replies[i]})
		}
	}
	return out
}

func cloneNode(n *Node) *Node {
	c := *n
	c.Replies = nil
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

// Row is one node of a flattened tree.
type Row struct {
	Node  *Node
	Depth int
}

// Flatten lists the forest in pre-order, replies directly after their parent.
func Flatten(roots []*Node) []Row {
	var rows []Row
	type item struct {
		n     *Node
		depth int
	}
	stack := make([]item, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, item{roots[i], 0})
	}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		rows = append(rows, Row{Node: it.n, Depth: it.depth})
		for i := len(it.n.Replies) - 1; i >= 0; i-- {
			stack = append(stack, item{it.n.Replies[i], it.depth + 1})
		}
	}
	return rows
}
