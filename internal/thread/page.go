package thread

import (
	"cmp"
	"slices"
	"strings"
)

type SortKey string

const (
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
)

// ParseSort accepts "newest" and "oldest" (case-insensitive). Empty means newest.
func ParseSort(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, true
	case SortOldest:
		return SortOldest, true
	default:
		return "", false
	}
}

// Page is one slice of the root list. Each root carries its whole subtree.
type Page struct {
	Roots      []*Node
	TotalCount int // number of roots, not comments
	HasMore    bool
	NextOffset *int
	Sort       SortKey
	Limit      int
	Offset     int
}

// SortRoots orders roots by creation time in the direction of key. Equal
// timestamps fall back to id ascending in both directions so that repeated
// requests page identically.
func SortRoots(roots []*Node, key SortKey) {
	slices.SortStableFunc(roots, func(a, b *Node) int {
		c := a.Comment.CreatedAt.Compare(b.Comment.CreatedAt)
		if key != SortOldest {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.Comment.ID, b.Comment.ID)
	})
}

// Paginate sorts a copy of roots and returns the window [offset, offset+limit).
// A non-positive limit returns everything from offset on.
func Paginate(roots []*Node, key SortKey, limit, offset int) Page {
	sorted := slices.Clone(roots)
	SortRoots(sorted, key)

	total := len(sorted)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = total - offset
		if limit < 0 {
			limit = 0
		}
	}

	page := Page{
		Roots:      []*Node{},
		TotalCount: total,
		Sort:       key,
		Limit:      limit,
		Offset:     offset,
	}
	// offset 可能接近 math.MaxInt，不能直接算 offset+limit
	if offset >= total {
		return page
	}
	rest := total - offset
	page.Roots = sorted[offset : offset+min(limit, rest)]
	if limit < rest {
		page.HasMore = true
		next := offset + limit
		page.NextOffset = &next
	}
	return page
}
