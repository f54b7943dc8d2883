package thread

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zhutalk/internal/models"
)

func TestParseSort(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want SortKey
		ok   bool
	}{
		{"", SortNewest, true},
		{"newest", SortNewest, true},
		{"OLDEST", SortOldest, true},
		{" oldest ", SortOldest, true},
		{"top", "", false},
	} {
		got, ok := ParseSort(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSortRootsBreaksTiesByID(t *testing.T) {
	input := []models.Comment{
		comment("b", "", 0),
		comment("c", "", time.Second),
		comment("a", "", 0),
	}
	roots, _ := Build(input)

	SortRoots(roots, SortNewest)
	assert.Equal(t, []string{"c", "a", "b"}, ids(roots))

	SortRoots(roots, SortOldest)
	assert.Equal(t, []string{"a", "b", "c"}, ids(roots))
}

func TestPaginateLeavesInputUntouched(t *testing.T) {
	input := []models.Comment{
		comment("old", "", 0),
		comment("new", "", time.Second),
	}
	roots, _ := Build(input)

	Paginate(roots, SortNewest, 10, 0)

	assert.Equal(t, []string{"old", "new"}, ids(roots))
}

func TestPaginatePartitionsRoots(t *testing.T) {
	var input []models.Comment
	for i := 0; i < 23; i++ {
		// Three roots per timestamp to exercise the id tie-break.
		input = append(input, comment(fmt.Sprintf("r%02d", i), "", time.Duration(i/3)*time.Second))
		input = append(input, comment(fmt.Sprintf("r%02d-reply", i), fmt.Sprintf("r%02d", i), time.Hour))
	}
	roots, _ := Build(input)
	require.Len(t, roots, 23)

	for _, key := range []SortKey{SortNewest, SortOldest} {
		for _, limit := range []int{1, 4, 5, 23, 50} {
			seen := map[string]bool{}
			var order []string
			offset := 0
			for {
				page := Paginate(roots, key, limit, offset)
				assert.Equal(t, 23, page.TotalCount)
				assert.LessOrEqual(t, len(page.Roots), limit)
				for _, r := range page.Roots {
					assert.False(t, seen[r.Comment.ID], "root %s repeated", r.Comment.ID)
					seen[r.Comment.ID] = true
					order = append(order, r.Comment.ID)
					require.Len(t, r.Children, 1, "subtree must come whole")
				}
				assert.Equal(t, offset+limit < 23, page.HasMore)
				if !page.HasMore {
					assert.Nil(t, page.NextOffset)
					break
				}
				require.NotNil(t, page.NextOffset)
				assert.Equal(t, offset+limit, *page.NextOffset)
				offset = *page.NextOffset
			}
			assert.Len(t, seen, 23, "sort=%s limit=%d", key, limit)

			again := Paginate(roots, key, 23, 0)
			assert.Equal(t, ids(again.Roots), order, "pages must agree with a single full page")
		}
	}
}

func TestPaginateOffsetPastEnd(t *testing.T) {
	roots, _ := Build([]models.Comment{comment("c1", "", 0)})

	page := Paginate(roots, SortNewest, 10, 5)

	assert.NotNil(t, page.Roots)
	assert.Empty(t, page.Roots)
	assert.Equal(t, 1, page.TotalCount)
	assert.False(t, page.HasMore)
}

func TestPaginateHugeOffset(t *testing.T) {
	roots, _ := Build([]models.Comment{comment("c1", "", 0), comment("c2", "", time.Second)})

	for _, limit := range []int{1, 50, math.MaxInt} {
		page := Paginate(roots, SortOldest, limit, math.MaxInt)
		assert.Empty(t, page.Roots, "limit %d", limit)
		assert.Equal(t, 2, page.TotalCount)
		assert.False(t, page.HasMore, "limit %d", limit)
		assert.Nil(t, page.NextOffset, "limit %d", limit)
	}

	page := Paginate(roots, SortOldest, math.MaxInt, 1)
	assert.Equal(t, []string{"c2"}, ids(page.Roots))
	assert.False(t, page.HasMore)
}

func TestPaginateEmpty(t *testing.T) {
	page := Paginate([]*Node{}, SortOldest, 50, 0)

	assert.Empty(t, page.Roots)
	assert.Equal(t, 0, page.TotalCount)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextOffset)
}

// C1 root at t0, C2 root at t0+1s, C3 reply to C1 at t0+2s.
func TestPaginateOldestFirstScenario(t *testing.T) {
	input := []models.Comment{
		comment("C1", "", 0),
		comment("C2", "", time.Second),
		comment("C3", "C1", 2*time.Second),
	}
	roots, _ := Build(input)

	first := Paginate(roots, SortOldest, 1, 0)
	require.Len(t, first.Roots, 1)
	assert.Equal(t, "C1", first.Roots[0].Comment.ID)
	require.Len(t, first.Roots[0].Children, 1)
	assert.Equal(t, "C3", first.Roots[0].Children[0].Comment.ID)
	assert.Equal(t, 1, first.Roots[0].Children[0].Depth)
	assert.Equal(t, 2, first.TotalCount)
	assert.True(t, first.HasMore)
	require.NotNil(t, first.NextOffset)
	assert.Equal(t, 1, *first.NextOffset)

	second := Paginate(roots, SortOldest, 1, 1)
	require.Len(t, second.Roots, 1)
	assert.Equal(t, "C2", second.Roots[0].Comment.ID)
	assert.False(t, second.HasMore)
}

func TestBodyOf(t *testing.T) {
	c := comment("c1", "", 0)
	assert.Equal(t, Visible{Text: "body c1"}, BodyOf(&c))

	now := t0
	c.DeletedAt = &now
	c.Status = models.CommentStatusDeleted
	assert.Equal(t, Tombstone{}, BodyOf(&c))
}

func TestDisplayDepth(t *testing.T) {
	assert.Equal(t, 3, DisplayDepth(3, 6))
	assert.Equal(t, 6, DisplayDepth(9, 6))
	assert.Equal(t, 9, DisplayDepth(9, 0))
}
