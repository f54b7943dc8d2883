package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	cache, err := NewTTLCache[string](4)
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("k", "v", time.Minute)
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestTTLCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewTTLCache[int](2)
	require.NoError(t, err)

	cache.Set("a", 1, time.Hour)
	cache.Set("b", 2, time.Hour)
	_, _ = cache.Get("a")
	cache.Set("c", 3, time.Hour)

	_, ok := cache.Get("b")
	assert.False(t, ok)
	v, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	cache.Delete("a")
	_, ok = cache.Get("a")
	assert.False(t, ok)
}

func TestRenderMarkdownSanitizes(t *testing.T) {
	out := string(RenderMarkdown("**hi** <script>alert(1)</script> [x](https://example.com)"))

	assert.Contains(t, out, "<strong>hi</strong>")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, "ugc")
}

func TestRenderMarkdownImagesAreLazy(t *testing.T) {
	out := string(RenderMarkdown("![cat](https://example.com/cat.png)"))

	assert.Contains(t, out, `loading="lazy"`)
	assert.Contains(t, out, `referrerpolicy="no-referrer"`)
}

func TestPlainExcerpt(t *testing.T) {
	assert.Equal(t, "hello world", PlainExcerpt("<p>hello\n <em>world</em></p>", 0))
	assert.Equal(t, "你好…", PlainExcerpt("<p>你好世界</p>", 2))
}

func TestQueryInt(t *testing.T) {
	v, err := QueryInt("", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, v)

	v, err = QueryInt(" 7 ", 50)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = QueryInt("seven", 50)
	assert.Error(t, err)
}

func TestParseUintID(t *testing.T) {
	id, ok := ParseUintID("42")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	_, ok = ParseUintID("0")
	assert.False(t, ok)
	_, ok = ParseUintID("-1")
	assert.False(t, ok)
}

func TestNewCommentID(t *testing.T) {
	a, err := NewCommentID()
	require.NoError(t, err)
	b, err := NewCommentID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, CommentIDPrefix))
	assert.Len(t, a, len(CommentIDPrefix)+idLength)
	assert.NotEqual(t, a, b)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestRandomAvatar(t *testing.T) {
	for range 20 {
		assert.Contains(t, avatarEmojis, RandomAvatar())
	}
}
