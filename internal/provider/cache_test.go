package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Search(ctx context.Context, query string) ([]SearchResultItem, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]SearchResultItem), args.Error(1)
}

var sampleItems = []SearchResultItem{
	{Title: "Bohemian Rhapsody", Thumbnail: "http://img", VideoID: "fJ9rUzIMcZQ", Channel: "Queen Official"},
}

func TestCacheKey_Normalizes(t *testing.T) {
	assert.Equal(t, CacheKey("bohemian  rhapsody"), CacheKey(" bohemian rhapsody "))
	assert.NotEqual(t, CacheKey("bohemian rhapsody"), CacheKey("killer queen"))
}

func TestCacheKey_PreservesCase(t *testing.T) {
	assert.NotEqual(t, CacheKey("ABBA"), CacheKey("abba"))

	mockP := new(MockProvider)
	upper := []SearchResultItem{{Title: "ABBA - Waterloo", Thumbnail: "http://img/1", VideoID: "Sj_9CiNkkn4", Channel: "ABBA"}}
	lower := []SearchResultItem{{Title: "abba live", Thumbnail: "http://img/2", VideoID: "xFrGuyw1V8s", Channel: "fan"}}
	mockP.On("Search", mock.Anything, "ABBA").Return(upper, nil).Once()
	mockP.On("Search", mock.Anything, "abba").Return(lower, nil).Once()

	c := NewCachedProvider(mockP, nil, time.Minute, 10, zerolog.Nop())

	got, err := c.Search(context.Background(), "ABBA")
	require.NoError(t, err)
	assert.Equal(t, upper, got)

	got, err = c.Search(context.Background(), "abba")
	require.NoError(t, err)
	assert.Equal(t, lower, got)
	mockP.AssertExpectations(t)
}

func TestCachedProvider_L1(t *testing.T) {
	mockP := new(MockProvider)
	mockP.On("Search", mock.Anything, "bohemian rhapsody").Return(sampleItems, nil).Once()

	c := NewCachedProvider(mockP, nil, time.Minute, 10, zerolog.Nop())

	for i := 0; i < 3; i++ {
		items, err := c.Search(context.Background(), "bohemian rhapsody")
		require.NoError(t, err)
		assert.Equal(t, sampleItems, items)
	}

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	mockP.AssertExpectations(t)
}

func TestCachedProvider_Expiry(t *testing.T) {
	mockP := new(MockProvider)
	mockP.On("Search", mock.Anything, "q").Return(sampleItems, nil).Twice()

	now := time.Now()
	c := NewCachedProvider(mockP, nil, time.Minute, 10, zerolog.Nop())
	c.now = func() time.Time { return now }

	_, err := c.Search(context.Background(), "q")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Search(context.Background(), "q")
	require.NoError(t, err)

	mockP.AssertExpectations(t)
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	mockP := new(MockProvider)
	apiErr := &APIError{Code: 403, Message: "quota exceeded"}
	mockP.On("Search", mock.Anything, "q").Return(nil, apiErr).Twice()

	c := NewCachedProvider(mockP, nil, time.Minute, 10, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), "q")
		var got *APIError
		require.True(t, errors.As(err, &got))
	}
	mockP.AssertExpectations(t)
}

func TestCachedProvider_L2Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	first := new(MockProvider)
	first.On("Search", mock.Anything, "q").Return(sampleItems, nil).Once()

	c1 := NewCachedProvider(first, rdb, time.Minute, 10, zerolog.Nop())
	_, err = c1.Search(context.Background(), "q")
	require.NoError(t, err)

	assert.True(t, mr.Exists(CacheKey("q")))
	assert.Equal(t, time.Minute, mr.TTL(CacheKey("q")))

	// A fresh instance (empty L1) must be served from Redis.
	second := new(MockProvider)
	c2 := NewCachedProvider(second, rdb, time.Minute, 10, zerolog.Nop())
	items, err := c2.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, sampleItems, items)

	second.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	first.AssertExpectations(t)
}

func TestCachedProvider_Eviction(t *testing.T) {
	mockP := new(MockProvider)
	mockP.On("Search", mock.Anything, mock.Anything).Return(sampleItems, nil)

	now := time.Now()
	c := NewCachedProvider(mockP, nil, time.Minute, 2, zerolog.Nop())
	c.now = func() time.Time { return now }

	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		now = now.Add(time.Second)
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	assert.LessOrEqual(t, count, 2)

	_, stillCached := c.l1.Load(CacheKey("c"))
	assert.True(t, stillCached, "newest entry must survive eviction")
	_, evicted := c.l1.Load(CacheKey("a"))
	assert.False(t, evicted, "oldest entry must be evicted first")
}
