package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-bot/api/internal/apperr"
)

func newTestCache(t *testing.T, next Store) (*CachedStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedStore(next, client, time.Minute, nil), mr
}

func dogInPark() Analysis {
	return Analysis{
		Tags:     []string{"dog", "park"},
		Palette:  []Color{{RGB: RGB{R: 120, G: 200, B: 80}, Score: 0.42}},
		Geometry: Geometry{Width: 1024, Height: 768, SubjectCenter: [2]float64{0.5, 0.6}},
	}
}

func TestCachedStore_ReadThrough(t *testing.T) {
	calls := 0
	src := StoreFunc(func(ctx context.Context, id int64) (Analysis, error) {
		calls++
		return dogInPark(), nil
	})
	c, mr := newTestCache(t, src)
	ctx := context.Background()

	got, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, dogInPark(), got)
	assert.True(t, mr.Exists("vision:analysis:7"))
	assert.Equal(t, time.Minute, mr.TTL("vision:analysis:7"))

	got, err = c.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, dogInPark(), got)
	assert.Equal(t, 1, calls)
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	calls := 0
	src := StoreFunc(func(ctx context.Context, id int64) (Analysis, error) {
		calls++
		return Analysis{}, apperr.NotFound("vision.get", "no analysis for asset %d", id)
	})
	c, mr := newTestCache(t, src)

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), 9)
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	}
	assert.Equal(t, 2, calls)
	assert.False(t, mr.Exists("vision:analysis:9"))
}

func TestCachedStore_BrokenEntryIsReplaced(t *testing.T) {
	src := StoreFunc(func(ctx context.Context, id int64) (Analysis, error) { return dogInPark(), nil })
	c, mr := newTestCache(t, src)
	require.NoError(t, mr.Set("vision:analysis:3", "{not json"))

	got, err := c.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"dog", "park"}, got.Tags)

	raw, err := mr.Get("vision:analysis:3")
	require.NoError(t, err)
	assert.Contains(t, raw, `"subject_center":[0.5,0.6]`)
}

func TestCachedStore_RedisDownFallsThrough(t *testing.T) {
	src := StoreFunc(func(ctx context.Context, id int64) (Analysis, error) { return dogInPark(), nil })
	c, mr := newTestCache(t, src)
	mr.Close()

	got, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, dogInPark(), got)
}

func TestCachedStore_PropagatesOtherErrors(t *testing.T) {
	boom := errors.New("db down")
	c, _ := newTestCache(t, StoreFunc(func(ctx context.Context, id int64) (Analysis, error) { return Analysis{}, boom }))

	_, err := c.Get(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestAnalysisJSON_EmptySlices(t *testing.T) {
	assert.JSONEq(t,
		`{"tags":[],"palette":[],"geometry":{"width":0,"height":0,"subject_center":[0,0]}}`,
		Analysis{}.JSON())
}
