package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const query = "contentName=c1&endDate=2024-01-31&modality=m1&startDate=2024-01-01"

func TestKey(t *testing.T) {
	assert.Equal(t, "agency-1|pass-rate|"+query, Key("agency-1", "pass-rate", query))
	assert.NotEqual(t, Key("a", "pass-rate", query), Key("b", "pass-rate", query))
	assert.NotEqual(t, Key("a", "pass-rate", query), Key("a", "competency-assignments", query))
}

func TestCache_Freshness(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(), WithClock(clock.Now))
	ctx := context.Background()

	_, ok := c.Get(ctx, "agency-1", "pass-rate", query)
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, c.Put(ctx, "agency-1", "pass-rate", query, "a,b\n1,2"))

	e, ok := c.Get(ctx, "agency-1", "pass-rate", query)
	require.True(t, ok)
	assert.Equal(t, "a,b\n1,2", e.FileContent)
	assert.Equal(t, query, e.Params)
	assert.Equal(t, clock.t.UnixMilli(), e.Timestamp)

	clock.Advance(24*time.Hour - time.Millisecond)
	_, ok = c.Get(ctx, "agency-1", "pass-rate", query)
	assert.True(t, ok, "entry just under 24h is fresh")

	clock.Advance(time.Millisecond)
	_, ok = c.Get(ctx, "agency-1", "pass-rate", query)
	assert.False(t, ok, "entry at 24h is stale")

	require.NoError(t, c.Put(ctx, "agency-1", "pass-rate", query, "a,b\n3,4"))
	e, ok = c.Get(ctx, "agency-1", "pass-rate", query)
	require.True(t, ok, "rewrite replaces the stale entry")
	assert.Equal(t, "a,b\n3,4", e.FileContent)
}

func TestCache_OtherAgencyMisses(t *testing.T) {
	c := New(NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "agency-1", "pass-rate", query, "x"))
	_, ok := c.Get(ctx, "agency-2", "pass-rate", query)
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Load(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("disk on fire")
}
func (failingStore) Save(context.Context, string, Entry) error { return errors.New("disk on fire") }

func TestCache_StoreErrorIsMiss(t *testing.T) {
	c := New(failingStore{})
	_, ok := c.Get(context.Background(), "a", "k", "q")
	assert.False(t, ok)
	assert.Error(t, c.Put(context.Background(), "a", "k", "q", "x"))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "k1", Entry{FileContent: "one", Timestamp: 1, Params: "p"}))
	require.NoError(t, s.Save(ctx, "k2", Entry{FileContent: "two", Timestamp: 2}))

	// A second store on the same file sees both entries.
	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	e, ok, err := reopened.Load(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry{FileContent: "one", Timestamp: 1, Params: "p"}, e)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cached-reports"`)
}

func TestFileStore_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = s.Load(ctx, "k")
	assert.Error(t, err)

	require.NoError(t, s.Save(ctx, "k", Entry{FileContent: "fresh"}))
	e, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", e.FileContent)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Save(ctx, "k", Entry{Timestamp: int64(i)})
			_, _, _ = s.Load(ctx, "k")
		}(i)
	}
	wg.Wait()

	_, ok, _ := s.Load(ctx, "k")
	assert.True(t, ok)
}

// fakeHash is an in-memory stand-in for the Redis hash commands.
type fakeHash struct {
	data map[string]map[string]string
	err  error
}

func (f *fakeHash) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.data[key] == nil {
		f.data[key] = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.data[key][values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func TestRedisStore(t *testing.T) {
	fake := &fakeHash{data: make(map[string]map[string]string)}
	s := &RedisStore{client: fake}
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Entry{FileContent: "a,b\n1,2", Timestamp: 42, Params: query}
	require.NoError(t, s.Save(ctx, "k", want))
	assert.Contains(t, fake.data[DocumentName], "k")

	got, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	fake.data[DocumentName]["bad"] = "{"
	_, _, err = s.Load(ctx, "bad")
	assert.Error(t, err)

	fake.err = errors.New("connection refused")
	_, _, err = s.Load(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, s.Save(ctx, "k", want))
	assert.NoError(t, s.Close())
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
