package versioned

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDurable struct {
	mu        sync.Mutex
	recs      map[string]Record
	storeLog  []string
	failStore bool
}

func newMemDurable() *memDurable { return &memDurable{recs: map[string]Record{}} }

func (d *memDurable) Load(_ context.Context, key string) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.recs[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (d *memDurable) Store(_ context.Context, rec Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failStore {
		return errors.New("durable store down")
	}
	d.recs[rec.Key] = rec
	d.storeLog = append(d.storeLog, rec.Key)
	return nil
}

func (d *memDurable) StoreIf(_ context.Context, rec Record, expected int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.recs[rec.Key]
	if expected == 0 {
		if ok {
			return false, nil
		}
	} else if !ok || cur.Version != expected {
		return false, nil
	}
	d.recs[rec.Key] = rec
	return true, nil
}

func (d *memDurable) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recs, key)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	recs    map[string]Record
	tombs   map[string]bool
	failSet bool
}

func newMemCache() *memCache {
	return &memCache{recs: map[string]Record{}, tombs: map[string]bool{}}
}

func (c *memCache) Get(_ context.Context, key string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.recs[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (c *memCache) Set(_ context.Context, rec Record, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("cache down")
	}
	c.recs[rec.Key] = rec
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recs, key)
	return nil
}

func (c *memCache) Tombstone(_ context.Context, key string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tombs[key] = true
	return nil
}

func (c *memCache) Tombstoned(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tombs[key], nil
}

func TestWriteThenRead(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)

	v, err := s.Write(context.Background(), "pricing:update", []byte(`{"price":100}`), "tester")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	rec, err := s.Read(context.Background(), "pricing:update")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"price":100}`), rec.Data)
	assert.Equal(t, int64(1), rec.Version)
	assert.True(t, rec.Intact())
}

func TestReadNeverServesStaleCache(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)
	ctx := context.Background()

	_, err := s.Write(ctx, "k", []byte(`v1`), "tester")
	require.NoError(t, err)
	v1 := cache.recs["k"]

	_, err = s.Write(ctx, "k", []byte(`v2`), "tester")
	require.NoError(t, err)

	// simulate cache propagation lag: the old copy reappears
	require.NoError(t, cache.Set(ctx, v1, 0))

	rec, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`v2`), rec.Data)
	assert.Equal(t, int64(2), rec.Version)

	// and the cache was healed
	assert.Equal(t, int64(2), cache.recs["k"].Version)
}

func TestReadThroughOnCacheMiss(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)
	ctx := context.Background()

	_, err := s.Write(ctx, "k", []byte(`v`), "tester")
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, "k"))

	rec, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`v`), rec.Data)
	_, ok := cache.recs["k"]
	assert.True(t, ok, "cache should be repopulated by read-through")
}

func TestDurableFailureAbortsWrite(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	durable.failStore = true
	s := New(durable, cache)

	_, err := s.Write(context.Background(), "k", []byte(`v`), "tester")
	require.Error(t, err)
	assert.Empty(t, cache.recs, "cache must not be written when the durable write failed")
}

func TestCacheFailureIsNonFatal(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	cache.failSet = true
	s := New(durable, cache)

	v, err := s.Write(context.Background(), "k", []byte(`v`), "tester")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// self-heal: cache recovers, next read repopulates it
	cache.failSet = false
	rec, err := s.Read(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.Len(t, cache.recs, 1)
}

func TestWriteStrictReportsUnconfirmedCache(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	cache.failSet = true
	s := New(durable, cache)

	v, err := s.WriteStrict(context.Background(), "k", []byte(`v`), "tester")
	require.Error(t, err)
	assert.Equal(t, int64(1), v, "durable write still happened")
}

func TestCompareAndSwap(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)
	ctx := context.Background()

	v, err := s.CompareAndSwap(ctx, "k", 0, []byte(`first`), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.CompareAndSwap(ctx, "k", 1, []byte(`second`), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	_, err = s.CompareAndSwap(ctx, "k", 1, []byte(`stale`), "b")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(2), conflict.CurrentVersion)
	assert.Equal(t, []byte(`second`), conflict.CurrentData)

	rec, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`second`), rec.Data, "stale CAS must not overwrite")
}

func TestInvalidateTombstonesReaders(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)
	ctx := context.Background()

	_, err := s.Write(ctx, "k", []byte(`v`), "tester")
	require.NoError(t, err)
	require.NoError(t, s.Invalidate(ctx, "k"))

	// a racing writer resurrects the cache copy; the tombstone keeps readers
	// on the durable path, which no longer has the key
	require.NoError(t, cache.Set(ctx, Record{Key: "k", Data: []byte(`v`), Version: 1, Checksum: Checksum([]byte(`v`))}, 0))

	_, err = s.Read(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteBulkAppliesInKeyOrder(t *testing.T) {
	durable, cache := newMemDurable(), newMemCache()
	s := New(durable, cache)

	_, err := s.WriteBulk(context.Background(), []BulkEntry{
		{Key: "c", Data: []byte(`3`)},
		{Key: "a", Data: []byte(`1`)},
		{Key: "b", Data: []byte(`2`)},
	}, "tester")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, durable.storeLog)
}
