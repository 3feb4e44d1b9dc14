package versioned

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/danghoangnam/pos-core/internal/redisx"
)

// RedisCache mirrors records into Redis under the verrec: namespace.
type RedisCache struct{ RDB *redis.Client }

func (c *RedisCache) Get(ctx context.Context, key string) (Record, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(redisx.KeyVersionedRecord, key)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		// corrupt cache entry; treat as a miss so the durable copy self-heals it
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (c *RedisCache) Set(ctx context.Context, rec Record, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(redisx.KeyVersionedRecord, rec.Key), b, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, fmt.Sprintf(redisx.KeyVersionedRecord, key)).Err()
}

func (c *RedisCache) Tombstone(ctx context.Context, key string, ttl time.Duration) error {
	return c.RDB.Set(ctx, fmt.Sprintf(redisx.KeyVersionedTombstone, key), "1", ttl).Err()
}

func (c *RedisCache) Tombstoned(ctx context.Context, key string) (bool, error) {
	return redisx.Exists(ctx, c.RDB, fmt.Sprintf(redisx.KeyVersionedTombstone, key))
}
