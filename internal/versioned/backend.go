package versioned

import (
	"context"
	"time"
)

// Durable is the writer-of-record. Load returns ErrNotFound for missing keys.
type Durable interface {
	Load(ctx context.Context, key string) (Record, error)
	// Store upserts unconditionally at rec.Version.
	Store(ctx context.Context, rec Record) error
	// StoreIf writes only when the stored version equals expected
	// (expected 0 means the key must not exist yet).
	StoreIf(ctx context.Context, rec Record, expected int64) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Cache is the follower copy. It may lag, lose writes, or be flushed at any
// time; the store self-heals it on the next read-through.
type Cache interface {
	Get(ctx context.Context, key string) (Record, error)
	Set(ctx context.Context, rec Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Tombstone(ctx context.Context, key string, ttl time.Duration) error
	Tombstoned(ctx context.Context, key string) (bool, error)
}
