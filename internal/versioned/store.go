package versioned

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultTombstoneTTL = 30 * time.Second
	cacheConfirmTries   = 5
	cacheConfirmBackoff = 20 * time.Millisecond
)

// Store bridges the durable store and the cache with optimistic versioning.
// The durable side is always the writer-of-record; the cache is a follower
// that self-heals on read-through.
type Store struct {
	durable      Durable
	cache        Cache
	log          *slog.Logger
	cacheTTL     time.Duration
	tombstoneTTL time.Duration

	policies      map[string]Policy // keyed by namespace, the part before ':'
	defaultPolicy Policy

	mu      sync.Mutex
	pending []Conflict
}

type Option func(*Store)

func WithCacheTTL(ttl time.Duration) Option { return func(s *Store) { s.cacheTTL = ttl } }

func WithTombstoneTTL(ttl time.Duration) Option { return func(s *Store) { s.tombstoneTTL = ttl } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// WithPolicy selects the conflict policy for a key namespace, e.g.
// WithPolicy("pricing", PolicyMerge) covers every "pricing:*" key.
func WithPolicy(namespace string, p Policy) Option {
	return func(s *Store) { s.policies[namespace] = p }
}

func New(durable Durable, cache Cache, opts ...Option) *Store {
	s := &Store{
		durable:       durable,
		cache:         cache,
		log:           slog.Default(),
		cacheTTL:      defaultCacheTTL,
		tombstoneTTL:  defaultTombstoneTTL,
		policies:      map[string]Policy{},
		defaultPolicy: PolicyLastWriteWins,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Write persists data at the next version, durable first, then mirrors to
// the cache. A cache failure after the durable write is logged and absorbed.
func (s *Store) Write(ctx context.Context, key string, data []byte, actor string) (int64, error) {
	return s.write(ctx, key, data, actor, false)
}

// WriteStrict is Write plus a bounded wait until the cache copy reads back
// at the written version. For callers that must observe their own write via
// the cache immediately.
func (s *Store) WriteStrict(ctx context.Context, key string, data []byte, actor string) (int64, error) {
	return s.write(ctx, key, data, actor, true)
}

func (s *Store) write(ctx context.Context, key string, data []byte, actor string, waitCache bool) (int64, error) {
	cur, err := s.durable.Load(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("load %q: %w", key, err)
	}
	rec := Record{
		Key:        key,
		Data:       data,
		Version:    cur.Version + 1,
		Timestamp:  time.Now().UTC(),
		Checksum:   Checksum(data),
		ModifiedBy: actor,
		Source:     "durable",
	}
	if err := s.durable.Store(ctx, rec); err != nil {
		// durable failure aborts the whole write; the cache is not touched
		return 0, fmt.Errorf("store %q: %w", key, err)
	}
	if err := s.cache.Set(ctx, rec, s.cacheTTL); err != nil {
		s.log.Warn("cache mirror failed, will self-heal on read", "key", key, "err", err)
		if waitCache {
			return rec.Version, fmt.Errorf("cache not confirmed for %q: %w", key, err)
		}
		return rec.Version, nil
	}
	if waitCache {
		if err := s.confirmCached(ctx, key, rec.Version); err != nil {
			return rec.Version, err
		}
	}
	return rec.Version, nil
}

func (s *Store) confirmCached(ctx context.Context, key string, version int64) error {
	for i := 1; i <= cacheConfirmTries; i++ {
		got, err := s.cache.Get(ctx, key)
		if err == nil && got.Version >= version {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * cacheConfirmBackoff):
		}
	}
	return fmt.Errorf("cache not confirmed for %q at version %d", key, version)
}

// Read returns the authoritative record. The cache is consulted first but a
// side read of the durable store decides: a cache copy behind the durable
// version is refreshed, never served.
func (s *Store) Read(ctx context.Context, key string) (Record, error) {
	if dead, err := s.cache.Tombstoned(ctx, key); err == nil && dead {
		// a delete is in flight; only the durable store may answer
		return s.durable.Load(ctx, key)
	}
	cached, cerr := s.cache.Get(ctx, key)
	cur, derr := s.durable.Load(ctx, key)
	if errors.Is(derr, ErrNotFound) {
		if cerr == nil {
			_ = s.cache.Delete(ctx, key) // orphaned cache entry
		}
		return Record{}, ErrNotFound
	}
	if derr != nil {
		// durable store unavailable; an intact cache copy may still serve reads,
		// it just must not back any conditional write
		if cerr == nil && cached.Intact() {
			return cached, nil
		}
		return Record{}, derr
	}
	if cerr == nil && cached.Intact() {
		switch {
		case cached.Version > cur.Version:
			// cache from a racing writer that already passed us; durable still wins
		case cached.Version == cur.Version:
			if cached.Checksum == cur.Checksum {
				return cached, nil
			}
			// same version, different bytes: two sources disagree
			resolved := s.Resolve(key, cur, cached)
			resolved.Version = cur.Version
			if err := s.durable.Store(ctx, resolved); err == nil {
				s.refresh(ctx, resolved)
				return resolved, nil
			}
		}
	}
	s.refresh(ctx, cur)
	return cur, nil
}

// ReadCached serves the cache copy when it is present and intact, falling
// back to the durable store on a miss. For callers tolerant of bounded
// staleness; never use the result to guard a write.
func (s *Store) ReadCached(ctx context.Context, key string) (Record, error) {
	if dead, err := s.cache.Tombstoned(ctx, key); err == nil && dead {
		return s.durable.Load(ctx, key)
	}
	if cached, err := s.cache.Get(ctx, key); err == nil && cached.Intact() {
		return cached, nil
	}
	cur, err := s.durable.Load(ctx, key)
	if err != nil {
		return Record{}, err
	}
	s.refresh(ctx, cur)
	return cur, nil
}

// CompareAndSwap writes data only if the durable version still equals
// expected. On a lost race it returns a ConflictError carrying the current
// authoritative version and data.
func (s *Store) CompareAndSwap(ctx context.Context, key string, expected int64, data []byte, actor string) (int64, error) {
	rec := Record{
		Key:        key,
		Data:       data,
		Version:    expected + 1,
		Timestamp:  time.Now().UTC(),
		Checksum:   Checksum(data),
		ModifiedBy: actor,
		Source:     "durable",
	}
	ok, err := s.durable.StoreIf(ctx, rec, expected)
	if err != nil {
		return 0, fmt.Errorf("cas %q: %w", key, err)
	}
	if !ok {
		cur, lerr := s.durable.Load(ctx, key)
		if lerr != nil && !errors.Is(lerr, ErrNotFound) {
			return 0, lerr
		}
		return 0, &ConflictError{Key: key, CurrentVersion: cur.Version, CurrentData: cur.Data}
	}
	s.refresh(ctx, rec)
	return rec.Version, nil
}

// BulkEntry is one write in a WriteBulk batch.
type BulkEntry struct {
	Key  string
	Data []byte
}

// WriteBulk applies the batch in key order so two overlapping batches always
// take the same path and cannot deadlock each other.
func (s *Store) WriteBulk(ctx context.Context, entries []BulkEntry, actor string) (map[string]int64, error) {
	sorted := make([]BulkEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	versions := make(map[string]int64, len(sorted))
	for _, e := range sorted {
		v, err := s.Write(ctx, e.Key, e.Data, actor)
		if err != nil {
			return versions, fmt.Errorf("bulk write %q: %w", e.Key, err)
		}
		versions[e.Key] = v
	}
	return versions, nil
}

// Invalidate removes a key. A short-TTL tombstone goes down first so a
// reader racing the delete cannot resurrect the old value from the cache.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.cache.Tombstone(ctx, key, s.tombstoneTTL); err != nil {
		s.log.Warn("tombstone write failed", "key", key, "err", err)
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("cache delete failed", "key", key, "err", err)
	}
	return s.durable.Delete(ctx, key)
}

// Resolve applies the namespace's conflict policy to two disagreeing
// records. PolicyManual parks the pair for operator review and hands back
// the last-write-wins value as the interim answer.
func (s *Store) Resolve(key string, local, remote Record) Record {
	switch s.policyFor(key) {
	case PolicyMerge:
		return merge(local, remote)
	case PolicyManual:
		s.mu.Lock()
		s.pending = append(s.pending, Conflict{Key: key, Local: local, Remote: remote})
		s.mu.Unlock()
		s.log.Warn("conflict parked for review", "key", key,
			"local_version", local.Version, "remote_version", remote.Version)
		return lastWriteWins(local, remote)
	default:
		return lastWriteWins(local, remote)
	}
}

// PendingConflicts drains the manual-review queue.
func (s *Store) PendingConflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

func (s *Store) policyFor(key string) Policy {
	ns := key
	if i := strings.IndexByte(key, ':'); i >= 0 {
		ns = key[:i]
	}
	if p, ok := s.policies[ns]; ok {
		return p
	}
	return s.defaultPolicy
}

func (s *Store) refresh(ctx context.Context, rec Record) {
	if err := s.cache.Set(ctx, rec, s.cacheTTL); err != nil {
		s.log.Warn("cache refresh failed", "key", rec.Key, "err", err)
	}
}
