package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the page has no checkpoint.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidEntry indicates the stored value could not be decoded.
	ErrInvalidEntry = errors.New("invalid checkpoint entry")
)

// DefaultTTL bounds how long a page stays marked.
const DefaultTTL = 24 * time.Hour

// Store records loaded pages of one run in Redis.
type Store struct {
	redis *redis.Client
	runID string
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a store for runID. A non-positive ttl uses DefaultTTL.
func NewStore(redisClient *redis.Client, runID string, ttl time.Duration) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis: redisClient,
		runID: runID,
		ttl:   ttl,
		now:   time.Now,
	}
}

// RunID returns the run the store is scoped to.
func (s *Store) RunID() string {
	return s.runID
}

func (s *Store) key(offset, limit int) Key {
	return Key{RunID: s.runID, Offset: offset, Limit: limit}
}

// Get returns the entry of a page, or ErrNotFound.
func (s *Store) Get(ctx context.Context, offset, limit int) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.key(offset, limit).String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CheckpointMisses.Inc()
			return nil, ErrNotFound
		}
		CheckpointErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CheckpointErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CheckpointHits.Inc()
	return &entry, nil
}

// Done reports whether a page was already loaded in this run.
func (s *Store) Done(ctx context.Context, offset, limit int) (bool, error) {
	_, err := s.Get(ctx, offset, limit)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Mark records a page as loaded with rows committed rows.
func (s *Store) Mark(ctx context.Context, offset, limit, rows int) error {
	entry := Entry{
		Offset:   offset,
		Limit:    limit,
		Rows:     rows,
		LoadedAt: s.now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CheckpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal checkpoint entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(offset, limit).String(), data, s.ttl).Err(); err != nil {
		CheckpointErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CheckpointWrites.Inc()
	return nil
}

// Clear removes every checkpoint of the run and returns how many were
// deleted.
func (s *Store) Clear(ctx context.Context) (int, error) {
	deleted := 0
	iter := s.redis.Scan(ctx, 0, RunPattern(s.runID), 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.redis.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				CheckpointErrors.WithLabelValues("clear").Inc()
				return deleted, fmt.Errorf("redis del: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		CheckpointErrors.WithLabelValues("clear").Inc()
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		CheckpointErrors.WithLabelValues("clear").Inc()
		return deleted, fmt.Errorf("redis del: %w", err)
	}
	return deleted, nil
}
