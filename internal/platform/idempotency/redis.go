package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultRedisPrefix      = "idempotency:"
	defaultRedisMaxAttempts = 3
)

// RedisOption customises the RedisStore behaviour.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the namespace prepended to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(store *RedisStore) {
		if prefix != "" {
			store.prefix = prefix
		}
	}
}

// WithMaxAttempts configures optimistic transaction retries.
func WithMaxAttempts(attempts int) RedisOption {
	return func(store *RedisStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// RedisStore implements Store on Redis so replicas share reservations. Expiry is
// delegated to key TTLs.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	maxAttempts int
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:      client,
		prefix:      defaultRedisPrefix,
		maxAttempts: defaultRedisMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + recordID(key)
}

// Reserve implements the Store interface using SETNX.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rkey := s.redisKey(key)
	pending := newPendingRecord(key, fingerprint, now, ttl)
	payload, err := json.Marshal(pending)
	if err != nil {
		return Reservation{}, fmt.Errorf("idempotency: encode record: %w", err)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		created, err := s.client.SetNX(ctx, rkey, payload, ttl).Result()
		if err != nil {
			return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
		}
		if created {
			return Reservation{State: ReservationStateNew, Record: pending}, nil
		}

		existing, err := s.get(ctx, s.client, rkey)
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return Reservation{}, err
		}
		return reservationFor(existing, fingerprint)
	}
	return Reservation{}, fmt.Errorf("idempotency: reserve %s: too much contention", key)
}

// SaveResponse implements the Store interface.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rkey := s.redisKey(key)
	return s.watch(ctx, rkey, func(tx *redis.Tx) error {
		record, err := s.get(ctx, tx, rkey)
		switch {
		case errors.Is(err, redis.Nil):
			record = Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		case err != nil:
			return err
		case record.Fingerprint != fingerprint:
			return ErrFingerprintMismatch
		}
		payload, err := json.Marshal(completeRecord(record, resp, now, ttl))
		if err != nil {
			return fmt.Errorf("idempotency: encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, ttl)
			return nil
		})
		return err
	})
}

// Release deletes the reservation when it is still held for fingerprint.
func (s *RedisStore) Release(ctx context.Context, key, fingerprint string) error {
	rkey := s.redisKey(key)
	return s.watch(ctx, rkey, func(tx *redis.Tx) error {
		record, err := s.get(ctx, tx, rkey)
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Fingerprint != fingerprint {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rkey)
			return nil
		})
		return err
	})
}

// CleanupExpired is a no-op; Redis evicts records when their TTL lapses.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) watch(ctx context.Context, rkey string, fn func(tx *redis.Tx) error) error {
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err = s.client.Watch(ctx, fn, rkey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("idempotency: %s: %w", rkey, err)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, client redisGetter, rkey string) (Record, error) {
	raw, err := client.Get(ctx, rkey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("idempotency: load %s: %w", rkey, err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, fmt.Errorf("idempotency: decode %s: %w", rkey, err)
	}
	return record, nil
}
