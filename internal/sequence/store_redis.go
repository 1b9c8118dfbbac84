package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	fieldPrefix     = "prefix"
	fieldPadding    = "padding"
	fieldNextNumber = "nextNumber"
)

// RedisStore keeps one hash per key and advances it with WATCH/MULTI/EXEC.
// A concurrent modification of the watched key aborts EXEC.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore constructs a store. Keys live under namespace, "sequence"
// when empty.
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "sequence"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) hashKey(key string) string {
	return s.namespace + ":" + key
}

// Get returns the stored record for key.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("sequence: get %s: %w", key, err)
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	rec, err := decodeRecord(vals)
	if err != nil {
		return Record{}, false, fmt.Errorf("sequence: get %s: %w", key, err)
	}
	return rec, true, nil
}

// Advance reads and increments the hash for key in one optimistic
// transaction.
func (s *RedisStore) Advance(ctx context.Context, key string, seed Record) (Record, error) {
	hk := s.hashKey(key)
	var issued Record
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, hk).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			issued = seed
		} else if issued, err = decodeRecord(vals); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hk,
				fieldPrefix, issued.Prefix,
				fieldPadding, issued.Padding,
				fieldNextNumber, issued.NextNumber+1)
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, txf, hk)
	if errors.Is(err, redis.TxFailedErr) {
		return Record{}, fmt.Errorf("%w: %s", ErrStoreConflict, key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("sequence: advance %s: %w", key, err)
	}
	return issued, nil
}

func decodeRecord(vals map[string]string) (Record, error) {
	padding, err := strconv.Atoi(vals[fieldPadding])
	if err != nil {
		return Record{}, fmt.Errorf("decode padding: %w", err)
	}
	next, err := strconv.ParseInt(vals[fieldNextNumber], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("decode next number: %w", err)
	}
	return Record{Prefix: vals[fieldPrefix], Padding: padding, NextNumber: next}, nil
}
