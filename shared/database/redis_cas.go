package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storyroom-server/shared/models"

	"github.com/redis/go-redis/v9"
)

type versionedRecord struct {
	Version int64 `json:"version"`
}

// compareAndSwap writes the value produced by encode only while the stored
// record still carries the expected version. encode receives the next version.
// WATCH aborts the transaction when another writer touched the key in between.
func compareAndSwap(ctx context.Context, client redis.UniversalClient, key string, expected int64, encode func(next int64) ([]byte, error)) (int64, error) {
	var next int64
	err := client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		var current versionedRecord
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if current.Version != expected {
			return fmt.Errorf("%w: %s is at version %d, expected %d", models.ErrConflict, key, current.Version, expected)
		}

		next = expected + 1
		data, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("%w: %s changed during update", models.ErrConflict, key)
	}
	if err != nil {
		return 0, err
	}
	return next, nil
}
