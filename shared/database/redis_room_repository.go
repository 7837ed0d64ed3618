package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	roomKeyPrefix = "room:"
	roomIndexKey  = "rooms"
)

var _ interfaces.RoomRepository = (*redisRoomRepository)(nil)

type redisRoomRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisRoomRepository stores rooms as JSON under room:<hostId> and keeps
// the set of hosts in an index.
func NewRedisRoomRepository(client redis.UniversalClient, logger *zap.Logger) interfaces.RoomRepository {
	return &redisRoomRepository{
		client: client,
		logger: logger.Named("RedisRoomRepo"),
	}
}

func roomKey(hostID string) string { return roomKeyPrefix + hostID }

func (r *redisRoomRepository) Put(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	stored := *room
	stored.Version = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode room: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.HostID), data, 0)
		pipe.SAdd(ctx, roomIndexKey, room.HostID)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to put room", zap.String("hostID", room.HostID), zap.Error(err))
		return fmt.Errorf("failed to put room: %w", err)
	}
	room.Version = stored.Version
	return nil
}

func (r *redisRoomRepository) Get(ctx context.Context, hostID string) (*models.Room, error) {
	raw, err := r.client.Get(ctx, roomKey(hostID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room: %w", err)
	}
	return &room, nil
}

func (r *redisRoomRepository) Update(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	next, err := compareAndSwap(ctx, r.client, roomKey(room.HostID), room.Version, func(next int64) ([]byte, error) {
		stored := *room
		stored.Version = next
		return json.Marshal(stored)
	})
	if err != nil {
		r.logger.Warn("Room update rejected", zap.String("hostID", room.HostID), zap.Int64("version", room.Version), zap.Error(err))
		return err
	}
	room.Version = next
	return nil
}

func (r *redisRoomRepository) Delete(ctx context.Context, hostID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(hostID))
		pipe.SRem(ctx, roomIndexKey, hostID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (r *redisRoomRepository) List(ctx context.Context) ([]models.Room, error) {
	hosts, err := r.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room index: %w", err)
	}
	if len(hosts) == 0 {
		return []models.Room{}, nil
	}
	keys := make([]string, len(hosts))
	for i, h := range hosts {
		keys[i] = roomKey(h)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read rooms: %w", err)
	}

	rooms := make([]models.Room, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, hosts[i])
			continue
		}
		var room models.Room
		if err := json.Unmarshal([]byte(s), &room); err != nil {
			r.logger.Warn("Skipping corrupted room", zap.String("hostID", hosts[i]), zap.Error(err))
			continue
		}
		rooms = append(rooms, room)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, roomIndexKey, stale...).Err(); err != nil {
			r.logger.Warn("Failed to prune room index", zap.Error(err))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}
