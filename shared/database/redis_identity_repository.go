package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	handshakeKeyPrefix  = "handshake:"
	connectionKeyPrefix = "conn:"
	userKeyPrefix       = "user:"
	scanBatchSize       = 200
)

// unbindScript deletes the forward binding KEYS[1] and the reverse binding
// KEYS[2] only while the latter still names the same connection. ARGV[1] is
// the user the caller read from KEYS[1].
var unbindScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local binding = cjson.decode(raw)
if binding.userId ~= ARGV[1] then
  return redis.error_reply('binding user changed')
end
redis.call('DEL', KEYS[1])
local current = redis.call('GET', KEYS[2])
if current then
  local reverse = cjson.decode(current)
  if reverse.connectionId == binding.connectionId then
    redis.call('DEL', KEYS[2])
  end
end
return raw
`)

// attachScript sets ARGV[2] as sessionId on the forward binding KEYS[1] and
// mirrors it to the reverse binding KEYS[2] when that still names the same
// connection.
var attachScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return false
end
local binding = cjson.decode(raw)
if binding.userId ~= ARGV[1] then
  return redis.error_reply('binding user changed')
end
binding.sessionId = ARGV[2]
local encoded = cjson.encode(binding)
redis.call('SET', KEYS[1], encoded)
local current = redis.call('GET', KEYS[2])
if current then
  local reverse = cjson.decode(current)
  if reverse.connectionId == binding.connectionId then
    redis.call('SET', KEYS[2], encoded)
  end
end
return encoded
`)

// Compile-time check to ensure redisIdentityRepository implements IdentityRepository
var _ interfaces.IdentityRepository = (*redisIdentityRepository)(nil)

type redisIdentityRepository struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisIdentityRepository creates a Redis-backed IdentityRepository.
// Binding writes touch conn:<id> and user:<id> together, which Redis Cluster
// rejects as a cross-slot operation, so client must be a single node or a
// sentinel-managed primary.
func NewRedisIdentityRepository(client redis.UniversalClient, logger *zap.Logger) interfaces.IdentityRepository {
	return &redisIdentityRepository{
		client: client,
		logger: logger.Named("RedisIdentityRepo"),
	}
}

func handshakeKey(token string) string { return handshakeKeyPrefix + token }

func connectionKey(connectionID string) string { return connectionKeyPrefix + connectionID }

func userKey(userID string) string { return userKeyPrefix + userID }

func (r *redisIdentityRepository) SaveHandshakeToken(ctx context.Context, token models.HandshakeToken, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode handshake token: %w", err)
	}
	if err := r.client.Set(ctx, handshakeKey(token.Token), data, ttl).Err(); err != nil {
		r.logger.Error("Failed to store handshake token", zap.String("userID", token.Identity.UserID), zap.Error(err))
		return fmt.Errorf("failed to store handshake token: %w", err)
	}
	return nil
}

func (r *redisIdentityRepository) ConsumeHandshakeToken(ctx context.Context, token string) (*models.HandshakeToken, error) {
	raw, err := r.client.GetDel(ctx, handshakeKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume handshake token: %w", err)
	}
	var ht models.HandshakeToken
	if err := json.Unmarshal(raw, &ht); err != nil {
		return nil, fmt.Errorf("%w: corrupted handshake token: %v", models.ErrInvalid, err)
	}
	return &ht, nil
}

func (r *redisIdentityRepository) SaveBinding(ctx context.Context, binding models.Binding) error {
	data, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("failed to encode binding: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, connectionKey(binding.ConnectionID), data, 0)
		pipe.Set(ctx, userKey(binding.UserID), data, 0)
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save binding",
			zap.String("connectionID", binding.ConnectionID),
			zap.String("userID", binding.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save binding: %w", err)
	}
	return nil
}

func (r *redisIdentityRepository) GetByConnection(ctx context.Context, connectionID string) (*models.Binding, error) {
	return r.getBinding(ctx, connectionKey(connectionID))
}

func (r *redisIdentityRepository) GetByUser(ctx context.Context, userID string) (*models.Binding, error) {
	return r.getBinding(ctx, userKey(userID))
}

func (r *redisIdentityRepository) getBinding(ctx context.Context, key string) (*models.Binding, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding %s: %w", key, err)
	}
	return decodeBinding(raw)
}

func (r *redisIdentityRepository) DeleteBinding(ctx context.Context, connectionID string) (*models.Binding, error) {
	keys, userID, err := r.bindingKeys(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	raw, err := unbindScript.Run(ctx, r.client, keys, userID).Text()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete binding: %w", err)
	}
	return decodeBinding([]byte(raw))
}

func (r *redisIdentityRepository) SetBindingSession(ctx context.Context, connectionID, sessionID string) error {
	keys, userID, err := r.bindingKeys(ctx, connectionID)
	if err != nil {
		return err
	}
	err = attachScript.Run(ctx, r.client, keys, userID, sessionID).Err()
	if errors.Is(err, redis.Nil) {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to attach session to binding: %w", err)
	}
	return nil
}

// bindingKeys resolves the user of connectionID so scripts can declare both
// binding keys up front.
func (r *redisIdentityRepository) bindingKeys(ctx context.Context, connectionID string) ([]string, string, error) {
	b, err := r.GetByConnection(ctx, connectionID)
	if err != nil {
		return nil, "", err
	}
	return []string{connectionKey(connectionID), userKey(b.UserID)}, b.UserID, nil
}

func (r *redisIdentityRepository) ListBindings(ctx context.Context) ([]models.Binding, error) {
	var (
		cursor   uint64
		bindings []models.Binding
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, userKeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan bindings: %w", err)
		}
		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read bindings: %w", err)
			}
			for i, v := range values {
				s, ok := v.(string)
				if !ok {
					continue // expired between SCAN and MGET
				}
				b, err := decodeBinding([]byte(s))
				if err != nil {
					r.logger.Warn("Skipping corrupted binding", zap.String("key", keys[i]), zap.Error(err))
					continue
				}
				bindings = append(bindings, *b)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return bindings, nil
}

func decodeBinding(raw []byte) (*models.Binding, error) {
	var b models.Binding
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to decode binding: %w", err)
	}
	return &b, nil
}
