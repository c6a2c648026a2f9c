package binding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisNamespace = "fanreel:binding"

// RedisStore shares slots between devices through Redis.
type RedisStore struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisStore wraps client; slots are stored under namespace (defaulted when blank).
func NewRedisStore(client redis.Cmdable, namespace string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("binding: redis client is required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStore{client: client, namespace: namespace}, nil
}

func (s *RedisStore) slotKey(slot string) string {
	return fmt.Sprintf("%s:%s", s.namespace, slot)
}

func (s *RedisStore) Get(ctx context.Context, slot string) (string, bool, error) {
	name, err := validateSlot(slot)
	if err != nil {
		return "", false, err
	}
	value, err := s.client.Get(ctx, s.slotKey(name)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("binding: read %s from redis: %w", name, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, slot string, value string) error {
	name, err := validateSlot(slot)
	if err != nil {
		return err
	}
	normalized, err := validateValue(value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.slotKey(name), normalized, 0).Err(); err != nil {
		return fmt.Errorf("binding: write %s to redis: %w", name, err)
	}
	return nil
}
