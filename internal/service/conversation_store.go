package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStore 精修会话存储，实现可以是进程内也可以是 Redis
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Put(ctx context.Context, conv *model.Conversation) error
	Delete(ctx context.Context, id string) error
}

// NewConversationStore 按配置选择存储实现
func NewConversationStore(cfg config.ConversationConfig, rdb *redis.Client) (ConversationStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryConversationStore(), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis conversation store requires a redis client")
		}
		ttl := time.Duration(cfg.TTLMinutes) * time.Minute
		return NewRedisConversationStore(rdb, cfg.KeyPrefix, ttl), nil
	default:
		return nil, fmt.Errorf("unknown conversation store %q", cfg.Store)
	}
}

// MemoryConversationStore 单实例部署使用，读写都做深拷贝
type MemoryConversationStore struct {
	mu    sync.RWMutex
	items map[string]*model.Conversation
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{items: make(map[string]*model.Conversation)}
}

func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (s *MemoryConversationStore) Put(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id is required")
	}
	s.mu.Lock()
	s.items[conv.ID] = conv.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryConversationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.items, id)
	return nil
}

// RedisConversationStore 多实例部署共享会话，值为 JSON
type RedisConversationStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisConversationStore(client *redis.Client, prefix string, ttl time.Duration) *RedisConversationStore {
	return &RedisConversationStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisConversationStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

// Put ttl 为 0 时不过期
func (s *RedisConversationStore) Put(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id is required")
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, s.key(conv.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}
