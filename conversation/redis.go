package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int

	// KeyPrefix namespaces every key; defaults to "weave:".
	KeyPrefix string
}

// RedisStore keeps conversation history in Redis: one JSON value per
// message plus a per-conversation list of message IDs in creation order.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "weave:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: prefix + "msg:",
	}, nil
}

func (s *RedisStore) messageKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisStore) conversationKey(conversationID string) string {
	return s.keyPrefix + "conv:" + conversationID
}

func (s *RedisStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ConversationID == "" {
		return ErrInvalidInput
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// The index append is skipped on overwrite so a re-saved message does
	// not appear twice in its conversation.
	known, err := s.client.Exists(ctx, s.messageKey(msg.ID)).Result()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.messageKey(msg.ID), data, 0)
	if known == 0 {
		pipe.RPush(ctx, s.conversationKey(msg.ConversationID), msg.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	data, err := s.client.Get(ctx, s.messageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message %s: %w", id, err)
	}
	return &msg, nil
}

func (s *RedisStore) ListMessages(ctx context.Context, conversationID, cursor string, limit int) ([]*Message, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	start := int64(0)
	if cursor != "" {
		pos, err := s.client.LPos(ctx, s.conversationKey(conversationID), cursor, redis.LPosArgs{}).Result()
		if err == nil {
			start = pos + 1
		}
	}

	ids, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, "", err
	}
	if len(ids) == 0 {
		return []*Message{}, "", nil
	}

	result := make([]*Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, msg)
	}

	nextCursor := ""
	if len(ids) == limit {
		nextCursor = ids[len(ids)-1]
	}
	return result, nextCursor, nil
}

func (s *RedisStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	return s.client.LLen(ctx, s.conversationKey(conversationID)).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
