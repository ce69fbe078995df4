package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const mongoCollection = "conversation_messages"

// MongoStore keeps conversation history in a MongoDB collection, one
// document per message keyed by message ID.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
	}, nil
}

func (s *MongoStore) SaveMessage(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ConversationID == "" {
		return ErrInvalidInput
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": msg.ID}, msg,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", id, err)
	}
	return &msg, nil
}

// ListMessages pages by creation time: the cursor is the creation
// timestamp of the last message of the previous page. MongoDB stores
// timestamps at millisecond resolution, which keeps the cursor unique for
// conversation history written one message per exchange.
func (s *MongoStore) ListMessages(ctx context.Context, conversationID, cursor string, limit int) ([]*Message, string, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	filter := bson.M{"conversation_id": conversationID}
	if cursor != "" {
		after, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad cursor %q", ErrInvalidInput, cursor)
		}
		filter["created_at"] = bson.M{"$gt": after}
	}

	cur, err := s.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}

	var result []*Message
	if err := cur.All(ctx, &result); err != nil {
		return nil, "", fmt.Errorf("decode messages: %w", err)
	}

	nextCursor := ""
	if len(result) == limit {
		nextCursor = result[len(result)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	return result, nextCursor, nil
}

func (s *MongoStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
