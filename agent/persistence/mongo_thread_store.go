package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

// mongoThread is the document shape of a thread. Timestamps are RFC 3339
// strings with nanoseconds so they decode back to the saved instant.
type mongoThread struct {
	ID       string         `bson:"_id"`
	Date     string         `bson:"date"`
	Topic    string         `bson:"topic"`
	Messages []mongoMessage `bson:"messages"`
}

type mongoMessage struct {
	Sender    string `bson:"sender"`
	Body      string `bson:"message"`
	AIName    string `bson:"ai_name,omitempty"`
	Model     string `bson:"model,omitempty"`
	IsPartial bool   `bson:"is_partial"`
	IsDivider bool   `bson:"is_divider"`
	Timestamp string `bson:"timestamp"`
}

// MongoThreadStore keeps one document per thread, keyed by _id.
type MongoThreadStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewMongoThreadStore connects to MongoDB and pings the primary.
func NewMongoThreadStore(ctx context.Context, cfg MongoStoreConfig, logger *zap.Logger) (*MongoThreadStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoThreadStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		logger:     logger.With(zap.String("component", "mongo_thread_store")),
	}, nil
}

func (s *MongoThreadStore) Load(ctx context.Context, id string) (*types.Thread, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var doc mongoThread
	err := s.collection.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread %q: %w", id, err)
	}
	return fromMongoThread(doc)
}

// Save upserts the whole document.
func (s *MongoThreadStore) Save(ctx context.Context, thread *types.Thread) error {
	if err := checkThread(thread); err != nil {
		return err
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: thread.ID}},
		toMongoThread(thread),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save thread %q: %w", thread.ID, err)
	}
	return nil
}

func (s *MongoThreadStore) ListIDs(ctx context.Context) ([]string, error) {
	docs, err := s.find(ctx, bson.D{{Key: "_id", Value: 1}})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (s *MongoThreadStore) List(ctx context.Context) ([]types.ThreadInfo, error) {
	docs, err := s.find(ctx, nil)
	if err != nil {
		return nil, err
	}
	infos := make([]types.ThreadInfo, 0, len(docs))
	for _, d := range docs {
		t, err := fromMongoThread(d)
		if err != nil {
			return nil, err
		}
		infos = append(infos, t.Info())
	}
	return infos, nil
}

func (s *MongoThreadStore) find(ctx context.Context, projection bson.D) ([]mongoThread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if projection != nil {
		opts.SetProjection(projection)
	}
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	docs := []mongoThread{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	return docs, nil
}

func (s *MongoThreadStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	res, err := s.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete thread %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

func (s *MongoThreadStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoThreadStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toMongoThread(t *types.Thread) mongoThread {
	doc := mongoThread{
		ID:       t.ID,
		Date:     formatTime(t.Date),
		Topic:    t.Topic,
		Messages: make([]mongoMessage, len(t.Messages)),
	}
	for i, m := range t.Messages {
		doc.Messages[i] = mongoMessage{
			Sender:    m.Sender,
			Body:      m.Body,
			AIName:    m.AIName,
			Model:     m.Model,
			IsPartial: m.IsPartial,
			IsDivider: m.IsDivider,
			Timestamp: formatTime(m.Timestamp),
		}
	}
	return doc
}

func fromMongoThread(doc mongoThread) (*types.Thread, error) {
	date, err := parseTime(doc.Date)
	if err != nil {
		return nil, fmt.Errorf("thread %q date: %w", doc.ID, err)
	}
	t := &types.Thread{ID: doc.ID, Date: date, Topic: doc.Topic, Messages: make([]types.Message, len(doc.Messages))}
	for i, m := range doc.Messages {
		ts, err := parseTime(m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("thread %q message %d: %w", doc.ID, i, err)
		}
		t.Messages[i] = types.Message{
			Sender:    m.Sender,
			Body:      m.Body,
			AIName:    m.AIName,
			Model:     m.Model,
			IsPartial: m.IsPartial,
			IsDivider: m.IsDivider,
			Timestamp: ts,
		}
	}
	return t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
