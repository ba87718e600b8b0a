package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"wallet/internal/kv"
)

const (
	DefaultDatabase   = "wallet"
	DefaultCollection = "kv_slots"
)

// SlotDocument is the stored shape of one slot.
type SlotDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// ---- Abstractions for Testability ----

// SlotCollection is the subset of collection behaviour the store needs.
type SlotCollection interface {
	FindSlot(ctx context.Context, key string) (SlotDocument, bool, error)
	UpsertSlot(ctx context.Context, doc SlotDocument) error
}

// MongoCollection adapts *mongo.Collection to SlotCollection.
type MongoCollection struct {
	*mongo.Collection
}

// FindSlot loads a single slot document by key.
func (c *MongoCollection) FindSlot(ctx context.Context, key string) (SlotDocument, bool, error) {
	var doc SlotDocument
	err := c.Collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return SlotDocument{}, false, nil
	}
	if err != nil {
		return SlotDocument{}, false, fmt.Errorf("failed to perform FindOne: %w", err)
	}
	return doc, true, nil
}

// UpsertSlot replaces the slot document, creating it when missing.
func (c *MongoCollection) UpsertSlot(ctx context.Context, doc SlotDocument) error {
	_, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": doc.Key},
		bson.M{"$set": bson.M{"value": doc.Value, "updated_at": doc.UpdatedAt}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to perform UpdateOne: %w", err)
	}
	return nil
}

// Store keeps key-value slots as documents in one collection.
type Store struct {
	coll SlotCollection
	now  func() time.Time
}

var _ kv.Store = (*Store)(nil)

// New wraps an existing collection.
func New(coll SlotCollection) *Store {
	return &Store{coll: coll, now: time.Now}
}

// Get implements kv.Getter
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, kv.ErrEmptyKey
	}
	doc, ok, err := s.coll.FindSlot(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("get slot %q: %w", key, err)
	}
	return doc.Value, ok, nil
}

// Set implements kv.Setter
func (s *Store) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return kv.ErrEmptyKey
	}
	doc := SlotDocument{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if err := s.coll.UpsertSlot(ctx, doc); err != nil {
		return fmt.Errorf("set slot %q: %w", key, err)
	}
	return nil
}

// Connect dials MongoDB and returns a store bound to database/collection along
// with the client so the caller can disconnect it.
func Connect(ctx context.Context, uri, database, collection string) (*Store, *mongo.Client, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	slog.DebugContext(ctx, "Attempting to connect to MongoDB", "database", database, "collection", collection)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	slog.InfoContext(ctx, "Successfully established connection to MongoDB")

	coll := &MongoCollection{client.Database(database).Collection(collection)}
	return New(coll), client, nil
}
