package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// mongoRecord is one document per ledger key, addressed by _id.
type mongoRecord struct {
	Key           string    `bson:"_id"`
	Notes         string    `bson:"notes"`
	Progress      string    `bson:"progress"`
	TargetTime    int       `bson:"targetTime"`
	RemainingTime int       `bson:"remainingTime"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// MongoStore keeps records in a document collection.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates a document-store-backed ledger store.
func NewMongoStore(collection *mongo.Collection) (*MongoStore, error) {
	if collection == nil {
		return nil, fmt.Errorf("collection is nil")
	}
	return &MongoStore{collection: collection}, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var doc mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("find progress document: %w", err)
	}

	return Record{
		Notes:         doc.Notes,
		Progress:      migrateStatus(doc.Progress),
		TargetTime:    doc.TargetTime,
		RemainingTime: doc.RemainingTime,
	}, true, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, rec Record) error {
	doc := mongoRecord{
		Key:           key,
		Notes:         rec.Notes,
		Progress:      string(rec.Progress),
		TargetTime:    rec.TargetTime,
		RemainingTime: rec.RemainingTime,
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace progress document: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, readpref.Primary())
}

// Close is a no-op: the client belongs to docstore.Store.
func (s *MongoStore) Close() error { return nil }
