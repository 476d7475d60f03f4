// Package docstore provides MongoDB connection management for the document-store ledger.
package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

// Store wraps a MongoDB client bound to one database.
type Store struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// ParseURI validates a MongoDB connection string.
func ParseURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("mongo URI is empty")
	}
	if _, err := connstring.ParseAndValidate(uri); err != nil {
		return fmt.Errorf("invalid mongo URI: %w", err)
	}
	return nil
}

// New connects to MongoDB and pings the primary.
func New(ctx context.Context, uri, database string, poolSize int) (*Store, error) {
	if err := ParseURI(uri); err != nil {
		return nil, err
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database name is empty")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(5 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)
	if poolSize > 0 {
		opts.SetMaxPoolSize(uint64(poolSize))
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return &Store{Client: client, Database: client.Database(database)}, nil
}

// Collection returns a handle to the named collection.
func (s *Store) Collection(name string) *mongo.Collection {
	return s.Database.Collection(name)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Client.Disconnect(ctx)
}

// HealthCheck verifies the connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.Client.Ping(ctx, readpref.Primary())
}
