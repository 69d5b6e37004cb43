package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bantx/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoRepositoryManager vends MongoDB repositories from one client.
type MongoRepositoryManager struct {
	client      *mongo.Client
	users       *users.MongoRepository
	revocations *revocations.MongoRepository
}

func NewMongoRepositoryManager(client *mongo.Client, database string) *MongoRepositoryManager {
	db := client.Database(database)
	return &MongoRepositoryManager{
		client:      client,
		users:       users.NewMongoRepository(db),
		revocations: revocations.NewMongoRepository(db),
	}
}

// ConnectMongo creates a client for uri and waits for the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (m *MongoRepositoryManager) Init(ctx context.Context) error {
	if err := m.users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return m.revocations.EnsureIndexes(ctx)
}

func (m *MongoRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *MongoRepositoryManager) Revocations() revocations.Repository {
	return m.revocations
}

// WithinTx runs fn directly: a standalone mongod has no multi-document
// transactions, and every write fn performs is already single-document.
func (m *MongoRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return fn(ctx, Repositories{Users: m.users, Revocations: m.revocations})
}

func (m *MongoRepositoryManager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
