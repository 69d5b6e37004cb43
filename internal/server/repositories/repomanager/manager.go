// Package repomanager vends the repositories of the configured storage
// backend and owns its connection and schema setup.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/bantx/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Repositories is the set of repositories bound to one handle (a database
// connection or an open transaction).
type Repositories struct {
	Users       users.Repository
	Revocations revocations.Repository
}

type RepositoryManager interface {
	// Init prepares the schema: migrations for PostgreSQL, indexes for MongoDB.
	Init(ctx context.Context) error

	Users() users.Repository
	Revocations() revocations.Repository

	// WithinTx runs fn with repositories that share one transaction where the
	// backend supports it. Backends without transactions run fn directly.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the backend named by driver. dsn is the PostgreSQL DSN or
// the MongoDB URI; database is the MongoDB database name.
func Open(ctx context.Context, driver, dsn, database string) (RepositoryManager, error) {
	switch driver {
	case DriverMongo:
		client, err := ConnectMongo(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewMongoRepositoryManager(client, database), nil
	case DriverPostgres:
		db, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return NewPostgresRepositoryManager(db)
	case DriverMemory:
		return NewMemoryRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
