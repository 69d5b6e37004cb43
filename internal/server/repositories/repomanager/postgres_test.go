package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)
	var _ RepositoryManager = m

	_, err = NewPostgresRepositoryManager(nil)
	assert.Error(t, err)
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)

	assert.IsType(t, &users.PostgresRepository{}, m.Users())
	assert.IsType(t, &revocations.PostgresRepository{}, m.Revocations())
}

func TestWithinTx_CommitAndRollback(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = m.WithinTx(context.Background(), func(ctx context.Context, r Repositories) error {
		assert.NotNil(t, r.Users)
		assert.NotNil(t, r.Revocations)
		return nil
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = m.WithinTx(context.Background(), func(ctx context.Context, r Repositories) error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_RunsMigrations(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)
	require.NoError(t, m.Init(context.Background()))
}

func TestInit_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m, err := NewPostgresRepositoryManager(db)
	require.NoError(t, err)
	if err := m.Init(context.Background()); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestMemoryManager(t *testing.T) {
	var m RepositoryManager = NewMemoryRepositoryManager()
	ctx := context.Background()

	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Ping(ctx))

	called := false
	require.NoError(t, m.WithinTx(ctx, func(ctx context.Context, r Repositories) error {
		called = true
		assert.Same(t, m.Users(), r.Users)
		return nil
	}))
	assert.True(t, called)
	require.NoError(t, m.Close(ctx))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "cassandra", "", "")
	assert.Error(t, err)

	m, err := Open(context.Background(), DriverMemory, "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryRepositoryManager{}, m)
}
