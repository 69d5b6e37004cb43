package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/bantx/internal/logging"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_PostgresReferralCodeCollisionInTx(t *testing.T) {
	orig := referralSuffix
	t.Cleanup(func() { referralSuffix = orig })
	suffixes := []int{1234, 5678}
	referralSuffix = func() int {
		n := suffixes[0]
		suffixes = suffixes[1:]
		return n
	}

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repos, err := repomanager.NewPostgresRepositoryManager(db)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(testKeys(t))
	require.NoError(t, err)
	a := NewAuthService(repos, tokens, "", logging.Discard())

	insert := `INSERT\s+INTO\s+users.*ON\s+CONFLICT\s+\(referral_code\)\s+DO\s+NOTHING`
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+EXISTS`).
		WithArgs("alice@example.com", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), "user", "active",
			"ALIC1234", nil, 0, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(insert).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), "user", "active",
			"ALIC5678", nil, 0, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("0b7d2c1e-5a4f-4c1e-9a63-2f4b8e0d9a11"))
	mock.ExpectCommit()

	u, err := a.Register(context.Background(), RegisterInput{Username: "alice", Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "ALIC5678", u.ReferralCode)
	assert.NotEmpty(t, u.ID)
	assert.Nil(t, u.Credentials)
	require.NoError(t, mock.ExpectationsWereMet())
}
