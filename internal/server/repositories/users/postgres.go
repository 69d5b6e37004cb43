package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/dbx"
	"github.com/dmitrijs2005/bantx/internal/server/models"
	"github.com/google/uuid"
)

const (
	publicColumns = `id, username, email, role, status, referral_code, referred_by,
		reward_points, onboarding_completed, profile, settings, created_at, updated_at`
	secretColumns = `, password_hash, reset_token_hash, reset_expires_at`

	referralCodeConstraint = "users_referral_code_key"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, u *models.User) error {
	if u.Credentials == nil || u.Credentials.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", common.ErrorValidation)
	}

	profile, settings, err := marshalDocuments(u)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	// A taken referral code yields no row instead of a unique violation, which
	// would abort an enclosing transaction and make a retry impossible.
	query :=
		`INSERT INTO users (id, username, email, password_hash, role, status, referral_code, referred_by,
			reward_points, onboarding_completed, profile, settings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		 ON CONFLICT (referral_code) DO NOTHING
		 RETURNING id
		 `

	var inserted string
	err = r.db.QueryRowContext(ctx, query,
		id, u.Username, u.Email, u.Credentials.PasswordHash, string(u.Role), string(u.Status),
		nullString(u.ReferralCode), nullString(u.ReferredBy),
		u.RewardPoints, u.OnboardingCompleted, profile, settings, now).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrDuplicateReferralCode
		}
		return mapWriteError(err)
	}

	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string, opts ...FindOption) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return r.findOne(ctx, "id", id, applyFindOptions(opts))
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string, opts ...FindOption) (*models.User, error) {
	return r.findOne(ctx, "email", email, applyFindOptions(opts))
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string, opts ...FindOption) (*models.User, error) {
	return r.findOne(ctx, "username", username, applyFindOptions(opts))
}

func (r *PostgresRepository) FindByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(ctx, "referral_code", code, FindOptions{})
}

// findOne is only ever called with a column name from this file.
func (r *PostgresRepository) findOne(ctx context.Context, column, value string, o FindOptions) (*models.User, error) {
	columns := publicColumns
	if o.WithSecrets {
		columns += secretColumns
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s = $1`, columns, column)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, value), o.WithSecrets)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR username = $2)
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, u *models.User) error {
	if _, err := uuid.Parse(u.ID); err != nil {
		return common.ErrorNotFound
	}

	profile, settings, err := marshalDocuments(u)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query :=
		`UPDATE users SET username = $2, email = $3, role = $4, status = $5, referral_code = $6,
			referred_by = $7, reward_points = $8, onboarding_completed = $9, profile = $10,
			settings = $11, updated_at = $12`
	args := []any{
		u.ID, u.Username, u.Email, string(u.Role), string(u.Status), nullString(u.ReferralCode),
		nullString(u.ReferredBy), u.RewardPoints, u.OnboardingCompleted, profile, settings, now,
	}
	if c := u.Credentials; c != nil {
		query += `, password_hash = $13, reset_token_hash = $14, reset_expires_at = $15`
		args = append(args, c.PasswordHash, nullString(c.ResetTokenHash), nullTime(c.ResetExpiresAt))
	}
	query += ` WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	u.UpdatedAt = now
	return nil
}

func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (string, error) {
	query :=
		`UPDATE users SET password_hash = $1, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $3
		 WHERE reset_token_hash = $2 AND reset_expires_at > $3
		 RETURNING id
		 `

	var id string
	err := r.db.QueryRowContext(ctx, query, newPasswordHash, tokenHash, now).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) AddRewardPoints(ctx context.Context, id string, points int) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}

	query :=
		`UPDATE users SET reward_points = reward_points + $2, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, points)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, offset, limit int) ([]*models.User, error) {
	query := `SELECT ` + publicColumns + ` FROM users ORDER BY created_at DESC OFFSET $1 LIMIT $2`
	return r.queryMany(ctx, query, offset, limit)
}

func (r *PostgresRepository) ListReferredBy(ctx context.Context, referrerID string) ([]*models.User, error) {
	if _, err := uuid.Parse(referrerID); err != nil {
		return []*models.User{}, nil
	}
	query := `SELECT ` + publicColumns + ` FROM users WHERE referred_by = $1 ORDER BY created_at DESC`
	return r.queryMany(ctx, query, referrerID)
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows, false)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, withSecrets bool) (*models.User, error) {
	var (
		u                  models.User
		role, status       string
		referral, referrer sql.NullString
		profile, settings  []byte
	)
	dest := []any{
		&u.ID, &u.Username, &u.Email, &role, &status, &referral, &referrer,
		&u.RewardPoints, &u.OnboardingCompleted, &profile, &settings, &u.CreatedAt, &u.UpdatedAt,
	}

	var (
		passwordHash string
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	if withSecrets {
		dest = append(dest, &passwordHash, &resetHash, &resetExpires)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	u.Status = models.Status(status)
	u.ReferralCode = referral.String
	u.ReferredBy = referrer.String
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &u.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}

	if withSecrets {
		u.Credentials = &models.Credentials{
			PasswordHash:   passwordHash,
			ResetTokenHash: resetHash.String,
		}
		if resetExpires.Valid {
			t := resetExpires.Time
			u.Credentials.ResetExpiresAt = &t
		}
	}
	return &u, nil
}

func marshalDocuments(u *models.User) (profile, settings []byte, err error) {
	if profile, err = json.Marshal(u.Profile); err != nil {
		return nil, nil, fmt.Errorf("encode profile: %w", err)
	}
	if settings, err = json.Marshal(u.Settings); err != nil {
		return nil, nil, fmt.Errorf("encode settings: %w", err)
	}
	return profile, settings, nil
}

func mapWriteError(err error) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		if constraint == referralCodeConstraint {
			return fmt.Errorf("%w: %v", common.ErrDuplicateReferralCode, err)
		}
		return fmt.Errorf("%w: %v", common.ErrDuplicateIdentity, err)
	}
	return fmt.Errorf("db error: %w", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
