package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/docvault/internal/core/domain"
)

const uniqueViolation = "23505"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, display_name, password_hash, created_at)
VALUES ($1,$2,$3,$4,$5)
`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.WrapError(domain.ErrConflict, "create user", errors.New("email already registered"))
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail reports an unknown email as unauthorized so login does not leak which accounts exist.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, email, display_name, password_hash, created_at
FROM users
WHERE email = $1
`, email)

	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrUnauthorized, "get user", errors.New("unknown email"))
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (token_hash, user_id, expires_at, created_at)
VALUES ($1,$2,$3,$4)
`, session.TokenHash, session.UserID, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *UserRepository) GetSessionUser(ctx context.Context, tokenHash string, now time.Time) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT u.id, u.email, u.display_name, u.password_hash, u.created_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token_hash = $1 AND s.expires_at > $2
`, tokenHash, now)

	var user domain.User
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrUnauthorized, "get session", errors.New("session expired or unknown"))
		}
		return nil, fmt.Errorf("scan session user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry and returns how many were removed.
func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions rows affected: %w", err)
	}
	return n, nil
}
