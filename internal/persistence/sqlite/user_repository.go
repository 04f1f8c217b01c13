package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const userColumns = `id, email, first_name, last_name, password_hash, active, created_at, updated_at`

// CreateAccount writes the user, its roles, its cap and its activation
// token in one transaction.
func (r *UserRepository) CreateAccount(ctx context.Context, account persistence.NewAccount) error {
	user := account.User
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := r.helper.ExecTx(tx, `
			INSERT INTO users (`+userColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			normalizeEmail(user.Email),
			user.FirstName,
			user.LastName,
			user.PasswordHash,
			boolToInt(user.Active),
			toMillis(user.CreatedAt),
			toMillis(user.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		for _, role := range account.Roles {
			if _, err := r.helper.ExecTx(tx, `INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, user.ID, role); err != nil {
				return r.mapper.MapError(err)
			}
		}

		if _, err := r.helper.ExecTx(tx,
			`INSERT INTO allotted_time_caps (user_id, limit_ms) VALUES (?, ?)`,
			user.ID, durationToMillis(account.Cap.Limit),
		); err != nil {
			return r.mapper.MapError(err)
		}

		if account.Token.Token != "" {
			if _, err := r.helper.ExecTx(tx,
				`INSERT INTO activation_tokens (id, user_id, token, expires_at) VALUES (?, ?, ?, ?)`,
				account.Token.ID, user.ID, account.Token.Token, toMillis(account.Token.ExpiresAt),
			); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// GetUser retrieves a user by ID from the database
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	return r.scanUser(r.helper.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized))
}

// EmailExists reports whether an account already uses email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists int
	err := r.helper.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, normalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return exists == 1, nil
}

// ListRoles returns the user's roles in name order.
func (r *UserRepository) ListRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.helper.Query(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, r.mapper.MapError(err)
		}
		roles = append(roles, role)
	}
	return roles, r.mapper.MapError(rows.Err())
}

// GrantRole adds role to the user. Granting a held role is a no-op.
func (r *UserRepository) GrantRole(ctx context.Context, userID, role string) error {
	_, err := r.helper.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT (user_id, role) DO NOTHING`, userID, role)
	return r.mapper.MapError(err)
}

// ReplaceCategory removes every role listed in categories, grants category
// and stores limit as the user's cap.
func (r *UserRepository) ReplaceCategory(ctx context.Context, userID, category string, categories []string, limit *time.Duration) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := r.helper.QueryRowTx(tx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
			return r.mapper.MapError(err)
		}
		if exists == 0 {
			return persistence.ErrNotFound
		}

		if len(categories) > 0 {
			placeholders, args := inClause(categories)
			args = append([]any{userID}, args...)
			if _, err := r.helper.ExecTx(tx, `DELETE FROM user_roles WHERE user_id = ? AND role IN (`+placeholders+`)`, args...); err != nil {
				return r.mapper.MapError(err)
			}
		}
		if _, err := r.helper.ExecTx(tx, `INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT (user_id, role) DO NOTHING`, userID, category); err != nil {
			return r.mapper.MapError(err)
		}
		return r.upsertCap(tx, userID, limit)
	})
}

// GetAllottedTimeCap returns the user's cap.
func (r *UserRepository) GetAllottedTimeCap(ctx context.Context, userID string) (persistence.AllottedTimeCap, error) {
	return scanCap(r.helper.QueryRow(ctx, `SELECT user_id, limit_ms FROM allotted_time_caps WHERE user_id = ?`, userID), r.mapper)
}

// SetAllottedTimeCap stores limit as the user's cap.
func (r *UserRepository) SetAllottedTimeCap(ctx context.Context, userID string, limit *time.Duration) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		return r.upsertCap(tx, userID, limit)
	})
}

func (r *UserRepository) upsertCap(tx *sql.Tx, userID string, limit *time.Duration) error {
	_, err := r.helper.ExecTx(tx, `
		INSERT INTO allotted_time_caps (user_id, limit_ms) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET limit_ms = excluded.limit_ms`,
		userID, durationToMillis(limit),
	)
	return r.mapper.MapError(err)
}

// GetActivationToken looks up a token by its value.
func (r *UserRepository) GetActivationToken(ctx context.Context, token string) (persistence.ActivationToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.ActivationToken{}, persistence.ErrNotFound
	}
	var (
		t         persistence.ActivationToken
		expiresAt int64
	)
	err := r.helper.QueryRow(ctx,
		`SELECT id, user_id, token, expires_at FROM activation_tokens WHERE token = ?`, token,
	).Scan(&t.ID, &t.UserID, &t.Token, &expiresAt)
	if err != nil {
		return persistence.ActivationToken{}, r.mapper.MapError(err)
	}
	t.ExpiresAt = fromMillis(expiresAt)
	return t, nil
}

// ActivateUser marks the user active and consumes the token.
func (r *UserRepository) ActivateUser(ctx context.Context, tokenID, userID string, at time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `UPDATE users SET active = 1, updated_at = ? WHERE id = ?`, toMillis(at), userID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return persistence.ErrNotFound
		}
		_, err = r.helper.ExecTx(tx, `DELETE FROM activation_tokens WHERE id = ?`, tokenID)
		return r.mapper.MapError(err)
	})
}

// ListExpiredActivationTokens returns tokens whose expiry is at or before now.
func (r *UserRepository) ListExpiredActivationTokens(ctx context.Context, now time.Time) ([]persistence.ActivationToken, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT id, user_id, token, expires_at FROM activation_tokens WHERE expires_at <= ? ORDER BY expires_at, id`,
		toMillis(now),
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var tokens []persistence.ActivationToken
	for rows.Next() {
		var (
			t         persistence.ActivationToken
			expiresAt int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &expiresAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		t.ExpiresAt = fromMillis(expiresAt)
		tokens = append(tokens, t)
	}
	return tokens, r.mapper.MapError(rows.Err())
}

// ExpireActivationToken deletes the token and, when its owner never
// activated, the owner with every dependent row.
func (r *UserRepository) ExpireActivationToken(ctx context.Context, tokenID, userID string) (bool, error) {
	var deleted bool
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(tx, `DELETE FROM activation_tokens WHERE id = ?`, tokenID); err != nil {
			return r.mapper.MapError(err)
		}
		result, err := r.helper.ExecTx(tx, `DELETE FROM users WHERE id = ? AND active = 0`, userID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (r *UserRepository) scanUser(row *sql.Row) (persistence.User, error) {
	var (
		user                 persistence.User
		active               int
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	user.Active = active == 1
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

func scanCap(row *sql.Row, mapper *ErrorMapper) (persistence.AllottedTimeCap, error) {
	var (
		c     persistence.AllottedTimeCap
		limit sql.NullInt64
	)
	if err := row.Scan(&c.UserID, &limit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.AllottedTimeCap{}, persistence.ErrNotFound
		}
		return persistence.AllottedTimeCap{}, mapper.MapError(err)
	}
	c.Limit = millisToDuration(limit)
	return c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
