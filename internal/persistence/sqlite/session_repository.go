package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// CreateSession stores a new session token for a user
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.UserID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	normalized, err := normalizeSession(session)
	if err != nil {
		return persistence.Session{}, err
	}

	now := r.now().UTC()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now

	_, err = r.helper.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		normalized.ID,
		normalized.UserID,
		normalized.Token,
		normalized.Fingerprint,
		formatRFC3339(normalized.ExpiresAt),
		nullableRFC3339(normalized.RevokedAt),
		formatRFC3339(normalized.CreatedAt),
		formatRFC3339(normalized.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return normalized, nil
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	normalizedToken := strings.TrimSpace(token)
	if normalizedToken == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, normalizedToken)
	return r.scanSession(row)
}

// UpdateSession updates mutable fields of an existing session
func (r *SessionRepository) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	var updated persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		current, err := r.scanSession(r.helper.QueryRowTx(tx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, session.ID))
		if err != nil {
			return err
		}

		session.UserID = current.UserID
		session.CreatedAt = current.CreatedAt
		normalized, err := normalizeSession(session)
		if err != nil {
			return err
		}
		normalized.UpdatedAt = r.now().UTC()

		result, err := r.helper.ExecTx(tx, `
			UPDATE sessions
			SET token = ?, fingerprint = ?, expires_at = ?, revoked_at = ?, updated_at = ?
			WHERE id = ?`,
			normalized.Token,
			normalized.Fingerprint,
			formatRFC3339(normalized.ExpiresAt),
			nullableRFC3339(normalized.RevokedAt),
			formatRFC3339(normalized.UpdatedAt),
			normalized.ID,
		)
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
		updated = normalized
		return nil
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return updated, nil
}

// RevokeSession marks a session as revoked based on its token value
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	normalizedToken := strings.TrimSpace(token)
	if normalizedToken == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}
	revokedAtUTC := revokedAt.UTC()

	var revoked persistence.Session
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		session, err := r.scanSession(r.helper.QueryRowTx(tx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, normalizedToken))
		if err != nil {
			return err
		}
		if _, err := r.helper.ExecTx(tx,
			`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE id = ?`,
			formatRFC3339(revokedAtUTC), formatRFC3339(revokedAtUTC), session.ID,
		); err != nil {
			return r.mapper.MapError(err)
		}
		session.RevokedAt = &revokedAtUTC
		session.UpdatedAt = revokedAtUTC
		revoked = session
		return nil
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return revoked, nil
}

// DeleteExpiredSessions removes sessions that expired on or before the provided timestamp
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatRFC3339(reference))
	return r.mapper.MapError(err)
}

func (r *SessionRepository) scanSession(row *sql.Row) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.Fingerprint,
		&expiresAt,
		&revokedAt,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if revokedAt.Valid {
		t, err := time.Parse(time.RFC3339, revokedAt.String)
		if err != nil {
			return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
		}
		session.RevokedAt = &t
	}
	return session, nil
}

// normalizeSession trims the token and fingerprint and converts times to UTC.
func normalizeSession(session persistence.Session) (persistence.Session, error) {
	if session.ID == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	session.Token = strings.TrimSpace(session.Token)
	if session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	session.Fingerprint = strings.TrimSpace(session.Fingerprint)
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	if session.RevokedAt != nil {
		revoked := session.RevokedAt.UTC()
		session.RevokedAt = &revoked
	}
	return session, nil
}

func formatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableRFC3339(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatRFC3339(*t), Valid: true}
}
