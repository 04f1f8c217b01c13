package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not match
	// or no session token was supplied.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when the account has not been activated.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrSessionExpired is returned when a session token is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when a session token was revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
)

// CredentialStore resolves accounts for login and for the session grant.
type CredentialStore interface {
	RoleStore
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
}

// SessionRepository captures the persistence interactions for issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthServiceConfig groups the dependencies of NewAuthService. Zero values
// fall back to Argon2id verification, the wall clock and a one day TTL.
type AuthServiceConfig struct {
	Credentials    CredentialStore
	Sessions       SessionRepository
	VerifyPassword PasswordVerifier
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// AuthService issues, rotates and checks the session tokens presented on the
// command line. It never decides authorization: wrappers resolve roles again
// for each call.
type AuthService struct {
	credentials CredentialStore
	sessions    SessionRepository
	verify      PasswordVerifier
	newToken    func() string
	now         func() time.Time
	ttl         time.Duration
	logger      *slog.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	s := &AuthService{
		credentials: cfg.Credentials,
		sessions:    cfg.Sessions,
		verify:      cfg.VerifyPassword,
		newToken:    cfg.TokenGenerator,
		now:         cfg.Now,
		ttl:         cfg.SessionTTL,
		logger:      defaultLogger(cfg.Logger),
	}
	if s.verify == nil {
		s.verify = VerifyPassword
	}
	if s.newToken == nil {
		s.newToken = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttl <= 0 {
		s.ttl = 24 * time.Hour
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

func (s *AuthService) ready(needCredentials bool) error {
	switch {
	case s == nil:
		return errors.New("AuthService is nil")
	case s.sessions == nil:
		return errors.New("session repository not configured")
	case needCredentials && s.credentials == nil:
		return errors.New("credential store not configured")
	}
	return nil
}

// Authenticate checks an email/password pair of an active account and
// issues a new session bound to the optional fingerprint.
func (s *AuthService) Authenticate(ctx context.Context, req LoginRequest) (grant SessionGrant, err error) {
	if err = s.ready(true); err != nil {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "login succeeded", "user_id", grant.User.ID, "category", grant.Category)
	}()

	if email == "" || req.Password == "" {
		err = ErrInvalidCredentials
		return
	}
	creds, err := s.credentials.GetUserCredentialsByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	// Password first: a wrong guess must not reveal pending accounts.
	if s.verify(creds.PasswordHash, req.Password) != nil {
		err = ErrInvalidCredentials
		return
	}
	if !creds.User.Active {
		err = ErrAccountDisabled
		return
	}

	now := s.now()
	if err = s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		return
	}
	id := s.newToken()
	token := s.newToken()
	if token == "" {
		token = id
	}
	session, err := s.sessions.CreateSession(ctx, Session{
		ID:          id,
		UserID:      creds.User.ID,
		Token:       token,
		Fingerprint: strings.TrimSpace(req.Fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	})
	if err != nil {
		return
	}
	return s.grant(ctx, creds.User, session)
}

// RefreshSession swaps a live token for a fresh one and restarts its TTL.
// The old token stops working once the rotation is stored.
func (s *AuthService) RefreshSession(ctx context.Context, req RefreshRequest) (grant SessionGrant, err error) {
	if err = s.ready(true); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "RefreshSession")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "session refresh rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session refreshed", "user_id", grant.User.ID, "session_id", grant.Session.ID)
	}()

	session, user, err := s.liveSession(ctx, req.Token)
	if err != nil {
		return
	}
	now := s.now()
	if token := s.newToken(); token != "" {
		session.Token = token
	}
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if fp := strings.TrimSpace(req.Fingerprint); fp != "" {
		session.Fingerprint = fp
	}
	if session, err = s.sessions.UpdateSession(ctx, session); err != nil {
		return
	}
	return s.grant(ctx, user, session)
}

// RevokeSession ends a session and prunes sessions that already expired.
func (s *AuthService) RevokeSession(ctx context.Context, token string) error {
	if err := s.ready(false); err != nil {
		return err
	}
	logger := s.loggerWith(ctx, "RevokeSession")
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidCredentials
	}

	now := s.now()
	session, err := s.sessions.RevokeSession(ctx, token, now)
	if err != nil {
		if isNotFound(err) {
			err = ErrUnauthorized
		}
		logger.ErrorContext(ctx, "logout failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		logger.ErrorContext(ctx, "failed to prune expired sessions", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "session revoked", "user_id", session.UserID)
	return nil
}

// ValidateSession maps a live token to the identity of its active owner.
// The principal carries only the user id.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (Principal, error) {
	if err := s.ready(true); err != nil {
		return Principal{}, err
	}
	_, user, err := s.liveSession(ctx, token)
	if err != nil {
		s.loggerWith(ctx, "ValidateSession").WarnContext(ctx, "session rejected", "error", err, "error_kind", ErrorKind(err))
		return Principal{}, err
	}
	return Principal{UserID: user.ID}, nil
}

// liveSession loads the session for token and its owner, rejecting unknown,
// revoked or expired tokens and inactive or deleted owners.
func (s *AuthService) liveSession(ctx context.Context, token string) (Session, User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, User{}, ErrInvalidCredentials
	}
	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		if isNotFound(err) {
			return Session{}, User{}, ErrUnauthorized
		}
		return Session{}, User{}, fmt.Errorf("load session: %w", err)
	}
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return Session{}, User{}, ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(s.now()) {
		return Session{}, User{}, ErrSessionExpired
	}

	user, err := s.credentials.GetUser(ctx, session.UserID)
	if err != nil {
		if isNotFound(err) {
			return Session{}, User{}, ErrUnauthorized
		}
		return Session{}, User{}, fmt.Errorf("load session owner %s: %w", session.UserID, err)
	}
	if !user.Active {
		return Session{}, User{}, ErrAccountDisabled
	}
	return session, user, nil
}

// grant attaches the owner's current roles and category of service.
func (s *AuthService) grant(ctx context.Context, user User, session Session) (SessionGrant, error) {
	roles, err := s.credentials.RolesForUser(ctx, user.ID)
	if err != nil {
		return SessionGrant{}, fmt.Errorf("load roles for %s: %w", user.ID, err)
	}
	roles = slices.Clone(roles)
	slices.Sort(roles)
	grant := SessionGrant{User: user, Session: session, Roles: roles}
	if i := slices.IndexFunc(roles, Role.IsCategory); i >= 0 {
		grant.Category = roles[i]
	}
	return grant, nil
}
