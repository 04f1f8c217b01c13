package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/telescope-scheduler/internal/application"
)

// TokenStore is the access needed by the token expiry sweep.
type TokenStore interface {
	ListExpiredActivationTokens(ctx context.Context, now time.Time) ([]application.ActivationToken, error)
	// ExpireActivationToken deletes the token and, when its owner never
	// activated, the owner too. It reports whether the owner was removed.
	ExpireActivationToken(ctx context.Context, token application.ActivationToken) (bool, error)
}

// TokenSweep removes expired activation tokens and the accounts that never
// used them.
type TokenSweep struct {
	store  TokenStore
	now    func() time.Time
	logger *slog.Logger
}

// NewTokenSweep wires the token expiry sweep.
func NewTokenSweep(store TokenStore, now func() time.Time, logger *slog.Logger) *TokenSweep {
	if now == nil {
		now = time.Now
	}
	return &TokenSweep{store: store, now: now, logger: defaultLogger(logger)}
}

func (s *TokenSweep) Name() string { return "tokens" }

func (s *TokenSweep) Run(ctx context.Context) error {
	logger := sweepLogger(ctx, s.logger, s.Name())

	tokens, err := s.store.ListExpiredActivationTokens(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list expired activation tokens: %w", err)
	}

	var expired, usersRemoved int
	for _, token := range tokens {
		removed, err := s.store.ExpireActivationToken(ctx, token)
		if err != nil {
			logger.ErrorContext(ctx, "failed to expire activation token", "token_id", token.ID, "user_id", token.UserID, "error", err)
			continue
		}
		expired++
		if removed {
			usersRemoved++
		}
	}

	logger.InfoContext(ctx, "sweep finished", "expired", expired, "users_removed", usersRemoved)
	return nil
}
