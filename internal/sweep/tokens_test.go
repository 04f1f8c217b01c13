package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/telescope-scheduler/internal/application"
)

type tokenStoreStub struct {
	tokens   []application.ActivationToken
	active   map[string]bool
	failing  string
	listErr  error
	expired  []string
	removed  []string
	listedAt time.Time
}

func (s *tokenStoreStub) ListExpiredActivationTokens(ctx context.Context, now time.Time) ([]application.ActivationToken, error) {
	s.listedAt = now
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []application.ActivationToken
	for _, token := range s.tokens {
		if !token.ExpiresAt.After(now) {
			out = append(out, token)
		}
	}
	return out, nil
}

func (s *tokenStoreStub) ExpireActivationToken(ctx context.Context, token application.ActivationToken) (bool, error) {
	if token.ID == s.failing {
		return false, errors.New("write failed")
	}
	s.expired = append(s.expired, token.ID)
	if s.active[token.UserID] {
		return false, nil
	}
	s.removed = append(s.removed, token.UserID)
	return true, nil
}

func TestTokenSweep(t *testing.T) {
	t.Parallel()

	store := &tokenStoreStub{
		tokens: []application.ActivationToken{
			{ID: "t-1", UserID: "dormant", ExpiresAt: sweepNow.Add(-time.Hour)},
			{ID: "t-2", UserID: "alice", ExpiresAt: sweepNow},
			{ID: "t-3", UserID: "broken", ExpiresAt: sweepNow.Add(-time.Minute)},
			{ID: "t-4", UserID: "fresh", ExpiresAt: sweepNow.Add(time.Hour)},
		},
		active:  map[string]bool{"alice": true},
		failing: "t-3",
	}
	sweep := NewTokenSweep(store, func() time.Time { return sweepNow }, discardLogger)

	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !store.listedAt.Equal(sweepNow) {
		t.Fatalf("expected tokens to be listed at %s, got %s", sweepNow, store.listedAt)
	}
	if len(store.expired) != 2 || store.expired[0] != "t-1" || store.expired[1] != "t-2" {
		t.Fatalf("expected t-1 and t-2 to expire, got %v", store.expired)
	}
	if len(store.removed) != 1 || store.removed[0] != "dormant" {
		t.Fatalf("expected only the never activated account to be removed, got %v", store.removed)
	}
}

func TestTokenSweepReportsListingFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("database locked")
	sweep := NewTokenSweep(&tokenStoreStub{listErr: boom}, func() time.Time { return sweepNow }, discardLogger)
	if err := sweep.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected listing error, got %v", err)
	}
}
