package sqlite

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/example/telescope-scheduler/internal/persistence"
)

func TestUserRepository_CreateAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "Alice@Example.com", false, durationPtr(5*time.Hour))

	user, err := storage.Users.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if user.ID != "user-1" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Active {
		t.Fatal("expected new account to be inactive")
	}
	if !user.CreatedAt.Equal(baseTime) {
		t.Fatalf("expected created_at %v, got %v", baseTime, user.CreatedAt)
	}

	roles, err := storage.Users.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if !slices.Equal(roles, []string{"GUEST", "USER"}) {
		t.Fatalf("unexpected roles: %v", roles)
	}

	limit, err := storage.Users.GetAllottedTimeCap(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAllottedTimeCap failed: %v", err)
	}
	if limit.Limit == nil || *limit.Limit != 5*time.Hour {
		t.Fatalf("expected 5h cap, got %v", limit.Limit)
	}

	exists, err := storage.Users.EmailExists(ctx, "alice@EXAMPLE.com")
	if err != nil || !exists {
		t.Fatalf("expected email to exist, got %v (err %v)", exists, err)
	}
}

func TestUserRepository_CreateAccountDuplicateEmailLeavesNoRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", true, nil)

	err := storage.Users.CreateAccount(ctx, persistence.NewAccount{
		User:  persistence.User{ID: "user-2", Email: "ALICE@example.com", PasswordHash: "hash", CreatedAt: baseTime, UpdatedAt: baseTime},
		Roles: []string{"USER"},
		Cap:   persistence.AllottedTimeCap{UserID: "user-2"},
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := storage.Users.GetUser(ctx, "user-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rolled back user, got %v", err)
	}
}

func TestUserRepository_ActivateUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", false, nil)

	token, err := storage.Users.GetActivationToken(ctx, "token-user-1")
	if err != nil {
		t.Fatalf("GetActivationToken failed: %v", err)
	}
	if !token.ExpiresAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}

	if err := storage.Users.ActivateUser(ctx, token.ID, token.UserID, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("ActivateUser failed: %v", err)
	}
	user, err := storage.Users.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !user.Active {
		t.Fatal("expected user to be active")
	}
	if _, err := storage.Users.GetActivationToken(ctx, "token-user-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected token to be consumed, got %v", err)
	}
}

func TestUserRepository_ReplaceCategory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", true, durationPtr(5*time.Hour))

	categories := []string{"GUEST", "MEMBER", "STUDENT", "RESEARCHER", "ALUMNI", "OTHER"}
	if err := storage.Users.ReplaceCategory(ctx, "user-1", "MEMBER", categories, nil); err != nil {
		t.Fatalf("ReplaceCategory failed: %v", err)
	}

	roles, err := storage.Users.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if !slices.Equal(roles, []string{"MEMBER", "USER"}) {
		t.Fatalf("unexpected roles: %v", roles)
	}
	limit, err := storage.Users.GetAllottedTimeCap(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAllottedTimeCap failed: %v", err)
	}
	if limit.Limit != nil {
		t.Fatalf("expected unlimited cap, got %v", *limit.Limit)
	}

	err = storage.Users.ReplaceCategory(ctx, "missing", "MEMBER", categories, nil)
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}

	if err := storage.Users.ReplaceCategory(ctx, "user-1", "MEMBER", categories, nil); err != nil {
		t.Fatalf("repeating ReplaceCategory failed: %v", err)
	}

	err = storage.Users.ReplaceCategory(ctx, "user-1", "WIZARD", categories, durationPtr(time.Hour))
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unknown category, got %v", err)
	}
	roles, err = storage.Users.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if !slices.Equal(roles, []string{"MEMBER", "USER"}) {
		t.Fatalf("expected rejected category to roll back, got %v", roles)
	}
}

func TestUserRepository_GrantRole(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", true, nil)

	for range 2 {
		if err := storage.Users.GrantRole(ctx, "user-1", "ADMIN"); err != nil {
			t.Fatalf("GrantRole failed: %v", err)
		}
	}
	if err := storage.Users.GrantRole(ctx, "user-1", "WIZARD"); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for unknown role, got %v", err)
	}
	roles, err := storage.Users.ListRoles(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if !slices.Contains(roles, "ADMIN") || slices.Contains(roles, "WIZARD") {
		t.Fatalf("unexpected roles: %v", roles)
	}
}

func TestUserRepository_SetAllottedTimeCapZero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "user-1", "alice@example.com", true, nil)

	if err := storage.Users.SetAllottedTimeCap(ctx, "user-1", durationPtr(0)); err != nil {
		t.Fatalf("SetAllottedTimeCap failed: %v", err)
	}
	limit, err := storage.Users.GetAllottedTimeCap(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetAllottedTimeCap failed: %v", err)
	}
	if limit.Limit == nil || *limit.Limit != 0 {
		t.Fatalf("expected zero cap to round trip, got %v", limit.Limit)
	}
}

func TestUserRepository_ExpireActivationToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := newTestStorage(t)
	seedAccount(t, storage, "pending", "pending@example.com", false, nil)
	seedAccount(t, storage, "active", "active@example.com", true, nil)

	expired, err := storage.Users.ListExpiredActivationTokens(ctx, baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListExpiredActivationTokens failed: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired tokens, got %d", len(expired))
	}
	none, err := storage.Users.ListExpiredActivationTokens(ctx, baseTime)
	if err != nil {
		t.Fatalf("ListExpiredActivationTokens failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no expired tokens before expiry, got %d", len(none))
	}

	deleted, err := storage.Users.ExpireActivationToken(ctx, "tok-pending", "pending")
	if err != nil {
		t.Fatalf("ExpireActivationToken failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected inactive owner to be deleted")
	}
	if _, err := storage.Users.GetUser(ctx, "pending"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected pending user to be gone, got %v", err)
	}

	deleted, err = storage.Users.ExpireActivationToken(ctx, "tok-active", "active")
	if err != nil {
		t.Fatalf("ExpireActivationToken failed: %v", err)
	}
	if deleted {
		t.Fatal("expected active owner to be kept")
	}
	if _, err := storage.Users.GetActivationToken(ctx, "token-active"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected token to be deleted, got %v", err)
	}
}
