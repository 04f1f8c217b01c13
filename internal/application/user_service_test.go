package application

import (
	"context"
	"slices"
	"testing"
	"time"
)

func newUserHarness(t *testing.T, caps CategoryCaps) (*memoryStore, *UserWrapper) {
	t.Helper()

	store := newMemoryStore()
	store.addUser("alice", hours(5), RoleUser, RoleStudent)
	store.addUser("admin", nil, RoleUser, RoleMember, RoleAdmin)

	factory := NewUserFactory(UserFactoryConfig{
		Accounts:       store,
		Caps:           caps,
		HashPassword:   func(password string) (string, error) { return "hashed:" + password, nil },
		IDGenerator:    sequentialIDs("user"),
		TokenGenerator: sequentialIDs("token"),
		Now:            func() time.Time { return referenceNow },
		ActivationTTL:  2 * time.Hour,
	})
	return store, NewUserWrapper(factory, store, discardLogger)
}

func register(t *testing.T, users *UserWrapper, req RegisterUserRequest) Result[RegisteredUser] {
	t.Helper()

	var got capture[RegisteredUser]
	if _, err := users.Register(context.Background(), req, got.then); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return got.result
}

func TestUserRegister(t *testing.T) {
	t.Parallel()

	store, users := newUserHarness(t, DefaultCategoryCaps())
	result := register(t, users, RegisterUserRequest{
		Email:     "  Carol@Example.COM ",
		FirstName: " Carol ",
		LastName:  "Shaw",
		Password:  "long enough",
	})
	registered, ok := result.Value()
	if !ok {
		t.Fatalf("expected registration to succeed, got %v", result.Errors())
	}

	user := registered.User
	if user.Email != "carol@example.com" || user.FirstName != "Carol" || user.Active {
		t.Fatalf("unexpected user: %#v", user)
	}
	if store.passwords[user.ID] != "hashed:long enough" {
		t.Fatalf("expected hashed password, got %q", store.passwords[user.ID])
	}
	if roles := store.roles[user.ID]; !slices.Equal(roles, []Role{RoleUser, RoleGuest}) {
		t.Fatalf("expected USER and GUEST roles, got %v", roles)
	}
	if limit := store.caps[user.ID].Limit; limit == nil || *limit != 5*time.Hour {
		t.Fatalf("expected guest cap of 5h, got %v", limit)
	}
	token := registered.ActivationToken
	if token.UserID != user.ID || !token.ExpiresAt.Equal(referenceNow.Add(2*time.Hour)) {
		t.Fatalf("unexpected activation token: %#v", token)
	}

	again := register(t, users, RegisterUserRequest{
		Email:     "carol@example.com",
		FirstName: "Carol",
		LastName:  "Shaw",
		Password:  "long enough",
	})
	expectTags(t, again.Errors(), TagUserEmailTaken)
}

func TestUserRegisterValidation(t *testing.T) {
	t.Parallel()

	_, users := newUserHarness(t, DefaultCategoryCaps())
	result := register(t, users, RegisterUserRequest{
		Email:    "not-an-email",
		LastName: "Shaw",
		Password: "short",
		Category: RoleAdmin,
	})
	expectTags(t, result.Errors(), TagUserEmail, TagUserFirstName, TagUserPassword, TagUserCategory)

	result = register(t, users, RegisterUserRequest{
		Email:     "dan@example.com",
		FirstName: "Dan",
		LastName:  "Lee",
		Password:  "long enough",
		Category:  RoleResearcher,
	})
	if _, ok := result.Value(); !ok {
		t.Fatalf("expected researcher registration to succeed, got %v", result.Errors())
	}
}

func TestUserRegisterRequiresCategoryDefaults(t *testing.T) {
	t.Parallel()

	_, users := newUserHarness(t, CategoryCaps{})
	result := register(t, users, RegisterUserRequest{
		Email:     "erin@example.com",
		FirstName: "Erin",
		LastName:  "Park",
		Password:  "long enough",
	})
	errs := result.Errors()
	expectTags(t, errs, TagUserAllottedTimeDefault)
	if TagUserAllottedTimeDefault.Kind() != KindInvariant {
		t.Fatalf("expected missing defaults to be an invariant failure")
	}

	_, users = newUserHarness(t, CategoryCaps{RoleGuest: hours(5)})
	result = register(t, users, RegisterUserRequest{
		Email:     "erin@example.com",
		FirstName: "Erin",
		LastName:  "Park",
		Password:  "long enough",
		Category:  RoleStudent,
	})
	expectTags(t, result.Errors(), TagUserAllottedTimeDefault)
}

func TestUserActivate(t *testing.T) {
	t.Parallel()

	store, users := newUserHarness(t, DefaultCategoryCaps())
	ctx := context.Background()
	registered, ok := register(t, users, RegisterUserRequest{
		Email:     "fay@example.com",
		FirstName: "Fay",
		LastName:  "Orr",
		Password:  "long enough",
	}).Value()
	if !ok {
		t.Fatal("expected registration to succeed")
	}

	activate := func(token string) Result[User] {
		t.Helper()
		var got capture[User]
		if _, err := users.Activate(ctx, ActivateUserRequest{Token: token}, got.then); err != nil {
			t.Fatalf("Activate returned error: %v", err)
		}
		return got.result
	}

	user, ok := activate(registered.ActivationToken.Token).Value()
	if !ok || !user.Active {
		t.Fatalf("expected active user, got %#v", user)
	}
	if stored := store.users[user.ID]; !stored.Active {
		t.Fatal("expected activation to be persisted")
	}

	expectTags(t, activate(registered.ActivationToken.Token).Errors(), TagUserActivationTokenNotFound)
	expectTags(t, activate("").Errors(), TagUserActivationToken)

	store.tokens["expired"] = ActivationToken{ID: "t-expired", UserID: "alice", Token: "expired", ExpiresAt: referenceNow}
	expectTags(t, activate("expired").Errors(), TagUserActivationTokenExpired, TagUserAlreadyActive)

	store.tokens["late"] = ActivationToken{ID: "t-late", UserID: "alice", Token: "late", ExpiresAt: referenceNow.Add(time.Hour)}
	expectTags(t, activate("late").Errors(), TagUserAlreadyActive)
}

func TestUserAssignCategory(t *testing.T) {
	t.Parallel()

	_, users := newUserHarness(t, DefaultCategoryCaps())
	ctx := context.Background()
	admin := &Principal{UserID: "admin"}

	var got capture[UserProfile]
	report, err := users.AssignCategory(ctx, &Principal{UserID: "alice"}, AssignCategoryRequest{UserID: "alice", Category: RoleMember}, got.then)
	if err != nil || report == nil || !slices.Equal(report.MissingRoles, []Role{RoleAdmin}) {
		t.Fatalf("expected non-admin to be denied, got %+v (err %v)", report, err)
	}

	if _, err := users.AssignCategory(ctx, admin, AssignCategoryRequest{UserID: "alice", Category: RoleResearcher}, got.then); err != nil {
		t.Fatalf("AssignCategory returned error: %v", err)
	}
	profile, ok := got.value()
	if !ok {
		t.Fatalf("expected success, got %v", got.result.Errors())
	}
	if !slices.Equal(profile.Roles, []Role{RoleResearcher, RoleUser}) {
		t.Fatalf("expected category to be replaced, got %v", profile.Roles)
	}
	if profile.Cap == nil || profile.Cap.Limit == nil || *profile.Cap.Limit != 50*time.Hour {
		t.Fatalf("expected researcher cap, got %+v", profile.Cap)
	}

	if _, err := users.AssignCategory(ctx, admin, AssignCategoryRequest{UserID: "alice", Category: RoleMember}, got.then); err != nil {
		t.Fatalf("AssignCategory returned error: %v", err)
	}
	if profile, _ := got.value(); profile.Cap == nil || profile.Cap.Limit != nil {
		t.Fatalf("expected unlimited member cap, got %+v", profile.Cap)
	}

	if _, err := users.AssignCategory(ctx, admin, AssignCategoryRequest{UserID: "alice", Category: RoleAdmin}, got.then); err != nil {
		t.Fatalf("AssignCategory returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagUserCategory)

	if _, err := users.AssignCategory(ctx, admin, AssignCategoryRequest{UserID: "ghost", Category: RoleGuest}, got.then); err != nil {
		t.Fatalf("AssignCategory returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagUserNotFound)
}

func TestUserUpdateAllottedTime(t *testing.T) {
	t.Parallel()

	_, users := newUserHarness(t, DefaultCategoryCaps())
	ctx := context.Background()
	admin := &Principal{UserID: "admin"}

	var got capture[UserProfile]
	if report, err := users.UpdateAllottedTime(ctx, &Principal{UserID: "alice"}, UpdateAllottedTimeRequest{UserID: "alice", Limit: hours(100)}, got.then); err != nil || report == nil {
		t.Fatalf("expected non-admin to be denied, got %+v (err %v)", report, err)
	}

	negative := -time.Hour
	if _, err := users.UpdateAllottedTime(ctx, admin, UpdateAllottedTimeRequest{UserID: "alice", Limit: &negative}, got.then); err != nil {
		t.Fatalf("UpdateAllottedTime returned error: %v", err)
	}
	expectTags(t, got.result.Errors(), TagUserAllottedTime)

	if _, err := users.UpdateAllottedTime(ctx, admin, UpdateAllottedTimeRequest{UserID: "alice", Limit: hours(12)}, got.then); err != nil {
		t.Fatalf("UpdateAllottedTime returned error: %v", err)
	}
	profile, ok := got.value()
	if !ok || profile.Cap == nil || *profile.Cap.Limit != 12*time.Hour {
		t.Fatalf("expected 12h cap, got %+v", profile.Cap)
	}

	if _, err := users.UpdateAllottedTime(ctx, admin, UpdateAllottedTimeRequest{UserID: "alice"}, got.then); err != nil {
		t.Fatalf("UpdateAllottedTime returned error: %v", err)
	}
	if profile, _ := got.value(); profile.Cap == nil || profile.Cap.Limit != nil {
		t.Fatalf("expected cap to be lifted, got %+v", profile.Cap)
	}
}

func TestUserRetrieve(t *testing.T) {
	t.Parallel()

	store, users := newUserHarness(t, DefaultCategoryCaps())
	store.addUser("bob", hours(5), RoleUser, RoleGuest)
	ctx := context.Background()

	var got capture[UserProfile]
	if _, err := users.Retrieve(ctx, &Principal{UserID: "alice"}, "alice", got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	profile, ok := got.value()
	if !ok || profile.User.ID != "alice" || !slices.Equal(profile.Roles, []Role{RoleStudent, RoleUser}) {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	report, err := users.Retrieve(ctx, &Principal{UserID: "bob"}, "alice", got.then)
	if err != nil || report == nil || !report.InvalidResource {
		t.Fatalf("expected bob to be denied, got %+v (err %v)", report, err)
	}

	store.mu.Lock()
	delete(store.caps, "bob")
	store.mu.Unlock()
	if _, err := users.Retrieve(ctx, &Principal{UserID: "admin"}, "bob", got.then); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if profile, ok := got.value(); !ok || profile.Cap != nil {
		t.Fatalf("expected missing cap to be reported as nil, got %+v", profile.Cap)
	}
}
