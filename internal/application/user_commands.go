package application

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CategoryCaps maps each category role to the allotted time granted when a
// user is placed in it. A nil duration means unlimited.
type CategoryCaps map[Role]*time.Duration

// DefaultCategoryCaps returns the facility defaults.
func DefaultCategoryCaps() CategoryCaps {
	hours := func(h int) *time.Duration {
		d := time.Duration(h) * time.Hour
		return &d
	}
	return CategoryCaps{
		RoleGuest:      hours(5),
		RoleStudent:    hours(5),
		RoleAlumni:     hours(5),
		RoleResearcher: hours(50),
		RoleMember:     nil,
		RoleOther:      hours(0),
	}
}

// lookup returns the default cap for category. A table with no entry for
// category is a deployment defect.
func (c CategoryCaps) lookup(category Role, vErr *ValidationError) (*time.Duration, bool) {
	limit, ok := c[category]
	if !ok {
		vErr.Put(TagUserAllottedTimeDefault, fmt.Sprintf("no default allotted time configured for %s", category))
		return nil, false
	}
	if limit == nil {
		return nil, true
	}
	copied := *limit
	return &copied, true
}

// UserProfile is a user together with its roles and allotted time.
type UserProfile struct {
	User  User
	Roles []Role
	// Cap is nil when the user has no allotted time record.
	Cap *AllottedTimeCap
}

// RegisteredUser is returned by registration so the activation token can be
// delivered out of band.
type RegisteredUser struct {
	User            User
	ActivationToken ActivationToken
}

// RegisterUserRequest captures sign-up fields.
type RegisterUserRequest struct {
	Email     string `validate:"required,email"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Password  string `validate:"required,min=8"`
	Category  Role
}

var registerUserFields = map[string]Tag{
	"Email":     TagUserEmail,
	"FirstName": TagUserFirstName,
	"LastName":  TagUserLastName,
	"Password":  TagUserPassword,
}

// ActivateUserRequest carries the token mailed after registration.
type ActivateUserRequest struct {
	Token string `validate:"required"`
}

// AssignCategoryRequest moves a user into a category and resets their cap.
type AssignCategoryRequest struct {
	UserID   string `validate:"required"`
	Category Role   `validate:"required"`
}

// UpdateAllottedTimeRequest overrides a user's cap. A nil Limit removes it.
type UpdateAllottedTimeRequest struct {
	UserID string `validate:"required"`
	Limit  *time.Duration
}

type userDeps struct {
	accounts      AccountStore
	caps          CategoryCaps
	hashPassword  func(string) (string, error)
	idGenerator   func() string
	tokenGen      func() string
	now           func() time.Time
	activationTTL time.Duration
}

func (d *userDeps) lookupUser(ctx context.Context, userID string, vErr *ValidationError) (User, bool, error) {
	checkRequest(userIDRequest{UserID: userID}, map[string]Tag{"UserID": TagUserID}, vErr)
	if vErr.HasErrors() {
		return User{}, false, nil
	}
	user, err := d.accounts.GetUser(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			return User{}, false, fmt.Errorf("lookup user %s: %w", userID, err)
		}
		vErr.Put(TagUserNotFound, fmt.Sprintf("user %s does not exist", userID))
		return User{}, false, nil
	}
	return user, true, nil
}

func (d *userDeps) profile(ctx context.Context, user User) (UserProfile, error) {
	roles, err := d.accounts.RolesForUser(ctx, user.ID)
	if err != nil {
		return UserProfile{}, fmt.Errorf("load roles for %s: %w", user.ID, err)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

	profile := UserProfile{User: user, Roles: roles}
	limit, err := d.accounts.AllottedTimeCap(ctx, user.ID)
	switch {
	case err == nil:
		profile.Cap = &limit
	case isNotFound(err):
	default:
		return UserProfile{}, fmt.Errorf("load allotted time for %s: %w", user.ID, err)
	}
	return profile, nil
}

// RegisterUserCommand creates an inactive account and its activation token.
type RegisterUserCommand struct {
	request RegisterUserRequest
	deps    *userDeps
}

func (c *RegisterUserCommand) Execute(ctx context.Context) (Result[RegisteredUser], error) {
	req := c.request
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	vErr := &ValidationError{}
	checkRequest(req, registerUserFields, vErr)

	category := req.Category
	if category == "" {
		category = RoleGuest
	}
	if !category.IsCategory() {
		vErr.Put(TagUserCategory, fmt.Sprintf("%s is not a user category", category))
	}
	if len(c.deps.caps) == 0 {
		vErr.Put(TagUserAllottedTimeDefault, "allotted time defaults are not configured")
	}
	if vErr.HasErrors() {
		return Failure[RegisteredUser](vErr), nil
	}

	limit, ok := c.deps.caps.lookup(category, vErr)
	if !ok {
		return Failure[RegisteredUser](vErr), nil
	}

	taken, err := c.deps.accounts.EmailExists(ctx, req.Email)
	if err != nil {
		return Result[RegisteredUser]{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		vErr.Put(TagUserEmailTaken, "email is already registered")
		return Failure[RegisteredUser](vErr), nil
	}

	hash, err := c.deps.hashPassword(req.Password)
	if err != nil {
		return Result[RegisteredUser]{}, fmt.Errorf("hash password: %w", err)
	}

	now := c.deps.now()
	user := User{
		ID:        c.deps.idGenerator(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Active:    false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	token := ActivationToken{
		ID:        c.deps.idGenerator(),
		UserID:    user.ID,
		Token:     c.deps.tokenGen(),
		ExpiresAt: now.Add(c.deps.activationTTL),
	}

	registration := Registration{
		User:         user,
		PasswordHash: hash,
		Roles:        []Role{RoleUser, category},
		Cap:          AllottedTimeCap{UserID: user.ID, Limit: limit},
		Token:        token,
	}
	if err := c.deps.accounts.RegisterUser(ctx, registration); err != nil {
		return Result[RegisteredUser]{}, fmt.Errorf("register user: %w", err)
	}
	return Success(RegisteredUser{User: user, ActivationToken: token}), nil
}

// ActivateUserCommand redeems an activation token.
type ActivateUserCommand struct {
	request ActivateUserRequest
	deps    *userDeps
}

func (c *ActivateUserCommand) Execute(ctx context.Context) (Result[User], error) {
	req := c.request
	req.Token = strings.TrimSpace(req.Token)

	vErr := &ValidationError{}
	checkRequest(req, map[string]Tag{"Token": TagUserActivationToken}, vErr)
	if vErr.HasErrors() {
		return Failure[User](vErr), nil
	}

	token, err := c.deps.accounts.GetActivationToken(ctx, req.Token)
	if err != nil {
		if !isNotFound(err) {
			return Result[User]{}, fmt.Errorf("lookup activation token: %w", err)
		}
		vErr.Put(TagUserActivationTokenNotFound, "activation token is not recognized")
		return Failure[User](vErr), nil
	}

	user, err := c.deps.accounts.GetUser(ctx, token.UserID)
	if err != nil {
		if !isNotFound(err) {
			return Result[User]{}, fmt.Errorf("lookup user %s: %w", token.UserID, err)
		}
		vErr.Put(TagUserNotFound, fmt.Sprintf("user %s does not exist", token.UserID))
		return Failure[User](vErr), nil
	}

	now := c.deps.now()
	if !token.ExpiresAt.After(now) {
		vErr.Put(TagUserActivationTokenExpired, "activation token has expired")
	}
	if user.Active {
		vErr.Put(TagUserAlreadyActive, "account is already active")
	}
	if vErr.HasErrors() {
		return Failure[User](vErr), nil
	}

	if err := c.deps.accounts.ActivateUser(ctx, token.ID, user.ID, now); err != nil {
		return Result[User]{}, fmt.Errorf("activate user %s: %w", user.ID, err)
	}
	user.Active = true
	user.UpdatedAt = now
	return Success(user), nil
}

// AssignCategoryCommand replaces a user's category role and resets their
// allotted time to the category default.
type AssignCategoryCommand struct {
	request AssignCategoryRequest
	deps    *userDeps
}

func (c *AssignCategoryCommand) Execute(ctx context.Context) (Result[UserProfile], error) {
	req := c.request
	vErr := &ValidationError{}
	checkRequest(req, map[string]Tag{"UserID": TagUserID, "Category": TagUserCategory}, vErr)
	if vErr.HasErrors() {
		return Failure[UserProfile](vErr), nil
	}

	user, ok, err := c.deps.lookupUser(ctx, req.UserID, vErr)
	if err != nil || !ok {
		return resultOrError[UserProfile](vErr, err)
	}

	if !req.Category.IsCategory() {
		vErr.Put(TagUserCategory, fmt.Sprintf("%s is not a user category", req.Category))
		return Failure[UserProfile](vErr), nil
	}
	limit, ok := c.deps.caps.lookup(req.Category, vErr)
	if !ok {
		return Failure[UserProfile](vErr), nil
	}

	if err := c.deps.accounts.SetCategory(ctx, user.ID, req.Category, limit); err != nil {
		return Result[UserProfile]{}, fmt.Errorf("assign category to %s: %w", user.ID, err)
	}
	profile, err := c.deps.profile(ctx, user)
	if err != nil {
		return Result[UserProfile]{}, err
	}
	return Success(profile), nil
}

// UpdateAllottedTimeCommand overrides a user's cap.
type UpdateAllottedTimeCommand struct {
	request UpdateAllottedTimeRequest
	deps    *userDeps
}

func (c *UpdateAllottedTimeCommand) Execute(ctx context.Context) (Result[UserProfile], error) {
	req := c.request
	vErr := &ValidationError{}

	user, ok, err := c.deps.lookupUser(ctx, req.UserID, vErr)
	if err != nil || !ok {
		return resultOrError[UserProfile](vErr, err)
	}
	if req.Limit != nil && *req.Limit < 0 {
		vErr.Put(TagUserAllottedTime, "allotted time must not be negative")
		return Failure[UserProfile](vErr), nil
	}

	if err := c.deps.accounts.SetAllottedTime(ctx, user.ID, req.Limit); err != nil {
		return Result[UserProfile]{}, fmt.Errorf("set allotted time for %s: %w", user.ID, err)
	}
	profile, err := c.deps.profile(ctx, user)
	if err != nil {
		return Result[UserProfile]{}, err
	}
	return Success(profile), nil
}

// RetrieveUserCommand loads a user profile.
type RetrieveUserCommand struct {
	userID string
	deps   *userDeps
}

func (c *RetrieveUserCommand) Execute(ctx context.Context) (Result[UserProfile], error) {
	vErr := &ValidationError{}
	user, ok, err := c.deps.lookupUser(ctx, c.userID, vErr)
	if err != nil || !ok {
		return resultOrError[UserProfile](vErr, err)
	}
	profile, err := c.deps.profile(ctx, user)
	if err != nil {
		return Result[UserProfile]{}, err
	}
	return Success(profile), nil
}
