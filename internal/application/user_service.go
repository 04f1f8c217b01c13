package application

import (
	"context"
	"log/slog"
	"time"
)

// UserFactoryConfig lists the collaborators user commands need.
type UserFactoryConfig struct {
	Accounts       AccountStore
	Caps           CategoryCaps
	HashPassword   func(string) (string, error)
	IDGenerator    func() string
	TokenGenerator func() string
	Now            func() time.Time
	ActivationTTL  time.Duration
}

// UserFactory assembles account commands.
type UserFactory struct {
	deps *userDeps
}

// NewUserFactory wires dependencies for account commands.
func NewUserFactory(cfg UserFactoryConfig) *UserFactory {
	hash := cfg.HashPassword
	if hash == nil {
		hash = func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		}
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	tokenGen := cfg.TokenGenerator
	if tokenGen == nil {
		tokenGen = idGenerator
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.ActivationTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &UserFactory{deps: &userDeps{
		accounts:      cfg.Accounts,
		caps:          cfg.Caps,
		hashPassword:  hash,
		idGenerator:   idGenerator,
		tokenGen:      tokenGen,
		now:           now,
		activationTTL: ttl,
	}}
}

func (f *UserFactory) Register(req RegisterUserRequest) *RegisterUserCommand {
	return &RegisterUserCommand{request: req, deps: f.deps}
}

func (f *UserFactory) Activate(req ActivateUserRequest) *ActivateUserCommand {
	return &ActivateUserCommand{request: req, deps: f.deps}
}

func (f *UserFactory) AssignCategory(req AssignCategoryRequest) *AssignCategoryCommand {
	return &AssignCategoryCommand{request: req, deps: f.deps}
}

func (f *UserFactory) UpdateAllottedTime(req UpdateAllottedTimeRequest) *UpdateAllottedTimeCommand {
	return &UpdateAllottedTimeCommand{request: req, deps: f.deps}
}

func (f *UserFactory) Retrieve(userID string) *RetrieveUserCommand {
	return &RetrieveUserCommand{userID: userID, deps: f.deps}
}

// UserWrapper gates account commands. Registration and activation are
// open to anonymous callers.
type UserWrapper struct {
	factory *UserFactory
	access  authorizer
	logger  *slog.Logger
}

// NewUserWrapper builds a wrapper around factory.
func NewUserWrapper(factory *UserFactory, roles RoleStore, logger *slog.Logger) *UserWrapper {
	logger = defaultLogger(logger)
	return &UserWrapper{factory: factory, access: newAuthorizer(roles, logger), logger: logger}
}

func (w *UserWrapper) Register(ctx context.Context, req RegisterUserRequest, then func(Result[RegisteredUser])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "UserWrapper", "Register", "category", req.Category)
	return nil, dispatch(ctx, logger, Command[RegisteredUser](w.factory.Register(req)), then)
}

func (w *UserWrapper) Activate(ctx context.Context, req ActivateUserRequest, then func(Result[User])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "UserWrapper", "Activate")
	return nil, dispatch(ctx, logger, Command[User](w.factory.Activate(req)), then)
}

// AssignCategory requires ADMIN.
func (w *UserWrapper) AssignCategory(ctx context.Context, caller *Principal, req AssignCategoryRequest, then func(Result[UserProfile])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "UserWrapper", "AssignCategory", "user_id", req.UserID, "category", req.Category)

	_, report, err := w.access.requireAny(ctx, caller, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[UserProfile](w.factory.AssignCategory(req)), then)
}

// UpdateAllottedTime requires ADMIN.
func (w *UserWrapper) UpdateAllottedTime(ctx context.Context, caller *Principal, req UpdateAllottedTimeRequest, then func(Result[UserProfile])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "UserWrapper", "UpdateAllottedTime", "user_id", req.UserID)

	_, report, err := w.access.requireAny(ctx, caller, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[UserProfile](w.factory.UpdateAllottedTime(req)), then)
}

// Retrieve admits the user themselves and ADMIN.
func (w *UserWrapper) Retrieve(ctx context.Context, caller *Principal, userID string, then func(Result[UserProfile])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "UserWrapper", "Retrieve", "user_id", userID)

	_, report, err := w.access.requireOwnerOrAdmin(ctx, caller, userID, false)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[UserProfile](w.factory.Retrieve(userID)), then)
}
