package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// CreateTelescopeRequest captures the attributes of a new instrument.
type CreateTelescopeRequest struct {
	Name     string `validate:"required,max=120"`
	Location string `validate:"required"`
	Online   bool
}

// CreateTelescopeCommand registers a telescope with a unique name.
type CreateTelescopeCommand struct {
	request     CreateTelescopeRequest
	telescopes  TelescopeCatalog
	idGenerator func() string
	now         func() time.Time
}

func (c *CreateTelescopeCommand) Execute(ctx context.Context) (Result[Telescope], error) {
	req := c.request
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)

	vErr := &ValidationError{}
	checkRequest(req, map[string]Tag{"Name": TagTelescopeName, "Location": TagTelescopeLocation}, vErr)
	if vErr.HasErrors() {
		return Failure[Telescope](vErr), nil
	}

	taken, err := c.telescopes.TelescopeNameExists(ctx, req.Name)
	if err != nil {
		return Result[Telescope]{}, fmt.Errorf("check telescope name: %w", err)
	}
	if taken {
		vErr.Put(TagTelescopeNameTaken, fmt.Sprintf("telescope %q already exists", req.Name))
		return Failure[Telescope](vErr), nil
	}

	telescope := Telescope{
		ID:        c.idGenerator(),
		Name:      req.Name,
		Location:  req.Location,
		Online:    req.Online,
		CreatedAt: c.now(),
	}
	persisted, err := c.telescopes.CreateTelescope(ctx, telescope)
	if err != nil {
		return Result[Telescope]{}, fmt.Errorf("create telescope: %w", err)
	}
	return Success(persisted), nil
}

// ListTelescopesCommand returns every telescope ordered by name.
type ListTelescopesCommand struct {
	telescopes TelescopeCatalog
}

func (c *ListTelescopesCommand) Execute(ctx context.Context) (Result[[]Telescope], error) {
	telescopes, err := c.telescopes.ListTelescopes(ctx)
	if err != nil {
		return Result[[]Telescope]{}, fmt.Errorf("list telescopes: %w", err)
	}
	ordered := make([]Telescope, len(telescopes))
	copy(ordered, telescopes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return strings.ToLower(ordered[i].Name) < strings.ToLower(ordered[j].Name)
	})
	return Success(ordered), nil
}

// TelescopeFactory assembles telescope commands.
type TelescopeFactory struct {
	telescopes  TelescopeCatalog
	idGenerator func() string
	now         func() time.Time
}

// NewTelescopeFactory wires dependencies for telescope commands.
func NewTelescopeFactory(telescopes TelescopeCatalog, idGenerator func() string, now func() time.Time) *TelescopeFactory {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TelescopeFactory{telescopes: telescopes, idGenerator: idGenerator, now: now}
}

func (f *TelescopeFactory) Create(req CreateTelescopeRequest) *CreateTelescopeCommand {
	return &CreateTelescopeCommand{request: req, telescopes: f.telescopes, idGenerator: f.idGenerator, now: f.now}
}

func (f *TelescopeFactory) List() *ListTelescopesCommand {
	return &ListTelescopesCommand{telescopes: f.telescopes}
}

// TelescopeWrapper gates telescope commands.
type TelescopeWrapper struct {
	factory *TelescopeFactory
	access  authorizer
	logger  *slog.Logger
}

// NewTelescopeWrapper builds a wrapper around factory.
func NewTelescopeWrapper(factory *TelescopeFactory, roles RoleStore, logger *slog.Logger) *TelescopeWrapper {
	logger = defaultLogger(logger)
	return &TelescopeWrapper{factory: factory, access: newAuthorizer(roles, logger), logger: logger}
}

// Create requires ADMIN.
func (w *TelescopeWrapper) Create(ctx context.Context, caller *Principal, req CreateTelescopeRequest, then func(Result[Telescope])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "TelescopeWrapper", "Create", "name", req.Name)

	_, report, err := w.access.requireAny(ctx, caller, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[Telescope](w.factory.Create(req)), then)
}

// List requires USER or ADMIN.
func (w *TelescopeWrapper) List(ctx context.Context, caller *Principal, then func(Result[[]Telescope])) (*AccessReport, error) {
	logger := serviceLogger(ctx, w.logger, "TelescopeWrapper", "List")

	_, report, err := w.access.requireAny(ctx, caller, RoleUser, RoleAdmin)
	if err != nil {
		return nil, abort(ctx, logger, err)
	}
	if report != nil {
		return deny(ctx, logger, report), nil
	}
	return nil, dispatch(ctx, logger, Command[[]Telescope](w.factory.List()), then)
}
