package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// AccessReport explains why a wrapper refused to run a command.
type AccessReport struct {
	// MissingRoles lists the roles that would have allowed the call. For
	// any-of checks every acceptable role is listed.
	MissingRoles []Role
	// InvalidResource is set when the caller does not own the resource.
	InvalidResource bool
	Reason          string
}

func (r *AccessReport) String() string {
	if r == nil {
		return ""
	}
	roles := make([]string, len(r.MissingRoles))
	for i, role := range r.MissingRoles {
		roles[i] = string(role)
	}
	return fmt.Sprintf("access denied: %s (missing one of: %s, invalid resource: %t)", r.Reason, strings.Join(roles, ", "), r.InvalidResource)
}

type resolvedCaller struct {
	user  User
	roles []Role
}

func (c resolvedCaller) hasAny(roles ...Role) bool {
	for _, role := range roles {
		if slices.Contains(c.roles, role) {
			return true
		}
	}
	return false
}

// authorizer resolves callers and checks role sets before a command runs.
type authorizer struct {
	roles  RoleStore
	logger *slog.Logger
}

func newAuthorizer(roles RoleStore, logger *slog.Logger) authorizer {
	return authorizer{roles: roles, logger: defaultLogger(logger)}
}

// resolve loads the caller and its roles. A nil principal, an unknown user
// or an inactive account yields a report listing required as missing.
func (a authorizer) resolve(ctx context.Context, principal *Principal, required []Role) (resolvedCaller, *AccessReport, error) {
	if principal == nil || strings.TrimSpace(principal.UserID) == "" {
		return resolvedCaller{}, &AccessReport{MissingRoles: cloneRoles(required), Reason: "authentication required"}, nil
	}

	user, err := a.roles.GetUser(ctx, principal.UserID)
	if err != nil {
		if isNotFound(err) {
			return resolvedCaller{}, &AccessReport{MissingRoles: cloneRoles(required), Reason: "unknown session user"}, nil
		}
		return resolvedCaller{}, nil, fmt.Errorf("resolve caller %s: %w", principal.UserID, err)
	}
	if !user.Active {
		return resolvedCaller{}, &AccessReport{MissingRoles: cloneRoles(required), Reason: "account is not active"}, nil
	}

	roles, err := a.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return resolvedCaller{}, nil, fmt.Errorf("resolve roles for %s: %w", user.ID, err)
	}
	return resolvedCaller{user: user, roles: roles}, nil, nil
}

// requireAny admits callers holding at least one role of set.
func (a authorizer) requireAny(ctx context.Context, principal *Principal, set ...Role) (resolvedCaller, *AccessReport, error) {
	caller, report, err := a.resolve(ctx, principal, set)
	if err != nil || report != nil {
		return caller, report, err
	}
	if !caller.hasAny(set...) {
		return caller, &AccessReport{MissingRoles: cloneRoles(set), Reason: "insufficient role"}, nil
	}
	return caller, nil, nil
}

// requireOwnerOrAdmin admits the owner holding USER, any USER when the
// resource is public and readable, and ADMIN otherwise.
func (a authorizer) requireOwnerOrAdmin(ctx context.Context, principal *Principal, ownerID string, publicRead bool) (resolvedCaller, *AccessReport, error) {
	caller, report, err := a.resolve(ctx, principal, []Role{RoleUser, RoleAdmin})
	if err != nil || report != nil {
		return caller, report, err
	}
	if caller.hasAny(RoleAdmin) {
		return caller, nil, nil
	}

	owner := ownerID != "" && caller.user.ID == ownerID
	switch {
	case owner && caller.hasAny(RoleUser):
		return caller, nil, nil
	case publicRead && caller.hasAny(RoleUser):
		return caller, nil, nil
	case owner:
		return caller, &AccessReport{MissingRoles: []Role{RoleUser}, Reason: "insufficient role"}, nil
	default:
		return caller, &AccessReport{MissingRoles: []Role{RoleAdmin}, InvalidResource: true, Reason: "resource belongs to another user"}, nil
	}
}

// run executes cmd and hands its result to then. It is the only place a
// command is executed on behalf of a wrapper.
func run[T any](ctx context.Context, cmd Command[T], then func(Result[T])) error {
	result, err := cmd.Execute(ctx)
	if err != nil {
		return err
	}
	if then != nil {
		then(result)
	}
	return nil
}

func cloneRoles(roles []Role) []Role {
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// dispatch runs cmd for an authorized caller and logs the outcome.
func dispatch[T any](ctx context.Context, logger *slog.Logger, cmd Command[T], then func(Result[T])) error {
	var captured *Result[T]
	err := run(ctx, cmd, func(result Result[T]) {
		captured = &result
		if then != nil {
			then(result)
		}
	})
	logOutcome(ctx, logger, nil, captured, err)
	return err
}

// deny logs a refused call and returns its report.
func deny(ctx context.Context, logger *slog.Logger, report *AccessReport) *AccessReport {
	logOutcome[struct{}](ctx, logger, report, nil, nil)
	return report
}

// abort logs an unexpected failure raised before the command ran.
func abort(ctx context.Context, logger *slog.Logger, err error) error {
	logOutcome[struct{}](ctx, logger, nil, nil, err)
	return err
}
