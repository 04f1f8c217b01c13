package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/telescope-scheduler/internal/application"
	"github.com/example/telescope-scheduler/internal/persistence"
	"github.com/example/telescope-scheduler/internal/sweep"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background sweeps until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				status, err := a.storage.MigrationStatus(ctx, a.logger)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"current_version": status.CurrentVersion,
					"applied":         len(status.AppliedMigrations),
					"pending":         status.PendingCount,
				})
			})
		},
	}
}

func newSweepCommand(opts *globalOptions) *cobra.Command {
	names := []string{"completion", "notification", "tokens", "sessions"}
	return &cobra.Command{
		Use:       "sweep <" + strings.Join(names, "|") + ">",
		Short:     "Run one background sweep once",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return sweep.RunOnce(ctx, a.logger, a.sweeps[args[0]])
			})
		},
	}
}

func newSeedAdminCommand(opts *globalOptions) *cobra.Command {
	var email, password, firstName, lastName string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an active administrator or grant ADMIN to an existing account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				userID, err := seedAdmin(ctx, a.storage.Users, email, password, firstName, lastName, time.Now())
				if err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "administrator seeded", "user_id", userID)
				return writeJSON(cmd.OutOrStdout(), map[string]string{"user_id": userID})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	cmd.Flags().StringVar(&password, "password", "", "administrator password (min 8 characters)")
	cmd.Flags().StringVar(&firstName, "first-name", "Site", "administrator first name")
	cmd.Flags().StringVar(&lastName, "last-name", "Administrator", "administrator last name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// seedAdmin writes directly to storage: the first administrator cannot be
// authorized by anyone.
func seedAdmin(ctx context.Context, users persistence.UserRepository, email, password, firstName, lastName string, now time.Time) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.GrantRole(ctx, existing.ID, string(application.RoleAdmin)); err != nil {
			return "", fmt.Errorf("grant admin role: %w", err)
		}
		return existing.ID, nil
	case !errors.Is(err, persistence.ErrNotFound):
		return "", fmt.Errorf("look up %s: %w", email, err)
	}

	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := application.CreatePasswordHash(password, application.DefaultArgon2idParams)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := uuid.NewString()
	err = users.CreateAccount(ctx, persistence.NewAccount{
		User: persistence.User{
			ID:           id,
			Email:        email,
			FirstName:    firstName,
			LastName:     lastName,
			PasswordHash: hash,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Roles: roleNames([]application.Role{application.RoleUser, application.RoleMember, application.RoleAdmin}),
		Cap:   persistence.AllottedTimeCap{UserID: id},
	})
	if err != nil {
		return "", fmt.Errorf("create administrator: %w", err)
	}
	return id, nil
}

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var req application.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				grant, err := a.auth.Authenticate(ctx, req)
				if err != nil {
					return err
				}
				return writeGrant(cmd.OutOrStdout(), grant)
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.Fingerprint, "fingerprint", "", "optional client fingerprint bound to the session")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the caller's session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				token := sessionToken(opts)
				if token == "" {
					return errSessionRequired
				}
				return a.auth.RevokeSession(ctx, token)
			})
		},
	}
}

func newSessionCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Manage the caller's session"}

	var fingerprint string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the session token and restart its lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				token := sessionToken(opts)
				if token == "" {
					return errSessionRequired
				}
				grant, err := a.auth.RefreshSession(ctx, application.RefreshRequest{Token: token, Fingerprint: fingerprint})
				if err != nil {
					return err
				}
				return writeGrant(cmd.OutOrStdout(), grant)
			})
		},
	}
	refreshCmd.Flags().StringVar(&fingerprint, "fingerprint", "", "rebind the session to a new client fingerprint")

	cmd.AddCommand(refreshCmd)
	return cmd
}

var errSessionRequired = errors.New("--session or $TELESCOPE_SESSION is required")

// writeGrant prints the token a client presents on later calls.
func writeGrant(w io.Writer, grant application.SessionGrant) error {
	return writeJSON(w, map[string]any{
		"user_id":    grant.User.ID,
		"token":      grant.Session.Token,
		"expires_at": grant.Session.ExpiresAt,
		"category":   grant.Category,
		"roles":      grant.Roles,
	})
}

func newUserCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage accounts"}

	var register application.RegisterUserRequest
	var category string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new inactive account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				req := register
				req.Category = application.Role(strings.ToUpper(category))
				return invoke(cmd, func(then func(application.Result[application.RegisteredUser])) (*application.AccessReport, error) {
					return a.users.Register(ctx, req, then)
				})
			})
		},
	}
	registerCmd.Flags().StringVar(&register.Email, "email", "", "account email")
	registerCmd.Flags().StringVar(&register.FirstName, "first-name", "", "first name")
	registerCmd.Flags().StringVar(&register.LastName, "last-name", "", "last name")
	registerCmd.Flags().StringVar(&register.Password, "password", "", "password (min 8 characters)")
	registerCmd.Flags().StringVar(&category, "category", "", "initial category of service (default GUEST)")

	var token string
	activateCmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate an account with its activation token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return invoke(cmd, func(then func(application.Result[application.User])) (*application.AccessReport, error) {
					return a.users.Activate(ctx, application.ActivateUserRequest{Token: token}, then)
				})
			})
		},
	}
	activateCmd.Flags().StringVar(&token, "token", "", "activation token")

	var assignUser, assignCategory string
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Move a user into a category of service and reset their allotted time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				req := application.AssignCategoryRequest{UserID: assignUser, Category: application.Role(strings.ToUpper(assignCategory))}
				return invoke(cmd, func(then func(application.Result[application.UserProfile])) (*application.AccessReport, error) {
					return a.users.AssignCategory(ctx, caller, req, then)
				})
			})
		},
	}
	categoryCmd.Flags().StringVar(&assignUser, "user", "", "user id")
	categoryCmd.Flags().StringVar(&assignCategory, "category", "", "category of service")

	var allotUser string
	var allotLimit time.Duration
	var unlimited bool
	allotCmd := &cobra.Command{
		Use:   "allot",
		Short: "Override a user's allotted time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				req := application.UpdateAllottedTimeRequest{UserID: allotUser}
				if !unlimited {
					limit := allotLimit
					req.Limit = &limit
				}
				return invoke(cmd, func(then func(application.Result[application.UserProfile])) (*application.AccessReport, error) {
					return a.users.UpdateAllottedTime(ctx, caller, req, then)
				})
			})
		},
	}
	allotCmd.Flags().StringVar(&allotUser, "user", "", "user id")
	allotCmd.Flags().DurationVar(&allotLimit, "limit", 0, "allotted time, for example 10h")
	allotCmd.Flags().BoolVar(&unlimited, "unlimited", false, "remove the limit")

	showCmd := &cobra.Command{
		Use:   "show [user-id]",
		Short: "Show a user profile, the caller's own by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				userID := callerID(caller)
				if len(args) == 1 {
					userID = args[0]
				}
				return invoke(cmd, func(then func(application.Result[application.UserProfile])) (*application.AccessReport, error) {
					return a.users.Retrieve(ctx, caller, userID, then)
				})
			})
		},
	}

	cmd.AddCommand(registerCmd, activateCmd, categoryCmd, allotCmd, showCmd)
	return cmd
}

func newTelescopeCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "telescope", Short: "Manage telescopes"}

	var req application.CreateTelescopeRequest
	var offline bool
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a telescope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				create := req
				create.Online = !offline
				return invoke(cmd, func(then func(application.Result[application.Telescope])) (*application.AccessReport, error) {
					return a.telescopes.Create(ctx, caller, create, then)
				})
			})
		},
	}
	addCmd.Flags().StringVar(&req.Name, "name", "", "unique telescope name")
	addCmd.Flags().StringVar(&req.Location, "location", "", "site description")
	addCmd.Flags().BoolVar(&offline, "offline", false, "register the telescope as offline")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List telescopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[[]application.Telescope])) (*application.AccessReport, error) {
					return a.telescopes.List(ctx, caller, then)
				})
			})
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

type appointmentFlags struct {
	userID      string
	telescopeID string
	start       string
	end         string
	duration    time.Duration
	public      bool
	priority    string
	typ         string
	target      string
	queue       bool
}

func (f appointmentFlags) request(caller *application.Principal) (application.CreateAppointmentRequest, error) {
	req := application.CreateAppointmentRequest{
		UserID:      f.userID,
		TelescopeID: f.telescopeID,
		Public:      f.public,
		Priority:    application.Priority(strings.ToUpper(f.priority)),
		Type:        application.AppointmentType(strings.ToUpper(f.typ)),
		Mode:        application.ModeSchedule,
	}
	if req.UserID == "" {
		req.UserID = callerID(caller)
	}
	if f.queue {
		req.Mode = application.ModeRequest
	}

	start, err := time.Parse(time.RFC3339, f.start)
	if err != nil {
		return req, fmt.Errorf("--start: %w", err)
	}
	req.Start = start
	switch {
	case f.end != "":
		end, err := time.Parse(time.RFC3339, f.end)
		if err != nil {
			return req, fmt.Errorf("--end: %w", err)
		}
		req.End = end
	case f.duration > 0:
		req.End = start.Add(f.duration)
	default:
		return req, errors.New("one of --end or --duration is required")
	}

	target, err := application.DecodeTarget(req.Type, f.target)
	if err != nil {
		return req, fmt.Errorf("--target: %w", err)
	}
	req.Target = target
	return req, nil
}

func newAppointmentCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "appointment", Short: "Request and manage appointments"}

	var flags appointmentFlags
	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "Request telescope time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				req, err := flags.request(caller)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[application.Appointment])) (*application.AccessReport, error) {
					return a.appointments.Create(ctx, caller, req, then)
				})
			})
		},
	}
	rf := requestCmd.Flags()
	rf.StringVar(&flags.userID, "user", "", "owner of the appointment (default caller)")
	rf.StringVar(&flags.telescopeID, "telescope", "", "telescope id")
	rf.StringVar(&flags.start, "start", "", "start time, RFC3339")
	rf.StringVar(&flags.end, "end", "", "end time, RFC3339")
	rf.DurationVar(&flags.duration, "duration", 0, "length of the appointment when --end is omitted")
	rf.BoolVar(&flags.public, "public", false, "publish the appointment and its data")
	rf.StringVar(&flags.priority, "priority", "", "PRIMARY or SECONDARY (default SECONDARY)")
	rf.StringVar(&flags.typ, "type", string(application.TypePoint), "observation type")
	rf.StringVar(&flags.target, "target", "", `target as JSON, for example {"coordinate":{"right_ascension":5.5,"declination":22}}`)
	rf.BoolVar(&flags.queue, "queue", false, "always queue for admin review")

	decide := func(approve bool) *cobra.Command {
		use, short := "deny <appointment-id>", "Deny a requested appointment"
		if approve {
			use, short = "approve <appointment-id>", "Approve a requested appointment"
		}
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, func(ctx context.Context, a *app) error {
					caller, err := a.principal(ctx, opts)
					if err != nil {
						return err
					}
					req := application.ApproveDenyRequest{AppointmentID: args[0], Approve: approve}
					return invoke(cmd, func(then func(application.Result[application.Appointment])) (*application.AccessReport, error) {
						return a.appointments.ApproveDeny(ctx, caller, req, then)
					})
				})
			},
		}
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[application.Appointment])) (*application.AccessReport, error) {
					return a.appointments.Cancel(ctx, caller, args[0], then)
				})
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <appointment-id>",
		Short: "Show an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[application.Appointment])) (*application.AccessReport, error) {
					return a.appointments.Retrieve(ctx, caller, args[0], then)
				})
			})
		},
	}

	var listUser string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's appointments, the caller's own by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				userID := listUser
				if userID == "" {
					userID = callerID(caller)
				}
				return invoke(cmd, func(then func(application.Result[[]application.Appointment])) (*application.AccessReport, error) {
					return a.appointments.ListForUser(ctx, caller, userID, then)
				})
			})
		},
	}
	listCmd.Flags().StringVar(&listUser, "user", "", "user id")

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "List requested appointments awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[[]application.Appointment])) (*application.AccessReport, error) {
					return a.appointments.ListRequested(ctx, caller, then)
				})
			})
		},
	}

	cmd.AddCommand(requestCmd, decide(true), decide(false), cancelCmd, showCmd, listCmd, queueCmd)
	return cmd
}

func newRFDataCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rfdata <appointment-id>",
		Short: "Print the RF samples of a completed appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				caller, err := a.principal(ctx, opts)
				if err != nil {
					return err
				}
				return invoke(cmd, func(then func(application.Result[[]application.RFData])) (*application.AccessReport, error) {
					return a.rfdata.Retrieve(ctx, caller, args[0], then)
				})
			})
		},
	}
}

// invoke runs a wrapper call and prints its value. Denials and validation
// failures become command errors.
func invoke[T any](cmd *cobra.Command, call func(then func(application.Result[T])) (*application.AccessReport, error)) error {
	var (
		result application.Result[T]
		ran    bool
	)
	report, err := call(func(r application.Result[T]) {
		result = r
		ran = true
	})
	if err != nil {
		return err
	}
	if report != nil {
		return errors.New(report.String())
	}
	if !ran {
		return errors.New("command produced no result")
	}
	if errs := result.Errors(); errs != nil {
		for _, tag := range errs.Tags() {
			for _, message := range errs.Messages(tag) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", tag, message)
			}
		}
		return errs
	}
	value, _ := result.Value()
	return writeJSON(cmd.OutOrStdout(), value)
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func callerID(caller *application.Principal) string {
	if caller == nil {
		return ""
	}
	return caller.UserID
}
