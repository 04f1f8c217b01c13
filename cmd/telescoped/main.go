package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/telescope-scheduler/internal/application"
	"github.com/example/telescope-scheduler/internal/config"
	"github.com/example/telescope-scheduler/internal/logging"
	"github.com/example/telescope-scheduler/internal/notify"
	"github.com/example/telescope-scheduler/internal/persistence/sqlite"
	"github.com/example/telescope-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/telescope-scheduler/internal/sweep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	envFiles  []string
	logLevel  string
	logFormat string
	session   string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "telescoped",
		Short:         "Radio telescope appointment scheduler",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "json", "log format (json, text)")
	flags.StringVar(&opts.session, "session", "", "session token of the caller (defaults to $TELESCOPE_SESSION)")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newSweepCommand(opts),
		newSeedAdminCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newSessionCommand(opts),
		newUserCommand(opts),
		newTelescopeCommand(opts),
		newAppointmentCommand(opts),
		newRFDataCommand(opts),
	)
	return root
}

// app holds the storage handle and every service built on top of it.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	storage   *sqlite.Storage
	publisher notify.Publisher
	closers   []func() error

	auth         *application.AuthService
	users        *application.UserWrapper
	telescopes   *application.TelescopeWrapper
	appointments *application.AppointmentWrapper
	rfdata       *application.RFDataWrapper
	sweeps       map[string]sweep.Sweep
}

func newApp(ctx context.Context, opts *globalOptions, stderr io.Writer) (*app, error) {
	logger, err := newLogger(stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFiles(opts.envFiles...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	storage, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, storage: storage, closers: []func() error{storage.Close}}

	if err := storage.Migrate(logging.ContextWithLogger(ctx, logger), logger); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	if cfg.RedisAddr != "" {
		client := notify.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, client.Close)
		a.publisher = notify.NewRedisPublisher(client, notify.DefaultTopicRegistry)
	} else {
		a.publisher = notify.NewLogPublisher(logger)
	}

	a.wire()
	return a, nil
}

func (a *app) wire() {
	idGenerator := func() string { return uuid.NewString() }
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	accounts := newAccountStoreAdapter(a.storage.Users)
	telescopes := newTelescopeCatalogAdapter(a.storage.Telescopes)
	appointments := newAppointmentStoreAdapter(a.storage.Appointments)
	sessions := newSessionRepositoryAdapter(a.storage.Sessions)
	credentials := newCredentialStoreAdapter(a.storage.Users)

	a.auth = application.NewAuthService(application.AuthServiceConfig{
		Credentials:    credentials,
		Sessions:       sessions,
		TokenGenerator: tokenGenerator,
		Now:            now,
		SessionTTL:     a.cfg.SessionTTL,
		Logger:         a.logger,
	})

	userFactory := application.NewUserFactory(application.UserFactoryConfig{
		Accounts:       accounts,
		Caps:           categoryCaps(a.cfg.CategoryCaps),
		IDGenerator:    idGenerator,
		TokenGenerator: tokenGenerator,
		Now:            now,
		ActivationTTL:  a.cfg.ActivationTTL,
	})
	a.users = application.NewUserWrapper(userFactory, accounts, a.logger)

	a.telescopes = application.NewTelescopeWrapper(
		application.NewTelescopeFactory(telescopes, idGenerator, now),
		accounts,
		a.logger,
	)

	appointmentFactory := application.NewAppointmentFactory(application.AppointmentFactoryConfig{
		Users:        accounts,
		Telescopes:   telescopes,
		Appointments: appointments,
		Topics:       a.publisher,
		IDGenerator:  idGenerator,
		Now:          now,
		TopicPrefix:  a.cfg.TopicPrefix,
		Logger:       a.logger,
	})
	a.appointments = application.NewAppointmentWrapper(appointmentFactory, accounts, a.logger)
	a.rfdata = application.NewRFDataWrapper(application.NewRFDataFactory(appointments, appointments), accounts, a.logger)

	a.sweeps = map[string]sweep.Sweep{
		"completion":   sweep.NewCompletionSweep(appointments, idGenerator, now, a.logger),
		"notification": sweep.NewNotificationSweep(newSubscriptionStoreAdapter(a.storage.Subscriptions, a.storage.Appointments), a.publisher, now, a.logger),
		"tokens":       sweep.NewTokenSweep(newTokenStoreAdapter(a.storage.Users), now, a.logger),
		"sessions":     &sessionSweep{sessions: sessions, now: now, logger: a.logger},
	}
}

// schedules maps each sweep to its configured cron expression.
func (a *app) schedules() map[string]string {
	return map[string]string{
		"completion":   a.cfg.CompletionSchedule,
		"notification": a.cfg.NotificationSchedule,
		"tokens":       a.cfg.TokenSchedule,
		"sessions":     a.cfg.TokenSchedule,
	}
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// principal resolves the caller from the session flag or $TELESCOPE_SESSION.
// No token yields a nil principal, which every protected operation denies.
func (a *app) principal(ctx context.Context, opts *globalOptions) (*application.Principal, error) {
	token := sessionToken(opts)
	if token == "" {
		return nil, nil
	}
	principal, err := a.auth.ValidateSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	return &principal, nil
}

// sessionToken prefers the --session flag over $TELESCOPE_SESSION.
func sessionToken(opts *globalOptions) string {
	if token := strings.TrimSpace(opts.session); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv("TELESCOPE_SESSION"))
}

// withApp builds the app for one command invocation and closes it afterwards.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("failed to close resources", "error", cerr)
		}
	}()
	return fn(logging.ContextWithLogger(ctx, a.logger), a)
}

func runServe(cmd *cobra.Command, opts *globalOptions) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app) error {
		runner := sweep.NewRunner(a.logger)
		schedules := a.schedules()
		for _, name := range []string{"completion", "notification", "tokens", "sessions"} {
			if err := runner.Add(schedules[name], a.sweeps[name]); err != nil {
				return err
			}
		}

		runner.Start(ctx)
		a.logger.Info("telescope scheduler running", "database", a.cfg.SQLiteDSN, "redis", a.cfg.RedisAddr != "")
		<-ctx.Done()
		a.logger.Info("shutting down")
		runner.Stop()
		return nil
	})
}

// sessionSweep removes expired sessions.
type sessionSweep struct {
	sessions *sessionRepositoryAdapter
	now      func() time.Time
	logger   *slog.Logger
}

func (s *sessionSweep) Name() string { return "sessions" }

func (s *sessionSweep) Run(ctx context.Context) error {
	if err := s.sessions.DeleteExpiredSessions(ctx, s.now()); err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	return nil
}

// categoryCaps overlays configured overrides on the default category caps.
func categoryCaps(overrides map[string]config.CapOverride) application.CategoryCaps {
	caps := application.DefaultCategoryCaps()
	for name, override := range overrides {
		role := application.Role(name)
		if override.Unlimited {
			caps[role] = nil
			continue
		}
		limit := override.Limit
		caps[role] = &limit
	}
	return caps
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
