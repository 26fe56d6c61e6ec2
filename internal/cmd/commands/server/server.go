package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/labelforge/labelforge/internal/api"
	"github.com/labelforge/labelforge/internal/cmd/base"
	"github.com/labelforge/labelforge/internal/config"
	"github.com/labelforge/labelforge/internal/db"
	"github.com/labelforge/labelforge/internal/ratelimit"
	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/avatars"
	"github.com/labelforge/labelforge/pkg/database"
	"github.com/labelforge/labelforge/pkg/metrics"
	"github.com/labelforge/labelforge/pkg/notifications"
	"github.com/labelforge/labelforge/pkg/notifications/backends"
	"github.com/labelforge/labelforge/pkg/permissions"
	"github.com/labelforge/labelforge/pkg/roles"
)

type Command struct {
	*base.Command

	flagAddr   string
	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Run the server"
}

func (c *Command) Help() string {
	return `Usage: labelforge server [options]

  Run the labelforge HTTP API. Without -config a local SQLite database and
  local avatar storage are used.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("server", flag.ContinueOnError))

	f.StringVar(
		&c.flagAddr, "addr", "",
		fmt.Sprintf("Address to bind to for listening. Overrides the config file (default %q).",
			config.DefaultAddr),
	)
	f.StringVar(
		&c.flagConfig, "config", "", "Path to labelforge config file",
	)

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := base.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}
	if c.flagAddr != "" {
		cfg.Server.Addr = c.flagAddr
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:       "labelforge",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
	})
	c.Log = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database.
	conn, err := db.NewDB(cfg.Database, log.Named("db"))
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing database: %v", err))
		return 1
	}
	if err := database.Ping(ctx, conn); err != nil {
		ui.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	sqlDB, err := conn.DB()
	if err != nil {
		ui.Error(fmt.Sprintf("error getting database handle: %v", err))
		return 1
	}
	defer sqlDB.Close()

	m := metrics.New()
	if err := m.RegisterDB(sqlDB); err != nil {
		log.Warn("error registering database metrics", "error", err)
	}

	dispatcher, closeDispatcher, err := NewDispatcher(cfg, log.Named("email"))
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing email backend: %v", err))
		return 1
	}
	defer closeDispatcher()

	store, err := NewAvatarStore(ctx, cfg, afero.NewOsFs(), log.Named("avatars"))
	if err != nil {
		ui.Error(fmt.Sprintf("error initializing avatar storage: %v", err))
		return 1
	}

	resolver := roles.NewResolver(cfg.Auth.AdminEmails, cfg.Auth.ClientEmails, log.Named("roles"))

	srv := server.Server{
		Config:       cfg,
		DB:           conn,
		Logger:       log.Named("api"),
		Roles:        resolver,
		Permissions:  permissions.NewRoleChecker(conn, resolver),
		Dispatcher:   dispatcher,
		Avatars:      store,
		Metrics:      m,
		EmailLimiter: ratelimit.PerMinute(cfg.Email.RateLimit()),
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is not set; login and bearer authentication are disabled")
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(srv),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			ui.Error(fmt.Sprintf("error starting listener: %v", err))
			return 1
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeoutDuration())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		ui.Error(fmt.Sprintf("error shutting down server: %v", err))
		return 1
	}

	return 0
}

// NewDispatcher builds the email dispatcher for email.backend. The returned
// func releases its resources.
func NewDispatcher(cfg *config.Config, log hclog.Logger) (notifications.Dispatcher, func(), error) {
	noop := func() {}

	switch cfg.Email.Backend {
	case "smtp":
		if cfg.Email.SMTP == nil {
			return nil, noop, errors.New("email.smtp block is required for the smtp backend")
		}
		registry, err := backends.NewRegistry(&backends.Config{
			Audit: &backends.AuditConfig{Enabled: true},
			Mail: &backends.MailConfig{
				Enabled:      true,
				SMTPHost:     cfg.Email.SMTP.Host,
				SMTPPort:     cfg.Email.SMTP.Port,
				SMTPUsername: cfg.Email.SMTP.Username,
				SMTPPassword: cfg.Email.SMTP.Password,
				FromAddress:  cfg.Email.FromAddress,
				FromName:     cfg.Email.FromName,
				UseTLS:       cfg.Email.SMTP.UseTLS,
			},
		}, log)
		if err != nil {
			return nil, noop, err
		}
		return registry, noop, nil

	case "log":
		registry, err := backends.NewRegistry(&backends.Config{
			Audit: &backends.AuditConfig{Enabled: true},
		}, log)
		if err != nil {
			return nil, noop, err
		}
		return registry, noop, nil

	case "queue":
		publisher, err := notifications.NewPublisher(notifications.PublisherConfig{
			Brokers: cfg.Notifications.Brokers,
			Topic:   cfg.Notifications.Topic,
		})
		if err != nil {
			return nil, noop, err
		}
		log.Info("publishing email to queue",
			"brokers", cfg.Notifications.Brokers,
			"topic", cfg.Notifications.Topic,
		)
		return publisher, publisher.Close, nil

	default:
		return nil, noop, fmt.Errorf("unsupported email backend %q", cfg.Email.Backend)
	}
}

// NewAvatarStore builds the avatar store for avatars.storage. Local storage
// lives on fs.
func NewAvatarStore(ctx context.Context, cfg *config.Config, fs afero.Fs, log hclog.Logger) (avatars.Store, error) {
	switch cfg.Avatars.Storage {
	case "local":
		store, err := avatars.NewLocalStore(fs, cfg.Avatars.LocalPath, cfg.Server.BaseURL, log)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "s3":
		s3cfg := cfg.Avatars.S3
		if s3cfg == nil {
			return nil, errors.New("avatars.s3 block is required for s3 storage")
		}
		store, err := avatars.NewS3Store(ctx, avatars.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
			PublicURL:       s3cfg.PublicURL,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported avatar storage %q", cfg.Avatars.Storage)
	}
}
