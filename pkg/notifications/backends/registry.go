package backends

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/labelforge/labelforge/pkg/notifications"
)

// Config holds backend configuration from HCL
type Config struct {
	// Audit backend (always enabled if present)
	Audit *AuditConfig `hcl:"audit,block"`

	// Mail backend configuration
	Mail *MailConfig `hcl:"mail,block"`
}

// AuditConfig configures the audit backend
type AuditConfig struct {
	Enabled bool `hcl:"enabled,optional"`
}

// MailConfig configures the mail backend
type MailConfig struct {
	Enabled bool `hcl:"enabled,optional"`

	SMTPHost     string `hcl:"smtp_host,optional"`
	SMTPPort     string `hcl:"smtp_port,optional"`
	SMTPUsername string `hcl:"smtp_username,optional"`
	SMTPPassword string `hcl:"smtp_password,optional"`
	FromAddress  string `hcl:"from_address,optional"`
	FromName     string `hcl:"from_name,optional"`
	UseTLS       bool   `hcl:"use_tls,optional"`
	MaxAttempts  int    `hcl:"max_attempts,optional"`
}

// Registry manages available notification backends and dispatches messages
// to them in-process.
type Registry struct {
	backends map[string]Backend
	logger   hclog.Logger
}

// NewRegistry creates a new backend registry from configuration
func NewRegistry(cfg *Config, logger hclog.Logger) (*Registry, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	registry := &Registry{
		backends: make(map[string]Backend),
		logger:   logger,
	}

	if cfg == nil {
		return registry, nil
	}

	if cfg.Audit != nil && cfg.Audit.Enabled {
		registry.Register(NewAuditBackend(logger.Named("audit")))
		logger.Info("initialized audit backend")
	}

	if cfg.Mail != nil && cfg.Mail.Enabled {
		if cfg.Mail.SMTPHost == "" {
			return nil, errors.New("mail backend requires smtp_host")
		}
		port := cfg.Mail.SMTPPort
		if port == "" {
			port = "587"
		}
		registry.Register(NewMailBackend(MailBackendConfig{
			SMTPHost:     cfg.Mail.SMTPHost,
			SMTPPort:     port,
			SMTPUsername: cfg.Mail.SMTPUsername,
			SMTPPassword: cfg.Mail.SMTPPassword,
			FromAddress:  cfg.Mail.FromAddress,
			FromName:     cfg.Mail.FromName,
			UseTLS:       cfg.Mail.UseTLS,
			MaxAttempts:  cfg.Mail.MaxAttempts,
			Logger:       logger.Named("mail"),
		}))
		logger.Info("initialized mail backend",
			"host", cfg.Mail.SMTPHost,
			"port", port,
			"from", cfg.Mail.FromAddress,
		)
	}

	return registry, nil
}

// Register adds a backend, replacing any backend with the same name.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// GetBackend returns a backend by name
func (r *Registry) GetBackend(name string) (Backend, bool) {
	backend, ok := r.backends[name]
	return backend, ok
}

// GetAll returns all registered backends ordered by name.
func (r *Registry) GetAll() []Backend {
	names := r.GetBackendNames()
	backends := make([]Backend, 0, len(names))
	for _, name := range names {
		backends = append(backends, r.backends[name])
	}
	return backends
}

// GetBackendNames returns the sorted names of all registered backends
func (r *Registry) GetBackendNames() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supports reports whether any registered backend handles one of the
// message's target backends.
func (r *Registry) Supports(msg *notifications.NotificationMessage) bool {
	return len(r.targets(msg)) > 0
}

func (r *Registry) targets(msg *notifications.NotificationMessage) []Backend {
	var out []Backend
	for _, backend := range r.GetAll() {
		for _, target := range msg.Backends {
			if backend.SupportsBackend(target) {
				out = append(out, backend)
				break
			}
		}
	}
	return out
}

// Dispatch hands the message to every backend it targets. Failures are
// collected into a *MultiBackendError.
func (r *Registry) Dispatch(ctx context.Context, msg *notifications.NotificationMessage) error {
	targets := r.targets(msg)
	if len(targets) == 0 {
		return fmt.Errorf("no backend handles %v", msg.Backends)
	}

	var multi MultiBackendError
	for _, backend := range targets {
		if err := backend.Handle(ctx, msg); err != nil {
			var be *BackendError
			if !errors.As(err, &be) {
				be = NewBackendError(backend.Name(), "handle", false, err)
			}
			multi.Errors = append(multi.Errors, be)
			r.logger.Error("backend failed",
				"backend", backend.Name(),
				"message_id", msg.ID,
				"error", err,
			)
			continue
		}
		r.logger.Debug("backend processed message",
			"backend", backend.Name(),
			"message_id", msg.ID,
		)
	}

	if len(multi.Errors) > 0 {
		return &multi
	}
	return nil
}
