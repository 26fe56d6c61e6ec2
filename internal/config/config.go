package config

import (
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config contains the labelforge configuration.
type Config struct {
	// LogLevel is the minimum log level (trace, debug, info, warn, error).
	LogLevel string `hcl:"log_level,optional"`

	// LogJSON enables JSON formatted logs.
	LogJSON bool `hcl:"log_json,optional"`

	Server        *Server        `hcl:"server,block"`
	Database      *Database      `hcl:"database,block"`
	Auth          *Auth          `hcl:"auth,block"`
	Email         *Email         `hcl:"email,block"`
	Notifications *Notifications `hcl:"notifications,block"`
	Avatars       *Avatars       `hcl:"avatars,block"`
}

// Server configures the HTTP listener.
type Server struct {
	// Addr is the address to bind to for listening.
	Addr string `hcl:"addr,optional"`

	// BaseURL is the public URL of the service, used to build absolute avatar
	// URLs. Empty keeps URLs relative.
	BaseURL string `hcl:"base_url,optional"`

	ReadTimeout     string `hcl:"read_timeout,optional"`
	WriteTimeout    string `hcl:"write_timeout,optional"`
	ShutdownTimeout string `hcl:"shutdown_timeout,optional"`
}

// Database configures the database connection.
type Database struct {
	// Driver is "postgres" or "sqlite".
	Driver string `hcl:"driver,optional"`

	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	// Path is the SQLite database file.
	Path string `hcl:"path,optional"`

	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"`

	// AutoMigrate runs GORM AutoMigrate on startup instead of requiring
	// labelforge-migrate.
	AutoMigrate bool `hcl:"auto_migrate,optional"`
}

// Auth configures authentication and role resolution.
type Auth struct {
	// JWTSecret signs access tokens issued by the login endpoint. Empty
	// disables login and Bearer authentication.
	JWTSecret string `hcl:"jwt_secret,optional"`

	// JWTTTL is the lifetime of access tokens.
	JWTTTL string `hcl:"jwt_ttl,optional"`

	// AdminEmails are always treated as administrators.
	AdminEmails []string `hcl:"admin_emails,optional"`

	// ClientEmails are always treated as clients.
	ClientEmails []string `hcl:"client_emails,optional"`

	// PublicUserListing enables the unauthenticated list_all endpoint.
	PublicUserListing bool `hcl:"public_user_listing,optional"`
}

// Email configures outbound email.
type Email struct {
	// Backend is "smtp", "log" or "queue".
	Backend string `hcl:"backend,optional"`

	FromAddress string `hcl:"from_address,optional"`
	FromName    string `hcl:"from_name,optional"`

	// RateLimitPerMinute limits send-email requests per user. Zero disables
	// the limit.
	RateLimitPerMinute *int `hcl:"rate_limit_per_minute,optional"`

	SMTP *SMTP `hcl:"smtp,block"`
}

// SMTP configures the SMTP relay.
type SMTP struct {
	Host     string `hcl:"host,optional"`
	Port     string `hcl:"port,optional"`
	Username string `hcl:"username,optional"`
	Password string `hcl:"password,optional"`
	UseTLS   bool   `hcl:"use_tls,optional"`
}

// Notifications configures the Kafka topic used by the queue email backend.
type Notifications struct {
	Brokers       []string `hcl:"brokers,optional"`
	Topic         string   `hcl:"topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`
}

// Avatars configures avatar storage.
type Avatars struct {
	// Storage is "local" or "s3".
	Storage string `hcl:"storage,optional"`

	LocalPath string `hcl:"local_path,optional"`

	// MaxSizeBytes is the largest accepted upload.
	MaxSizeBytes int64 `hcl:"max_size_bytes,optional"`

	S3 *S3 `hcl:"s3,block"`
}

// S3 configures an S3 compatible bucket.
type S3 struct {
	Bucket          string `hcl:"bucket"`
	Region          string `hcl:"region,optional"`
	Endpoint        string `hcl:"endpoint,optional"`
	AccessKeyID     string `hcl:"access_key_id,optional"`
	SecretAccessKey string `hcl:"secret_access_key,optional"`
	UsePathStyle    bool   `hcl:"use_path_style,optional"`

	// PublicURL is the URL prefix objects are served from. Defaults to the
	// virtual-hosted bucket URL.
	PublicURL string `hcl:"public_url,optional"`
}

const (
	DefaultAddr               = "127.0.0.1:8000"
	DefaultReadTimeout        = "30s"
	DefaultWriteTimeout       = "30s"
	DefaultShutdownTimeout    = "10s"
	DefaultJWTTTL             = "24h"
	DefaultEmailBackend       = "log"
	DefaultFromAddress        = "noreply@labelforge.local"
	DefaultFromName           = "Labelforge"
	DefaultEmailRateLimit     = 30
	DefaultNotificationsTopic = "labelforge.notifications"
	DefaultConsumerGroup      = "labelforge-notify"
	DefaultAvatarStorage      = "local"
	DefaultAvatarPath         = "data/avatars"
	DefaultAvatarMaxSize      = 1024 * 1024
)

// NewConfig parses an HCL configuration file and applies defaults.
func NewConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	c := &Config{}
	if err := hclsimple.DecodeFile(filename, nil, c); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	c.applyDefaults()

	return c, nil
}

// Default returns a configuration with every default applied, backed by a
// local SQLite database.
func Default() *Config {
	c := &Config{
		Database: &Database{
			Driver:      "sqlite",
			Path:        "labelforge.db",
			AutoMigrate: true,
		},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.DBName == "" {
			c.Database.DBName = "labelforge"
		}
	}

	if c.Auth == nil {
		c.Auth = &Auth{}
	}
	if c.Auth.JWTTTL == "" {
		c.Auth.JWTTTL = DefaultJWTTTL
	}

	if c.Email == nil {
		c.Email = &Email{}
	}
	if c.Email.RateLimitPerMinute == nil {
		limit := DefaultEmailRateLimit
		c.Email.RateLimitPerMinute = &limit
	}
	if c.Email.Backend == "" {
		c.Email.Backend = DefaultEmailBackend
	}
	if c.Email.FromAddress == "" {
		c.Email.FromAddress = DefaultFromAddress
	}
	if c.Email.FromName == "" {
		c.Email.FromName = DefaultFromName
	}
	if c.Email.SMTP != nil && c.Email.SMTP.Port == "" {
		c.Email.SMTP.Port = "587"
	}

	if c.Notifications == nil {
		c.Notifications = &Notifications{}
	}
	if c.Notifications.Topic == "" {
		c.Notifications.Topic = DefaultNotificationsTopic
	}
	if c.Notifications.ConsumerGroup == "" {
		c.Notifications.ConsumerGroup = DefaultConsumerGroup
	}

	if c.Avatars == nil {
		c.Avatars = &Avatars{}
	}
	if c.Avatars.Storage == "" {
		c.Avatars.Storage = DefaultAvatarStorage
	}
	if c.Avatars.LocalPath == "" {
		c.Avatars.LocalPath = DefaultAvatarPath
	}
	if c.Avatars.MaxSizeBytes == 0 {
		c.Avatars.MaxSizeBytes = DefaultAvatarMaxSize
	}
	if c.Avatars.S3 != nil && c.Avatars.S3.Region == "" {
		c.Avatars.S3.Region = "us-east-1"
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var result *multierror.Error

	for name, d := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.jwt_ttl":            c.Auth.JWTTTL,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: invalid duration %q", name, d))
		}
	}
	if d := c.Database.ConnMaxLifetime; d != "" {
		if _, err := time.ParseDuration(d); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("database.conn_max_lifetime: invalid duration %q", d))
		}
	}

	switch c.Database.Driver {
	case "postgres":
	case "sqlite":
		if c.Database.Path == "" {
			result = multierror.Append(result, fmt.Errorf("database.path is required for sqlite"))
		}
	default:
		result = multierror.Append(result,
			fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}

	if s := c.Auth.JWTSecret; s != "" && len(s) < 32 {
		result = multierror.Append(result,
			fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}
	for _, e := range append(append([]string{}, c.Auth.AdminEmails...), c.Auth.ClientEmails...) {
		if _, err := mail.ParseAddress(e); err != nil {
			result = multierror.Append(result, fmt.Errorf("auth: invalid email %q", e))
		}
	}

	switch c.Email.Backend {
	case "log":
	case "smtp":
		if c.Email.SMTP == nil || c.Email.SMTP.Host == "" {
			result = multierror.Append(result,
				fmt.Errorf("email.smtp.host is required for the smtp backend"))
		}
	case "queue":
		if len(c.Notifications.Brokers) == 0 {
			result = multierror.Append(result,
				fmt.Errorf("notifications.brokers is required for the queue backend"))
		}
	default:
		result = multierror.Append(result,
			fmt.Errorf("email.backend: unsupported backend %q", c.Email.Backend))
	}
	if _, err := mail.ParseAddress(c.Email.FromAddress); err != nil {
		result = multierror.Append(result,
			fmt.Errorf("email.from_address: invalid email %q", c.Email.FromAddress))
	}
	if c.Email.RateLimitPerMinute != nil && *c.Email.RateLimitPerMinute < 0 {
		result = multierror.Append(result,
			fmt.Errorf("email.rate_limit_per_minute must not be negative"))
	}

	switch c.Avatars.Storage {
	case "local":
	case "s3":
		if c.Avatars.S3 == nil || c.Avatars.S3.Bucket == "" {
			result = multierror.Append(result,
				fmt.Errorf("avatars.s3.bucket is required for s3 storage"))
		}
	default:
		result = multierror.Append(result,
			fmt.Errorf("avatars.storage: unsupported storage %q", c.Avatars.Storage))
	}
	if c.Avatars.MaxSizeBytes < 0 {
		result = multierror.Append(result,
			fmt.Errorf("avatars.max_size_bytes must not be negative"))
	}

	return result.ErrorOrNil()
}

// ReadTimeoutDuration returns the parsed server read timeout.
func (s *Server) ReadTimeoutDuration() time.Duration {
	return mustDuration(s.ReadTimeout, DefaultReadTimeout)
}

// WriteTimeoutDuration returns the parsed server write timeout.
func (s *Server) WriteTimeoutDuration() time.Duration {
	return mustDuration(s.WriteTimeout, DefaultWriteTimeout)
}

// ShutdownTimeoutDuration returns the parsed graceful shutdown timeout.
func (s *Server) ShutdownTimeoutDuration() time.Duration {
	return mustDuration(s.ShutdownTimeout, DefaultShutdownTimeout)
}

// RateLimit returns the per-user send-email limit per minute.
func (e *Email) RateLimit() int {
	if e.RateLimitPerMinute == nil {
		return DefaultEmailRateLimit
	}
	return *e.RateLimitPerMinute
}

// JWTTTLDuration returns the parsed access token lifetime.
func (a *Auth) JWTTTLDuration() time.Duration {
	return mustDuration(a.JWTTTL, DefaultJWTTTL)
}

// ConnMaxLifetimeDuration returns the parsed connection lifetime, or zero for
// the pool default.
func (d *Database) ConnMaxLifetimeDuration() time.Duration {
	if d.ConnMaxLifetime == "" {
		return 0
	}
	v, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}
	return v
}

// mustDuration parses s and falls back to def. Validate rejects unparsable
// values before they get here.
func mustDuration(s, def string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	d, _ := time.ParseDuration(def)
	return d
}
