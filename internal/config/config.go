// Package config provides configuration loading and management for the entrypoint.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-entrypoint/internal/retry"
	"github.com/stacklok/toolhive-entrypoint/internal/telemetry"
)

const (
	// DefaultDBHost is the database host used when DB__HOST is not set
	DefaultDBHost = "db"
	// DefaultDBPort is the database port used when DB__PORT is not set
	DefaultDBPort = 5432
	// DefaultDBUser is the database user used when DB__USER is not set
	DefaultDBUser = "postgres"
	// DefaultDBName is the database name used when DB__NAME is not set
	DefaultDBName = "postgres"
	// DefaultSSLMode is the SSL mode used for migration connections
	DefaultSSLMode = "disable"

	// DefaultReadinessAttempts is the total number of readiness checks
	DefaultReadinessAttempts = 30
	// DefaultReadinessDelay is the pause after a failed readiness check
	DefaultReadinessDelay = 5 * time.Second
	// DefaultCheckTimeout bounds a single readiness check
	DefaultCheckTimeout = 1 * time.Second

	// DefaultMigrationRetries is the number of retries after the initial migration attempt
	DefaultMigrationRetries = 3
	// DefaultMigrationDelay is the pause before every migration retry
	DefaultMigrationDelay = 30 * time.Second

	// DefaultShutdownGrace is how long the service gets to exit after SIGTERM
	DefaultShutdownGrace = 10 * time.Second
)

// ErrInvalidTarget is returned when a connection target is incomplete or out of range
var ErrInvalidTarget = errors.New("invalid connection target")

// DefaultMigrationCommand applies all pending migrations up to head
var DefaultMigrationCommand = []string{"alembic", "upgrade", "head"}

// LaunchOrder controls when the service process is started relative to migrations
type LaunchOrder string

const (
	// LaunchConcurrent starts the service before probing, racing with migrations
	LaunchConcurrent LaunchOrder = "concurrent"
	// LaunchAfterMigration starts the service only once the migration stage is done
	LaunchAfterMigration LaunchOrder = "after-migration"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path    string
	skipEnv bool
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithoutEnvironment disables environment overrides
func WithoutEnvironment() Option {
	return func(cfg *loaderConfig) error {
		cfg.skipEnv = true
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Database  DatabaseConfig   `yaml:"db"`
	Readiness ReadinessConfig  `yaml:"readiness"`
	Migration MigrationConfig  `yaml:"migration"`
	Service   ServiceConfig    `yaml:"service"`
	Status    StatusConfig     `yaml:"status"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ConnectionTarget identifies the database the entrypoint waits for
type ConnectionTarget struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"name"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	ConnectionTarget `yaml:",inline"`

	// Password is only used for migrations run in-process.
	// Prefer PasswordFile or the DB__PASSWORD environment variable.
	Password string `yaml:"password,omitempty"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`
}

// ReadinessConfig defines the readiness probing policy
type ReadinessConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	Delay        time.Duration `yaml:"delay"`
	CheckTimeout time.Duration `yaml:"checkTimeout"`
	Backoff      string        `yaml:"backoff,omitempty"`
	MaxDelay     time.Duration `yaml:"maxDelay,omitempty"`
}

// MigrationConfig defines how migrations are applied and retried
type MigrationConfig struct {
	Retries  int           `yaml:"retries"`
	Delay    time.Duration `yaml:"delay"`
	Backoff  string        `yaml:"backoff,omitempty"`
	MaxDelay time.Duration `yaml:"maxDelay,omitempty"`

	// Command is the external migration tool invocation
	Command []string `yaml:"command,omitempty"`

	// Source is a golang-migrate source URL (e.g. file:///app/migrations).
	// When set, migrations run in-process and Command is ignored.
	Source string `yaml:"source,omitempty"`

	// FailOnError makes migration exhaustion fatal instead of only logged
	FailOnError bool `yaml:"failOnError"`
}

// ServiceConfig defines the supervised service process
type ServiceConfig struct {
	Command       []string      `yaml:"command,omitempty"`
	LaunchOrder   LaunchOrder   `yaml:"launchOrder,omitempty"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace,omitempty"`
}

// StatusConfig defines the optional status HTTP server
type StatusConfig struct {
	// Address to listen on, e.g. ":9090". Empty disables the server.
	Address string `yaml:"address,omitempty"`
}

// Default returns a configuration populated with all documented defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			ConnectionTarget: ConnectionTarget{
				Host:     DefaultDBHost,
				Port:     DefaultDBPort,
				User:     DefaultDBUser,
				Database: DefaultDBName,
			},
			SSLMode: DefaultSSLMode,
		},
		Readiness: ReadinessConfig{
			MaxAttempts:  DefaultReadinessAttempts,
			Delay:        DefaultReadinessDelay,
			CheckTimeout: DefaultCheckTimeout,
		},
		Migration: MigrationConfig{
			Retries: DefaultMigrationRetries,
			Delay:   DefaultMigrationDelay,
			Command: append([]string(nil), DefaultMigrationCommand...),
		},
		Service: ServiceConfig{
			LaunchOrder:   LaunchConcurrent,
			ShutdownGrace: DefaultShutdownGrace,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and the process environment, in that order of precedence.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	config := Default()

	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if !loaderCfg.skipEnv {
		if err := applyEnvironment(config, newEnvReader()); err != nil {
			return nil, err
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. The Password field (which DB__PASSWORD overrides)
//
// An empty password is not an error; the readiness probe never needs one.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		return strings.TrimSpace(string(data)), nil
	}

	return d.Password, nil
}

// GetConnectionString builds a PostgreSQL URL including the password.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode
	}

	return d.URL(password, url.Values{"sslmode": []string{sslMode}}), nil
}

// URL returns a postgres:// URL for the target. The password is only
// included when non-empty.
func (t ConnectionTarget) URL(password string, query url.Values) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
		Path:   "/" + t.Database,
	}
	if password != "" {
		u.User = url.UserPassword(t.User, password)
	} else {
		u.User = url.User(t.User)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// String renders the target without credentials, for logs
func (t ConnectionTarget) String() string {
	return fmt.Sprintf("%s@%s/%s", t.User, net.JoinHostPort(t.Host, strconv.Itoa(t.Port)), t.Database)
}

// Validate checks every field is set and the port is in range
func (t ConnectionTarget) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("%w: database host is required", ErrInvalidTarget)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: database port must be between 1 and 65535, got %d", ErrInvalidTarget, t.Port)
	}
	if t.User == "" {
		return fmt.Errorf("%w: database user is required", ErrInvalidTarget)
	}
	if t.Database == "" {
		return fmt.Errorf("%w: database name is required", ErrInvalidTarget)
	}
	return nil
}

// ReadinessPolicy returns the probing policy, where MaxAttempts counts every check
func (c *Config) ReadinessPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Readiness.MaxAttempts,
		Delay:       c.Readiness.Delay,
		Backoff:     retry.BackoffKind(c.Readiness.Backoff),
		MaxDelay:    c.Readiness.MaxDelay,
	}
}

// MigrationPolicy returns the migration policy: one initial attempt plus Retries
func (c *Config) MigrationPolicy() retry.RetriesPolicy {
	return retry.RetriesPolicy{
		Retries:  c.Migration.Retries,
		Delay:    c.Migration.Delay,
		Backoff:  retry.BackoffKind(c.Migration.Backoff),
		MaxDelay: c.Migration.MaxDelay,
	}
}

// UsesMigrateSource reports whether migrations run in-process from Source
func (m *MigrationConfig) UsesMigrateSource() bool {
	return m.Source != ""
}

// ValidateService checks the settings needed to launch the service
func (c *Config) ValidateService() error {
	if len(c.Service.Command) == 0 {
		return fmt.Errorf("service command is required")
	}
	return nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.ReadinessPolicy().Validate(); err != nil {
		return fmt.Errorf("readiness: %w", err)
	}
	if c.Readiness.CheckTimeout <= 0 {
		return fmt.Errorf("readiness: check timeout must be positive, got %s", c.Readiness.CheckTimeout)
	}

	if err := c.MigrationPolicy().Validate(); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	if !c.Migration.UsesMigrateSource() && len(c.Migration.Command) == 0 {
		return fmt.Errorf("migration: one of command or source must be specified")
	}

	switch c.Service.LaunchOrder {
	case LaunchConcurrent, LaunchAfterMigration:
	case "":
		c.Service.LaunchOrder = LaunchConcurrent
	default:
		return fmt.Errorf("service: launchOrder must be %s or %s, got %s",
			LaunchConcurrent, LaunchAfterMigration, c.Service.LaunchOrder)
	}
	if c.Service.ShutdownGrace < 0 {
		return fmt.Errorf("service: shutdownGrace must not be negative, got %s", c.Service.ShutdownGrace)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}
