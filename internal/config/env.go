package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/viper"
)

// EnvNestedDelimiter separates nested keys in environment variable names,
// so that the key db.host is read from DB__HOST.
const EnvNestedDelimiter = "__"

// envReader looks up a dotted configuration key in the environment
type envReader interface {
	GetString(key string) string
}

// newEnvReader returns a Viper instance bound to the process environment
func newEnvReader() envReader {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", EnvNestedDelimiter))
	v.AutomaticEnv()
	return v
}

// applyEnvironment overrides cfg with any values present in the environment.
// The database target variables never fail: unparseable values fall back
// silently to what is already configured.
func applyEnvironment(cfg *Config, env envReader) error {
	applyDatabaseEnvironment(&cfg.Database, env)

	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		value := strings.TrimSpace(env.GetString(key))
		if value == "" {
			return
		}
		if applyErr := apply(value); applyErr != nil {
			err = fmt.Errorf("invalid value for %s: %w", envName(key), applyErr)
		}
	}

	set("readiness.max_attempts", intSetter(&cfg.Readiness.MaxAttempts))
	set("readiness.delay", durationSetter(&cfg.Readiness.Delay))
	set("readiness.check_timeout", durationSetter(&cfg.Readiness.CheckTimeout))
	set("readiness.backoff", stringSetter(&cfg.Readiness.Backoff))
	set("readiness.max_delay", durationSetter(&cfg.Readiness.MaxDelay))

	set("migration.retries", intSetter(&cfg.Migration.Retries))
	set("migration.delay", durationSetter(&cfg.Migration.Delay))
	set("migration.backoff", stringSetter(&cfg.Migration.Backoff))
	set("migration.max_delay", durationSetter(&cfg.Migration.MaxDelay))
	set("migration.command", commandSetter(&cfg.Migration.Command))
	set("migration.source", stringSetter(&cfg.Migration.Source))
	set("migration.fail_on_error", boolSetter(&cfg.Migration.FailOnError))

	set("service.command", commandSetter(&cfg.Service.Command))
	set("service.launch_order", func(s string) error {
		cfg.Service.LaunchOrder = LaunchOrder(s)
		return nil
	})
	set("service.shutdown_grace", durationSetter(&cfg.Service.ShutdownGrace))

	set("status.address", stringSetter(&cfg.Status.Address))

	set("telemetry.service_name", stringSetter(&cfg.Telemetry.ServiceName))
	set("telemetry.endpoint", stringSetter(&cfg.Telemetry.Endpoint))
	set("telemetry.insecure", boolSetter(&cfg.Telemetry.Insecure))
	set("telemetry.tracing.enabled", boolSetter(&cfg.Telemetry.Tracing.Enabled))
	set("telemetry.tracing.sampling", floatSetter(&cfg.Telemetry.Tracing.Sampling))
	set("telemetry.metrics.enabled", boolSetter(&cfg.Telemetry.Metrics.Enabled))
	set("telemetry.metrics.interval", durationSetter(&cfg.Telemetry.Metrics.Interval))

	return err
}

func applyDatabaseEnvironment(db *DatabaseConfig, env envReader) {
	if host := env.GetString("db.host"); host != "" {
		db.Host = host
	}
	if port := env.GetString("db.port"); port != "" {
		p, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil || p < 1 || p > 65535 {
			slog.Debug("Ignoring invalid database port from environment", "value", port)
		} else {
			db.Port = p
		}
	}
	if user := env.GetString("db.user"); user != "" {
		db.User = user
	}
	if name := env.GetString("db.name"); name != "" {
		db.Database = name
	}
	if password := env.GetString("db.password"); password != "" {
		db.Password = password
	}
	if sslMode := env.GetString("db.sslmode"); sslMode != "" {
		db.SSLMode = sslMode
	}
}

// envName returns the environment variable name read for a dotted key
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", EnvNestedDelimiter))
}

func intSetter(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func floatSetter(dst *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

// commandSetter splits a command line with shell quoting rules, so that
// `sh -c "a b"` yields three arguments
func commandSetter(dst *[]string) func(string) error {
	return func(s string) error {
		args, err := shlex.Split(s)
		if err != nil {
			return err
		}
		*dst = args
		return nil
	}
}

// durationSetter accepts Go durations ("30s", "1m") or a bare number of seconds
func durationSetter(dst *time.Duration) func(string) error {
	return func(s string) error {
		d, err := parseDuration(s)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
