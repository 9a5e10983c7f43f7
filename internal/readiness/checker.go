// Package readiness waits for the database to accept connections.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stacklok/toolhive-entrypoint/internal/config"
)

//go:generate mockgen -destination=mocks/mock_checker.go -package=mocks -source=checker.go Checker

// Checker performs a single point-in-time connectivity check
type Checker interface {
	// Check returns nil when the target accepts connections
	Check(ctx context.Context, target config.ConnectionTarget) error
}

// sqlStateCannotConnectNow is reported while the server is starting up or shutting down
const sqlStateCannotConnectNow = "57P03"

// PostgresChecker checks connectivity the way pg_isready does: any answer
// from the server other than "cannot connect now" means it is accepting
// connections, even when authentication or the database name is rejected.
type PostgresChecker struct {
	sslMode string
}

// NewPostgresChecker creates a checker using the given SSL mode
func NewPostgresChecker(sslMode string) *PostgresChecker {
	if sslMode == "" {
		sslMode = config.DefaultSSLMode
	}
	return &PostgresChecker{sslMode: sslMode}
}

// Check opens and immediately closes a connection to target. The caller
// bounds the check through ctx.
func (c *PostgresChecker) Check(ctx context.Context, target config.ConnectionTarget) error {
	connConfig, err := pgconn.ParseConfig(target.URL("", url.Values{"sslmode": []string{c.sslMode}}))
	if err != nil {
		return fmt.Errorf("failed to parse connection config: %w", err)
	}

	conn, err := pgconn.ConnectConfig(ctx, connConfig)
	if err == nil {
		_ = conn.Close(ctx)
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code != sqlStateCannotConnectNow {
		return nil
	}

	return fmt.Errorf("database not accepting connections: %w", err)
}
