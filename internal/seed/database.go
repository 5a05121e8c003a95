package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// undefinedTable is the SQLSTATE Postgres reports for a missing relation.
const undefinedTable = "42P01"

// seedProbeQuery touches the table the seed script creates.
const seedProbeQuery = `SELECT 1 FROM "user" LIMIT 1`

// Conn is the subset of *pgx.Conn the seed check uses.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// Connector opens a single connection for the duration of one check.
type Connector func(ctx context.Context, dsn string) (Conn, error)

// PgxConnector opens a connection with pgx.
func PgxConnector(ctx context.Context, dsn string) (Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return conn, nil
}
