package schema

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// pgCatalog implements catalog over a single short-lived pgx connection.
type pgCatalog struct {
	conn *pgx.Conn
}

// dialPostgres is the production DialFunc. The context carries the run
// deadline; the connection string additionally sets connect_timeout so the
// TCP handshake itself is bounded.
func dialPostgres(ctx context.Context, p Params) (catalog, error) {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := pgx.Connect(ctx, connString(p, timeout))
	if err != nil {
		return nil, err
	}
	return &pgCatalog{conn: conn}, nil
}

func (c *pgCatalog) SchemaExists(ctx context.Context, schema string) (bool, error) {
	var exists bool
	err := c.conn.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1
			FROM information_schema.schemata
			WHERE schema_name = $1
		)`, schema).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (c *pgCatalog) ListSchemas(ctx context.Context, limit int) ([]string, error) {
	rows, err := c.conn.Query(ctx,
		`SELECT schema_name
		 FROM information_schema.schemata
		 WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		 ORDER BY schema_name
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		schemas = append(schemas, name)
	}
	return schemas, rows.Err()
}

func (c *pgCatalog) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
