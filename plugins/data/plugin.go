// Package data registers the data.postgres.* modules backed by a shared
// connection pool. The connection string normally arrives through the
// credential namespace ({{credential.postgres.dsn}}) rather than being
// hardcoded in workflow inputs.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"flowgrid/runtime"
)

// Config holds the Postgres pack configuration.
type Config struct {
	ConnectionString  string `json:"connection_string" validate:"required,dsn"`
	MaxOpenConns      int    `json:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `json:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `json:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

// QueryInput is the typed input for data.postgres.query and exec.
type QueryInput struct {
	Query  string `json:"query" validate:"required"`
	Params []any  `json:"params"`
}

type Pack struct {
	db *sql.DB
}

func New(rawConfig map[string]any) (*Pack, error) {
	var cfg Config
	if err := runtime.InitializeConfig(&cfg, rawConfig); err != nil {
		return nil, fmt.Errorf("data pack config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	return &Pack{db: db}, nil
}

// Close releases the connection pool.
func (p *Pack) Close() error {
	return p.db.Close()
}

// Register adds the pack's modules to the registry builder.
func (p *Pack) Register(b *runtime.RegistryBuilder) {
	params := []runtime.ParamSpec{
		{Name: "query", Type: "string", Description: "SQL statement with $1-style placeholders", Required: true},
		{Name: "params", Type: "array", Description: "Positional statement parameters"},
	}
	b.Register(runtime.Module{
		Category:    "data",
		Name:        "postgres",
		Function:    "query",
		Description: "Run a SELECT and return all rows as objects",
		Params:      params,
		Handler:     p.query,
	})
	b.Register(runtime.Module{
		Category:    "data",
		Name:        "postgres",
		Function:    "exec",
		Description: "Run an INSERT, UPDATE or DELETE and return the affected row count",
		Params:      params,
		Handler:     p.exec,
	})
}

func (p *Pack) query(ctx context.Context, args map[string]any) (any, error) {
	var input QueryInput
	if err := runtime.DecodeArgs(args, &input); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, input.Query, input.Params...)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get columns: %w", err)
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get column types: %w", err)
	}

	out := []any{}
	for rows.Next() {
		row, err := scanRow(cols, colTypes, rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	return map[string]any{"rows": out, "count": len(out)}, nil
}

func (p *Pack) exec(ctx context.Context, args map[string]any) (any, error) {
	var input QueryInput
	if err := runtime.DecodeArgs(args, &input); err != nil {
		return nil, err
	}

	result, err := p.db.ExecContext(ctx, input.Query, input.Params...)
	if err != nil {
		return nil, fmt.Errorf("postgres exec failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get affected rows: %w", err)
	}
	return map[string]any{"affectedRows": affected}, nil
}

// scanRow scans a single row into a map. JSONB/UUID/NUMERIC columns arrive
// as []byte and are converted to strings so they survive JSON encoding.
func scanRow(cols []string, colTypes []*sql.ColumnType, rows *sql.Rows) (map[string]any, error) {
	values := make([]any, len(cols))
	valuePtrs := make([]any, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, err
	}

	result := make(map[string]any, len(cols))
	for i, col := range cols {
		val := values[i]
		switch colTypes[i].DatabaseTypeName() {
		case "JSONB", "JSON", "UUID", "NUMERIC", "DECIMAL":
			if b, ok := val.([]byte); ok {
				result[col] = string(b)
				continue
			}
			result[col] = val
		default:
			result[col] = val
		}
	}
	return result, nil
}
