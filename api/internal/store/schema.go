package store

import (
	"context"
	"fmt"
)

var schemaPostgres = []string{
	`create table if not exists analysis_logs (
  id          bigserial primary key,
  created_at  timestamptz not null default now(),
  persona     text not null,
  result_json jsonb not null
)`,
	`create index if not exists analysis_logs_created_at_idx on analysis_logs (created_at desc)`,
}

var schemaSQLite = []string{
	`create table if not exists analysis_logs (
  id          integer primary key autoincrement,
  created_at  timestamp not null default current_timestamp,
  persona     text not null,
  result_json text not null check (json_valid(result_json))
)`,
	`create index if not exists analysis_logs_created_at_idx on analysis_logs (created_at desc)`,
}

// Migrate идемпотентно создаёт таблицу analysis_logs. Вызывается один раз при старте.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := schemaPostgres
	if d.Dialect == SQLite {
		stmts = schemaSQLite
	}
	for _, q := range stmts {
		if _, err := d.SQL.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
