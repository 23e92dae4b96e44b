package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"             // sqlite driver
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var (
	ErrNotFound    = sql.ErrNoRows
	ErrPersistence = errors.New("store: database error")
)

type Options struct {
	DSN string
	// LivenessCheck — пинговать пул перед каждой записью (аналог pre-ping).
	LivenessCheck bool
	MaxOpenConns  int
}

// DB — пул соединений плюс диалект, от которого зависят SQL-тексты.
type DB struct {
	SQL           *sql.DB
	Dialect       Dialect
	LivenessCheck bool
}

// Open выбирает драйвер по DSN: postgres:// → pgx, sqlite:// / file: / путь → modernc sqlite.
func Open(ctx context.Context, opt Options) (*DB, error) {
	dialect, dsn, err := ParseDSN(opt.DSN)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == SQLite {
		driver = "sqlite"
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("store: mkdir: %w", err)
				}
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	maxOpen := opt.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if dialect == SQLite && dsn == ":memory:" {
		// каждое соединение к :memory: — отдельная база
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(1 * time.Hour)

	if dialect == SQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &DB{SQL: db, Dialect: dialect, LivenessCheck: opt.LivenessCheck}, nil
}

func (d *DB) Close() error { return d.SQL.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.SQL.PingContext(ctx) }

// ParseDSN понимает DSN в стиле SQLAlchemy (sqlite:///./app.db) и обычные postgres URL.
func ParseDSN(raw string) (Dialect, string, error) {
	dsn := strings.TrimSpace(raw)
	switch {
	case dsn == "":
		return "", "", errors.New("store: empty DSN")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(dsn, "postgresql+psycopg2://"):
		return Postgres, "postgresql://" + strings.TrimPrefix(dsn, "postgresql+psycopg2://"), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		p := strings.TrimPrefix(dsn, "sqlite://")
		// sqlite:///app.db → app.db, sqlite:////var/app.db → /var/app.db
		p = strings.TrimPrefix(p, "/")
		if p == "" || p == ":memory:" {
			return SQLite, ":memory:", nil
		}
		return SQLite, p, nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return SQLite, dsn, nil
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("store: unsupported DSN scheme in %q", SafeDSNSummary(dsn))
	default:
		return SQLite, dsn, nil
	}
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}
	return nil
}

// SafeDSNSummary — DSN без пароля, для логов.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "dsn: " + filepath.Base(dsn)
	}
	if strings.HasPrefix(u.Scheme, "sqlite") || u.Scheme == "file" {
		return "sqlite: " + strings.TrimPrefix(u.Path, "/")
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
