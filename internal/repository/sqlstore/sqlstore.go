// Package sqlstore implements the repository interfaces on top of
// database/sql. Two backends are supported and picked from the DSN:
//
//   - SQLite through modernc.org/sqlite (pure Go, no CGo), the default for
//     development and tests. Any DSN that is not a postgres URL is treated
//     as a SQLite path; ":memory:" gives a throwaway database.
//   - PostgreSQL through the pgx stdlib driver, for DSNs starting with
//     postgres:// or postgresql://.
//
// Queries are written once with "?" placeholders and rebound to $1, $2, ...
// for PostgreSQL. The schema is managed by goose migrations embedded in the
// binary, one directory per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB wraps a sql.DB connection pool and implements the repository
// interfaces for both supported dialects.
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// New opens the database named by dsn, verifies the connection and brings
// the schema up to date.
//
// dsn examples:
//   - "data/insho.db", "sqlite://data/insho.db" → SQLite file
//   - ":memory:"                                → SQLite in memory (tests)
//   - "postgres://user:pw@host:5432/insho"      → PostgreSQL
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	driver, source, d := parseDSN(dsn)

	if d == dialectSQLite && source != ":memory:" {
		if dir := filepath.Dir(source); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlstore: creating database directory %s: %w", dir, err)
			}
		}
	}

	open := source
	if d == dialectSQLite {
		open = withPragmas(source)
	}

	conn, err := sql.Open(driver, open)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", d, err)
	}

	if d == dialectSQLite {
		// One long-lived connection: writes are serialised anyway. A
		// ":memory:" database lives exactly as long as that connection, so
		// it is for tests only; file databases survive a reconnect.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		conn.SetConnMaxIdleTime(0)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging %s database: %w", d, err)
	}

	if err := migrate(ctx, conn, d, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return &DB{conn: conn, dialect: d}, nil
}

// newWithConn wraps an already-open pool without migrating it.
// Used by tests that drive the store through sqlmock.
func newWithConn(conn *sql.DB, d dialect) *DB {
	return &DB{conn: conn, dialect: d}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database still answers. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlstore: ping: %w", err)
	}
	return nil
}

func parseDSN(dsn string) (driver, source string, d dialect) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, dialectPostgres
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), dialectSQLite
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:"), dialectSQLite
	default:
		return "sqlite", dsn, dialectSQLite
	}
}

// sqlitePragmas are applied by the driver to every new connection.
// foreign_keys is per connection and backs ON DELETE CASCADE.
var sqlitePragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

// withPragmas appends the connection pragmas to a SQLite source. WAL is
// skipped for ":memory:", which has no journal file.
func withPragmas(source string) string {
	pragmas := sqlitePragmas
	if !strings.HasPrefix(source, ":memory:") {
		pragmas = append(pragmas[:len(pragmas):len(pragmas)], "journal_mode(WAL)")
	}

	var b strings.Builder
	b.WriteString(source)
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func migrate(ctx context.Context, conn *sql.DB, d dialect, logger *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{logger: logger})

	gooseDialect, dir := "sqlite3", "migrations/sqlite"
	if d == dialectPostgres {
		gooseDialect, dir = "pgx", "migrations/postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("setting goose dialect %s: %w", gooseDialect, err)
	}
	return gooseUpContext(ctx, conn, dir)
}

// gooseLogger routes goose progress output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
	os.Exit(1)
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
// None of our queries contain a literal "?" inside a string.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, db.rebind(query), args...)
}

// isUniqueViolation reports whether err is a UNIQUE / PRIMARY KEY
// constraint failure in either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
