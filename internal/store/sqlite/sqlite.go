package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite/migrations"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	*queries
	db *sqlx.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the SQLite database at dbPath and applies pending migrations.
func New(dbPath string, logger *zerolog.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return NewFromDB(db.DB, logger), nil
}

// NewFromDB wraps an already opened database without touching its schema.
// Useful for tests that bring their own driver, such as sqlmock.
func NewFromDB(db *sql.DB, logger *zerolog.Logger) *SQLiteStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	xdb := sqlx.NewDb(db, "sqlite3")
	return &SQLiteStore{
		queries: &queries{db: xdb, log: logger},
		db:      xdb,
	}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(&queries{db: tx, log: s.log}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for health checks and tests.
func (s *SQLiteStore) DB() *sqlx.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// queries implements store.Queries over either the pool or a transaction.
type queries struct {
	db  sqlx.ExtContext
	log *zerolog.Logger
}

func (q *queries) get(ctx context.Context, dest any, query string, args ...any) error {
	q.trace(query, args)
	return sqlx.GetContext(ctx, q.db, dest, query, args...)
}

func (q *queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	q.trace(query, args)
	return sqlx.SelectContext(ctx, q.db, dest, query, args...)
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q.trace(query, args)
	return q.db.ExecContext(ctx, query, args...)
}

// in expands slice arguments for an IN (?) clause.
func (q *queries) in(query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand query: %w", err)
	}
	return q.db.Rebind(expanded), expandedArgs, nil
}

func (q *queries) trace(query string, args []any) {
	q.log.Trace().Str("query", strings.Join(strings.Fields(query), " ")).Interface("args", args).Msg("sql")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns term into a substring pattern for LIKE ... ESCAPE '\'.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
