package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	storeDriverSQLite   = "sqlite"
	storeDriverPostgres = "postgres"
	storeDriverMemory   = "memory"
	sqliteFileName      = "forestkeeper.db"
)

// sqlKeyValueStore keeps entries in the kv_entries table on SQLite or
// Postgres; only the bind variables differ.
type sqlKeyValueStore struct {
	db     *sql.DB
	driver string
	clock  clockwork.Clock
}

func newSQLKeyValueStore(db *sql.DB, driver string, clock clockwork.Clock) *sqlKeyValueStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &sqlKeyValueStore{db: db, driver: driver, clock: clock}
}

// bindVar returns the n-th (1-based) bind variable for driver.
func bindVar(driver string, n int) string {
	if driver == storeDriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *sqlKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	query := fmt.Sprintf(`SELECT value FROM kv_entries WHERE key = %s`, bindVar(s.driver, 1))
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *sqlKeyValueStore) Set(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (%s, %s, %s)
		ON CONFLICT (key)
		DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, bindVar(s.driver, 1), bindVar(s.driver, 2), bindVar(s.driver, 3))
	_, err := s.db.ExecContext(ctx, query, key, value, s.clock.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqlKeyValueStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type memoryKeyValueStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryKeyValueStore() *memoryKeyValueStore {
	return &memoryKeyValueStore{entries: make(map[string]string)}
}

func (m *memoryKeyValueStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *memoryKeyValueStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryKeyValueStore) Ping(context.Context) error { return nil }

// openKeyValueStore returns the configured backend and a close func.
func openKeyValueStore(ctx context.Context, cfg *Config, clock clockwork.Clock, logger *slog.Logger) (KeyValueStore, func() error, error) {
	switch cfg.StoreDriver {
	case storeDriverMemory:
		return newMemoryKeyValueStore(), func() error { return nil }, nil
	case storeDriverPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return prepareSQLStore(ctx, db, storeDriverPostgres, clock, logger)
	case storeDriverSQLite:
		if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data root: %w", err)
		}
		dsn := filepath.Join(cfg.DataRoot, sqliteFileName)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// A single connection serialises statements on the file.
		db.SetMaxOpenConns(1)
		return prepareSQLStore(ctx, db, storeDriverSQLite, clock, logger)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func prepareSQLStore(ctx context.Context, db *sql.DB, driver string, clock clockwork.Clock, logger *slog.Logger) (KeyValueStore, func() error, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping store: %w", err)
	}
	if err := runMigrations(ctx, db, driver, logger); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return newSQLKeyValueStore(db, driver, clock), db.Close, nil
}

func runMigrations(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists int
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM schema_migrations WHERE filename = %s`, bindVar(driver, 1))
		if err := db.QueryRowContext(ctx, countQuery, file).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		insertQuery := fmt.Sprintf(`INSERT INTO schema_migrations (filename, applied_at) VALUES (%s, %s)`, bindVar(driver, 1), bindVar(driver, 2))
		if _, err := tx.ExecContext(ctx, insertQuery, file, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		logger.Info("applied migration", "file", file)
	}

	return nil
}
