package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/aristath/waverunner/internal/scheduler"
)

// Store defines the persistence interface for a plan's backing document.
type Store interface {
	// Load reads the whole plan. Returns ErrNotFound if there is no document yet.
	Load(ctx context.Context) (*scheduler.Plan, error)
	// Save replaces the whole document with the plan.
	Save(ctx context.Context, plan *scheduler.Plan) error
	// UpdateTask persists the status, attempts and reason of one task.
	UpdateTask(ctx context.Context, task *scheduler.Task) error
	// Close releases the underlying resources.
	Close() error
}

// SQLiteStore keeps the plan in a SQLite database, one row per task.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by modernc.org/sqlite on every new connection.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// NewSQLiteStore opens or creates the database at dbPath, creating parent
// directories. File databases run in WAL mode with NORMAL sync.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}
	return openSQLite(ctx, "file:"+dbPath, "journal_mode(WAL)", "synchronous(NORMAL)")
}

// NewMemoryStore returns a store backed by a private in-memory database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return openSQLite(ctx, "file::memory:")
}

func openSQLite(ctx context.Context, base string, extra ...string) (*SQLiteStore, error) {
	q := url.Values{}
	for _, p := range append(append([]string(nil), sqlitePragmas...), extra...) {
		q.Add("_pragma", p)
	}

	db, err := sql.Open("sqlite", base+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
