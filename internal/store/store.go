// Package store persists finalized money requests in SQLite. Records are
// append-only: they are written once on explicit submission and never
// updated or deleted here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// RequestRecord is one persisted money request. Immutable once written.
type RequestRecord struct {
	ID            int64
	Timestamp     time.Time
	ProjectNumber string
	ProjectName   string
	Amount        float64
	Reason        string
	OriginalText  string
}

var requiredColumns = []string{"id", "timestamp", "project_number", "project_name", "amount", "reason", "original_text"}

// Columns carried over when migrating a legacy table. id is reassigned and
// original_text did not exist before this schema.
var copyColumns = []string{"timestamp", "project_number", "project_name", "amount", "reason"}

// Store assumes single-writer access and opens a scoped connection per
// operation; transient busy/locked errors are retried a fixed number of
// times before the operation is reported as failed.
type Store struct {
	open       func() (*sql.DB, error)
	now        func() time.Time
	maxRetries int
	retryDelay time.Duration
}

func New(path string) *Store {
	return &Store{
		open: func() (*sql.DB, error) {
			return sql.Open("sqlite3", "file:"+path+"?_loc=UTC")
		},
		now:        time.Now,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// withConn runs op on a fresh connection, retrying transient errors with a
// fixed delay. The last error is returned once attempts are exhausted.
func (s *Store) withConn(ctx context.Context, op func(db *sql.DB) error) error {
	var last error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		db, err := s.open()
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		err = op(db)
		_ = db.Close()
		if err == nil {
			return nil
		}
		last = err
		if !isTransient(err) {
			return err
		}
		if attempt < s.maxRetries-1 {
			time.Sleep(s.retryDelay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", s.maxRetries, last)
}

func isTransient(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// Initialize idempotently ensures the requests table exists. A legacy table
// missing required columns is migrated: renamed aside, recreated with the
// current schema, shared columns copied over, old table dropped.
func (s *Store) Initialize(ctx context.Context) error {
	err := s.withConn(ctx, func(db *sql.DB) error {
		if _, err := db.ExecContext(ctx, `PRAGMA encoding = "UTF-8"`); err != nil {
			return fmt.Errorf("set encoding: %w", err)
		}

		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name='requests'`).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return createTable(ctx, db)
		}
		if err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}

		existing, err := tableColumns(ctx, db)
		if err != nil {
			return err
		}
		if hasAllColumns(existing) {
			return nil
		}
		return migrateTable(ctx, db, existing)
	})
	if err != nil {
		return fmt.Errorf("could not initialize database: %w", err)
	}
	return nil
}

func createTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME,
			project_number TEXT,
			project_name TEXT,
			amount REAL,
			reason TEXT,
			original_text TEXT
		)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func tableColumns(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(requests)`)
	if err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table info: %w", err)
	}
	return cols, nil
}

func hasAllColumns(existing map[string]bool) bool {
	for _, col := range requiredColumns {
		if !existing[col] {
			return false
		}
	}
	return true
}

func migrateTable(ctx context.Context, db *sql.DB, existing map[string]bool) error {
	if _, err := db.ExecContext(ctx, `ALTER TABLE requests RENAME TO requests_old`); err != nil {
		return fmt.Errorf("rename old table: %w", err)
	}
	if err := createTable(ctx, db); err != nil {
		return err
	}

	var shared []string
	for _, col := range copyColumns {
		if existing[col] {
			shared = append(shared, col)
		}
	}
	if len(shared) > 0 {
		cols := strings.Join(shared, ", ")
		q := fmt.Sprintf(`INSERT INTO requests (%s) SELECT %s FROM requests_old`, cols, cols)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `DROP TABLE requests_old`); err != nil {
		return fmt.Errorf("drop old table: %w", err)
	}
	return nil
}

// Add inserts a new record with a server-assigned timestamp.
func (s *Store) Add(ctx context.Context, rec RequestRecord) error {
	err := s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO requests (timestamp, project_number, project_name, amount, reason, original_text)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.now().UTC(), rec.ProjectNumber, rec.ProjectName, rec.Amount, rec.Reason, rec.OriginalText)
		return err
	})
	if err != nil {
		return fmt.Errorf("could not add request: %w", err)
	}
	return nil
}

// ListAll returns every persisted request, newest first.
func (s *Store) ListAll(ctx context.Context) ([]RequestRecord, error) {
	var out []RequestRecord
	err := s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id, timestamp, project_number, project_name, amount, reason, original_text
			FROM requests ORDER BY timestamp DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				rec  RequestRecord
				orig sql.NullString
			)
			if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ProjectNumber, &rec.ProjectName, &rec.Amount, &rec.Reason, &orig); err != nil {
				return err
			}
			rec.OriginalText = orig.String
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch requests: %w", err)
	}
	return out, nil
}
