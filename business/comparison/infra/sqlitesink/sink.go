// Package sqlitesink stores savings records in a SQLite database.
package sqlitesink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
)

// Table holds one row per record.
const Table = "savings_records"

var (
	createTable = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	%s TEXT NOT NULL
)`, Table, strings.Join(domain.Columns, " TEXT NOT NULL,\n\t"))

	createIndex = fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_run ON %s (run_id)`, Table, Table)

	insertRow = fmt.Sprintf(`INSERT INTO %s (run_id, %s) VALUES (?%s)`,
		Table, strings.Join(domain.Columns, ", "), strings.Repeat(", ?", len(domain.Columns)))
)

// Sink inserts records in append order. The table keeps the CSV column
// layout plus run_id.
type Sink struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	insert *sql.Stmt
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, sinkError(path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{createTable, createIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, sinkError(path, err)
		}
	}

	insert, err := db.PrepareContext(ctx, insertRow)
	if err != nil {
		db.Close()
		return nil, sinkError(path, err)
	}
	return &Sink{path: path, db: db, insert: insert}, nil
}

// Append inserts rec.
func (s *Sink) Append(ctx context.Context, rec domain.SavingsRecord) error {
	row := rec.Row()
	args := make([]any, 0, len(row)+1)
	args = append(args, rec.RunID)
	for _, v := range row {
		args = append(args, v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return sinkError(s.path, sql.ErrConnDone)
	}
	if _, err := s.insert.ExecContext(ctx, args...); err != nil {
		return sinkError(s.path, err)
	}
	return nil
}

// Count returns the number of rows stored for runID.
func (s *Sink) Count(ctx context.Context, runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, sinkError(s.path, sql.ErrConnDone)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE run_id = ?", Table), runID).Scan(&n)
	if err != nil {
		return 0, sinkError(s.path, err)
	}
	return n, nil
}

// Ping checks the database connection.
func (s *Sink) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return sinkError(s.path, sql.ErrConnDone)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return sinkError(s.path, err)
	}
	return nil
}

// Close releases the database. Closing twice is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	s.insert.Close()
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return sinkError(s.path, err)
	}
	return nil
}

func sinkError(path string, err error) error {
	return apperror.New(apperror.CodeSinkWriteFailed,
		apperror.WithContext(fmt.Sprintf("sqlite %s", path)),
		apperror.WithCause(err))
}
