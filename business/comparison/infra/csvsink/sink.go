// Package csvsink appends savings records to a CSV file.
package csvsink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fd1az/savings-bench/business/comparison/domain"
	"github.com/fd1az/savings-bench/internal/apperror"
)

// Sink writes one row per record and flushes after each so a crashed run
// keeps every emitted row.
type Sink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// Open opens path for appending. The header is written only when the file
// is new or empty.
func Open(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sinkError(path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, sinkError(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sinkError(path, err)
	}

	s := &Sink{path: path, file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.write(domain.Columns); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file the sink appends to.
func (s *Sink) Path() string {
	return s.path
}

// Append writes rec as one row.
func (s *Sink) Append(_ context.Context, rec domain.SavingsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return sinkError(s.path, os.ErrClosed)
	}
	return s.write(rec.Row())
}

func (s *Sink) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return sinkError(s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return sinkError(s.path, err)
	}
	return nil
}

// Ping reports whether the sink still accepts rows.
func (s *Sink) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return sinkError(s.path, os.ErrClosed)
	}
	if _, err := s.file.Stat(); err != nil {
		return sinkError(s.path, err)
	}
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return sinkError(s.path, flushErr)
	}
	if closeErr != nil {
		return sinkError(s.path, closeErr)
	}
	return nil
}

func sinkError(path string, err error) error {
	return apperror.New(apperror.CodeSinkWriteFailed,
		apperror.WithContext(fmt.Sprintf("csv %s", path)),
		apperror.WithCause(err))
}
