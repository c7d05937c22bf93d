package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures the rotating diagnostic log file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter returns a size-rotated writer for cfg.Path.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// Tee writes to the console stream and, when cfg.Path is set, to the rotating file.
// The returned closer releases the file.
func Tee(console io.Writer, cfg FileConfig) (io.Writer, io.Closer) {
	if cfg.Path == "" {
		return console, nopCloser{}
	}
	f := NewFileWriter(cfg)
	return io.MultiWriter(console, f), f
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
