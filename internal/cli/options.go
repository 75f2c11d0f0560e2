package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultTask runs when no task is named.
const DefaultTask = "default"

// Store backends accepted by --store.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Options holds the global CLI flags.
type Options struct {
	Dir         string
	File        string
	Debug       bool
	Concurrency int
	Store       string
	RedisURL    string
	// KeepRuns bounds the history of persisted stores. Zero keeps everything.
	KeepRuns int
	NoColor  bool

	Stdout io.Writer
	Stderr io.Writer
}

func (o Options) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o Options) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

func (o Options) dir() string {
	if o.Dir == "" {
		return "."
	}
	return o.Dir
}

// taskfilePath resolves --file against --dir.
func (o Options) taskfilePath() string {
	if o.File == "" || filepath.IsAbs(o.File) {
		return o.File
	}
	return filepath.Join(o.dir(), o.File)
}

// ExitError carries the process exit status of a failed command. Reported is
// set when the failure was already printed.
type ExitError struct {
	Code     int
	Err      error
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
