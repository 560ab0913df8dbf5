// Package auditlog implements the append-only text sinks read by the
// dashboard: the action audit log and the three reasoning-derived block logs.
//
// Every write is a single complete, newline-terminated record flushed under
// a mutex, so concurrent frames never interleave mid-entry and a partial
// read of the file always ends on a record boundary.
package auditlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Well-known log file names under the log directory.
const (
	ActionLogFile     = "logs.txt"
	ReasoningLogFile  = "llm_logs.txt"
	ActionPlanLogFile = "action_plan.txt"
	PolicyRecsLogFile = "policy_recommendations.txt"
)

// appendFile is an append-only file with serialized, flushed writes.
type appendFile struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func openAppendFile(path string) (*appendFile, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &appendFile{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// write appends record as one unit. The caller formats the full record.
func (a *appendFile) write(record string) error {
	return a.writeWith(func() string { return record })
}

// writeWith renders and appends the record while holding the lock, so any
// state render reads (such as the clock) is ordered with the file.
func (a *appendFile) writeWith(render func() string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	record := render()
	if a.file == nil {
		return fmt.Errorf("append to %s: %w", a.path, os.ErrClosed)
	}
	if _, err := a.writer.WriteString(record); err != nil {
		return fmt.Errorf("write %s: %w", a.path, err)
	}
	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", a.path, err)
	}
	return nil
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	_ = a.writer.Flush()
	err := a.file.Close()
	a.file = nil
	return err
}

// Truncate empties the named log files under dir, creating any that are
// missing. It is used by `safeops run --reset-logs` before the first frame.
func Truncate(dir string, names ...string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("truncate %s: %w", path, err)
		}
	}
	return nil
}
